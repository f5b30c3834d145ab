package compliance

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/models"
)

// Decision is the Compliance Gate's answer for one skill and event.
// RedactedInputs and RedactedText are what may be persisted or published;
// the raw values never leave the gate when Redact is set.
type Decision struct {
	Allowed             bool
	RequiredDisclosures []string
	Redact              bool
	RedactedInputs      map[string]string
	RedactedText        string

	secrets []string
}

// RedactAction returns a copy of action whose parameters carry no redacted
// value. The original is left intact for the connector.
func (d Decision) RedactAction(action *models.ToolAction) *models.ToolAction {
	if action == nil || len(d.secrets) == 0 {
		return action
	}
	out := *action
	out.Params = make(map[string]string, len(action.Params))
	for k, v := range action.Params {
		out.Params[k] = scrub(v, d.secrets)
	}
	return &out
}

type Gate struct {
	logger *logrus.Logger
}

func NewGate(logger *logrus.Logger) *Gate {
	return &Gate{logger: logger}
}

// Authorize checks consent and computes the redacted view of the event.
// consentOnFile is consent recorded earlier in the same conversation.
func (g *Gate) Authorize(skill *models.Skill, event models.InboundEvent, consentOnFile bool) Decision {
	c := skill.Compliance
	d := Decision{
		Allowed:             !c.ConsentRequired || consentOnFile || event.ConsentGiven,
		RequiredDisclosures: append([]string(nil), c.Disclosures...),
		Redact:              c.HIPAA && c.Redaction,
	}

	d.RedactedInputs = make(map[string]string, len(event.CapturedInputs))
	for k, v := range event.CapturedInputs {
		d.RedactedInputs[k] = v
	}
	d.RedactedText = event.FreeText

	if d.Redact {
		var secrets []string
		for _, in := range skill.Inputs {
			if !in.Required || !in.Sensitive {
				continue
			}
			v, ok := d.RedactedInputs[in.ID]
			if !ok || v == "" {
				continue
			}
			d.RedactedInputs[in.ID] = constants.RedactionMarker
			secrets = append(secrets, v)
		}
		d.RedactedText = scrub(d.RedactedText, secrets)
		d.secrets = secrets
	}

	if !d.Allowed {
		g.logger.WithFields(logrus.Fields{
			"skill_id":        skill.ID,
			"conversation_id": event.ConversationID,
		}).Debug("Consent required before continuing")
	}

	return d
}

// scrub replaces every occurrence of the given values in text. Longer values
// go first so a value containing another is not left half redacted.
func scrub(text string, values []string) string {
	if text == "" || len(values) == 0 {
		return text
	}
	sort.SliceStable(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })
	for _, v := range values {
		text = strings.ReplaceAll(text, v, constants.RedactionMarker)
	}
	return text
}
