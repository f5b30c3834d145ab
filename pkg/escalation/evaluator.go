package escalation

import (
	"strconv"

	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/models"
)

// Verdict says whether the contact leaves the automated path, and why
type Verdict struct {
	Escalate bool
	Reason   string
}

// Evaluate applies the skill's urgent keywords, then its confidence threshold.
// An urgent keyword escalates regardless of confidence.
func Evaluate(skill *models.Skill, event models.InboundEvent) Verdict {
	if kw, ok := skill.MatchUrgentKeyword(event.FreeText); ok {
		return Verdict{Escalate: true, Reason: constants.ReasonUrgentKeyword + ":" + kw}
	}

	if event.Confidence < skill.Logic.EscalationThreshold {
		score := strconv.FormatFloat(event.Confidence, 'f', -1, 64)
		return Verdict{Escalate: true, Reason: constants.ReasonLowConfidence + ":" + score}
	}

	return Verdict{}
}
