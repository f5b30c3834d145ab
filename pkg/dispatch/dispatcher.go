package dispatch

import (
	"strconv"
	"strings"

	"skill-routing-engine/pkg/catalogue"
	"skill-routing-engine/pkg/models"
)

// Decision is the Tool Dispatcher's answer. Tool is nil when required inputs
// are missing.
type Decision struct {
	Tool          *models.ToolAction
	MissingInputs []string
}

// Dispatch chooses the tool for a skill that passed escalation checks. It has
// no side effects; the same arguments always produce the same decision.
//
// Priority: transfer (a condition matches an event signal), ivr (voice with a
// trigger digit), calendar, ehr (healthcare only), sms (a trigger keyword
// matches), then the skill's fallback action.
func Dispatch(skill *models.Skill, event models.InboundEvent, handoff catalogue.Handoff) Decision {
	if missing := MissingInputs(skill, event); len(missing) > 0 {
		return Decision{MissingInputs: missing}
	}

	tools := skill.Tools

	if tools.Transfer.Enabled && matchesSignal(tools.Transfer.Conditions, event) {
		return Decision{Tool: transferAction(tools.Transfer.TargetNumber, tools.Transfer.WhisperMessage, false)}
	}

	if event.Channel == models.ChannelVoice && tools.IVR.Enabled && tools.IVR.TriggerDigit != "" {
		return Decision{Tool: &models.ToolAction{
			Kind: models.ToolIVR,
			Params: map[string]string{
				"digit":        tools.IVR.TriggerDigit,
				"voice_prompt": tools.IVR.VoicePrompt,
			},
		}}
	}

	if tools.Calendar.Enabled {
		params := mappedInputs(skill, event)
		params["provider"] = tools.Calendar.Provider
		params["lookahead_days"] = strconv.Itoa(tools.Calendar.LookaheadDays)
		return Decision{Tool: &models.ToolAction{Kind: models.ToolCalendar, Params: params}}
	}

	if tools.EHR.Enabled && skill.Category == models.CategoryHealthcare {
		params := mappedInputs(skill, event)
		params["provider"] = tools.EHR.Provider
		params["write_access"] = strconv.FormatBool(tools.EHR.WriteAccess)
		return Decision{Tool: &models.ToolAction{Kind: models.ToolEHR, Params: params}}
	}

	if tools.SMS.Enabled && tools.SMS.Template != "" {
		if kw, ok := models.MatchKeyword(tools.SMS.TriggerKeywords, event.FreeText); ok {
			return Decision{Tool: &models.ToolAction{
				Kind: models.ToolSMS,
				Params: map[string]string{
					"to":      event.CallerID,
					"body":    RenderTemplate(tools.SMS.Template, event.CapturedInputs),
					"trigger": kw,
				},
			}}
		}
	}

	return Decision{Tool: fallback(skill, handoff)}
}

// MissingInputs lists required input ids with no captured value, in
// declaration order
func MissingInputs(skill *models.Skill, event models.InboundEvent) []string {
	var missing []string
	for _, in := range skill.RequiredInputs() {
		if !event.HasInput(in.ID) {
			missing = append(missing, in.ID)
		}
	}
	return missing
}

// SystemHandoff is the disposition recorded when no skill is eligible
func SystemHandoff(handoff catalogue.Handoff) *models.ToolAction {
	if handoff.Behavior == string(models.FallbackMessage) {
		return &models.ToolAction{Kind: models.ToolMessage, Fallback: true}
	}
	return transferAction(handoff.TransferNumber, "", true)
}

func fallback(skill *models.Skill, handoff catalogue.Handoff) *models.ToolAction {
	switch skill.Logic.FallbackAction {
	case models.FallbackTransfer:
		target := skill.Tools.Transfer.TargetNumber
		if target == "" {
			target = handoff.TransferNumber
		}
		return transferAction(target, skill.Tools.Transfer.WhisperMessage, true)
	case models.FallbackHangup:
		return &models.ToolAction{Kind: models.ToolHangup, Fallback: true}
	default:
		return &models.ToolAction{
			Kind:     models.ToolMessage,
			Params:   map[string]string{"tone": skill.Logic.Tone},
			Fallback: true,
		}
	}
}

func transferAction(target, whisper string, isFallback bool) *models.ToolAction {
	params := map[string]string{"target_number": target}
	if whisper != "" {
		params["whisper_message"] = whisper
	}
	return &models.ToolAction{Kind: models.ToolTransfer, Params: params, Fallback: isFallback}
}

func matchesSignal(conditions []string, event models.InboundEvent) bool {
	for _, c := range conditions {
		if event.HasSignal(strings.TrimSpace(c)) {
			return true
		}
	}
	return false
}

// mappedInputs keys captured inputs by their external field name. The
// integration's fieldMapping wins over an input's own mappedField.
func mappedInputs(skill *models.Skill, event models.InboundEvent) map[string]string {
	params := make(map[string]string, len(event.CapturedInputs)+2)
	for id, value := range event.CapturedInputs {
		params[externalField(skill, id)] = value
	}
	return params
}

func externalField(skill *models.Skill, id string) string {
	if mapped, ok := skill.Integration.FieldMapping[id]; ok && mapped != "" {
		return mapped
	}
	for _, in := range skill.Inputs {
		if in.ID == id && in.MappedField != "" {
			return in.MappedField
		}
	}
	return id
}

// RenderTemplate substitutes {{field}} placeholders with captured values.
// Placeholders with no captured value are kept for the connector to fill.
func RenderTemplate(tmpl string, values map[string]string) string {
	var b strings.Builder
	rest := tmpl
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			break
		}
		closing := strings.Index(rest[open+2:], "}}")
		if closing < 0 {
			break
		}
		name := strings.TrimSpace(rest[open+2 : open+2+closing])
		b.WriteString(rest[:open])
		if v, ok := values[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(rest[open : open+2+closing+2])
		}
		rest = rest[open+2+closing+2:]
	}
	b.WriteString(rest)
	return b.String()
}
