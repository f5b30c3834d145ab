package models

import "time"

// Status is the terminal disposition of one evaluation. It matches the status
// field of an activity-log record.
type Status string

const (
	StatusResolved       Status = "resolved"
	StatusEscalated      Status = "escalated"
	StatusActionRequired Status = "action_required"
)

// ToolKind names a concrete action the engine can decide on
type ToolKind string

const (
	ToolSMS      ToolKind = "sms"
	ToolTransfer ToolKind = "transfer"
	ToolCalendar ToolKind = "calendar"
	ToolEHR      ToolKind = "ehr"
	ToolIVR      ToolKind = "ivr"
	ToolMessage  ToolKind = "message"
	ToolHangup   ToolKind = "hangup"
)

// ToolAction is the decided action with the parameters the integration
// connector needs. Fallback is set when the action came from a fallback
// disposition rather than an enabled tool slot.
type ToolAction struct {
	Kind     ToolKind          `json:"kind"`
	Params   map[string]string `json:"params,omitempty"`
	Fallback bool              `json:"fallback"`
}

// Action reasons reported with action_required outcomes
const (
	ActionConsentRequired       = "consent_required"
	ActionMissingInputs         = "missing_inputs"
	ActionToolFailed            = "tool_failed"
	ActionClassifierUnavailable = "classifier_unavailable"
)

// RoutingOutcome is produced once per inbound event
type RoutingOutcome struct {
	OutcomeID             string            `json:"outcome_id"`
	ConversationID        string            `json:"conversation_id"`
	EventID               string            `json:"event_id"`
	Channel               Channel           `json:"channel"`
	SelectedSkillID       string            `json:"selected_skill_id,omitempty"`
	Status                Status            `json:"status"`
	InvokedTool           *ToolAction       `json:"invoked_tool,omitempty"`
	MissingRequiredInputs []string          `json:"missing_required_inputs"`
	EscalationReason      string            `json:"escalation_reason,omitempty"`
	ActionReason          string            `json:"action_reason,omitempty"`
	Retryable             bool              `json:"retryable"`
	Disclosures           []string          `json:"disclosures,omitempty"`
	RedactedInputs        map[string]string `json:"captured_inputs,omitempty"`
	RedactedText          string            `json:"free_text,omitempty"`
	Ties                  []string          `json:"ties,omitempty"`
	Warnings              []string          `json:"warnings,omitempty"`
	FinalState            State             `json:"final_state"`
	DecidedAt             time.Time         `json:"decided_at"`
}
