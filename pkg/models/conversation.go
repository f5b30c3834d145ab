package models

import "time"

// State is a step of the per-event routing state machine
type State string

const (
	StateReceived          State = "received"
	StateScheduleFiltered  State = "schedule_filtered"
	StateSkillSelected     State = "skill_selected"
	StateComplianceChecked State = "compliance_checked"
	StateEscalationChecked State = "escalation_checked"
	StateToolDispatched    State = "tool_dispatched"
	StateEscalated         State = "escalated"
	StateActionRequired    State = "action_required"
	StateClosed            State = "closed"
)

// Conversation carries what must survive between evaluations of the same
// contact. ResumeAt is StateReceived for a fresh conversation, or the state to
// re-enter after an action_required outcome.
type Conversation struct {
	ID                   string    `json:"id"`
	SkillID              string    `json:"skill_id,omitempty"`
	ResumeAt             State     `json:"resume_at"`
	ConsentGiven         bool      `json:"consent_given"`
	DisclosuresDelivered bool      `json:"disclosures_delivered"`
	LastStatus           Status    `json:"last_status,omitempty"`
	Evaluations          int       `json:"evaluations"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// NewConversation returns the state of a conversation that has not been evaluated yet
func NewConversation(id string) *Conversation {
	return &Conversation{ID: id, ResumeAt: StateReceived}
}

// Resumable reports whether the next evaluation can skip schedule filtering
// and skill selection
func (c *Conversation) Resumable() bool {
	return c.SkillID != "" && (c.ResumeAt == StateComplianceChecked || c.ResumeAt == StateEscalationChecked)
}
