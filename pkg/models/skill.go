package models

import "strings"

// Channel is the transport an inbound contact arrived on
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
)

type Category string

const (
	CategoryHealthcare Category = "healthcare"
	CategoryFintech    Category = "fintech"
	CategoryRealEstate Category = "real_estate"
	CategorySaaS       Category = "saas"
	CategoryGeneral    Category = "general"
)

type InputType string

const (
	InputText    InputType = "text"
	InputNumber  InputType = "number"
	InputDate    InputType = "date"
	InputPhone   InputType = "phone"
	InputBoolean InputType = "boolean"
	InputFile    InputType = "file"
)

// FallbackAction is the disposition used when no enabled tool applies
type FallbackAction string

const (
	FallbackTransfer FallbackAction = "transfer"
	FallbackMessage  FallbackAction = "message"
	FallbackHangup   FallbackAction = "hangup"
)

// Skill is a configured unit of business capability
type Skill struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description" json:"description,omitempty"`
	Category    Category     `yaml:"category" json:"category"`
	Enabled     bool         `yaml:"enabled" json:"enabled"`
	Channels    Channels     `yaml:"channels" json:"channels"`
	Metrics     SkillMetrics `yaml:"metrics" json:"metrics"`
	Schedule    Schedule     `yaml:"schedule" json:"schedule"`
	Inputs      []InputField `yaml:"inputs" json:"inputs"`
	Tools       ToolSet      `yaml:"tools" json:"tools"`
	Integration Integration  `yaml:"integration" json:"integration"`
	Logic       Logic        `yaml:"logic" json:"logic"`
	Compliance  Compliance   `yaml:"compliance" json:"compliance"`
}

type Channels struct {
	SMS   bool `yaml:"sms" json:"sms"`
	Voice bool `yaml:"voice" json:"voice"`
}

// Supports reports whether the skill may run on ch
func (c Channels) Supports(ch Channel) bool {
	switch ch {
	case ChannelSMS:
		return c.SMS
	case ChannelVoice:
		return c.Voice
	default:
		return false
	}
}

type SkillMetrics struct {
	ExpectedCallsPerDay  int     `yaml:"expectedCallsPerDay" json:"expected_calls_per_day"`
	TargetResolutionRate float64 `yaml:"targetResolutionRate" json:"target_resolution_rate"`
}

// Schedule is a weekly availability window in a given timezone.
// EndTime <= StartTime denotes an overnight window.
type Schedule struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Timezone  string   `yaml:"timezone" json:"timezone"`
	Days      []string `yaml:"days" json:"days"`
	StartTime string   `yaml:"startTime" json:"start_time"`
	EndTime   string   `yaml:"endTime" json:"end_time"`
	Holidays  bool     `yaml:"holidays" json:"holidays"`
}

type InputField struct {
	ID          string    `yaml:"id" json:"id"`
	Label       string    `yaml:"label" json:"label"`
	Type        InputType `yaml:"type" json:"type"`
	Required    bool      `yaml:"required" json:"required"`
	Sensitive   bool      `yaml:"sensitive" json:"sensitive"`
	Description string    `yaml:"description" json:"description,omitempty"`
	MappedField string    `yaml:"mappedField" json:"mapped_field,omitempty"`
}

// ToolSet is the fixed set of tool slots a skill can enable
type ToolSet struct {
	SMS      SMSTool      `yaml:"sms" json:"sms"`
	Transfer TransferTool `yaml:"transfer" json:"transfer"`
	Calendar CalendarTool `yaml:"calendar" json:"calendar"`
	EHR      EHRTool      `yaml:"ehr" json:"ehr"`
	IVR      IVRTool      `yaml:"ivr" json:"ivr"`
}

type SMSTool struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	Template        string   `yaml:"template" json:"template"`
	TriggerKeywords []string `yaml:"triggerKeywords" json:"trigger_keywords"`
}

type TransferTool struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	TargetNumber   string   `yaml:"targetNumber" json:"target_number"`
	WhisperMessage string   `yaml:"whisperMessage" json:"whisper_message"`
	Conditions     []string `yaml:"conditions" json:"conditions"`
}

type CalendarTool struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Provider      string `yaml:"provider" json:"provider"`
	LookaheadDays int    `yaml:"lookaheadDays" json:"lookahead_days"`
}

type EHRTool struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Provider    string `yaml:"provider" json:"provider"`
	WriteAccess bool   `yaml:"writeAccess" json:"write_access"`
}

type IVRTool struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	TriggerDigit string `yaml:"triggerDigit" json:"trigger_digit"`
	VoicePrompt  string `yaml:"voicePrompt" json:"voice_prompt"`
}

type Endpoint struct {
	Name   string `yaml:"name" json:"name"`
	URL    string `yaml:"url" json:"url"`
	Method string `yaml:"method" json:"method"`
}

// Integration describes the external system a skill's data tools talk to.
// FieldMapping maps local input ids to external field ids.
type Integration struct {
	Provider     string            `yaml:"provider" json:"provider"`
	AuthType     string            `yaml:"authType" json:"auth_type"`
	Endpoints    []Endpoint        `yaml:"endpoints" json:"endpoints"`
	FieldMapping map[string]string `yaml:"fieldMapping" json:"field_mapping"`
}

type Logic struct {
	Tone                string         `yaml:"tone" json:"tone"`
	EscalationThreshold float64        `yaml:"escalationThreshold" json:"escalation_threshold"`
	FallbackAction      FallbackAction `yaml:"fallbackAction" json:"fallback_action"`
	UrgentKeywords      []string       `yaml:"urgentKeywords" json:"urgent_keywords"`
}

type Compliance struct {
	HIPAA           bool     `yaml:"hipaa" json:"hipaa"`
	Recording       bool     `yaml:"recording" json:"recording"`
	Redaction       bool     `yaml:"redaction" json:"redaction"`
	ConsentRequired bool     `yaml:"consentRequired" json:"consent_required"`
	Disclosures     []string `yaml:"disclosures" json:"disclosures"`
}

// MatchUrgentKeyword returns the first configured urgent keyword found in text,
// compared case-insensitively as a substring.
func (s *Skill) MatchUrgentKeyword(text string) (string, bool) {
	return MatchKeyword(s.Logic.UrgentKeywords, text)
}

// RequiredInputs returns the required input fields in declaration order
func (s *Skill) RequiredInputs() []InputField {
	var required []InputField
	for _, in := range s.Inputs {
		if in.Required {
			required = append(required, in)
		}
	}
	return required
}

// MatchKeyword reports the first non-empty keyword contained in text, ignoring case
func MatchKeyword(keywords []string, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		term := strings.TrimSpace(kw)
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return term, true
		}
	}
	return "", false
}
