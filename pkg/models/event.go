package models

import "time"

// InboundEvent is one contact (call turn or SMS) to be routed
type InboundEvent struct {
	EventID          string            `json:"event_id"`
	ConversationID   string            `json:"conversation_id"`
	Channel          Channel           `json:"channel"`
	TimestampUTC     time.Time         `json:"timestamp_utc"`
	CallerID         string            `json:"caller_id"`
	ClassifiedIntent string            `json:"classified_intent"`
	Confidence       float64           `json:"confidence"`
	FreeText         string            `json:"free_text"`
	CapturedInputs   map[string]string `json:"captured_inputs,omitempty"`
	ConsentGiven     bool              `json:"consent_given"`
	Signals          []string          `json:"signals,omitempty"` // e.g. sentiment_negative
}

// HasInput reports whether a non-empty value was captured for field id
func (e *InboundEvent) HasInput(id string) bool {
	v, ok := e.CapturedInputs[id]
	return ok && v != ""
}

// HasSignal reports whether the event carries the named signal
func (e *InboundEvent) HasSignal(name string) bool {
	for _, s := range e.Signals {
		if s == name {
			return true
		}
	}
	return false
}
