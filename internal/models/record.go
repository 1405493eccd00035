// Package models defines persisted call rows and the assembled intake record.
package models

import "time"

// CallStatus mirrors the lifecycle stored on the durable call row.
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusCompleted CallStatus = "completed"
	CallStatusFailed    CallStatus = "failed"
)

// CallRow is the durable representation of a call handed to the storage
// collaborator. The core never reads it back to drive the conversation.
type CallRow struct {
	CallID          string     `json:"call_id"`
	ExternalCallID  string     `json:"external_call_id"`
	Status          CallStatus `json:"status"`
	Direction       string     `json:"direction"`
	FromNumber      string     `json:"from_number,omitempty"`
	ToNumber        string     `json:"to_number,omitempty"`
	ConsentGiven    bool       `json:"consent_given"`
	ConsentAt       *time.Time `json:"consent_at,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	RecordingURL    string     `json:"recording_url,omitempty"`
	RecordingID     string     `json:"recording_id,omitempty"`
}

// Transcript is one transcript segment captured during a call, keyed by the
// transport's external call id.
type Transcript struct {
	ExternalCallID string    `json:"external_call_id"`
	Text           string    `json:"text"`
	Confidence     float64   `json:"confidence,omitempty"`
	Final          bool      `json:"final"`
	Sequence       int       `json:"sequence"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConsentBlock records whether and when consent was given.
type ConsentBlock struct {
	Given     bool       `json:"given"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// CallMeta is the call metadata attached to an intake record.
type CallMeta struct {
	ExternalCallID  string     `json:"external_call_id"`
	Direction       string     `json:"direction"`
	FromNumber      string     `json:"from_number,omitempty"`
	ToNumber        string     `json:"to_number,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	RecordingURL    string     `json:"recording_url,omitempty"`
}

// IntakeRecord is the structured document forwarded once per session to the
// archival sink. Answers are partitioned by section; unanswered keys are
// simply absent, never null-filled.
type IntakeRecord struct {
	ID            string            `json:"id"`
	CallID        string            `json:"call_id"`
	Consent       ConsentBlock      `json:"consent"`
	HPI           map[string]Answer `json:"hpi,omitempty"`
	Ample         map[string]Answer `json:"ample,omitempty"`
	FamilyHistory map[string]Answer `json:"family_history,omitempty"`
	Call          CallMeta          `json:"call"`
	Outcome       SessionState      `json:"outcome"`
	CompletedAt   time.Time         `json:"completed_at"`
}

// AnswerCount returns the total number of captured answers across sections.
func (r *IntakeRecord) AnswerCount() int {
	return len(r.HPI) + len(r.Ample) + len(r.FamilyHistory)
}
