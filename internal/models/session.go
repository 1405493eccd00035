// Package models defines session state structures for IntakeLine calls.
package models

import "time"

// SessionState is the top-level conversation state of a call session.
type SessionState string

const (
	// StateRinging means the transport is ringing the callee.
	StateRinging SessionState = "RINGING"
	// StateAnswered means the call was picked up but no prompt issued yet.
	StateAnswered SessionState = "ANSWERED"
	// StateAwaitingConsent means the consent prompt is out and unanswered.
	StateAwaitingConsent SessionState = "AWAITING_CONSENT"
	// StateConsentDeclined is terminal: the caller pressed 2 at the gate.
	StateConsentDeclined SessionState = "CONSENT_DECLINED"
	// StateInIntake means the questionnaire is in progress.
	StateInIntake SessionState = "IN_INTAKE"
	// StateCompleting means every question is answered and the closing
	// statement has been issued; only teardown remains.
	StateCompleting SessionState = "COMPLETING"
	// StateCompleted is terminal: the call ended after a full intake.
	StateCompleted SessionState = "COMPLETED"
	// StateFailed is terminal: retries exhausted, transport failure, or the
	// call ended before consent was given.
	StateFailed SessionState = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	switch s {
	case StateConsentDeclined, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// Answer is one captured response value with its capture instant.
type Answer struct {
	Value      string    `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
}

// CallSession is the mutable unit of conversation state for one active call.
// It is created on the first event for a call and retired after completion
// handoff. All mutation happens under the session store's per-call lock; no
// in-memory call stack spans two events, so every field needed to resume the
// conversation lives here.
type CallSession struct {
	ExternalCallID string       `json:"external_call_id"`
	CallID         string       `json:"call_id"`
	Direction      string       `json:"direction"`
	FromNumber     string       `json:"from_number,omitempty"`
	ToNumber       string       `json:"to_number,omitempty"`
	State          SessionState `json:"state"`

	// Cursor within the questionnaire: the section being walked, the index of
	// the next unasked question in it, and an optional follow-up queued ahead
	// of the normal advance.
	Section Section   `json:"section"`
	Index   int       `json:"index"`
	Pending *Question `json:"-"`
	// Current is the question awaiting an answer, nil when none is out.
	Current *Question `json:"-"`

	ConsentGiven bool       `json:"consent_given"`
	ConsentAt    *time.Time `json:"consent_at,omitempty"`

	// Responses is keyed by question key and written at most once per key.
	// AnswerOrder preserves capture order for record assembly.
	Responses   map[string]Answer `json:"responses"`
	AnswerOrder []string          `json:"answer_order"`

	// Retries counts consecutive invalid inputs for the current question.
	Retries int `json:"retries"`

	StartedAt       time.Time  `json:"started_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`

	RecordingURL string `json:"recording_url,omitempty"`
	RecordingID  string `json:"recording_id,omitempty"`

	// HandoffDone guards exactly-once completion handoff under duplicate
	// call-ended delivery.
	HandoffDone bool `json:"-"`
}

// NewCallSession creates a session in the RINGING state.
func NewCallSession(externalCallID, callID string, now time.Time) *CallSession {
	return &CallSession{
		ExternalCallID: externalCallID,
		CallID:         callID,
		State:          StateRinging,
		Section:        SectionConsent,
		Responses:      make(map[string]Answer),
		StartedAt:      now,
	}
}

// RecordAnswer appends a captured answer. A key is written at most once per
// session; a second write reports ErrDuplicateAnswer and leaves the first
// capture intact.
func (s *CallSession) RecordAnswer(key, value string, now time.Time) error {
	if _, exists := s.Responses[key]; exists {
		return ErrDuplicateAnswer
	}
	s.Responses[key] = Answer{Value: value, CapturedAt: now}
	s.AnswerOrder = append(s.AnswerOrder, key)
	return nil
}

// GiveConsent marks consent exactly once; later calls keep the first instant.
func (s *CallSession) GiveConsent(now time.Time) {
	if s.ConsentGiven {
		return
	}
	s.ConsentGiven = true
	t := now
	s.ConsentAt = &t
}
