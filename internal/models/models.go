// Package models defines the core data structures for IntakeLine.
//
// It includes types for questions, inbound telephony events, call sessions,
// and the assembled intake record, which are shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// QuestionKind defines how an answer to a question is collected.
type QuestionKind string

const (
	// QuestionDTMF collects a touch-tone digit selection.
	QuestionDTMF QuestionKind = "dtmf"
	// QuestionVoice collects a free-form spoken answer, stored verbatim.
	QuestionVoice QuestionKind = "voice"
	// QuestionStatement is spoken to the caller and expects no answer.
	QuestionStatement QuestionKind = "statement"
)

// Validation constants for caller input.
const (
	// MaxAnswerLength caps the stored length of a free-form voice answer.
	MaxAnswerLength = 4096
	// DefaultRetryBudget is the number of invalid inputs tolerated per question
	// before the session is failed and the call torn down.
	DefaultRetryBudget = 3
)

// Error variables for better error handling and testability
var (
	ErrEmptyCallID        = errors.New("external call id cannot be empty")
	ErrUnknownSession     = errors.New("no session exists for call id")
	ErrSessionExists      = errors.New("session already exists for call id")
	ErrSessionTerminal    = errors.New("session is in a terminal state")
	ErrInvalidDigits      = errors.New("digits outside the accepted set for this question")
	ErrDuplicateAnswer    = errors.New("question already has a recorded answer")
	ErrQuestionNotFound   = errors.New("no question with that key in the catalog")
	ErrEmptyToNumber      = errors.New("to_number is required")
	ErrNoQuestionPending  = errors.New("no question is awaiting an answer")
	ErrConsentNotObtained = errors.New("intake cannot proceed without consent")
)

// Section identifies one block of the intake questionnaire. The order of the
// constants is the traversal order of the script.
type Section int

const (
	// SectionConsent is the consent gate, handled ahead of the questionnaire.
	SectionConsent Section = iota
	// SectionHPI covers the history of the presenting illness.
	SectionHPI
	// SectionAmple covers the structured (AMPLE) medical history.
	SectionAmple
	// SectionFamilyHistory covers immediate-family medical history.
	SectionFamilyHistory
	// SectionClosing is the closing statement.
	SectionClosing
)

// String returns the stable wire name of the section.
func (s Section) String() string {
	switch s {
	case SectionConsent:
		return "consent"
	case SectionHPI:
		return "hpi"
	case SectionAmple:
		return "ample"
	case SectionFamilyHistory:
		return "family_history"
	case SectionClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Question is one scripted prompt. Questions are immutable after process
// start and safe for unsynchronized concurrent reads.
type Question struct {
	Key         string       `json:"key"`
	Prompt      string       `json:"prompt"`
	Kind        QuestionKind `json:"kind"`
	Section     Section      `json:"-"`
	ValidDigits string       `json:"valid_digits,omitempty"`
	MaxDigits   int          `json:"max_digits,omitempty"`
	// FollowUp maps a specific answer value to a question asked immediately
	// after this one, ahead of the normal cursor advance.
	FollowUp map[string]*Question `json:"-"`
}

// AcceptsDigits reports whether the given touch-tone input is valid for this
// question: non-empty, within MaxDigits, and composed only of ValidDigits.
func (q *Question) AcceptsDigits(digits string) bool {
	if q.Kind != QuestionDTMF {
		return false
	}
	if digits == "" || (q.MaxDigits > 0 && len(digits) > q.MaxDigits) {
		return false
	}
	for _, r := range digits {
		if !strings.ContainsRune(q.ValidDigits, r) {
			return false
		}
	}
	return true
}

// EventType tags an inbound telephony event. Unrecognized types are accepted
// and ignored so new transport event types do not break the dispatcher.
type EventType string

const (
	// EventCallInitiated reports that the transport started ringing the callee.
	EventCallInitiated EventType = "call.initiated"
	// EventCallAnswered reports that the call was picked up.
	EventCallAnswered EventType = "call.answered"
	// EventCallEnded reports that the call hung up, from either side.
	EventCallEnded EventType = "call.hangup"
	// EventGatherEnded carries collected touch-tone digits. An empty digit
	// string means the transport timed out waiting for input.
	EventGatherEnded EventType = "call.gather.ended"
	// EventRecordingSaved reports that a call recording is available.
	EventRecordingSaved EventType = "call.recording.saved"
	// EventTranscription carries a transcript segment of spoken audio.
	EventTranscription EventType = "call.transcription"
)

// CallEvent is one inbound event from the telephony transport. Events for a
// given ExternalCallID are processed strictly in arrival order.
type CallEvent struct {
	ExternalCallID string    `json:"external_call_id"`
	Type           EventType `json:"type"`
	Digits         string    `json:"digits,omitempty"`
	Transcript     string    `json:"transcript,omitempty"`
	Final          bool      `json:"final,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	RecordingURL   string    `json:"recording_url,omitempty"`
	RecordingID    string    `json:"recording_id,omitempty"`
	From           string    `json:"from,omitempty"`
	To             string    `json:"to,omitempty"`
	Time           time.Time `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope for API handlers.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// PlaceCallRequest is the payload for placing an outbound intake call. When
// Cron is set the call is not placed immediately but dialed on the given
// 5-field cron schedule.
type PlaceCallRequest struct {
	ToNumber  string `json:"to_number"`
	PatientID string `json:"patient_id,omitempty"`
	Cron      string `json:"cron,omitempty"`
}

// Validate checks the outbound call request.
func (r *PlaceCallRequest) Validate() error {
	if strings.TrimSpace(r.ToNumber) == "" {
		return ErrEmptyToNumber
	}
	return nil
}
