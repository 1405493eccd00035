// Package telephony wraps the Twilio Programmable Voice API for IntakeLine.
//
// It defines the one-way action interface the dispatcher drives the call
// with, the dialer used to place outbound intake calls, and the parsing of
// inbound voice webhooks into call events. Actions are fire-and-forget: the
// dispatcher never waits for an action to complete on the wire; outcomes
// arrive as further inbound events.
package telephony

import "context"

// Actions is the set of one-way commands issued toward the transport. None of
// them report wire-level success; failures to even issue a command surface as
// an error and fail the current transition.
type Actions interface {
	// Speak plays text to the caller and leaves the call idle afterward.
	Speak(ctx context.Context, callID, text string) error

	// CollectInput plays text and gathers touch-tone digits. The collected
	// digits come back as a gather-ended event; a transport-side timeout
	// produces the same event with empty digits.
	CollectInput(ctx context.Context, callID, text, validDigits string, maxDigits int) error

	// CollectSpeech plays text and captures a free-form spoken answer, which
	// comes back as a transcription event.
	CollectSpeech(ctx context.Context, callID, text string) error

	// HangUp terminates the call. Teardown still arrives as a call-ended event.
	HangUp(ctx context.Context, callID string) error
}

// Dialer places outbound intake calls.
type Dialer interface {
	// PlaceCall rings the given number and returns the transport's durable
	// external call id.
	PlaceCall(ctx context.Context, toNumber string) (externalCallID string, err error)
}
