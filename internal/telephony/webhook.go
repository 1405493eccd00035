package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/IntakeLine/internal/models"
)

// WebhookKind names the three Twilio voice callback endpoints.
type WebhookKind string

const (
	// WebhookStatus receives call lifecycle status callbacks.
	WebhookStatus WebhookKind = "status"
	// WebhookGather receives collected digits and speech results.
	WebhookGather WebhookKind = "gather"
	// WebhookRecording receives recording availability callbacks.
	WebhookRecording WebhookKind = "recording"
)

// ParseWebhook turns a form-encoded Twilio voice callback into a CallEvent.
// Status values outside the known lifecycle map onto call-ended, since every
// Twilio terminal status (busy, failed, no-answer, canceled) means the call
// is over; unknown shapes are the caller's to ignore.
func ParseWebhook(r *http.Request, kind WebhookKind) (models.CallEvent, error) {
	if err := r.ParseForm(); err != nil {
		return models.CallEvent{}, fmt.Errorf("failed to parse webhook form: %w", err)
	}

	ev := models.CallEvent{
		ExternalCallID: r.FormValue("CallSid"),
		From:           r.FormValue("From"),
		To:             r.FormValue("To"),
		Time:           time.Now().UTC(),
	}
	if ev.ExternalCallID == "" {
		return models.CallEvent{}, models.ErrEmptyCallID
	}

	switch kind {
	case WebhookGather:
		if speech := r.FormValue("SpeechResult"); speech != "" {
			ev.Type = models.EventTranscription
			ev.Transcript = speech
			ev.Final = true
			if c, err := strconv.ParseFloat(r.FormValue("Confidence"), 64); err == nil {
				ev.Confidence = c
			}
			return ev, nil
		}
		// Digits may legitimately be empty: the gather timed out without
		// input and the trailing Redirect posted back.
		ev.Type = models.EventGatherEnded
		ev.Digits = r.FormValue("Digits")
		return ev, nil

	case WebhookRecording:
		ev.Type = models.EventRecordingSaved
		ev.RecordingURL = r.FormValue("RecordingUrl")
		ev.RecordingID = r.FormValue("RecordingSid")
		return ev, nil

	default:
		switch r.FormValue("CallStatus") {
		case "initiated", "queued", "ringing":
			ev.Type = models.EventCallInitiated
		case "in-progress", "answered":
			ev.Type = models.EventCallAnswered
		default:
			ev.Type = models.EventCallEnded
		}
		return ev, nil
	}
}
