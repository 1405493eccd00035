package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/BTreeMap/IntakeLine/internal/models"
	"github.com/BTreeMap/IntakeLine/internal/notify"
)

// WhatsAppSink alerts a care-team number when an intake call completes. The
// message is a PHI-light summary: outcome, consent, answer count, duration —
// never the answer contents.
type WhatsAppSink struct {
	sender    notify.Sender
	recipient string
}

// NewWhatsAppSink creates a sink messaging the given recipient number.
func NewWhatsAppSink(sender notify.Sender, recipient string) *WhatsAppSink {
	return &WhatsAppSink{sender: sender, recipient: recipient}
}

// Name implements Sink.
func (w *WhatsAppSink) Name() string { return "whatsapp" }

// Submit sends the completion notification.
func (w *WhatsAppSink) Submit(ctx context.Context, record models.IntakeRecord) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Intake call %s: %s.", record.Call.ExternalCallID, strings.ToLower(string(record.Outcome)))
	if record.Consent.Given {
		fmt.Fprintf(&b, " Consent given, %d answers captured.", record.AnswerCount())
	} else {
		b.WriteString(" No consent recorded.")
	}
	fmt.Fprintf(&b, " Duration %ds.", record.Call.DurationSeconds)
	return w.sender.SendMessage(ctx, w.recipient, b.String())
}
