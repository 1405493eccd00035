package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/BTreeMap/IntakeLine/internal/util"
)

// restAPI is the slice of the Twilio REST client the transport uses.
// *twilioApi.ApiService satisfies it; tests substitute a recorder.
type restAPI interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
	UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error)
}

// Opts holds configuration options for the Twilio voice transport.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// WebhookBase is the externally reachable base URL Twilio posts call
	// events to, e.g. "https://intake.example.com".
	WebhookBase string
}

// Option defines a configuration option for the Twilio voice transport.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the caller id for outbound intake calls.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithWebhookBase sets the public base URL for voice webhooks.
func WithWebhookBase(base string) Option {
	return func(o *Opts) { o.WebhookBase = base }
}

// Twilio implements Actions and Dialer against Twilio Programmable Voice.
// Actions are delivered by replacing the in-progress call's TwiML via the
// call update API, which returns as soon as Twilio accepts the instruction.
type Twilio struct {
	api         restAPI
	fromNumber  string
	webhookBase string
}

// NewTwilio creates the Twilio voice transport, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment
// variables for credentials not provided via options.
func NewTwilio(opts ...Option) (*Twilio, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("telephony: Twilio config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_number_set", cfg.FromNumber != "",
		"webhook_base", cfg.WebhookBase)

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}
	if cfg.WebhookBase == "" {
		return nil, fmt.Errorf("webhook base URL must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &Twilio{
		api:         client.Api,
		fromNumber:  cfg.FromNumber,
		webhookBase: cfg.WebhookBase,
	}, nil
}

func (t *Twilio) gatherURL() string    { return t.webhookBase + "/webhooks/voice/gather" }
func (t *Twilio) statusURL() string    { return t.webhookBase + "/webhooks/voice" }
func (t *Twilio) recordingURL() string { return t.webhookBase + "/webhooks/voice/recording" }

// PlaceCall rings toNumber and returns the Twilio call SID as the external
// call id. The call is recorded from answer, per the recorded-consent flow.
func (t *Twilio) PlaceCall(ctx context.Context, toNumber string) (string, error) {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(toNumber)
	params.SetFrom(t.fromNumber)
	params.SetTwiml(EmptyTwiML)
	params.SetStatusCallback(t.statusURL())
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	params.SetStatusCallbackMethod("POST")
	params.SetRecord(true)
	params.SetRecordingStatusCallback(t.recordingURL())

	call, err := t.api.CreateCall(params)
	if err != nil {
		slog.Error("telephony: PlaceCall failed", "error", err, "to", util.MaskPhone(toNumber))
		return "", fmt.Errorf("failed to place call to %s: %w", util.MaskPhone(toNumber), err)
	}
	if call.Sid == nil || *call.Sid == "" {
		return "", fmt.Errorf("twilio returned call without sid")
	}
	slog.Info("telephony: call placed", "to", util.MaskPhone(toNumber), "external_call_id", *call.Sid)
	return *call.Sid, nil
}

func (t *Twilio) update(callID, twiml string) error {
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(twiml)
	if _, err := t.api.UpdateCall(callID, params); err != nil {
		return fmt.Errorf("failed to update call %s: %w", callID, err)
	}
	return nil
}

// Speak plays an announcement and leaves the call idle.
func (t *Twilio) Speak(ctx context.Context, callID, text string) error {
	slog.Debug("telephony: Speak", "external_call_id", callID)
	return t.update(callID, sayTwiML(text))
}

// CollectInput plays a prompt and gathers up to maxDigits touch-tone digits.
// Twilio does not filter digits server side; validDigits enforcement stays
// with the dispatcher.
func (t *Twilio) CollectInput(ctx context.Context, callID, text, validDigits string, maxDigits int) error {
	slog.Debug("telephony: CollectInput", "external_call_id", callID, "max_digits", maxDigits)
	return t.update(callID, gatherDigitsTwiML(text, t.gatherURL(), maxDigits))
}

// CollectSpeech plays a prompt and captures a spoken answer.
func (t *Twilio) CollectSpeech(ctx context.Context, callID, text string) error {
	slog.Debug("telephony: CollectSpeech", "external_call_id", callID)
	return t.update(callID, gatherSpeechTwiML(text, t.gatherURL()))
}

// HangUp terminates the call.
func (t *Twilio) HangUp(ctx context.Context, callID string) error {
	slog.Debug("telephony: HangUp", "external_call_id", callID)
	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := t.api.UpdateCall(callID, params); err != nil {
		return fmt.Errorf("failed to hang up call %s: %w", callID, err)
	}
	return nil
}
