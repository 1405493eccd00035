package telephony

import (
	"context"
	"fmt"
	"strings"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// fakeRest records Twilio REST calls without touching the network.
type fakeRest struct {
	created []*twilioApi.CreateCallParams
	updated []fakeUpdate
	failAll bool
}

type fakeUpdate struct {
	sid    string
	params *twilioApi.UpdateCallParams
}

func (f *fakeRest) CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error) {
	if f.failAll {
		return nil, fmt.Errorf("fake rest: unavailable")
	}
	f.created = append(f.created, params)
	sid := "CA123"
	return &twilioApi.ApiV2010Call{Sid: &sid}, nil
}

func (f *fakeRest) UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error) {
	if f.failAll {
		return nil, fmt.Errorf("fake rest: unavailable")
	}
	f.updated = append(f.updated, fakeUpdate{sid: sid, params: params})
	return &twilioApi.ApiV2010Call{Sid: &sid}, nil
}

func newFakeTwilio() (*Twilio, *fakeRest) {
	rest := &fakeRest{}
	return &Twilio{
		api:         rest,
		fromNumber:  "+15550009999",
		webhookBase: "https://intake.example.com",
	}, rest
}

func TestNewTwilioRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewTwilio(WithWebhookBase("https://intake.example.com")); err == nil {
		t.Errorf("expected error without credentials")
	}
	if _, err := NewTwilio(
		WithAccountSID("AC1"), WithAuthToken("tok"), WithFromNumber("+15550009999"),
	); err == nil {
		t.Errorf("expected error without webhook base")
	}
}

func TestPlaceCall(t *testing.T) {
	tw, rest := newFakeTwilio()
	sid, err := tw.PlaceCall(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("PlaceCall failed: %v", err)
	}
	if sid != "CA123" {
		t.Errorf("expected CA123, got %s", sid)
	}
	if len(rest.created) != 1 {
		t.Fatalf("expected 1 create, got %d", len(rest.created))
	}
	params := rest.created[0]
	if params.To == nil || *params.To != "+15551234567" {
		t.Errorf("to number not set")
	}
	if params.Record == nil || !*params.Record {
		t.Errorf("calls must be recorded")
	}
	if params.StatusCallback == nil || !strings.HasSuffix(*params.StatusCallback, "/webhooks/voice") {
		t.Errorf("status callback not routed to the voice webhook")
	}
	if params.RecordingStatusCallback == nil || !strings.HasSuffix(*params.RecordingStatusCallback, "/webhooks/voice/recording") {
		t.Errorf("recording callback not routed")
	}
}

func TestCollectInputSendsGatherDocument(t *testing.T) {
	tw, rest := newFakeTwilio()
	if err := tw.CollectInput(context.Background(), "CA1", "Press 1 or 2.", "12", 1); err != nil {
		t.Fatalf("CollectInput failed: %v", err)
	}
	if len(rest.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(rest.updated))
	}
	up := rest.updated[0]
	if up.sid != "CA1" {
		t.Errorf("updated wrong call: %s", up.sid)
	}
	twiml := *up.params.Twiml
	if !strings.Contains(twiml, `input="dtmf"`) || !strings.Contains(twiml, "/webhooks/voice/gather") {
		t.Errorf("unexpected gather document: %q", twiml)
	}
}

func TestCollectSpeechSendsSpeechGather(t *testing.T) {
	tw, rest := newFakeTwilio()
	if err := tw.CollectSpeech(context.Background(), "CA1", "Describe your symptoms."); err != nil {
		t.Fatalf("CollectSpeech failed: %v", err)
	}
	twiml := *rest.updated[0].params.Twiml
	if !strings.Contains(twiml, `input="speech"`) {
		t.Errorf("expected speech gather: %q", twiml)
	}
}

func TestHangUpSetsCompletedStatus(t *testing.T) {
	tw, rest := newFakeTwilio()
	if err := tw.HangUp(context.Background(), "CA1"); err != nil {
		t.Fatalf("HangUp failed: %v", err)
	}
	up := rest.updated[0]
	if up.params.Status == nil || *up.params.Status != "completed" {
		t.Errorf("hang-up must set status completed: %+v", up.params)
	}
}

func TestActionFailurePropagates(t *testing.T) {
	tw, rest := newFakeTwilio()
	rest.failAll = true
	if err := tw.Speak(context.Background(), "CA1", "Hello."); err == nil {
		t.Errorf("expected error from failing transport")
	}
	if _, err := tw.PlaceCall(context.Background(), "+15551234567"); err == nil {
		t.Errorf("expected error from failing transport")
	}
}
