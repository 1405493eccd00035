package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/BTreeMap/IntakeLine/internal/dispatch"
	"github.com/BTreeMap/IntakeLine/internal/flow"
	"github.com/BTreeMap/IntakeLine/internal/models"
	"github.com/BTreeMap/IntakeLine/internal/questions"
	"github.com/BTreeMap/IntakeLine/internal/store"
	"github.com/BTreeMap/IntakeLine/internal/telephony"
)

func newTestServer(t *testing.T) (*Server, *telephony.MockActions, *telephony.MockDialer, *store.InMemoryStore) {
	t.Helper()
	catalog := questions.NewCatalog()
	if err := catalog.Validate(); err != nil {
		t.Fatalf("catalog validation failed: %v", err)
	}
	actions := telephony.NewMockActions()
	st := store.NewInMemoryStore()
	dispatcher := dispatch.NewDispatcher(flow.NewEngine(catalog), actions, dispatch.WithStore(st))
	dialer := &telephony.MockDialer{NextID: "CA100"}
	return NewServer(":0", dispatcher, dialer, st), actions, dialer, st
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}

func TestPlaceCallHandler(t *testing.T) {
	srv, _, dialer, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"to_number": "+15551234567"}`)
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/calls", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rawBody := rec.Body.String()
	resp := decodeResponse(t, rec)
	if resp.Status != "ok" {
		t.Errorf("expected ok status, got %+v", resp)
	}
	if len(dialer.Placed) != 1 || dialer.Placed[0] != "+15551234567" {
		t.Errorf("dialer not invoked: %v", dialer.Placed)
	}
	if !strings.Contains(rawBody, "CA100") {
		t.Errorf("external call id missing from response: %s", rawBody)
	}
}

func TestPlaceCallHandlerRejectsBadRequests(t *testing.T) {
	srv, _, dialer, _ := newTestServer(t)

	for _, body := range []string{`not json`, `{}`, `{"to_number": "  "}`} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/calls", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
	if len(dialer.Placed) != 0 {
		t.Errorf("invalid requests must not place calls: %v", dialer.Placed)
	}
}

func TestScheduledCallLifecycle(t *testing.T) {
	srv, _, dialer, _ := newTestServer(t)
	defer srv.sched.Stop()

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"to_number": "+15551234567", "cron": "0 9 * * *"}`)
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/calls", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(dialer.Placed) != 0 {
		t.Errorf("scheduled call must not dial immediately: %v", dialer.Placed)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/schedules", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "0 9 * * *") {
		t.Errorf("schedule missing from listing: %s", rec.Body.String())
	}

	jobs := srv.sched.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/v1/schedules/"+strconv.Itoa(jobs[0].ID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rec.Code)
	}
	if len(srv.sched.Jobs()) != 0 {
		t.Errorf("schedule not removed")
	}
}

func TestScheduledCallRejectsBadCron(t *testing.T) {
	srv, _, dialer, _ := newTestServer(t)
	defer srv.sched.Stop()

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"to_number": "+15551234567", "cron": "whenever"}`)
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/calls", body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad cron, got %d", rec.Code)
	}
	if len(dialer.Placed) != 0 {
		t.Errorf("bad cron must not place calls: %v", dialer.Placed)
	}
}

func TestGetCallHandler(t *testing.T) {
	srv, _, _, st := newTestServer(t)
	st.SaveCall(models.CallRow{ExternalCallID: "CA1", CallID: "uuid-1", Status: models.CallStatusCompleted})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/calls/CA1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "uuid-1") {
		t.Errorf("call row missing from response: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/calls/CA404", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown call, got %d", rec.Code)
	}
}

func TestListRecordsHandler(t *testing.T) {
	srv, _, _, st := newTestServer(t)
	st.SaveIntakeRecord(models.IntakeRecord{ID: "rec-1", Outcome: models.StateCompleted})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/records", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rec-1") {
		t.Errorf("records missing from response: %s", rec.Body.String())
	}
}

func postWebhook(srv *Server, path string, values url.Values) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestVoiceWebhookDrivesConversation(t *testing.T) {
	srv, actions, _, _ := newTestServer(t)

	rec := postWebhook(srv, "/webhooks/voice", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"in-progress"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/xml" {
		t.Errorf("webhook must answer TwiML, got %q", got)
	}
	if n := actions.CountKind("collect_input"); n != 1 {
		t.Fatalf("consent prompt not issued, collect_input=%d", n)
	}

	rec = postWebhook(srv, "/webhooks/voice/gather", url.Values{
		"CallSid": {"CA1"},
		"Digits":  {"1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("gather webhook failed: %d", rec.Code)
	}
	if n := actions.CountKind("collect_speech"); n != 1 {
		t.Errorf("first intake question not issued, collect_speech=%d", n)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/calls/active", nil))
	if !strings.Contains(rec.Body.String(), "CA1") {
		t.Errorf("active call missing: %s", rec.Body.String())
	}
}

func TestVoiceWebhookRejectsMissingCallSid(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	rec := postWebhook(srv, "/webhooks/voice", url.Values{"CallStatus": {"completed"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for callback without CallSid, got %d", rec.Code)
	}
}

func TestRecordingWebhook(t *testing.T) {
	srv, _, _, st := newTestServer(t)
	st.SaveCall(models.CallRow{ExternalCallID: "CA1"})

	rec := postWebhook(srv, "/webhooks/voice/recording", url.Values{
		"CallSid":      {"CA1"},
		"RecordingUrl": {"https://api.twilio.com/recordings/RE1"},
		"RecordingSid": {"RE1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("recording webhook failed: %d", rec.Code)
	}
	row, _ := st.GetCall("CA1")
	if row.RecordingID != "RE1" {
		t.Errorf("recording not persisted: %+v", row)
	}
}
