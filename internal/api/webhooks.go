// Package api provides the Twilio voice webhook handlers for IntakeLine.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/IntakeLine/internal/models"
	"github.com/BTreeMap/IntakeLine/internal/telephony"
)

// handleWebhook parses one Twilio callback, feeds it to the dispatcher, and
// answers with an idle TwiML document. The next call instruction is issued
// through the call update API, not in the webhook response. Twilio retries
// webhooks on non-2xx, so dispatch failures for a live session return 500 to
// get redelivery, while events for unknown sessions are acknowledged.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request, kind telephony.WebhookKind) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	ev, err := telephony.ParseWebhook(r, kind)
	if err != nil {
		if errors.Is(err, models.ErrEmptyCallID) {
			slog.Warn("Server.handleWebhook: callback without call sid", "kind", kind)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		slog.Warn("Server.handleWebhook: failed to parse callback", "error", err, "kind", kind)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	slog.Debug("Server.handleWebhook: event parsed", "kind", kind, "type", ev.Type, "external_call_id", ev.ExternalCallID)

	if err := s.dispatcher.HandleEvent(r.Context(), ev); err != nil {
		slog.Error("Server.handleWebhook: dispatch failed", "error", err, "type", ev.Type, "external_call_id", ev.ExternalCallID)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeTwiMLResponse(w, telephony.EmptyTwiML)
}

// statusWebhookHandler handles POST /webhooks/voice (call lifecycle status).
func (s *Server) statusWebhookHandler(w http.ResponseWriter, r *http.Request) {
	s.handleWebhook(w, r, telephony.WebhookStatus)
}

// gatherWebhookHandler handles POST /webhooks/voice/gather (digits and speech).
func (s *Server) gatherWebhookHandler(w http.ResponseWriter, r *http.Request) {
	s.handleWebhook(w, r, telephony.WebhookGather)
}

// recordingWebhookHandler handles POST /webhooks/voice/recording.
func (s *Server) recordingWebhookHandler(w http.ResponseWriter, r *http.Request) {
	s.handleWebhook(w, r, telephony.WebhookRecording)
}
