// Package api provides HTTP handlers for IntakeLine REST endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/IntakeLine/internal/models"
	"github.com/BTreeMap/IntakeLine/internal/util"
)

// DefaultScheduledCallTimeout bounds placing one scheduled outbound call.
const DefaultScheduledCallTimeout = 30 * time.Second

// placeCallHandler handles POST /api/v1/calls: place an outbound intake call.
func (s *Server) placeCallHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.placeCallHandler: processing place-call request", "method", r.Method, "path", r.URL.Path)

	var req models.PlaceCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.placeCallHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.placeCallHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if req.Cron != "" {
		s.scheduleCall(w, req)
		return
	}

	externalCallID, err := s.dialer.PlaceCall(r.Context(), req.ToNumber)
	if err != nil {
		slog.Error("Server.placeCallHandler: failed to place call", "error", err, "to", util.MaskPhone(req.ToNumber))
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to place call"))
		return
	}

	slog.Info("Server.placeCallHandler: call placed", "external_call_id", externalCallID, "to", util.MaskPhone(req.ToNumber))
	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]string{
		"external_call_id": externalCallID,
	}))
}

// scheduleCall registers a recurring outbound call campaign.
func (s *Server) scheduleCall(w http.ResponseWriter, req models.PlaceCallRequest) {
	job := req
	id, err := s.sched.AddJob(req.Cron, req.ToNumber, func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultScheduledCallTimeout)
		defer cancel()
		externalCallID, dialErr := s.dialer.PlaceCall(ctx, job.ToNumber)
		if dialErr != nil {
			slog.Error("Server.scheduleCall: scheduled call failed", "error", dialErr, "to", util.MaskPhone(job.ToNumber))
			return
		}
		slog.Info("Server.scheduleCall: scheduled call placed", "external_call_id", externalCallID, "to", util.MaskPhone(job.ToNumber))
	})
	if err != nil {
		slog.Warn("Server.scheduleCall: failed to schedule", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	slog.Info("Server.scheduleCall: call campaign scheduled", "schedule_id", id, "cron", req.Cron, "to", util.MaskPhone(req.ToNumber))
	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]interface{}{
		"schedule_id": id,
	}))
}

// listSchedulesHandler handles GET /api/v1/schedules.
func (s *Server) listSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	jobs := s.sched.Jobs()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"schedules": jobs,
		"count":     len(jobs),
	}))
}

// removeScheduleHandler handles DELETE /api/v1/schedules/{scheduleID}.
func (s *Server) removeScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "scheduleID"))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid schedule id"))
		return
	}
	s.sched.Remove(id)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// listCallsHandler handles GET /api/v1/calls.
func (s *Server) listCallsHandler(w http.ResponseWriter, r *http.Request) {
	calls, err := s.st.ListCalls()
	if err != nil {
		slog.Error("Server.listCallsHandler: failed to fetch calls", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch calls"))
		return
	}
	slog.Debug("Server.listCallsHandler: calls fetched", "count", len(calls))
	writeJSONResponse(w, http.StatusOK, models.Success(calls))
}

// getCallHandler handles GET /api/v1/calls/{externalCallID}.
func (s *Server) getCallHandler(w http.ResponseWriter, r *http.Request) {
	externalCallID := chi.URLParam(r, "externalCallID")
	call, err := s.st.GetCall(externalCallID)
	if err != nil {
		slog.Error("Server.getCallHandler: failed to fetch call", "error", err, "external_call_id", externalCallID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch call"))
		return
	}
	if call == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Call not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(call))
}

// listTranscriptsHandler handles GET /api/v1/calls/{externalCallID}/transcripts.
func (s *Server) listTranscriptsHandler(w http.ResponseWriter, r *http.Request) {
	externalCallID := chi.URLParam(r, "externalCallID")
	transcripts, err := s.st.ListTranscripts(externalCallID)
	if err != nil {
		slog.Error("Server.listTranscriptsHandler: failed to fetch transcripts", "error", err, "external_call_id", externalCallID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch transcripts"))
		return
	}
	slog.Debug("Server.listTranscriptsHandler: transcripts fetched", "external_call_id", externalCallID, "count", len(transcripts))
	writeJSONResponse(w, http.StatusOK, models.Success(transcripts))
}

// activeCallsHandler handles GET /api/v1/calls/active: in-flight sessions.
func (s *Server) activeCallsHandler(w http.ResponseWriter, r *http.Request) {
	ids := s.dispatcher.Sessions().ActiveIDs()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"active_calls": ids,
		"count":        len(ids),
	}))
}

// listRecordsHandler handles GET /api/v1/records: archived intake records.
func (s *Server) listRecordsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.st.ListIntakeRecords()
	if err != nil {
		slog.Error("Server.listRecordsHandler: failed to fetch records", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch intake records"))
		return
	}
	slog.Debug("Server.listRecordsHandler: records fetched", "count", len(records))
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]interface{}{
		"status":       "healthy",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"active_calls": s.dispatcher.Sessions().Len(),
	}
	if _, err := s.st.ListCalls(); err != nil {
		slog.Warn("Server.healthHandler: store check failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach call store"
		writeJSONResponse(w, http.StatusServiceUnavailable, healthData)
		return
	}
	writeJSONResponse(w, http.StatusOK, healthData)
}
