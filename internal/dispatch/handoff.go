package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/IntakeLine/internal/models"
	"github.com/BTreeMap/IntakeLine/internal/questions"
)

// completeHandoff assembles the intake record, persists it, and submits it to
// the archival sink. The HandoffDone flag makes this a no-op on re-entry, so
// duplicate teardown paths cannot produce a second submission. Sink failures
// are logged and never retried; the record is still persisted locally.
func (d *Dispatcher) completeHandoff(ctx context.Context, sess *models.CallSession) {
	if sess.HandoffDone {
		slog.Debug("dispatch: handoff already done", "external_call_id", sess.ExternalCallID)
		return
	}
	sess.HandoffDone = true

	record := BuildRecord(d.engine.Catalog(), sess, uuid.NewString(), d.now())

	status := models.CallStatusCompleted
	if sess.State == models.StateFailed {
		status = models.CallStatusFailed
	}
	d.persistCall(sess, status)
	if d.store != nil {
		if err := d.store.SaveIntakeRecord(record); err != nil {
			slog.Error("dispatch: failed to persist intake record", "error", err, "external_call_id", sess.ExternalCallID)
		}
	}

	if d.sink == nil {
		slog.Debug("dispatch: no archival sink configured", "external_call_id", sess.ExternalCallID)
		return
	}
	if err := d.sink.Submit(ctx, record); err != nil {
		slog.Error("dispatch: archival submission failed", "error", err, "sink", d.sink.Name(), "external_call_id", sess.ExternalCallID, "record_id", record.ID)
		return
	}
	slog.Info("dispatch: intake record archived", "external_call_id", sess.ExternalCallID, "record_id", record.ID, "answers", record.AnswerCount())
}

// BuildRecord assembles the structured intake record from a finished session.
// Answers are partitioned into sections by the catalog's key lists; questions
// that were never answered are simply absent.
func BuildRecord(catalog *questions.Catalog, sess *models.CallSession, recordID string, now time.Time) models.IntakeRecord {
	record := models.IntakeRecord{
		ID:     recordID,
		CallID: sess.CallID,
		Consent: models.ConsentBlock{
			Given:     sess.ConsentGiven,
			Timestamp: sess.ConsentAt,
		},
		HPI:           pickSection(catalog, sess, models.SectionHPI),
		Ample:         pickSection(catalog, sess, models.SectionAmple),
		FamilyHistory: pickSection(catalog, sess, models.SectionFamilyHistory),
		Call: models.CallMeta{
			ExternalCallID:  sess.ExternalCallID,
			Direction:       sess.Direction,
			FromNumber:      sess.FromNumber,
			ToNumber:        sess.ToNumber,
			StartedAt:       sess.StartedAt,
			AnsweredAt:      sess.AnsweredAt,
			EndedAt:         sess.EndedAt,
			DurationSeconds: sess.DurationSeconds,
			RecordingURL:    sess.RecordingURL,
		},
		Outcome:     sess.State,
		CompletedAt: now,
	}
	return record
}

// pickSection collects the session's answers for one section, nil when none.
func pickSection(catalog *questions.Catalog, sess *models.CallSession, sec models.Section) map[string]models.Answer {
	var out map[string]models.Answer
	for _, key := range catalog.SectionKeys(sec) {
		if ans, ok := sess.Responses[key]; ok {
			if out == nil {
				out = make(map[string]models.Answer)
			}
			out[key] = ans
		}
	}
	return out
}
