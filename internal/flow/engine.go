// Package flow implements the question-script engine.
//
// The engine is a pure function over a session's progress cursor and the
// question catalog: it computes the next question to ask, crossing section
// boundaries and expanding conditional follow-ups, and folds validated
// answers into the session's accumulated responses. It never talks to the
// transport and never sees unvalidated touch-tone input.
package flow

import (
	"log/slog"
	"time"

	"github.com/BTreeMap/IntakeLine/internal/models"
	"github.com/BTreeMap/IntakeLine/internal/questions"
)

// Engine walks a session through the intake questionnaire.
type Engine struct {
	catalog *questions.Catalog
}

// NewEngine creates a script engine over the given catalog.
func NewEngine(catalog *questions.Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Catalog exposes the underlying catalog for record assembly.
func (e *Engine) Catalog() *questions.Catalog { return e.catalog }

// Next computes the question to ask at the session's current cursor. A queued
// follow-up takes precedence over the normal advance. When the cursor is past
// the end of a section the engine moves to the next section in catalog order;
// ok is false once every intake section is exhausted.
func (e *Engine) Next(sess *models.CallSession) (q *models.Question, ok bool) {
	if sess.Pending != nil {
		return sess.Pending, true
	}
	sec := sess.Section
	if sec == models.SectionConsent {
		sec = e.catalog.FirstSection()
	}
	idx := sess.Index
	for {
		qs := e.catalog.SectionQuestions(sec)
		if idx < len(qs) {
			sess.Section = sec
			sess.Index = idx
			return qs[idx], true
		}
		next, more := e.catalog.NextSection(sec)
		if !more {
			return nil, false
		}
		sec = next
		idx = 0
	}
}

// Fold records a validated answer for the question the session is waiting on
// and advances the cursor. If the question maps this answer value to a
// follow-up, the follow-up is queued ahead of the normal advance and the
// cursor stays put until the follow-up itself is answered.
func (e *Engine) Fold(sess *models.CallSession, q *models.Question, value string, now time.Time) error {
	if err := sess.RecordAnswer(q.Key, value, now); err != nil {
		slog.Error("flow: Fold rejected answer", "error", err, "key", q.Key)
		return err
	}
	if fu, ok := q.FollowUp[value]; ok {
		slog.Debug("flow: follow-up expanded", "parent", q.Key, "follow_up", fu.Key)
		sess.Pending = fu
		return nil
	}
	if sess.Pending == q {
		// A follow-up was just answered; resume the normal advance past its
		// parent question.
		sess.Pending = nil
	}
	sess.Index++
	return nil
}
