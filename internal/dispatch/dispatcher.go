// Package dispatch implements the call-session event dispatcher.
//
// The dispatcher is the only writer of conversation state. Each inbound
// telephony event is routed to a handler that runs under the session store's
// per-call lock, mutates the session, and issues at most a handful of
// transport actions. Handlers never block on the wire; every outcome of an
// action arrives later as another event.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/IntakeLine/internal/archive"
	"github.com/BTreeMap/IntakeLine/internal/flow"
	"github.com/BTreeMap/IntakeLine/internal/models"
	"github.com/BTreeMap/IntakeLine/internal/session"
	"github.com/BTreeMap/IntakeLine/internal/store"
	"github.com/BTreeMap/IntakeLine/internal/telephony"
	"github.com/BTreeMap/IntakeLine/internal/transcribe"
)

// Phrases spoken outside the question catalog.
const (
	// consentAck prefixes the first intake question after the caller consents,
	// so acknowledgement and question go out as one utterance.
	consentAck = "Thank you. Your consent has been recorded. "
	// declineFarewell is spoken when the caller declines consent.
	declineFarewell = "I understand. No information will be collected. Thank you for your time. Goodbye."
	// retryFarewell is spoken when the retry budget for a question is spent.
	retryFarewell = "I'm sorry, I wasn't able to understand your responses. A staff member will follow up with you directly. Goodbye."
	// retryPrefix precedes a re-issued prompt after invalid input.
	retryPrefix = "Sorry, I didn't get that. "
)

// Dispatcher routes inbound call events through the conversation state
// machine and owns session lifecycle from creation to handoff.
type Dispatcher struct {
	sessions    *session.Store
	engine      *flow.Engine
	actions     telephony.Actions
	sink        archive.Sink
	store       store.Store
	transcriber transcribe.Transcriber
	retryBudget int
	now         func() time.Time
}

// DispatcherOption configures optional collaborators.
type DispatcherOption func(*Dispatcher)

// WithSink sets the archival sink invoked at completion handoff.
func WithSink(s archive.Sink) DispatcherOption {
	return func(d *Dispatcher) { d.sink = s }
}

// WithStore sets the durable persistence collaborator.
func WithStore(s store.Store) DispatcherOption {
	return func(d *Dispatcher) { d.store = s }
}

// WithTranscriber enables offline transcription of saved recordings.
func WithTranscriber(t transcribe.Transcriber) DispatcherOption {
	return func(d *Dispatcher) { d.transcriber = t }
}

// WithRetryBudget overrides the per-question invalid-input budget.
func WithRetryBudget(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.retryBudget = n
		}
	}
}

// NewDispatcher creates a dispatcher over an empty session store.
func NewDispatcher(engine *flow.Engine, actions telephony.Actions, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sessions:    session.NewStore(),
		engine:      engine,
		actions:     actions,
		retryBudget: models.DefaultRetryBudget,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Sessions exposes the session store for status endpoints.
func (d *Dispatcher) Sessions() *session.Store { return d.sessions }

// HandleEvent processes one inbound event. Events for the same external call
// id are serialized by the session store; events for an unknown or already
// retired session are logged and dropped rather than failing the webhook.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev models.CallEvent) error {
	if ev.ExternalCallID == "" {
		return models.ErrEmptyCallID
	}
	slog.Debug("dispatch: HandleEvent", "external_call_id", ev.ExternalCallID, "type", ev.Type)

	var err error
	switch ev.Type {
	case models.EventCallInitiated:
		err = d.handleInitiated(ctx, ev)
	case models.EventCallAnswered:
		err = d.handleAnswered(ctx, ev)
	case models.EventGatherEnded:
		err = d.handleGather(ctx, ev)
	case models.EventTranscription:
		err = d.handleTranscription(ctx, ev)
	case models.EventRecordingSaved:
		err = d.handleRecording(ctx, ev)
	case models.EventCallEnded:
		err = d.handleEnded(ctx, ev)
	default:
		slog.Info("dispatch: ignoring unrecognized event type", "type", ev.Type, "external_call_id", ev.ExternalCallID)
		return nil
	}
	if errors.Is(err, models.ErrUnknownSession) {
		// Late or duplicate delivery for a retired session.
		slog.Info("dispatch: event for unknown session ignored", "type", ev.Type, "external_call_id", ev.ExternalCallID)
		return nil
	}
	return err
}

// handleInitiated registers the session and records the call endpoints.
func (d *Dispatcher) handleInitiated(ctx context.Context, ev models.CallEvent) error {
	created, err := d.sessions.GetOrCreate(ev.ExternalCallID, uuid.NewString(), d.now())
	if err != nil {
		return err
	}
	return d.sessions.Do(ev.ExternalCallID, func(sess *models.CallSession) error {
		if !created && sess.State != models.StateRinging {
			slog.Debug("dispatch: duplicate call-initiated ignored", "external_call_id", ev.ExternalCallID, "state", sess.State)
			return nil
		}
		if sess.FromNumber == "" {
			sess.FromNumber = ev.From
		}
		if sess.ToNumber == "" {
			sess.ToNumber = ev.To
		}
		d.persistCall(sess, models.CallStatusInitiated)
		return nil
	})
}

// handleAnswered moves the session to ANSWERED and issues the consent prompt.
// Inbound calls may be seen here first, so the session is created on demand.
func (d *Dispatcher) handleAnswered(ctx context.Context, ev models.CallEvent) error {
	if _, err := d.sessions.GetOrCreate(ev.ExternalCallID, uuid.NewString(), d.now()); err != nil {
		return err
	}
	var retire bool
	err := d.sessions.Do(ev.ExternalCallID, func(sess *models.CallSession) error {
		if sess.State.Terminal() {
			slog.Debug("dispatch: call-answered after terminal state ignored", "external_call_id", ev.ExternalCallID, "state", sess.State)
			return nil
		}
		if sess.State != models.StateRinging {
			slog.Debug("dispatch: duplicate call-answered ignored", "external_call_id", ev.ExternalCallID, "state", sess.State)
			return nil
		}
		now := d.now()
		sess.State = models.StateAnswered
		sess.AnsweredAt = &now
		if sess.FromNumber == "" {
			sess.FromNumber = ev.From
		}
		if sess.ToNumber == "" {
			sess.ToNumber = ev.To
		}

		consent := d.engine.Catalog().Consent()
		if err := d.actions.CollectInput(ctx, sess.ExternalCallID, consent.Prompt, consent.ValidDigits, consent.MaxDigits); err != nil {
			retire = d.failTransition(ctx, sess, err)
			return nil
		}
		sess.State = models.StateAwaitingConsent
		sess.Current = consent
		slog.Info("dispatch: consent prompt issued", "external_call_id", sess.ExternalCallID)
		d.persistCall(sess, models.CallStatusAnswered)
		return nil
	})
	if retire {
		d.sessions.Delete(ev.ExternalCallID)
	}
	return err
}

// handleGather routes collected digits to the consent gate or the current
// intake question. Empty digits mean the transport timed out waiting for
// input and are treated exactly like an invalid entry.
func (d *Dispatcher) handleGather(ctx context.Context, ev models.CallEvent) error {
	var retire bool
	err := d.sessions.Do(ev.ExternalCallID, func(sess *models.CallSession) error {
		if sess.State.Terminal() {
			slog.Debug("dispatch: gather after terminal state ignored", "external_call_id", ev.ExternalCallID, "state", sess.State)
			return nil
		}
		switch sess.State {
		case models.StateAwaitingConsent:
			retire = d.handleConsentDigits(ctx, sess, ev.Digits)
		case models.StateInIntake:
			retire = d.handleIntakeDigits(ctx, sess, ev.Digits)
		default:
			slog.Info("dispatch: gather outside a prompt ignored", "external_call_id", ev.ExternalCallID, "state", sess.State)
		}
		return nil
	})
	if retire {
		d.sessions.Delete(ev.ExternalCallID)
	}
	return err
}

// handleConsentDigits resolves the consent gate. Press 1 consents and starts
// the questionnaire, press 2 declines and ends the call, anything else burns
// one retry.
func (d *Dispatcher) handleConsentDigits(ctx context.Context, sess *models.CallSession, digits string) (retire bool) {
	switch digits {
	case "1":
		now := d.now()
		sess.GiveConsent(now)
		sess.State = models.StateInIntake
		sess.Retries = 0
		slog.Info("dispatch: consent given", "external_call_id", sess.ExternalCallID)
		d.persistCall(sess, models.CallStatusAnswered)
		return d.issueNext(ctx, sess, consentAck)
	case "2":
		sess.State = models.StateConsentDeclined
		sess.Current = nil
		slog.Info("dispatch: consent declined", "external_call_id", sess.ExternalCallID)
		if err := d.actions.Speak(ctx, sess.ExternalCallID, declineFarewell); err != nil {
			return d.failTransition(ctx, sess, err)
		}
		if err := d.actions.HangUp(ctx, sess.ExternalCallID); err != nil {
			return d.failTransition(ctx, sess, err)
		}
		// Teardown and handoff run when the call-ended event arrives.
		return false
	default:
		return d.invalidInput(ctx, sess, d.engine.Catalog().Consent())
	}
}

// handleIntakeDigits validates digits against the current question and folds
// the answer into the session.
func (d *Dispatcher) handleIntakeDigits(ctx context.Context, sess *models.CallSession, digits string) (retire bool) {
	q := sess.Current
	if q == nil {
		slog.Error("dispatch: gather with no question pending", "external_call_id", sess.ExternalCallID)
		return false
	}
	if q.Kind != models.QuestionDTMF || !q.AcceptsDigits(digits) {
		return d.invalidInput(ctx, sess, q)
	}
	if err := d.engine.Fold(sess, q, digits, d.now()); err != nil {
		// Duplicate capture; keep the first answer and move on.
		slog.Error("dispatch: answer fold rejected", "error", err, "external_call_id", sess.ExternalCallID, "key", q.Key)
	}
	sess.Retries = 0
	slog.Debug("dispatch: answer captured", "external_call_id", sess.ExternalCallID, "key", q.Key)
	return d.issueNext(ctx, sess, "")
}

// handleTranscription stores the segment and, when a voice question is
// awaiting its answer, folds the final transcript in verbatim.
func (d *Dispatcher) handleTranscription(ctx context.Context, ev models.CallEvent) error {
	var retire bool
	err := d.sessions.Do(ev.ExternalCallID, func(sess *models.CallSession) error {
		d.persistTranscript(ev)
		if sess.State.Terminal() {
			slog.Debug("dispatch: transcription after terminal state ignored", "external_call_id", ev.ExternalCallID)
			return nil
		}
		q := sess.Current
		if sess.State != models.StateInIntake || q == nil || q.Kind != models.QuestionVoice {
			slog.Debug("dispatch: transcription outside a voice prompt", "external_call_id", ev.ExternalCallID, "final", ev.Final)
			return nil
		}
		if !ev.Final {
			return nil
		}
		text := ev.Transcript
		if text == "" {
			retire = d.invalidInput(ctx, sess, q)
			return nil
		}
		if len(text) > models.MaxAnswerLength {
			text = text[:models.MaxAnswerLength]
		}
		if err := d.engine.Fold(sess, q, text, d.now()); err != nil {
			slog.Error("dispatch: answer fold rejected", "error", err, "external_call_id", sess.ExternalCallID, "key", q.Key)
		}
		sess.Retries = 0
		slog.Debug("dispatch: voice answer captured", "external_call_id", sess.ExternalCallID, "key", q.Key)
		retire = d.issueNext(ctx, sess, "")
		return nil
	})
	if errors.Is(err, models.ErrUnknownSession) {
		// Late transcripts for a retired call are still worth keeping.
		d.persistTranscript(ev)
		return err
	}
	if retire {
		d.sessions.Delete(ev.ExternalCallID)
	}
	return err
}

// handleRecording attaches recording metadata. Recording callbacks routinely
// arrive after hangup, so the durable row is updated even when the session is
// already retired.
func (d *Dispatcher) handleRecording(ctx context.Context, ev models.CallEvent) error {
	err := d.sessions.Do(ev.ExternalCallID, func(sess *models.CallSession) error {
		sess.RecordingURL = ev.RecordingURL
		sess.RecordingID = ev.RecordingID
		return nil
	})
	if err != nil && !errors.Is(err, models.ErrUnknownSession) {
		return err
	}
	if d.store != nil {
		if serr := d.store.SetRecording(ev.ExternalCallID, ev.RecordingURL, ev.RecordingID); serr != nil {
			slog.Error("dispatch: failed to persist recording metadata", "error", serr, "external_call_id", ev.ExternalCallID)
		}
	}
	if d.transcriber != nil && ev.RecordingURL != "" {
		go d.transcribeRecording(ev.ExternalCallID, ev.RecordingURL)
	}
	return nil
}

// transcribeRecording runs Whisper over a saved recording and stores the
// result as a final transcript segment. Runs outside the per-call lock.
func (d *Dispatcher) transcribeRecording(externalCallID, recordingURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	text, err := d.transcriber.TranscribeRecording(ctx, recordingURL)
	if err != nil {
		slog.Error("dispatch: recording transcription failed", "error", err, "external_call_id", externalCallID)
		return
	}
	d.persistTranscript(models.CallEvent{
		ExternalCallID: externalCallID,
		Transcript:     text,
		Final:          true,
	})
	slog.Info("dispatch: recording transcribed", "external_call_id", externalCallID, "chars", len(text))
}

// handleEnded finalizes the session: duration is computed, a non-terminal
// session becomes COMPLETED or FAILED depending on consent, completion
// handoff runs exactly once, and the session is retired. A duplicate
// call-ended finds no session and is dropped upstream.
func (d *Dispatcher) handleEnded(ctx context.Context, ev models.CallEvent) error {
	err := d.sessions.Do(ev.ExternalCallID, func(sess *models.CallSession) error {
		now := d.now()
		sess.EndedAt = &now
		if sess.AnsweredAt != nil {
			sess.DurationSeconds = int(now.Sub(*sess.AnsweredAt) / time.Second)
		}
		if !sess.State.Terminal() {
			if sess.ConsentGiven {
				sess.State = models.StateCompleted
			} else {
				sess.State = models.StateFailed
			}
		}
		sess.Current = nil
		slog.Info("dispatch: call ended", "external_call_id", sess.ExternalCallID, "state", sess.State, "duration_s", sess.DurationSeconds)
		d.completeHandoff(ctx, sess)
		return nil
	})
	if err != nil {
		return err
	}
	d.sessions.Delete(ev.ExternalCallID)
	return nil
}

// issueNext asks the next question, or delivers the closing statement once
// the script is exhausted. The prefix is prepended to the prompt so an
// acknowledgement and the question go out as one utterance. Returns true when
// the session must be retired because a transport action failed.
func (d *Dispatcher) issueNext(ctx context.Context, sess *models.CallSession, prefix string) (retire bool) {
	q, ok := d.engine.Next(sess)
	if !ok {
		sess.State = models.StateCompleting
		sess.Current = nil
		closing := d.engine.Catalog().Closing()
		slog.Info("dispatch: questionnaire complete", "external_call_id", sess.ExternalCallID, "answers", len(sess.Responses))
		if err := d.actions.Speak(ctx, sess.ExternalCallID, prefix+closing.Prompt); err != nil {
			return d.failTransition(ctx, sess, err)
		}
		// The transport ends the call after the closing statement; teardown
		// arrives as a call-ended event.
		return false
	}

	var err error
	switch q.Kind {
	case models.QuestionVoice:
		err = d.actions.CollectSpeech(ctx, sess.ExternalCallID, prefix+q.Prompt)
	default:
		err = d.actions.CollectInput(ctx, sess.ExternalCallID, prefix+q.Prompt, q.ValidDigits, q.MaxDigits)
	}
	if err != nil {
		return d.failTransition(ctx, sess, err)
	}
	sess.Current = q
	slog.Debug("dispatch: question issued", "external_call_id", sess.ExternalCallID, "key", q.Key, "kind", q.Kind)
	return false
}

// invalidInput burns one retry for the current question. Within budget the
// prompt is re-issued; once the budget is spent the session fails and the
// call is torn down with a single hang-up.
func (d *Dispatcher) invalidInput(ctx context.Context, sess *models.CallSession, q *models.Question) (retire bool) {
	sess.Retries++
	slog.Info("dispatch: invalid input", "external_call_id", sess.ExternalCallID, "key", q.Key, "retries", sess.Retries)
	if sess.Retries >= d.retryBudget {
		sess.State = models.StateFailed
		sess.Current = nil
		if err := d.actions.Speak(ctx, sess.ExternalCallID, retryFarewell); err != nil {
			slog.Error("dispatch: failed to speak farewell", "error", err, "external_call_id", sess.ExternalCallID)
		}
		if err := d.actions.HangUp(ctx, sess.ExternalCallID); err != nil {
			slog.Error("dispatch: failed to hang up", "error", err, "external_call_id", sess.ExternalCallID)
		}
		// Handoff with partial data runs on the call-ended event.
		return false
	}

	var err error
	switch q.Kind {
	case models.QuestionVoice:
		err = d.actions.CollectSpeech(ctx, sess.ExternalCallID, retryPrefix+q.Prompt)
	default:
		err = d.actions.CollectInput(ctx, sess.ExternalCallID, retryPrefix+q.Prompt, q.ValidDigits, q.MaxDigits)
	}
	if err != nil {
		return d.failTransition(ctx, sess, err)
	}
	return false
}

// failTransition handles a transport action that could not be issued: the
// session fails, completion handoff runs with whatever partial data exists,
// and the caller retires the session. A best-effort hang-up is attempted
// since no further events are guaranteed to arrive.
func (d *Dispatcher) failTransition(ctx context.Context, sess *models.CallSession, cause error) (retire bool) {
	slog.Error("dispatch: transport action failed", "error", cause, "external_call_id", sess.ExternalCallID, "state", sess.State)
	now := d.now()
	sess.State = models.StateFailed
	sess.Current = nil
	sess.EndedAt = &now
	if sess.AnsweredAt != nil {
		sess.DurationSeconds = int(now.Sub(*sess.AnsweredAt) / time.Second)
	}
	if err := d.actions.HangUp(ctx, sess.ExternalCallID); err != nil {
		slog.Debug("dispatch: hang-up after transport failure also failed", "error", err, "external_call_id", sess.ExternalCallID)
	}
	d.completeHandoff(ctx, sess)
	return true
}

// persistCall hands the session's durable row to the store, best effort.
func (d *Dispatcher) persistCall(sess *models.CallSession, status models.CallStatus) {
	if d.store == nil {
		return
	}
	row := models.CallRow{
		CallID:          sess.CallID,
		ExternalCallID:  sess.ExternalCallID,
		Status:          status,
		Direction:       sess.Direction,
		FromNumber:      sess.FromNumber,
		ToNumber:        sess.ToNumber,
		ConsentGiven:    sess.ConsentGiven,
		ConsentAt:       sess.ConsentAt,
		StartedAt:       sess.StartedAt,
		AnsweredAt:      sess.AnsweredAt,
		EndedAt:         sess.EndedAt,
		DurationSeconds: sess.DurationSeconds,
		RecordingURL:    sess.RecordingURL,
		RecordingID:     sess.RecordingID,
	}
	if err := d.store.SaveCall(row); err != nil {
		slog.Error("dispatch: failed to persist call row", "error", err, "external_call_id", sess.ExternalCallID)
	}
}

// persistTranscript stores one transcript segment, best effort.
func (d *Dispatcher) persistTranscript(ev models.CallEvent) {
	if d.store == nil {
		return
	}
	t := models.Transcript{
		ExternalCallID: ev.ExternalCallID,
		Text:           ev.Transcript,
		Confidence:     ev.Confidence,
		Final:          ev.Final,
		CreatedAt:      d.now(),
	}
	if err := d.store.AddTranscript(t); err != nil {
		slog.Error("dispatch: failed to persist transcript", "error", err, "external_call_id", ev.ExternalCallID)
	}
}
