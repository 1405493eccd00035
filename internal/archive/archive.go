// Package archive forwards completed intake records to downstream systems.
//
// The dispatcher makes a single best-effort submission per session; each sink
// owns its own retry and backoff policy. Sink failure is reported back as an
// error, logged by the caller as a warning, and never blocks call teardown.
package archive

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/IntakeLine/internal/models"
)

// Sink receives one assembled intake record per completed session.
type Sink interface {
	// Submit forwards the record. Implementations must be safe for
	// concurrent use; the dispatcher never retries a failed submission.
	Submit(ctx context.Context, record models.IntakeRecord) error

	// Name identifies the sink in logs.
	Name() string
}

// MultiSink fans a record out to several sinks, best effort per sink. Submit
// reports the first failure after attempting every sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink. Nil members are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Name implements Sink.
func (m *MultiSink) Name() string { return "multi" }

// Submit forwards the record to every member sink.
func (m *MultiSink) Submit(ctx context.Context, record models.IntakeRecord) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Submit(ctx, record); err != nil {
			slog.Warn("archive: sink submission failed", "error", err, "sink", s.Name(), "record_id", record.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		slog.Debug("archive: sink submission succeeded", "sink", s.Name(), "record_id", record.ID)
	}
	return firstErr
}

// Len returns the number of member sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }
