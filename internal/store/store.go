// Package store provides storage backends for IntakeLine.
//
// The core hands completed call rows, transcript segments, and intake
// records to a Store and never reads them back to drive a conversation;
// durable persistence is a collaborator concern. In-memory, SQLite, and
// PostgreSQL backends share one interface.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/IntakeLine/internal/models"
)

// Store is the durable persistence collaborator.
type Store interface {
	// SaveCall inserts or replaces the row for the call's external id.
	SaveCall(c models.CallRow) error
	GetCall(externalCallID string) (*models.CallRow, error)
	ListCalls() ([]models.CallRow, error)

	// SetRecording attaches recording metadata to an existing call row. It
	// must work after the session is retired, since recording callbacks can
	// arrive after hangup.
	SetRecording(externalCallID, recordingURL, recordingID string) error

	AddTranscript(t models.Transcript) error
	ListTranscripts(externalCallID string) ([]models.Transcript, error)

	SaveIntakeRecord(r models.IntakeRecord) error
	ListIntakeRecords() ([]models.IntakeRecord, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the database DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the database DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-looking DSNs and "sqlite"
// otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded in-memory Store, used in tests and when
// no database DSN is configured.
type InMemoryStore struct {
	mu          sync.RWMutex
	calls       map[string]models.CallRow
	transcripts map[string][]models.Transcript
	records     []models.IntakeRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		calls:       make(map[string]models.CallRow),
		transcripts: make(map[string][]models.Transcript),
	}
}

func (s *InMemoryStore) SaveCall(c models.CallRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[c.ExternalCallID] = c
	return nil
}

func (s *InMemoryStore) GetCall(externalCallID string) (*models.CallRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[externalCallID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) ListCalls() ([]models.CallRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	calls := make([]models.CallRow, 0, len(s.calls))
	for _, c := range s.calls {
		calls = append(calls, c)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].StartedAt.Before(calls[j].StartedAt) })
	return calls, nil
}

func (s *InMemoryStore) SetRecording(externalCallID, recordingURL, recordingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[externalCallID]
	if !ok {
		return models.ErrUnknownSession
	}
	c.RecordingURL = recordingURL
	c.RecordingID = recordingID
	s.calls[externalCallID] = c
	return nil
}

func (s *InMemoryStore) AddTranscript(t models.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Sequence = len(s.transcripts[t.ExternalCallID])
	s.transcripts[t.ExternalCallID] = append(s.transcripts[t.ExternalCallID], t)
	return nil
}

func (s *InMemoryStore) ListTranscripts(externalCallID string) ([]models.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Transcript, len(s.transcripts[externalCallID]))
	copy(out, s.transcripts[externalCallID])
	return out, nil
}

func (s *InMemoryStore) SaveIntakeRecord(r models.IntakeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *InMemoryStore) ListIntakeRecords() ([]models.IntakeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.IntakeRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
