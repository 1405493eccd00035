// Package store provides storage backends for IntakeLine.
//
// This file implements a PostgreSQL-backed store for calls, transcripts, and
// intake records.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/IntakeLine/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveCall(c models.CallRow) error {
	_, err := s.db.Exec(`INSERT INTO calls (external_call_id, call_id, status, direction, from_number, to_number, consent_given, consent_at, started_at, answered_at, ended_at, duration_seconds, recording_url, recording_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (external_call_id) DO UPDATE SET
			status=EXCLUDED.status, consent_given=EXCLUDED.consent_given, consent_at=EXCLUDED.consent_at,
			answered_at=EXCLUDED.answered_at, ended_at=EXCLUDED.ended_at, duration_seconds=EXCLUDED.duration_seconds,
			recording_url=COALESCE(EXCLUDED.recording_url, calls.recording_url),
			recording_id=COALESCE(EXCLUDED.recording_id, calls.recording_id)`,
		c.ExternalCallID, c.CallID, c.Status, c.Direction, nilIfEmpty(c.FromNumber), nilIfEmpty(c.ToNumber),
		c.ConsentGiven, c.ConsentAt, c.StartedAt, c.AnsweredAt, c.EndedAt, c.DurationSeconds,
		nilIfEmpty(c.RecordingURL), nilIfEmpty(c.RecordingID))
	if err != nil {
		slog.Error("PostgresStore SaveCall failed", "error", err, "external_call_id", c.ExternalCallID)
		return fmt.Errorf("failed to save call %s: %w", c.ExternalCallID, err)
	}
	return nil
}

func (s *PostgresStore) GetCall(externalCallID string) (*models.CallRow, error) {
	row := s.db.QueryRow(`SELECT external_call_id, call_id, status, direction, from_number, to_number, consent_given, consent_at, started_at, answered_at, ended_at, duration_seconds, recording_url, recording_id
		FROM calls WHERE external_call_id = $1`, externalCallID)
	c, err := scanCallRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCall failed", "error", err, "external_call_id", externalCallID)
		return nil, fmt.Errorf("failed to get call %s: %w", externalCallID, err)
	}
	return c, nil
}

func (s *PostgresStore) ListCalls() ([]models.CallRow, error) {
	rows, err := s.db.Query(`SELECT external_call_id, call_id, status, direction, from_number, to_number, consent_given, consent_at, started_at, answered_at, ended_at, duration_seconds, recording_url, recording_id
		FROM calls ORDER BY started_at`)
	if err != nil {
		slog.Error("PostgresStore ListCalls query failed", "error", err)
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()
	return collectCalls(rows)
}

func (s *PostgresStore) SetRecording(externalCallID, recordingURL, recordingID string) error {
	res, err := s.db.Exec(`UPDATE calls SET recording_url = $1, recording_id = $2 WHERE external_call_id = $3`,
		recordingURL, recordingID, externalCallID)
	if err != nil {
		slog.Error("PostgresStore SetRecording failed", "error", err, "external_call_id", externalCallID)
		return fmt.Errorf("failed to set recording for %s: %w", externalCallID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUnknownSession
	}
	return nil
}

func (s *PostgresStore) AddTranscript(t models.Transcript) error {
	_, err := s.db.Exec(`INSERT INTO transcripts (external_call_id, text, confidence, final, sequence, created_at)
		VALUES ($1, $2, $3, $4, (SELECT COUNT(*) FROM transcripts WHERE external_call_id = $1), $5)`,
		t.ExternalCallID, t.Text, t.Confidence, t.Final, t.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddTranscript failed", "error", err, "external_call_id", t.ExternalCallID)
		return fmt.Errorf("failed to insert transcript for %s: %w", t.ExternalCallID, err)
	}
	return nil
}

func (s *PostgresStore) ListTranscripts(externalCallID string) ([]models.Transcript, error) {
	rows, err := s.db.Query(`SELECT external_call_id, text, confidence, final, sequence, created_at
		FROM transcripts WHERE external_call_id = $1 ORDER BY sequence`, externalCallID)
	if err != nil {
		slog.Error("PostgresStore ListTranscripts query failed", "error", err)
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()
	return collectTranscripts(rows)
}

func (s *PostgresStore) SaveIntakeRecord(r models.IntakeRecord) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal intake record %s: %w", r.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO intake_records (id, external_call_id, record_json, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET record_json=EXCLUDED.record_json, completed_at=EXCLUDED.completed_at`,
		r.ID, r.Call.ExternalCallID, string(payload), r.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore SaveIntakeRecord failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to save intake record %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListIntakeRecords() ([]models.IntakeRecord, error) {
	rows, err := s.db.Query(`SELECT record_json FROM intake_records ORDER BY completed_at`)
	if err != nil {
		slog.Error("PostgresStore ListIntakeRecords query failed", "error", err)
		return nil, fmt.Errorf("failed to query intake records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
