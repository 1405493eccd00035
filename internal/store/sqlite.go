// Package store provides storage backends for IntakeLine.
//
// This file implements a SQLite-backed store for calls, transcripts, and
// intake records.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/IntakeLine/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveCall(c models.CallRow) error {
	_, err := s.db.Exec(`INSERT INTO calls (external_call_id, call_id, status, direction, from_number, to_number, consent_given, consent_at, started_at, answered_at, ended_at, duration_seconds, recording_url, recording_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_call_id) DO UPDATE SET
			status=excluded.status, consent_given=excluded.consent_given, consent_at=excluded.consent_at,
			answered_at=excluded.answered_at, ended_at=excluded.ended_at, duration_seconds=excluded.duration_seconds,
			recording_url=COALESCE(excluded.recording_url, calls.recording_url),
			recording_id=COALESCE(excluded.recording_id, calls.recording_id)`,
		c.ExternalCallID, c.CallID, c.Status, c.Direction, nilIfEmpty(c.FromNumber), nilIfEmpty(c.ToNumber),
		c.ConsentGiven, c.ConsentAt, c.StartedAt, c.AnsweredAt, c.EndedAt, c.DurationSeconds,
		nilIfEmpty(c.RecordingURL), nilIfEmpty(c.RecordingID))
	if err != nil {
		slog.Error("SQLiteStore SaveCall failed", "error", err, "external_call_id", c.ExternalCallID)
		return fmt.Errorf("failed to save call %s: %w", c.ExternalCallID, err)
	}
	slog.Debug("SQLiteStore SaveCall succeeded", "external_call_id", c.ExternalCallID, "status", c.Status)
	return nil
}

func (s *SQLiteStore) GetCall(externalCallID string) (*models.CallRow, error) {
	row := s.db.QueryRow(`SELECT external_call_id, call_id, status, direction, from_number, to_number, consent_given, consent_at, started_at, answered_at, ended_at, duration_seconds, recording_url, recording_id
		FROM calls WHERE external_call_id = ?`, externalCallID)
	c, err := scanCallRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCall failed", "error", err, "external_call_id", externalCallID)
		return nil, fmt.Errorf("failed to get call %s: %w", externalCallID, err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCalls() ([]models.CallRow, error) {
	rows, err := s.db.Query(`SELECT external_call_id, call_id, status, direction, from_number, to_number, consent_given, consent_at, started_at, answered_at, ended_at, duration_seconds, recording_url, recording_id
		FROM calls ORDER BY started_at`)
	if err != nil {
		slog.Error("SQLiteStore ListCalls query failed", "error", err)
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()
	return collectCalls(rows)
}

func (s *SQLiteStore) SetRecording(externalCallID, recordingURL, recordingID string) error {
	res, err := s.db.Exec(`UPDATE calls SET recording_url = ?, recording_id = ? WHERE external_call_id = ?`,
		recordingURL, recordingID, externalCallID)
	if err != nil {
		slog.Error("SQLiteStore SetRecording failed", "error", err, "external_call_id", externalCallID)
		return fmt.Errorf("failed to set recording for %s: %w", externalCallID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUnknownSession
	}
	return nil
}

func (s *SQLiteStore) AddTranscript(t models.Transcript) error {
	_, err := s.db.Exec(`INSERT INTO transcripts (external_call_id, text, confidence, final, sequence, created_at)
		VALUES (?, ?, ?, ?, (SELECT COUNT(*) FROM transcripts WHERE external_call_id = ?), ?)`,
		t.ExternalCallID, t.Text, t.Confidence, t.Final, t.ExternalCallID, t.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddTranscript failed", "error", err, "external_call_id", t.ExternalCallID)
		return fmt.Errorf("failed to insert transcript for %s: %w", t.ExternalCallID, err)
	}
	return nil
}

func (s *SQLiteStore) ListTranscripts(externalCallID string) ([]models.Transcript, error) {
	rows, err := s.db.Query(`SELECT external_call_id, text, confidence, final, sequence, created_at
		FROM transcripts WHERE external_call_id = ? ORDER BY sequence`, externalCallID)
	if err != nil {
		slog.Error("SQLiteStore ListTranscripts query failed", "error", err)
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()
	return collectTranscripts(rows)
}

func (s *SQLiteStore) SaveIntakeRecord(r models.IntakeRecord) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal intake record %s: %w", r.ID, err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO intake_records (id, external_call_id, record_json, completed_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Call.ExternalCallID, string(payload), r.CompletedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveIntakeRecord failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to save intake record %s: %w", r.ID, err)
	}
	slog.Debug("SQLiteStore SaveIntakeRecord succeeded", "id", r.ID)
	return nil
}

func (s *SQLiteStore) ListIntakeRecords() ([]models.IntakeRecord, error) {
	rows, err := s.db.Query(`SELECT record_json FROM intake_records ORDER BY completed_at`)
	if err != nil {
		slog.Error("SQLiteStore ListIntakeRecords query failed", "error", err)
		return nil, fmt.Errorf("failed to query intake records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
