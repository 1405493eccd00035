package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/IntakeLine/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCallRow scans one call row.
func scanCallRow(row rowScanner) (*models.CallRow, error) {
	var c models.CallRow
	var fromNumber, toNumber, recordingURL, recordingID sql.NullString
	var consentAt, answeredAt, endedAt sql.NullTime
	err := row.Scan(
		&c.ExternalCallID, &c.CallID, &c.Status, &c.Direction, &fromNumber, &toNumber,
		&c.ConsentGiven, &consentAt, &c.StartedAt, &answeredAt, &endedAt, &c.DurationSeconds,
		&recordingURL, &recordingID,
	)
	if err != nil {
		return nil, err
	}
	c.FromNumber = fromNumber.String
	c.ToNumber = toNumber.String
	c.RecordingURL = recordingURL.String
	c.RecordingID = recordingID.String
	if consentAt.Valid {
		c.ConsentAt = &consentAt.Time
	}
	if answeredAt.Valid {
		c.AnsweredAt = &answeredAt.Time
	}
	if endedAt.Valid {
		c.EndedAt = &endedAt.Time
	}
	return &c, nil
}

func collectCalls(rows *sql.Rows) ([]models.CallRow, error) {
	var calls []models.CallRow
	for rows.Next() {
		c, err := scanCallRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call row: %w", err)
		}
		calls = append(calls, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call rows: %w", err)
	}
	return calls, nil
}

func collectTranscripts(rows *sql.Rows) ([]models.Transcript, error) {
	var transcripts []models.Transcript
	for rows.Next() {
		var t models.Transcript
		var confidence sql.NullFloat64
		if err := rows.Scan(&t.ExternalCallID, &t.Text, &confidence, &t.Final, &t.Sequence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		t.Confidence = confidence.Float64
		transcripts = append(transcripts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript rows: %w", err)
	}
	return transcripts, nil
}

func collectRecords(rows *sql.Rows) ([]models.IntakeRecord, error) {
	var records []models.IntakeRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan intake record row: %w", err)
		}
		var r models.IntakeRecord
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("failed to decode intake record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intake record rows: %w", err)
	}
	return records, nil
}
