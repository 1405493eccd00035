package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BTreeMap/IntakeLine/internal/models"
)

// FileSink writes each intake record as a JSON file under a data directory.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink writing to dir, creating it if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
	}
	return &FileSink{dir: dir}, nil
}

// Name implements Sink.
func (f *FileSink) Name() string { return "file" }

// Submit writes the record as intake_<call>_<timestamp>.json.
func (f *FileSink) Submit(ctx context.Context, record models.IntakeRecord) error {
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal intake record %s: %w", record.ID, err)
	}
	name := fmt.Sprintf("intake_%s_%s.json", record.Call.ExternalCallID, record.CompletedAt.UTC().Format("20060102_150405"))
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("failed to write intake record to %s: %w", path, err)
	}
	return nil
}
