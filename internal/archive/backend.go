package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BTreeMap/IntakeLine/internal/models"
)

// DefaultSubmitTimeout bounds one submission attempt to the backend API.
const DefaultSubmitTimeout = 30 * time.Second

// BackendSink posts intake records to an external archival API.
type BackendSink struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewBackendSink creates a sink posting to endpoint. The API key is optional
// and sent as a bearer token when set.
func NewBackendSink(endpoint, apiKey string) *BackendSink {
	return &BackendSink{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: DefaultSubmitTimeout},
	}
}

// Name implements Sink.
func (b *BackendSink) Name() string { return "backend" }

// Submit posts the record as JSON. Any non-2xx status is a failure; the
// caller never retries, per the single best-effort submission policy.
func (b *BackendSink) Submit(ctx context.Context, record models.IntakeRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal intake record %s: %w", record.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit intake record %s: %w", record.ID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend rejected intake record %s: status %d", record.ID, resp.StatusCode)
	}
	return nil
}
