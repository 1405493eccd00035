// Package transcribe turns saved call recordings into text using the OpenAI
// Whisper API.
//
// Transcription is an offline enrichment step: the dispatcher fires it after
// a recording-saved event and stores the result as a transcript segment. The
// conversation itself never waits on it.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultFetchTimeout bounds the download of one recording from the transport.
const DefaultFetchTimeout = 60 * time.Second

// Transcriber produces a text transcript for a recording URL.
type Transcriber interface {
	TranscribeRecording(ctx context.Context, recordingURL string) (string, error)
}

// audioAPI is the slice of the OpenAI client the transcriber needs; the
// concrete openai.AudioTranscriptionService satisfies it.
type audioAPI interface {
	New(ctx context.Context, body openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error)
}

// Opts holds configuration options for the Whisper transcriber.
type Opts struct {
	APIKey string
	// FetchUser and FetchPass authenticate the recording download; Twilio
	// media URLs take the account SID and auth token as basic auth.
	FetchUser string
	FetchPass string
}

// Option defines a configuration option for the Whisper transcriber.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithFetchAuth sets the basic auth credentials used to download recordings.
func WithFetchAuth(user, pass string) Option {
	return func(o *Opts) { o.FetchUser = user; o.FetchPass = pass }
}

// Whisper is a Transcriber backed by the OpenAI audio transcription API.
type Whisper struct {
	audio     audioAPI
	fetcher   *http.Client
	fetchUser string
	fetchPass string
}

// NewWhisper creates a Whisper transcriber. The API key falls back to the
// OPENAI_API_KEY environment variable; a missing key is an error so callers
// can disable transcription cleanly instead of failing at first use.
func NewWhisper(opts ...Option) (*Whisper, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required for transcription")
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Whisper{
		audio:     &client.Audio.Transcriptions,
		fetcher:   &http.Client{Timeout: DefaultFetchTimeout},
		fetchUser: cfg.FetchUser,
		fetchPass: cfg.FetchPass,
	}, nil
}

// TranscribeRecording downloads the recording and runs it through Whisper.
func (w *Whisper) TranscribeRecording(ctx context.Context, recordingURL string) (string, error) {
	slog.Debug("transcribe: TranscribeRecording called", "url_set", recordingURL != "")
	if recordingURL == "" {
		return "", fmt.Errorf("recording URL cannot be empty")
	}

	body, err := w.fetch(ctx, recordingURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	resp, err := w.audio.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(body, "recording.mp3", "audio/mpeg"),
	})
	if err != nil {
		slog.Error("transcribe: Whisper request failed", "error", err)
		return "", fmt.Errorf("failed to transcribe recording: %w", err)
	}
	slog.Debug("transcribe: transcription complete", "chars", len(resp.Text))
	return resp.Text, nil
}

func (w *Whisper) fetch(ctx context.Context, recordingURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build recording request: %w", err)
	}
	if w.fetchUser != "" {
		req.SetBasicAuth(w.fetchUser, w.fetchPass)
	}
	resp, err := w.fetcher.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download recording: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download recording: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// MockTranscriber returns a fixed transcript for tests.
type MockTranscriber struct {
	Text string
	Err  error
	URLs []string
}

func (m *MockTranscriber) TranscribeRecording(ctx context.Context, recordingURL string) (string, error) {
	m.URLs = append(m.URLs, recordingURL)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Text, nil
}
