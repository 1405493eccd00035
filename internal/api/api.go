// Package api provides HTTP handlers and the main server logic for IntakeLine.
//
// It exposes the Twilio voice webhook endpoints that drive active calls and a
// small REST surface for placing outbound intake calls and reading archived
// results. The API wires together the telephony, dispatch, store, and archive
// modules.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/IntakeLine/internal/archive"
	"github.com/BTreeMap/IntakeLine/internal/dispatch"
	"github.com/BTreeMap/IntakeLine/internal/flow"
	"github.com/BTreeMap/IntakeLine/internal/notify"
	"github.com/BTreeMap/IntakeLine/internal/questions"
	"github.com/BTreeMap/IntakeLine/internal/scheduler"
	"github.com/BTreeMap/IntakeLine/internal/store"
	"github.com/BTreeMap/IntakeLine/internal/telephony"
	"github.com/BTreeMap/IntakeLine/internal/transcribe"
)

// Default server configuration constants.
const (
	// DefaultAddr is the default API server listen address.
	DefaultAddr = ":8080"
	// DefaultArchiveDir is where intake records are written when no archive
	// directory is configured.
	DefaultArchiveDir = "/var/lib/intakeline/records"
	// DefaultShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	ArchiveDir     string
	BackendURL     string
	BackendAPIKey  string
	CareTeamNumber string
	RetryBudget    int
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithArchiveDir sets the directory intake records are archived into.
func WithArchiveDir(dir string) Option {
	return func(o *Opts) { o.ArchiveDir = dir }
}

// WithBackend enables archival to an external backend API.
func WithBackend(url, apiKey string) Option {
	return func(o *Opts) { o.BackendURL = url; o.BackendAPIKey = apiKey }
}

// WithCareTeamNumber enables WhatsApp completion notifications to the given
// care-team number.
func WithCareTeamNumber(number string) Option {
	return func(o *Opts) { o.CareTeamNumber = number }
}

// WithRetryBudget overrides the per-question invalid-input budget.
func WithRetryBudget(n int) Option {
	return func(o *Opts) { o.RetryBudget = n }
}

// Server hosts the voice webhooks and the REST API.
type Server struct {
	addr       string
	router     chi.Router
	dispatcher *dispatch.Dispatcher
	dialer     telephony.Dialer
	st         store.Store
	sched      *scheduler.Scheduler
}

// NewServer creates a server over already-constructed collaborators and
// mounts the routes.
func NewServer(addr string, dispatcher *dispatch.Dispatcher, dialer telephony.Dialer, st store.Store) *Server {
	s := &Server{
		addr:       addr,
		dispatcher: dispatcher,
		dialer:     dialer,
		st:         st,
		sched:      scheduler.NewScheduler(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the mounted HTTP handler, used directly by tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/webhooks/voice", func(r chi.Router) {
		r.Post("/", s.statusWebhookHandler)
		r.Post("/gather", s.gatherWebhookHandler)
		r.Post("/recording", s.recordingWebhookHandler)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/calls", s.placeCallHandler)
		r.Get("/calls", s.listCallsHandler)
		r.Get("/calls/active", s.activeCallsHandler)
		r.Get("/calls/{externalCallID}", s.getCallHandler)
		r.Get("/calls/{externalCallID}/transcripts", s.listTranscriptsHandler)
		r.Get("/records", s.listRecordsHandler)
		r.Get("/schedules", s.listSchedulesHandler)
		r.Delete("/schedules/{scheduleID}", s.removeScheduleHandler)
	})

	r.Get("/health", s.healthHandler)
	return r
}

// Run builds every module from the given options and serves until SIGINT or
// SIGTERM. It is the single composition point of the service.
func Run(telOpts []telephony.Option, storeOpts []store.Option, transcribeOpts []transcribe.Option, notifyOpts []notify.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = DefaultArchiveDir
	}
	slog.Debug("Server.Run: options resolved", "addr", cfg.Addr, "archive_dir", cfg.ArchiveDir,
		"backend_set", cfg.BackendURL != "", "care_team_set", cfg.CareTeamNumber != "")

	catalog := questions.NewCatalog()
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("question catalog is invalid: %w", err)
	}
	engine := flow.NewEngine(catalog)

	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	sink, err := buildSink(cfg, notifyOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize archival sink: %w", err)
	}

	transport, err := telephony.NewTwilio(telOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize Twilio transport: %w", err)
	}

	dispatchOpts := []dispatch.DispatcherOption{
		dispatch.WithStore(st),
		dispatch.WithSink(sink),
	}
	if cfg.RetryBudget > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithRetryBudget(cfg.RetryBudget))
	}
	if whisper, werr := transcribe.NewWhisper(transcribeOpts...); werr != nil {
		slog.Info("Server.Run: recording transcription disabled", "reason", werr)
	} else {
		dispatchOpts = append(dispatchOpts, dispatch.WithTranscriber(whisper))
	}
	dispatcher := dispatch.NewDispatcher(engine, transport, dispatchOpts...)

	srv := NewServer(cfg.Addr, dispatcher, transport, st)
	httpSrv := &http.Server{Addr: srv.addr, Handler: srv.router}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: IntakeLine API listening", "addr", srv.addr)
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Server.Run: shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	srv.sched.Stop()
	return nil
}

// buildStore selects the storage backend from the configured DSN, falling
// back to the in-memory store when none is set.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("Server.Run: no database DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(storeOpts...)
	}
	return store.NewSQLiteStore(storeOpts...)
}

// buildSink assembles the archival fan-out: file archive always, backend and
// WhatsApp notification when configured.
func buildSink(cfg Opts, notifyOpts []notify.Option) (archive.Sink, error) {
	fileSink, err := archive.NewFileSink(cfg.ArchiveDir)
	if err != nil {
		return nil, err
	}
	sinks := []archive.Sink{fileSink}

	if cfg.BackendURL != "" {
		sinks = append(sinks, archive.NewBackendSink(cfg.BackendURL, cfg.BackendAPIKey))
	}
	if cfg.CareTeamNumber != "" {
		waClient, werr := notify.NewClient(notifyOpts...)
		if werr != nil {
			slog.Warn("Server.Run: WhatsApp notifications disabled", "error", werr)
		} else {
			sinks = append(sinks, archive.NewWhatsAppSink(waClient, cfg.CareTeamNumber))
		}
	}

	if len(sinks) == 1 {
		return fileSink, nil
	}
	return archive.NewMultiSink(sinks...), nil
}
