package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/BTreeMap/IntakeLine/internal/api"
	"github.com/BTreeMap/IntakeLine/internal/lockfile"
	"github.com/BTreeMap/IntakeLine/internal/notify"
	"github.com/BTreeMap/IntakeLine/internal/store"
	"github.com/BTreeMap/IntakeLine/internal/telephony"
	"github.com/BTreeMap/IntakeLine/internal/transcribe"
	"github.com/BTreeMap/IntakeLine/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for IntakeLine state data
	DefaultStateDir = "/var/lib/intakeline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "intakeline.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config, err := loadEnvironmentConfig()
	if err != nil {
		slog.Error("Failed to load environment configuration", "error", err)
		os.Exit(1)
	}

	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err, "state_dir", *flags.stateDir)
		os.Exit(1)
	}
	defer lock.Release()

	telOpts := buildTelephonyOptions(flags)
	storeOpts := buildStoreOptions(flags)
	transcribeOpts := buildTranscribeOptions(flags)
	notifyOpts := buildNotifyOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping IntakeLine with configured modules")
	slog.Debug("Module options counts", "telephony", len(telOpts), "store", len(storeOpts), "transcribe", len(transcribeOpts), "notify", len(notifyOpts), "api", len(apiOpts))
	if err := api.Run(telOpts, storeOpts, transcribeOpts, notifyOpts, apiOpts); err != nil {
		slog.Error("IntakeLine failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("IntakeLine exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string `env:"INTAKELINE_STATE_DIR"`
	DatabaseURL      string `env:"DATABASE_URL"`
	WhatsAppDSN      string `env:"WHATSAPP_DB_DSN"`
	APIAddr          string `env:"API_ADDR"`
	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`
	WebhookBase      string `env:"WEBHOOK_BASE_URL"`
	OpenAIKey        string `env:"OPENAI_API_KEY"`
	ArchiveDir       string `env:"ARCHIVE_DIR"`
	BackendURL       string `env:"BACKEND_API_URL"`
	BackendAPIKey    string `env:"BACKEND_API_KEY"`
	CareTeamNumber   string `env:"CARE_TEAM_NUMBER"`
	RetryBudget      int    `env:"RETRY_BUDGET"`
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	whatsappDSN    *string
	apiAddr        *string
	accountSID     *string
	authToken      *string
	fromNumber     *string
	webhookBase    *string
	openaiKey      *string
	archiveDir     *string
	backendURL     *string
	backendAPIKey  *string
	careTeamNumber *string
	qrOutput       *string
	numeric        *bool
	retryBudget    *int
}

// initializeLogger sets up structured logging. INTAKELINE_DEBUG=false drops
// the level to Info.
func initializeLogger() {
	level := slog.LevelDebug
	if !util.ParseBoolEnv("INTAKELINE_DEBUG", true) {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, err
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No INTAKELINE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}
	if config.ArchiveDir == "" {
		config.ArchiveDir = filepath.Join(config.StateDir, "records")
	}

	slog.Debug("environment variables loaded",
		"INTAKELINE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"TWILIO_AUTH_TOKEN_SET", config.TwilioAuthToken != "",
		"TWILIO_FROM_NUMBER_SET", config.TwilioFromNumber != "",
		"WEBHOOK_BASE_URL", config.WebhookBase,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"BACKEND_API_URL_SET", config.BackendURL != "",
		"CARE_TEAM_NUMBER_SET", config.CareTeamNumber != "")

	return config, nil
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for IntakeLine data (overrides $INTAKELINE_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "database DSN for call storage (overrides $DATABASE_URL)"),
		whatsappDSN:    flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp notifier (overrides $WHATSAPP_DB_DSN)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		accountSID:     flag.String("twilio-account-sid", config.TwilioAccountSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		authToken:      flag.String("twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		fromNumber:     flag.String("twilio-from-number", config.TwilioFromNumber, "caller id for outbound intake calls (overrides $TWILIO_FROM_NUMBER)"),
		webhookBase:    flag.String("webhook-base", config.WebhookBase, "public base URL for voice webhooks (overrides $WEBHOOK_BASE_URL)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for recording transcription (overrides $OPENAI_API_KEY)"),
		archiveDir:     flag.String("archive-dir", config.ArchiveDir, "directory intake records are archived into (overrides $ARCHIVE_DIR)"),
		backendURL:     flag.String("backend-url", config.BackendURL, "external archival API endpoint (overrides $BACKEND_API_URL)"),
		backendAPIKey:  flag.String("backend-api-key", config.BackendAPIKey, "external archival API key (overrides $BACKEND_API_KEY)"),
		careTeamNumber: flag.String("care-team-number", config.CareTeamNumber, "WhatsApp number notified on intake completion (overrides $CARE_TEAM_NUMBER)"),
		qrOutput:       flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:        flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		retryBudget:    flag.Int("retry-budget", config.RetryBudget, "invalid inputs tolerated per question (overrides $RETRY_BUDGET)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"webhookBase", *flags.webhookBase,
		"openaiKeySet", *flags.openaiKey != "",
		"archiveDir", *flags.archiveDir,
		"careTeamSet", *flags.careTeamNumber != "")

	// Follow an overridden state directory for DSNs that were defaulted into it
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		if *flags.whatsappDSN == filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) {
			*flags.whatsappDSN = filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)
		}
		if *flags.archiveDir == filepath.Join(config.StateDir, "records") {
			*flags.archiveDir = filepath.Join(*flags.stateDir, "records")
		}
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildTelephonyOptions constructs Twilio transport configuration options
func buildTelephonyOptions(flags Flags) []telephony.Option {
	var telOpts []telephony.Option
	if *flags.accountSID != "" {
		telOpts = append(telOpts, telephony.WithAccountSID(*flags.accountSID))
	}
	if *flags.authToken != "" {
		telOpts = append(telOpts, telephony.WithAuthToken(*flags.authToken))
	}
	if *flags.fromNumber != "" {
		telOpts = append(telOpts, telephony.WithFromNumber(*flags.fromNumber))
	}
	if *flags.webhookBase != "" {
		telOpts = append(telOpts, telephony.WithWebhookBase(*flags.webhookBase))
	}
	return telOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildTranscribeOptions constructs recording transcription options
func buildTranscribeOptions(flags Flags) []transcribe.Option {
	var transcribeOpts []transcribe.Option
	if *flags.openaiKey != "" {
		transcribeOpts = append(transcribeOpts, transcribe.WithAPIKey(*flags.openaiKey))
	}
	if *flags.accountSID != "" {
		// Twilio media URLs need the account credentials for download.
		transcribeOpts = append(transcribeOpts, transcribe.WithFetchAuth(*flags.accountSID, *flags.authToken))
	}
	return transcribeOpts
}

// buildNotifyOptions constructs WhatsApp notifier configuration options
func buildNotifyOptions(flags Flags) []notify.Option {
	var notifyOpts []notify.Option
	if *flags.whatsappDSN != "" {
		notifyOpts = append(notifyOpts, notify.WithDBDSN(*flags.whatsappDSN))
	}
	if *flags.qrOutput != "" {
		notifyOpts = append(notifyOpts, notify.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		notifyOpts = append(notifyOpts, notify.WithNumericCode())
	}
	return notifyOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.archiveDir != "" {
		apiOpts = append(apiOpts, api.WithArchiveDir(*flags.archiveDir))
	}
	if *flags.backendURL != "" {
		apiOpts = append(apiOpts, api.WithBackend(*flags.backendURL, *flags.backendAPIKey))
	}
	if *flags.careTeamNumber != "" {
		apiOpts = append(apiOpts, api.WithCareTeamNumber(*flags.careTeamNumber))
	}
	if *flags.retryBudget > 0 {
		apiOpts = append(apiOpts, api.WithRetryBudget(*flags.retryBudget))
	}
	return apiOpts
}
