package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/ReliefPipe/internal/api"
	"github.com/BTreeMap/ReliefPipe/internal/audio"
	"github.com/BTreeMap/ReliefPipe/internal/fema"
	"github.com/BTreeMap/ReliefPipe/internal/flow"
	"github.com/BTreeMap/ReliefPipe/internal/forms"
	"github.com/BTreeMap/ReliefPipe/internal/lockfile"
	"github.com/BTreeMap/ReliefPipe/internal/store"
	"github.com/BTreeMap/ReliefPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ReliefPipe state data
	DefaultStateDir = "/var/lib/reliefpipe"
	// DefaultDBFileName is the default SQLite turn log filename
	DefaultDBFileName = "reliefpipe.db"
)

// Provider selectors.
const (
	IntentProviderRasa   = "rasa"
	IntentProviderOpenAI = "openai"
	STTProviderGoogle    = "google"
	STTProviderWhisper   = "whisper"
	SMSProviderTwilio    = "twilio"
	SMSProviderSNS       = "sns"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	applyFlags(&config, flags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		slog.Error("ReliefPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ReliefPipe exited successfully")
}

// run wires every component and serves until ctx is canceled.
func run(ctx context.Context, config Config) error {
	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	turnLog, err := buildStore(config)
	if err != nil {
		return err
	}
	defer turnLog.Close()

	deps, err := buildComponents(ctx, config, turnLog)
	if err != nil {
		return err
	}
	defer deps.Close()

	orch, err := flow.NewOrchestrator(deps.parser, deps.gateway, deps.forms, deps.status,
		flow.WithProviderTimeout(config.ProviderTimeout),
		flow.WithTurnRecorder(turnLog))
	if err != nil {
		return err
	}

	audioStore, err := audio.NewFileStore(config.AudioDir)
	if err != nil {
		return err
	}

	srv, err := api.NewServer(orch, audioStore, buildAPIOptions(config, turnLog)...)
	if err != nil {
		return err
	}
	slog.Info("Bootstrapping ReliefPipe with configured modules",
		"intent_provider", config.IntentProvider,
		"stt_provider", config.STTProvider,
		"sms_provider", config.SMSProvider,
		"api_addr", srv.Addr())
	return srv.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	StateDir        string
	DatabaseURL     string
	AudioDir        string
	APIAddr         string
	OpenAIKey       string
	IntentProvider  string
	RasaModelPath   string
	STTProvider     string
	SMSProvider     string
	AWSRegion       string
	RedisAddr       string
	StatusCacheTTL  time.Duration
	ProviderTimeout time.Duration
	FormsFile       string
	DocumentsDir    string
	GoogleCredsFile string
	TwilioAuthToken string
	PublicURL       string
	AdminToken      string
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	audioDir       *string
	apiAddr        *string
	openaiKey      *string
	intentProvider *string
	sttProvider    *string
	smsProvider    *string
	formsFile      *string
	documentsDir   *string
}

// initializeLogger sets up structured logging, at debug level unless
// RELIEFPIPE_DEBUG is turned off.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("RELIEFPIPE_DEBUG", true) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:        util.GetEnv("RELIEFPIPE_STATE_DIR", DefaultStateDir),
		DatabaseURL:     util.GetEnv("DATABASE_URL", ""),
		AudioDir:        util.GetEnv("AUDIO_DIR", audio.DefaultDir),
		APIAddr:         util.GetEnv("API_ADDR", api.DefaultAddr),
		OpenAIKey:       util.GetEnv("OPENAI_API_KEY", ""),
		IntentProvider:  util.GetEnv("INTENT_PROVIDER", IntentProviderRasa),
		RasaModelPath:   util.GetEnv("RASA_MODEL_PATH", ""),
		STTProvider:     util.GetEnv("STT_PROVIDER", STTProviderGoogle),
		SMSProvider:     util.GetEnv("SMS_PROVIDER", SMSProviderTwilio),
		AWSRegion:       util.GetEnv("AWS_REGION", ""),
		RedisAddr:       util.GetEnv("REDIS_ADDR", ""),
		StatusCacheTTL:  util.ParseDurationEnv("STATUS_CACHE_TTL", fema.DefaultCacheTTL),
		ProviderTimeout: util.ParseDurationEnv("PROVIDER_TIMEOUT", flow.DefaultProviderTimeout),
		FormsFile:       util.GetEnv("FORMS_FILE", ""),
		DocumentsDir:    util.GetEnv("DOCUMENTS_DIR", forms.DefaultDocumentsDir),
		GoogleCredsFile: util.GetEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		TwilioAuthToken: util.GetEnv("TWILIO_AUTH_TOKEN", ""),
		PublicURL:       util.GetEnv("PUBLIC_URL", ""),
		AdminToken:      util.GetEnv("ADMIN_TOKEN", ""),
	}

	// Default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"RELIEFPIPE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"AUDIO_DIR", config.AudioDir,
		"API_ADDR", config.APIAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"INTENT_PROVIDER", config.IntentProvider,
		"STT_PROVIDER", config.STTProvider,
		"SMS_PROVIDER", config.SMSProvider,
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"PROVIDER_TIMEOUT", config.ProviderTimeout,
		"FORMS_FILE", config.FormsFile,
		"DOCUMENTS_DIR", config.DocumentsDir,
		"TWILIO_AUTH_TOKEN_SET", config.TwilioAuthToken != "",
		"PUBLIC_URL", config.PublicURL,
		"ADMIN_TOKEN_SET", config.AdminToken != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		stateDir:       fs.String("state-dir", config.StateDir, "state directory for ReliefPipe data (overrides $RELIEFPIPE_STATE_DIR)"),
		dbDSN:          fs.String("db-dsn", config.DatabaseURL, "turn log DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		audioDir:       fs.String("audio-dir", config.AudioDir, "directory for synthesized reply audio (overrides $AUDIO_DIR)"),
		apiAddr:        fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		openaiKey:      fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		intentProvider: fs.String("intent-provider", config.IntentProvider, "intent classifier: rasa or openai (overrides $INTENT_PROVIDER)"),
		sttProvider:    fs.String("stt-provider", config.STTProvider, "speech-to-text provider: google or whisper (overrides $STT_PROVIDER)"),
		smsProvider:    fs.String("sms-provider", config.SMSProvider, "SMS transport: twilio or sns (overrides $SMS_PROVIDER)"),
		formsFile:      fs.String("forms-file", config.FormsFile, "YAML form registry (overrides $FORMS_FILE)"),
		documentsDir:   fs.String("documents-dir", config.DocumentsDir, "directory submitted documents are read from (overrides $DOCUMENTS_DIR)"),
	}

	if err := fs.Parse(args); err != nil {
		slog.Warn("failed to parse flags, using environment values", "error", err)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"audioDir", *flags.audioDir,
		"apiAddr", *flags.apiAddr,
		"openaiKeySet", *flags.openaiKey != "",
		"intentProvider", *flags.intentProvider,
		"sttProvider", *flags.sttProvider,
		"smsProvider", *flags.smsProvider)

	// Follow a state directory override when the DSN is still the default path
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// applyFlags copies parsed flag values back into config.
func applyFlags(config *Config, flags Flags) {
	config.StateDir = *flags.stateDir
	config.DatabaseURL = *flags.dbDSN
	config.AudioDir = *flags.audioDir
	config.APIAddr = *flags.apiAddr
	config.OpenAIKey = *flags.openaiKey
	config.IntentProvider = *flags.intentProvider
	config.STTProvider = *flags.sttProvider
	config.SMSProvider = *flags.smsProvider
	config.FormsFile = *flags.formsFile
	config.DocumentsDir = *flags.documentsDir
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(dsn string) []store.Option {
	if dsn == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

// buildStore opens the turn log selected by the configured DSN.
func buildStore(config Config) (store.Store, error) {
	opts := buildStoreOptions(config.DatabaseURL)
	if len(opts) == 0 {
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(config.DatabaseURL) == "postgres" {
		return store.NewPostgresStore(opts...)
	}
	return store.NewSQLiteStore(opts...)
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, turnLog api.TurnLog) []api.Option {
	apiOpts := []api.Option{
		api.WithTurnLog(turnLog),
		api.WithProviderTimeout(config.ProviderTimeout),
	}
	if config.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(config.APIAddr))
	}
	if config.TwilioAuthToken != "" {
		apiOpts = append(apiOpts, api.WithTwilioAuthToken(config.TwilioAuthToken))
	} else {
		slog.Warn("TWILIO_AUTH_TOKEN not set, webhook signatures are not verified")
	}
	if config.PublicURL != "" {
		apiOpts = append(apiOpts, api.WithPublicURL(config.PublicURL))
	}
	if config.AdminToken != "" {
		apiOpts = append(apiOpts, api.WithAdminToken(config.AdminToken))
	} else {
		slog.Warn("ADMIN_TOKEN not set, /turns and /receipts are unauthenticated")
	}
	return apiOpts
}
