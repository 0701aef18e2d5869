package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
	// Mode selects the surfaces to run: http, mcp or both.
	Mode string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string
	Retention int
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// AIConfig holds credentials and tuning for the AI providers. A provider
// with no key (or no URL for Ollama) is left out of the chain, and
// ProviderOrder ranks the rest by name.
type AIConfig struct {
	OpenAIKey       string
	OpenAIBaseURL   string
	OpenAIModel     string
	ImageModel      string
	AnthropicKey    string
	AnthropicModel  string
	OllamaURL       string
	OllamaModel     string
	ProviderOrder   []string
	Images          bool
	CacheTTL        time.Duration
	ProviderCooloff time.Duration
	PaceMin         time.Duration
	PaceMax         time.Duration
}

// PublishConfig holds settings for the due-post publisher and its posters.
type PublishConfig struct {
	Enabled        bool
	Interval       time.Duration
	BatchSize      int
	MaxAttempts    int
	DryRun         bool
	TelegramToken  string
	TelegramChatID int64
	WebhookURL     string
	WebhookToken   string
	WebhookRetries int
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Notification NotificationConfig
	AI           AIConfig
	Publish      PublishConfig

	StateDir      string
	UseUTC        bool
	ShutdownGrace time.Duration
	// TablesFile optionally overrides the scheduling heuristics.
	TablesFile string
}

const (
	defaultAddr           = "0.0.0.0:7070"
	defaultLogLevel       = "info"
	defaultRunKeep        = 20
	defaultShutdownGrace  = 10 * time.Second
	defaultPublishEvery   = 60 * time.Second
	defaultPublishBatch   = 10
	defaultMaxAttempts    = 10
	defaultCacheTTL       = 10 * time.Minute
	defaultCooloff        = 5 * time.Minute
	defaultPaceMin        = 500 * time.Millisecond
	defaultPaceMax        = time.Second
	defaultWebhookRetries = 3
	defaultProviderOrder  = "openai,anthropic,ollama"
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// splitList parses a comma-separated list, lowercasing and dropping blanks.
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	return parse(flag.CommandLine, os.Args[1:])
}

func parse(fs *flag.FlagSet, args []string) (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "postpilot", ".env"))
	}
	for _, f := range envFiles {
		// Missing files are fine; Load never overrides variables already set.
		_ = godotenv.Load(f)
	}

	cfg := fromEnv()

	var addr, logLevel, stateDir, mode, tablesFile, providers string
	var runKeep, maxAttempts int
	var useUTC, dryRun bool
	var shutdownGrace, publishEvery time.Duration

	fs.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	fs.StringVar(&stateDir, "state-dir", "", "Directory to store the database")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&mode, "mode", "", "Surfaces to run: http, mcp or both")
	fs.StringVar(&tablesFile, "tables", "", "YAML/JSON file overriding scheduling tables")
	fs.StringVar(&providers, "ai-providers", "", "Comma-separated text provider order (openai, anthropic, ollama)")
	fs.BoolVar(&useUTC, "use-utc", false, "Schedule posts and plans in UTC instead of local time")
	fs.BoolVar(&dryRun, "dry-run", false, "Log posts instead of sending them")
	fs.IntVar(&runKeep, "run-keep", 0, "Number of finished runs to retain per plan")
	fs.IntVar(&maxAttempts, "max-attempts", 0, "Failed publishes before a post is abandoned (0 retries forever)")
	fs.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")
	fs.DurationVar(&publishEvery, "publish-interval", 0, "How often due posts are published")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if mode != "" {
		cfg.Server.Mode = mode
	}
	if runKeep > 0 {
		cfg.Log.Retention = runKeep
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if tablesFile != "" {
		cfg.TablesFile = tablesFile
	}
	if publishEvery > 0 {
		cfg.Publish.Interval = publishEvery
	}
	if providers != "" {
		cfg.AI.ProviderOrder = splitList(providers)
	}
	// Bool flags and zero-valued ints only count when explicitly set.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "use-utc":
			cfg.UseUTC = useUTC
		case "dry-run":
			cfg.Publish.DryRun = dryRun
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		case "max-attempts":
			cfg.Publish.MaxAttempts = maxAttempts
		}
	})

	switch cfg.Server.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q (want http, mcp or both)", cfg.Server.Mode)
	}

	for _, name := range cfg.AI.ProviderOrder {
		switch name {
		case "openai", "anthropic", "ollama":
		default:
			return nil, fmt.Errorf("unknown AI provider %q (want openai, anthropic or ollama)", name)
		}
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.Log.Retention < 1 {
		cfg.Log.Retention = defaultRunKeep
	}
	if cfg.Publish.MaxAttempts < 0 {
		cfg.Publish.MaxAttempts = 0
	}
	if cfg.AI.PaceMax < cfg.AI.PaceMin {
		cfg.AI.PaceMax = cfg.AI.PaceMin
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      getEnvString("POSTPILOT_ADDR", defaultAddr),
			AuthToken: getEnvString("POSTPILOT_AUTH_TOKEN", ""),
			Mode:      getEnvString("POSTPILOT_MODE", "http"),
		},
		Log: LogConfig{
			Level:     getEnvString("POSTPILOT_LOG_LEVEL", defaultLogLevel),
			Retention: getEnvInt("POSTPILOT_RUN_KEEP", defaultRunKeep),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("POSTPILOT_BARK_URL", ""),
				Enabled: getEnvBool("POSTPILOT_BARK_ENABLED", false),
			},
		},
		AI: AIConfig{
			OpenAIKey:       getEnvString("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getEnvString("OPENAI_BASE_URL", ""),
			OpenAIModel:     getEnvString("POSTPILOT_OPENAI_MODEL", ""),
			ImageModel:      getEnvString("POSTPILOT_IMAGE_MODEL", ""),
			AnthropicKey:    getEnvString("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnvString("POSTPILOT_ANTHROPIC_MODEL", ""),
			OllamaURL:       getEnvString("OLLAMA_URL", ""),
			OllamaModel:     getEnvString("POSTPILOT_OLLAMA_MODEL", ""),
			ProviderOrder:   splitList(getEnvString("POSTPILOT_AI_PROVIDERS", defaultProviderOrder)),
			Images:          getEnvBool("POSTPILOT_IMAGES", true),
			CacheTTL:        getEnvDuration("POSTPILOT_AI_CACHE_TTL", defaultCacheTTL),
			ProviderCooloff: getEnvDuration("POSTPILOT_PROVIDER_COOLOFF", defaultCooloff),
			PaceMin:         getEnvDuration("POSTPILOT_PACE_MIN", defaultPaceMin),
			PaceMax:         getEnvDuration("POSTPILOT_PACE_MAX", defaultPaceMax),
		},
		Publish: PublishConfig{
			Enabled:        getEnvBool("POSTPILOT_PUBLISH_ENABLED", true),
			Interval:       getEnvDuration("POSTPILOT_PUBLISH_INTERVAL", defaultPublishEvery),
			BatchSize:      getEnvInt("POSTPILOT_PUBLISH_BATCH", defaultPublishBatch),
			MaxAttempts:    getEnvInt("POSTPILOT_MAX_ATTEMPTS", defaultMaxAttempts),
			DryRun:         getEnvBool("POSTPILOT_DRY_RUN", false),
			TelegramToken:  getEnvString("POSTPILOT_TELEGRAM_TOKEN", ""),
			TelegramChatID: getEnvInt64("POSTPILOT_TELEGRAM_CHAT_ID", 0),
			WebhookURL:     getEnvString("POSTPILOT_WEBHOOK_URL", ""),
			WebhookToken:   getEnvString("POSTPILOT_WEBHOOK_TOKEN", ""),
			WebhookRetries: getEnvInt("POSTPILOT_WEBHOOK_RETRIES", defaultWebhookRetries),
		},
		StateDir:      getEnvString("POSTPILOT_STATE_DIR", ""),
		UseUTC:        getEnvBool("POSTPILOT_USE_UTC", false),
		ShutdownGrace: getEnvDuration("POSTPILOT_SHUTDOWN_GRACE", defaultShutdownGrace),
		TablesFile:    getEnvString("POSTPILOT_TABLES_FILE", ""),
	}
}

// Location is the zone posts and plan crons are evaluated in.
func (c *Config) Location() *time.Location {
	if c.UseUTC {
		return time.UTC
	}
	return time.Local
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "postpilot")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
