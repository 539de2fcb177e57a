package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr        = ":8080"
	defaultDBPath            = "taskforge.db"
	defaultProviderTimeout   = 120 * time.Second
	defaultHeartbeatInterval = 25 * time.Second
	defaultReclaimGrace      = 2 * time.Second
	defaultPersistWorkers    = 4

	defaultGeminiModel    = "gemini-2.5-flash"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"

	envListenAddr        = "TASKFORGE_LISTEN_ADDR"
	envDBPath            = "TASKFORGE_DB_PATH"
	envLogLevel          = "TASKFORGE_LOG_LEVEL"
	envProviderTimeout   = "TASKFORGE_PROVIDER_TIMEOUT"
	envHeartbeatInterval = "TASKFORGE_HEARTBEAT_INTERVAL"
	envReclaimGrace      = "TASKFORGE_RECLAIM_GRACE"
	envPersistWorkers    = "TASKFORGE_PERSIST_WORKERS"

	envGeminiAPIKey    = "GEMINI_API_KEY"
	envGeminiModel     = "GEMINI_MODEL"
	envGeminiBaseURL   = "GEMINI_BASE_URL"
	envOpenAIAPIKey    = "OPENAI_API_KEY"
	envOpenAIModel     = "OPENAI_MODEL"
	envOpenAIBaseURL   = "OPENAI_BASE_URL"
	envHFToken         = "HF_API_TOKEN"
	envHFModel         = "HF_MODEL"
	envHFBaseURL       = "HF_BASE_URL"
	envAnthropicAPIKey = "ANTHROPIC_API_KEY"
	envAnthropicModel  = "ANTHROPIC_MODEL"
)

// ProviderConfig holds the credentials and endpoint for one text-generation provider.
// An empty APIKey means the provider is not configured.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	ProviderTimeout   time.Duration
	HeartbeatInterval time.Duration
	ReclaimGrace      time.Duration
	PersistWorkers    int

	Gemini      ProviderConfig
	OpenAI      ProviderConfig
	HuggingFace ProviderConfig
	Anthropic   ProviderConfig
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:        defaultListenAddr,
		DBPath:            defaultDBPath,
		LogLevel:          slog.LevelInfo,
		ProviderTimeout:   defaultProviderTimeout,
		HeartbeatInterval: defaultHeartbeatInterval,
		ReclaimGrace:      defaultReclaimGrace,
		PersistWorkers:    defaultPersistWorkers,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.ProviderTimeout = parseDuration(os.Getenv(envProviderTimeout), cfg.ProviderTimeout)
	cfg.HeartbeatInterval = parseDuration(os.Getenv(envHeartbeatInterval), cfg.HeartbeatInterval)
	cfg.ReclaimGrace = parseDuration(os.Getenv(envReclaimGrace), cfg.ReclaimGrace)
	if v := os.Getenv(envPersistWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PersistWorkers = n
		}
	}

	cfg.Gemini = ProviderConfig{
		APIKey:  os.Getenv(envGeminiAPIKey),
		Model:   envOr(envGeminiModel, defaultGeminiModel),
		BaseURL: os.Getenv(envGeminiBaseURL),
	}
	cfg.OpenAI = ProviderConfig{
		APIKey:  os.Getenv(envOpenAIAPIKey),
		Model:   envOr(envOpenAIModel, defaultOpenAIModel),
		BaseURL: os.Getenv(envOpenAIBaseURL),
	}
	cfg.HuggingFace = ProviderConfig{
		APIKey:  os.Getenv(envHFToken),
		Model:   os.Getenv(envHFModel),
		BaseURL: os.Getenv(envHFBaseURL),
	}
	cfg.Anthropic = ProviderConfig{
		APIKey: os.Getenv(envAnthropicAPIKey),
		Model:  envOr(envAnthropicModel, defaultAnthropicModel),
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseDuration accepts Go duration strings ("90s") or a bare number of seconds.
// Invalid or non-positive values yield fallback.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
