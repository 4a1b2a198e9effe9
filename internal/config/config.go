package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultListenAddr   = ":8080"
	defaultBackendURL   = "http://localhost:5042"
	defaultPollInterval = 5 * time.Second

	envListenAddr     = "DSS_LISTEN_ADDR"
	envBackendURL     = "DSS_BACKEND_URL"
	envLogLevel       = "DSS_LOG_LEVEL"
	envPollInterval   = "DSS_POLL_INTERVAL"
	envRequestTimeout = "DSS_REQUEST_TIMEOUT"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr   string
	BackendURL   string
	LogLevel     slog.Level
	PollInterval time.Duration
	// RequestTimeout bounds a single backend call. Zero means no timeout.
	RequestTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:   defaultListenAddr,
		BackendURL:   defaultBackendURL,
		LogLevel:     slog.LevelInfo,
		PollInterval: defaultPollInterval,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envBackendURL); v != "" {
		cfg.BackendURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
	if v := os.Getenv(envPollInterval); v != "" {
		cfg.PollInterval = parseDuration(v, defaultPollInterval)
	}
	if v := os.Getenv(envRequestTimeout); v != "" {
		cfg.RequestTimeout = parseDuration(v, 0)
	}

	return cfg
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
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

// parseDuration accepts Go duration strings ("5s") or a bare number of
// milliseconds ("5000"). Invalid or negative values yield fallback.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return fallback
		}
		return d
	}
	if d, err := time.ParseDuration(s + "ms"); err == nil && d >= 0 {
		return d
	}
	return fallback
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
