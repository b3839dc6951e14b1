package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Auth modes.
const (
	AuthSignature = "signature"
	AuthTrusted   = "trusted"
)

// Ledger backends.
const (
	LedgerMemory = "memory"
	LedgerPebble = "pebble"
)

// Config holds all runtime configuration for the order book service.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	BookDepth       int
	AuthMode        string
	NonceWindow     time.Duration
	LedgerBackend   string
	LedgerPath      string
	KafkaBrokers    []string
	KafkaTopic      string
	PublishTimeout  time.Duration
	CORSOrigins     []string
}

var defaults = map[string]any{
	"PORT":              8080,
	"LOG_LEVEL":         "info",
	"READ_TIMEOUT":      "5s",
	"WRITE_TIMEOUT":     "10s",
	"IDLE_TIMEOUT":      "60s",
	"SHUTDOWN_TIMEOUT":  "10s",
	"BOOK_DEPTH":        10,
	"AUTH_MODE":         AuthSignature,
	"AUTH_NONCE_WINDOW": "5m",
	"LEDGER_BACKEND":    LedgerMemory,
	"LEDGER_PATH":       "data/ledger",
	"KAFKA_BROKERS":     "",
	"KAFKA_TOPIC":       "clob.events",
	"PUBLISH_TIMEOUT":   "5s",
	"CORS_ORIGINS":      "*",
}

// Load reads configuration from environment variables and, when
// CLOB_CONFIG names a file, from that file; the environment wins. It
// applies defaults and validates values, returning an error for any
// invalid value.
func Load() (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if path := os.Getenv("CLOB_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	port, err := cast.ToIntE(v.Get("PORT"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", port)
	}

	logLevel := v.GetString("LOG_LEVEL")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	cfg := &Config{
		Port:       port,
		LogLevel:   logLevel,
		LedgerPath: v.GetString("LEDGER_PATH"),
		KafkaTopic: v.GetString("KAFKA_TOPIC"),
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"READ_TIMEOUT", &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"IDLE_TIMEOUT", &cfg.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"PUBLISH_TIMEOUT", &cfg.PublishTimeout},
		{"AUTH_NONCE_WINDOW", &cfg.NonceWindow},
	} {
		if *d.dst, err = getDuration(v, d.key); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	cfg.BookDepth, err = cast.ToIntE(v.Get("BOOK_DEPTH"))
	if err != nil {
		return nil, fmt.Errorf("invalid BOOK_DEPTH: %w", err)
	}
	if cfg.BookDepth < 1 {
		return nil, fmt.Errorf("invalid BOOK_DEPTH: %d, must be at least 1", cfg.BookDepth)
	}

	cfg.AuthMode = v.GetString("AUTH_MODE")
	if cfg.AuthMode != AuthSignature && cfg.AuthMode != AuthTrusted {
		return nil, fmt.Errorf("invalid AUTH_MODE: %q, must be one of: signature, trusted", cfg.AuthMode)
	}

	if cfg.NonceWindow <= 0 {
		return nil, fmt.Errorf("invalid AUTH_NONCE_WINDOW: %s, must be positive", cfg.NonceWindow)
	}

	cfg.LedgerBackend = v.GetString("LEDGER_BACKEND")
	if cfg.LedgerBackend != LedgerMemory && cfg.LedgerBackend != LedgerPebble {
		return nil, fmt.Errorf("invalid LEDGER_BACKEND: %q, must be one of: memory, pebble", cfg.LedgerBackend)
	}
	if cfg.LedgerBackend == LedgerPebble && cfg.LedgerPath == "" {
		return nil, fmt.Errorf("invalid LEDGER_PATH: required for the pebble ledger")
	}

	cfg.KafkaBrokers = getList(v, "KAFKA_BROKERS")
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("invalid KAFKA_TOPIC: required when KAFKA_BROKERS is set")
	}
	cfg.CORSOrigins = getList(v, "CORS_ORIGINS")

	return cfg, nil
}

// getDuration accepts Go duration strings only; a bare number is
// rejected instead of being read as nanoseconds.
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		return time.ParseDuration(strings.TrimSpace(s))
	}
	return cast.ToDurationE(raw)
}

// getList reads a comma-separated value or a list from a config file.
func getList(v *viper.Viper, key string) []string {
	raw := v.Get(key)
	var parts []string
	if s, ok := raw.(string); ok {
		parts = strings.Split(s, ",")
	} else {
		parts = cast.ToStringSlice(raw)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
