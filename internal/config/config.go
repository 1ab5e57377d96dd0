// Package config loads application configuration from environment variables
// and tenant provider settings from a YAML file.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath        string
	SecretKey     []byte // nil when VENDORBRIDGE_SECRET_KEY is unset.
	ProvidersFile string
	HTTPTimeout   time.Duration
	ProviderTTL   time.Duration // 0 keeps provider instances until invalidated.
	LogLevel      slog.Level
	MetricsAddr   string
}

// HasSecretKey reports whether credential storage is available.
func (c *Config) HasSecretKey() bool {
	return c.SecretKey != nil
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional: VENDORBRIDGE_DB_PATH (vendorbridge.db),
// VENDORBRIDGE_SECRET_KEY (64 hex chars), VENDORBRIDGE_PROVIDERS_FILE,
// VENDORBRIDGE_HTTP_TIMEOUT (30s), VENDORBRIDGE_PROVIDER_TTL (0),
// VENDORBRIDGE_LOG_LEVEL (info) and VENDORBRIDGE_METRICS_ADDR.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:      "vendorbridge.db",
		HTTPTimeout: 30 * time.Second,
		LogLevel:    slog.LevelInfo,
	}

	if v, ok := os.LookupEnv("VENDORBRIDGE_DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("VENDORBRIDGE_SECRET_KEY"); ok && v != "" {
		key, err := hex.DecodeString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("VENDORBRIDGE_SECRET_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("VENDORBRIDGE_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.SecretKey = key
	}

	cfg.ProvidersFile = os.Getenv("VENDORBRIDGE_PROVIDERS_FILE")

	var err error
	if cfg.HTTPTimeout, err = durationEnv("VENDORBRIDGE_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("VENDORBRIDGE_HTTP_TIMEOUT must be positive, got %s", cfg.HTTPTimeout)
	}
	if cfg.ProviderTTL, err = durationEnv("VENDORBRIDGE_PROVIDER_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.ProviderTTL < 0 {
		return nil, fmt.Errorf("VENDORBRIDGE_PROVIDER_TTL must not be negative, got %s", cfg.ProviderTTL)
	}

	if v, ok := os.LookupEnv("VENDORBRIDGE_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("VENDORBRIDGE_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	cfg.MetricsAddr = os.Getenv("VENDORBRIDGE_METRICS_ADDR")

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return d, nil
}
