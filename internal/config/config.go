// Package config loads sessionctl configuration from sessioncore.json,
// with environment overrides (optionally via a .env file).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	// FileName is the name of the configuration file.
	FileName = "sessioncore.json"

	// DefaultBaseURL is the identity provider the CLI talks to when
	// nothing else is configured.
	DefaultBaseURL = "http://localhost:8788"

	// DefaultCacheBackend is the persisted cache backend.
	DefaultCacheBackend = "file"

	// DefaultTimeout bounds refresh and verification calls.
	DefaultTimeout = 10 * time.Second
)

// Config is the complete sessioncore.json configuration.
type Config struct {
	// BaseURL is the identity provider's base URL.
	BaseURL string `json:"base_url,omitempty"`

	// Cache selects the persisted cache backend: "memory", "file" or
	// "sqlite".
	Cache string `json:"cache,omitempty"`

	// CachePath is the directory (file backend) or database path (sqlite
	// backend) for the persisted cache.
	CachePath string `json:"cache_path,omitempty"`

	// CacheTTL bounds how long a cached user is trusted, e.g. "24h".
	// Empty means indefinitely.
	CacheTTL string `json:"cache_ttl,omitempty"`

	// Timeout bounds refresh and verification calls, e.g. "10s".
	Timeout string `json:"timeout,omitempty"`
}

// Load reads the config file at path (FileName in the working directory
// when path is empty), applies environment overrides, and fills defaults.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	// A .env alongside the process is picked up when present; absence is
	// fine.
	_ = godotenv.Load()

	if path == "" {
		path = FileName
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if _, err := cfg.ParseTimeout(); err != nil {
		return nil, err
	}
	if _, err := cfg.ParseCacheTTL(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SESSIONCORE_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("SESSIONCORE_CACHE"); v != "" {
		cfg.Cache = v
	}
	if v := os.Getenv("SESSIONCORE_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("SESSIONCORE_CACHE_TTL"); v != "" {
		cfg.CacheTTL = v
	}
	if v := os.Getenv("SESSIONCORE_TIMEOUT"); v != "" {
		cfg.Timeout = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Cache == "" {
		cfg.Cache = DefaultCacheBackend
	}
	if cfg.CachePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.CachePath = home + "/.sessioncore"
	}
}

// ParseTimeout returns the configured timeout, or the default.
func (c *Config) ParseTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: invalid timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// ParseCacheTTL returns the configured cache TTL; zero means the cached
// user is trusted indefinitely.
func (c *Config) ParseCacheTTL() (time.Duration, error) {
	if c.CacheTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("config: invalid cache_ttl %q: %w", c.CacheTTL, err)
	}
	return d, nil
}
