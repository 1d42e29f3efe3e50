// Package config provides configuration management for the Lightdash MCP server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all configuration for the MCP server.
type Config struct {
	// Lightdash instance configuration
	ServiceURL  string `json:"service_url"`
	APIKey      string `json:"api_key,omitempty"` // Not stored in files, from env only
	ProjectUUID string `json:"project_uuid,omitempty"`

	// HTTP client configuration
	Timeout         time.Duration `json:"timeout"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	IdleConnTimeout time.Duration `json:"idle_conn_timeout"`

	// Retry policy. MaxAttempts counts the first try: 3 means at most two
	// retries after the initial attempt.
	MaxAttempts    int           `json:"max_attempts"`
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
	RetryMaxDelay  time.Duration `json:"retry_max_delay"`

	// Cache TTLs per operation class
	SchemaTTL  time.Duration `json:"schema_ttl"`
	ListingTTL time.Duration `json:"listing_ttl"`
	SearchTTL  time.Duration `json:"search_ttl"`

	// Session policy
	SessionIdleTimeout   time.Duration `json:"session_idle_timeout"`
	MaxSessions          int           `json:"max_sessions"`
	SessionSweepInterval time.Duration `json:"session_sweep_interval"`

	// Rate limiting toward Lightdash
	RateLimit       int  `json:"rate_limit"` // requests per second
	RateLimitBurst  int  `json:"rate_limit_burst"`
	EnableRateLimit bool `json:"enable_rate_limit"`

	// Security
	TLSVerify bool `json:"tls_verify"`

	// Observability
	EnableTracing   bool   `json:"enable_tracing"`
	EnableAuditLog  bool   `json:"enable_audit_log"`
	MetricsEndpoint bool   `json:"metrics_endpoint"`
	HealthPort      int    `json:"health_port"`
	HealthBindAddr  string `json:"health_bind_addr"`

	// Shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // json or console
}

// Load configuration from environment variables and an optional config file.
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		Timeout:         30 * time.Second,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,

		MaxAttempts:    3,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  8 * time.Second,

		SchemaTTL:  30 * time.Minute,
		ListingTTL: 5 * time.Minute,
		SearchTTL:  3 * time.Minute,

		SessionIdleTimeout:   15 * time.Minute,
		MaxSessions:          64,
		SessionSweepInterval: time.Minute,

		RateLimit:       20,
		RateLimitBurst:  10,
		EnableRateLimit: true,

		TLSVerify: true,

		EnableTracing:   false,
		EnableAuditLog:  true,
		MetricsEndpoint: false,
		HealthBindAddr:  "127.0.0.1",

		ShutdownTimeout: 10 * time.Second,

		LogLevel:  "info",
		LogFormat: "json",
	}

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Environment variables take precedence over the config file.
	loadFromEnv(cfg)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	cleanPath := filepath.Clean(path)

	// Reject traversal components before touching the filesystem.
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid file path: path traversal detected")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is validated above
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return json.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("LIGHTDASH_URL"); v != "" {
		cfg.ServiceURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("LIGHTDASH_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("LIGHTDASH_PROJECT_UUID"); v != "" {
		cfg.ProjectUUID = v
	}

	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			var n int
			if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	setDuration("LIGHTDASH_TIMEOUT", &cfg.Timeout)
	setInt("LIGHTDASH_MAX_ATTEMPTS", &cfg.MaxAttempts)
	setDuration("LIGHTDASH_RETRY_BASE_DELAY", &cfg.RetryBaseDelay)
	setDuration("LIGHTDASH_RETRY_MAX_DELAY", &cfg.RetryMaxDelay)

	setDuration("LIGHTDASH_SCHEMA_TTL", &cfg.SchemaTTL)
	setDuration("LIGHTDASH_LISTING_TTL", &cfg.ListingTTL)
	setDuration("LIGHTDASH_SEARCH_TTL", &cfg.SearchTTL)

	setDuration("LIGHTDASH_SESSION_IDLE_TIMEOUT", &cfg.SessionIdleTimeout)
	setInt("LIGHTDASH_MAX_SESSIONS", &cfg.MaxSessions)
	setDuration("LIGHTDASH_SESSION_SWEEP_INTERVAL", &cfg.SessionSweepInterval)

	setInt("LIGHTDASH_RATE_LIMIT", &cfg.RateLimit)
	setInt("LIGHTDASH_RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	setBool("LIGHTDASH_ENABLE_RATE_LIMIT", &cfg.EnableRateLimit)

	setBool("LIGHTDASH_TLS_VERIFY", &cfg.TLSVerify)

	setBool("LIGHTDASH_ENABLE_TRACING", &cfg.EnableTracing)
	setBool("LIGHTDASH_ENABLE_AUDIT_LOG", &cfg.EnableAuditLog)
	setBool("LIGHTDASH_METRICS_ENDPOINT", &cfg.MetricsEndpoint)
	setInt("LIGHTDASH_HEALTH_PORT", &cfg.HealthPort)
	if v := os.Getenv("LIGHTDASH_HEALTH_BIND_ADDR"); v != "" {
		cfg.HealthBindAddr = v
	}

	setDuration("LIGHTDASH_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceURL == "" {
		return errors.New("LIGHTDASH_URL is required")
	}
	if !strings.HasPrefix(c.ServiceURL, "http://") && !strings.HasPrefix(c.ServiceURL, "https://") {
		return fmt.Errorf("LIGHTDASH_URL must be an http(s) URL, got %q", c.ServiceURL)
	}
	if c.APIKey == "" {
		return errors.New("LIGHTDASH_API_KEY is required")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.MaxAttempts < 1 {
		return errors.New("max_attempts must be at least 1")
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return errors.New("retry delays must satisfy 0 < base <= max")
	}
	if c.SessionIdleTimeout <= 0 {
		return errors.New("session_idle_timeout must be positive")
	}
	if c.MaxSessions < 1 {
		return errors.New("max_sessions must be at least 1")
	}
	if c.RateLimit <= 0 && c.EnableRateLimit {
		return errors.New("rate_limit must be positive when rate limiting is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}

// Redact returns a copy of the config with sensitive data masked.
func (c *Config) Redact() *Config {
	redacted := *c
	redacted.APIKey = MaskAPIKey(redacted.APIKey)
	return &redacted
}

// MaskAPIKey returns a masked version of an API key for safe logging.
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return "***"
	}
	return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
}
