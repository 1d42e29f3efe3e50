package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv removes every LIGHTDASH_* variable so tests start clean.
func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"LIGHTDASH_URL", "LIGHTDASH_API_KEY", "LIGHTDASH_PROJECT_UUID",
		"LIGHTDASH_TIMEOUT", "LIGHTDASH_MAX_ATTEMPTS",
		"LIGHTDASH_RETRY_BASE_DELAY", "LIGHTDASH_RETRY_MAX_DELAY",
		"LIGHTDASH_SCHEMA_TTL", "LIGHTDASH_LISTING_TTL", "LIGHTDASH_SEARCH_TTL",
		"LIGHTDASH_SESSION_IDLE_TIMEOUT", "LIGHTDASH_MAX_SESSIONS",
		"LIGHTDASH_SESSION_SWEEP_INTERVAL",
		"LIGHTDASH_RATE_LIMIT", "LIGHTDASH_RATE_LIMIT_BURST",
		"LIGHTDASH_ENABLE_RATE_LIMIT", "LIGHTDASH_TLS_VERIFY",
		"LIGHTDASH_ENABLE_TRACING", "LIGHTDASH_ENABLE_AUDIT_LOG",
		"LIGHTDASH_METRICS_ENDPOINT", "LIGHTDASH_HEALTH_PORT",
		"LIGHTDASH_HEALTH_BIND_ADDR", "LIGHTDASH_SHUTDOWN_TIMEOUT",
		"CONFIG_FILE", "LOG_LEVEL", "LOG_FORMAT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.SchemaTTL != 30*time.Minute {
		t.Errorf("SchemaTTL = %v, want 30m", cfg.SchemaTTL)
	}
	if cfg.SearchTTL != 3*time.Minute {
		t.Errorf("SearchTTL = %v, want 3m", cfg.SearchTTL)
	}
	if cfg.SessionIdleTimeout != 15*time.Minute {
		t.Errorf("SessionIdleTimeout = %v, want 15m", cfg.SessionIdleTimeout)
	}
	if cfg.MaxSessions != 64 {
		t.Errorf("MaxSessions = %d, want 64", cfg.MaxSessions)
	}
	if !cfg.TLSVerify {
		t.Error("TLSVerify should default to true")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LIGHTDASH_URL", "https://analytics.example.com/")
	t.Setenv("LIGHTDASH_API_KEY", "ldpat_test_0123456789")
	t.Setenv("LIGHTDASH_PROJECT_UUID", "3675b69e-8324-4110-bdca-059031aa8da3")
	t.Setenv("LIGHTDASH_TIMEOUT", "45s")
	t.Setenv("LIGHTDASH_MAX_ATTEMPTS", "5")
	t.Setenv("LIGHTDASH_SCHEMA_TTL", "1h")
	t.Setenv("LIGHTDASH_MAX_SESSIONS", "8")
	t.Setenv("LIGHTDASH_ENABLE_RATE_LIMIT", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ServiceURL != "https://analytics.example.com" {
		t.Errorf("ServiceURL = %q, want trailing slash trimmed", cfg.ServiceURL)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Timeout)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.SchemaTTL != time.Hour {
		t.Errorf("SchemaTTL = %v, want 1h", cfg.SchemaTTL)
	}
	if cfg.MaxSessions != 8 {
		t.Errorf("MaxSessions = %d, want 8", cfg.MaxSessions)
	}
	if cfg.EnableRateLimit {
		t.Error("EnableRateLimit should be false")
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"service_url":"https://file.example.com","max_attempts":7,"log_level":"debug"}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LIGHTDASH_URL", "https://env.example.com")
	t.Setenv("LIGHTDASH_API_KEY", "ldpat_test_0123456789")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ServiceURL != "https://env.example.com" {
		t.Errorf("env should override file, got %q", cfg.ServiceURL)
	}
	if cfg.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7 from file", cfg.MaxAttempts)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug from file", cfg.LogLevel)
	}
}

func TestLoadRejectsTraversalPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", "../../etc/passwd")

	if _, err := Load(); err == nil {
		t.Error("expected error for traversal config path")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, _ := Load()
		cfg.ServiceURL = "https://analytics.example.com"
		cfg.APIKey = "ldpat_test_0123456789"
		return cfg
	}
	clearEnv(t)

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.ServiceURL = "" }},
		{"non-http url", func(c *Config) { c.ServiceURL = "ftp://x" }},
		{"missing api key", func(c *Config) { c.APIKey = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"max delay below base", func(c *Config) { c.RetryMaxDelay = c.RetryBaseDelay / 2 }},
		{"zero idle timeout", func(c *Config) { c.SessionIdleTimeout = 0 }},
		{"zero max sessions", func(c *Config) { c.MaxSessions = 0 }},
		{"rate limit zero while enabled", func(c *Config) { c.RateLimit = 0; c.EnableRateLimit = true }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRedact(t *testing.T) {
	clearEnv(t)
	cfg, _ := Load()
	cfg.APIKey = "ldpat_supersecretvalue"

	redacted := cfg.Redact()
	if redacted.APIKey == cfg.APIKey {
		t.Error("Redact must mask the API key")
	}
	if cfg.APIKey != "ldpat_supersecretvalue" {
		t.Error("Redact must not mutate the original")
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "" {
		t.Errorf("MaskAPIKey(\"\") = %q", got)
	}
	if got := MaskAPIKey("short"); got != "***" {
		t.Errorf("MaskAPIKey(short) = %q, want ***", got)
	}
	got := MaskAPIKey("ldpat_0123456789abcdef")
	if got != "ldpa...cdef" {
		t.Errorf("MaskAPIKey = %q, want ldpa...cdef", got)
	}
}
