// Package config loads runtime configuration for the translating proxy
// from the environment, following the same envOr/envInt/envDuration
// pattern the rest of the stack uses.
package config

import (
	"os"
	"strconv"
	"time"
)

type CompatMode string

const (
	CompatStrict   CompatMode = "strict"
	CompatBalanced CompatMode = "balanced"
	CompatRelaxed  CompatMode = "relaxed"
)

type Config struct {
	// Upstream
	Region          string
	KiroVersion     string
	UpstreamTimeout time.Duration
	ProxyURL        string

	// Shared-file synchronizer
	AccountsFilePath string
	SyncInterval     time.Duration
	SyncReadTimeout  time.Duration

	// Account pool
	SelectionPolicy string // round-robin | random | least-used
	CooldownWindow  time.Duration

	// Token refresher
	RefreshTimeout    time.Duration
	RefreshSafetyCap  time.Duration
	TokenSafetyMargin time.Duration

	// Degradation retry engine
	CompatMode CompatMode

	// Request translator
	MaxHistoryMessages  int
	MaxCurrentMessage   int
	DefaultThinkingCap  int
	ToolDescriptionCap  int
	SchemaDepthLimit    int
	SchemaArrayCap      int
	SchemaObjectCap     int

	// Security
	EncryptionKey string
	AdminToken    string

	LogLevel string
}

func Load() *Config {
	return &Config{
		Region:          envOr("KIRO_REGION", "us-east-1"),
		KiroVersion:     envOr("KIRO_VERSION", "0.3.21"),
		UpstreamTimeout: envDuration("UPSTREAM_TIMEOUT_MS", 0),
		ProxyURL:        os.Getenv("PROXY_URL"),

		AccountsFilePath: envOr("ACCOUNTS_FILE", "./accounts.json"),
		SyncInterval:     envDuration("SYNC_INTERVAL_MS", 5*time.Second),
		SyncReadTimeout:  envDuration("SYNC_READ_TIMEOUT_MS", 2*time.Second),

		SelectionPolicy: envOr("SELECTION_POLICY", "round-robin"),
		CooldownWindow:  envDuration("COOLDOWN_WINDOW_MS", 5*time.Minute),

		RefreshTimeout:    envDuration("REFRESH_TIMEOUT_MS", 30*time.Second),
		RefreshSafetyCap:  envDuration("REFRESH_SAFETY_CAP_MS", 12*time.Hour),
		TokenSafetyMargin: envDuration("TOKEN_SAFETY_MARGIN_MS", 60*time.Second),

		CompatMode: CompatMode(envOr("COMPAT_MODE", string(CompatBalanced))),

		MaxHistoryMessages: envInt("MAX_HISTORY_MESSAGES", 200),
		MaxCurrentMessage:  envInt("MAX_CURRENT_MESSAGE_CHARS", 12000),
		DefaultThinkingCap: envInt("DEFAULT_THINKING_BUDGET", 10000),
		ToolDescriptionCap: envInt("TOOL_DESCRIPTION_CAP", 2000),
		SchemaDepthLimit:   envInt("SCHEMA_DEPTH_LIMIT", 6),
		SchemaArrayCap:     envInt("SCHEMA_ARRAY_CAP", 32),
		SchemaObjectCap:    envInt("SCHEMA_OBJECT_CAP", 96),

		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}
}

func (c *Config) Validate() error {
	if c.EncryptionKey == "" {
		return errMissing("ENCRYPTION_KEY")
	}
	if c.AdminToken == "" {
		return errMissing("ADMIN_TOKEN")
	}
	switch c.CompatMode {
	case CompatStrict, CompatBalanced, CompatRelaxed:
	default:
		return errInvalid("COMPAT_MODE", string(c.CompatMode))
	}
	switch c.SelectionPolicy {
	case "round-robin", "random", "least-used":
	default:
		return errInvalid("SELECTION_POLICY", c.SelectionPolicy)
	}
	return nil
}

type configError struct{ field, detail string }

func (e *configError) Error() string {
	if e.detail == "" {
		return "missing required env: " + e.field
	}
	return "invalid env " + e.field + ": " + e.detail
}

func errMissing(f string) error          { return &configError{field: f} }
func errInvalid(f, detail string) error  { return &configError{field: f, detail: detail} }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
