package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// minRetention keeps a counter alive for its whole period plus the next.
const minRetention = 14 * 24 * time.Hour

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Quota
	if c.Quota.WeeklyLimit < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_WEEKLY_LIMIT must be positive, got %d", c.Quota.WeeklyLimit))
	}
	if c.Quota.Retention < minRetention {
		errs = append(errs, fmt.Sprintf("QUOTA_RETENTION must be at least 336h, got %s", c.Quota.Retention))
	}
	if c.Quota.Mode != "optimistic" && c.Quota.Mode != "atomic" {
		errs = append(errs, fmt.Sprintf("QUOTA_MODE must be optimistic or atomic, got %q", c.Quota.Mode))
	}

	// Upstream
	if c.Gemini.Timeout <= 0 {
		errs = append(errs, "GEMINI_TIMEOUT must be positive")
	}
	if c.Server.WriteTimeout <= c.Gemini.Timeout {
		errs = append(errs, "SERVER_WRITE_TIMEOUT must exceed GEMINI_TIMEOUT")
	}

	// HTTP
	if c.HTTP.MaxBodyBytes < 1 {
		errs = append(errs, "HTTP_MAX_BODY_BYTES must be positive")
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, "HTTP_RATE_LIMIT must not be negative")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateWindow <= 0 {
		errs = append(errs, "HTTP_RATE_WINDOW must be positive")
	}

	// Optional identity tokens
	if c.Auth.Enabled() && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, "AUTH_JWT_SECRET must be at least 32 characters")
	}

	// Ledger database
	if c.DB.Enabled {
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required when DB_ENABLED is set")
		}
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
		}
		if !c.NATS.Enabled() {
			slog.Warn("DB_ENABLED without NATS_URL: the ledger will stay empty")
		}
	}

	// Logging
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}

	// API key: warn only
	if c.Gemini.APIKey == "" {
		slog.Warn("GEMINI_API_KEY is empty, generate requests will fail with missing_credential")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
