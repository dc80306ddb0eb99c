package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/wasilibs/go-re2"
)

// Validate reports every configuration problem at once.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: field + ": " + fmt.Sprintf(format, args...)})
	}

	// A message file may name the campaign in its frontmatter.
	if strings.TrimSpace(c.Run.Campaign) == "" && c.Run.MessageFile == "" {
		add("run.campaign", "is required")
	}
	if !c.Run.DryRun && strings.TrimSpace(c.Run.Message) == "" && c.Run.MessageFile == "" {
		add("run.message", "a message or run.message_file is required")
	}
	if c.Run.MaxAttempts < 0 {
		add("run.max_attempts", "must be >= 0 (got %d)", c.Run.MaxAttempts)
	}
	if c.Run.PreviewLimit < 0 {
		add("run.preview_limit", "must be >= 0 (got %d)", c.Run.PreviewLimit)
	}

	if c.Targets.Path == "" {
		add("targets.path", "is required")
	}
	if c.Targets.IDPattern != "" {
		if _, err := re2.Compile(c.Targets.IDPattern); err != nil {
			add("targets.id_pattern", "invalid pattern: %v", err)
		}
	}

	switch c.Ledger.Driver {
	case "csv", "sqlite":
	default:
		add("ledger.driver", "invalid driver %q (expected: csv, sqlite)", c.Ledger.Driver)
	}
	if c.Ledger.Path == "" {
		add("ledger.path", "is required")
	}

	if !c.Run.DryRun {
		errs = append(errs, c.Session.validate()...)
	}

	if c.Delay.MinMs < 0 {
		add("delay.min_ms", "must be >= 0 (got %d)", c.Delay.MinMs)
	}
	if c.Delay.MaxMs < 0 {
		add("delay.max_ms", "must be >= 0 (got %d)", c.Delay.MaxMs)
	}
	if c.Delay.MinMs > c.Delay.MaxMs {
		add("delay.min_ms", "must not exceed delay.max_ms (%d > %d)", c.Delay.MinMs, c.Delay.MaxMs)
	}
	if c.Delay.MaxPerHour < 0 {
		add("delay.max_per_hour", "must be >= 0 (got %d)", c.Delay.MaxPerHour)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "invalid level %q (expected: debug, info, warn, error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		add("logging.format", "invalid format %q (expected: json, text)", c.Logging.Format)
	}

	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.Token == "" {
			add("notify.telegram.token", "is required when telegram is enabled")
		} else if err := validateTelegramToken(c.Notify.Telegram.Token); err != nil {
			errs = append(errs, err)
		}
		if c.Notify.Telegram.ChatID == 0 {
			add("notify.telegram.chat_id", "is required when telegram is enabled")
		}
	}

	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			add("schedule.cron", "invalid cron expression %q: %v", c.Schedule.Cron, err)
		}
	}

	return errs
}

func (s *SessionConfig) validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: field + ": " + fmt.Sprintf(format, args...)})
	}

	switch s.Mode {
	case "login":
		if s.BaseURL == "" {
			add("session.base_url", "is required in login mode")
		}
		if s.Username == "" {
			add("session.username", "is required in login mode (or set OUTREACH_SESSION_USERNAME)")
		}
		if s.Password == "" {
			add("session.password", "is required in login mode (or set OUTREACH_SESSION_PASSWORD)")
		}
	case "attach":
		if s.Endpoint == "" {
			add("session.endpoint", "is required in attach mode")
		}
		if s.Cookie == "" {
			add("session.cookie", "is required in attach mode (or set OUTREACH_SESSION_COOKIE)")
		}
	default:
		add("session.mode", "invalid mode %q (expected: login, attach)", s.Mode)
	}

	for field, raw := range map[string]string{"session.base_url": s.BaseURL, "session.endpoint": s.Endpoint} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || !u.IsAbs() {
			add(field, "must be an absolute URL (got %q)", raw)
		}
	}

	if s.TimeoutSeconds < 0 {
		add("session.timeout_seconds", "must be >= 0 (got %d)", s.TimeoutSeconds)
	}
	if s.AcquireAttempts < 0 {
		add("session.acquire_attempts", "must be >= 0 (got %d)", s.AcquireAttempts)
	}
	return errs
}

func validateTelegramToken(token string) error {
	botID, secret, ok := strings.Cut(token, ":")
	if !ok || strings.Contains(secret, ":") {
		return formatValidationError("notify.telegram.token", "invalid format (expected <bot_id>:<token>)", token)
	}

	if len(botID) < 3 || len(botID) > 15 {
		return formatValidationError("notify.telegram.token", fmt.Sprintf("invalid bot ID length (expected 3-15 digits, got %d)", len(botID)), token)
	}
	for _, r := range botID {
		if r < '0' || r > '9' {
			return formatValidationError("notify.telegram.token", "bot ID must contain digits only", token)
		}
	}

	if len(secret) < 10 || len(secret) > 50 {
		return formatValidationError("notify.telegram.token", fmt.Sprintf("invalid token length (expected 10-50 characters, got %d)", len(secret)), token)
	}
	return nil
}
