package config

import (
	"strings"
)

// maskSecret keeps the first and last four characters of a secret.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}

	if len(secret) < 8 {
		return "***"
	}

	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// maskTelegramToken keeps the bot id visible for diagnostics.
func maskTelegramToken(token string) string {
	if token == "" {
		return ""
	}

	botID, secret, ok := strings.Cut(token, ":")
	if !ok {
		return maskSecret(token)
	}
	return botID + ":" + maskSecret(secret)
}

// maskCookie masks every cookie value and keeps the names.
func maskCookie(cookie string) string {
	if cookie == "" {
		return ""
	}

	parts := strings.Split(cookie, ";")
	for i, part := range parts {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			parts[i] = maskSecret(name)
			continue
		}
		parts[i] = name + "=" + maskSecret(value)
	}
	return strings.Join(parts, "; ")
}

// Redacted returns a copy of c safe to print.
func (c Config) Redacted() Config {
	c.Session.Password = maskSecret(c.Session.Password)
	c.Session.Cookie = maskCookie(c.Session.Cookie)
	c.Notify.Telegram.Token = maskTelegramToken(c.Notify.Telegram.Token)
	return c
}

// formatValidationError builds a ValidationError that shows secret masked.
func formatValidationError(field, message string, secret string) error {
	errorMsg := field + ": " + message
	if masked := maskSecret(secret); masked != "" {
		errorMsg += " (value: " + masked + ")"
	}
	return &ValidationError{Field: field, Message: errorMsg}
}

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
