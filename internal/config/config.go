package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Load reads the TOML file at path, applies defaults, expands ${VAR:default}
// references and overlays secrets from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := finish(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with defaults and environment secrets
// applied, for runs driven by flags alone.
func Default() (*Config, error) {
	var cfg Config
	if err := finish(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finish(cfg *Config) error {
	applyDefaults(cfg)
	expandEnvVars(cfg)
	if err := applyEnvOverlay(cfg); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// applyEnvOverlay lets non-empty OUTREACH_* variables win over file values.
func applyEnvOverlay(cfg *Config) error {
	return env.Parse(cfg)
}

// expandEnvVars resolves ${VAR:default} in secrets and paths.
func expandEnvVars(c *Config) {
	for _, s := range []*string{
		&c.Session.Username,
		&c.Session.Password,
		&c.Session.Cookie,
		&c.Session.Endpoint,
		&c.Session.BaseURL,
		&c.Notify.Telegram.Token,
	} {
		*s = expandEnv(*s)
	}

	for _, p := range []*string{
		&c.Targets.Path,
		&c.Ledger.Path,
		&c.Run.MessageFile,
		&c.Metrics.Textfile,
	} {
		*p = expandHome(expandEnv(*p))
	}
}

// expandEnv expands a value of the form ${VAR} or ${VAR:default}.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if key, defaultVal, ok := strings.Cut(content, ":"); ok {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return defaultVal
	}

	return os.Getenv(content)
}

// expandHome expands a leading ~/ to the home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
