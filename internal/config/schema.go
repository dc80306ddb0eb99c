package config

// Config is the full configuration of a run, built once at startup.
type Config struct {
	Run      RunConfig      `toml:"run"`
	Targets  TargetsConfig  `toml:"targets"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Session  SessionConfig  `toml:"session"`
	Delay    DelayConfig    `toml:"delay"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Notify   NotifyConfig   `toml:"notify"`
	Schedule ScheduleConfig `toml:"schedule"`
}

// RunConfig selects the campaign, the payload and the run mode.
type RunConfig struct {
	Campaign     string `toml:"campaign"`
	Message      string `toml:"message"`
	MessageFile  string `toml:"message_file"`
	DryRun       bool   `toml:"dry_run"`
	TestMode     bool   `toml:"test_mode"`
	MaxAttempts  int    `toml:"max_attempts"` // 0 = retry failed targets forever
	PreviewLimit int    `toml:"preview_limit"`
}

// TargetsConfig locates the candidate work set.
type TargetsConfig struct {
	Path      string `toml:"path"`
	IDPattern string `toml:"id_pattern"`
}

// LedgerConfig selects the ledger backend.
type LedgerConfig struct {
	Driver string `toml:"driver"` // csv | sqlite
	Path   string `toml:"path"`
}

// SessionConfig describes the remote interface and how to authenticate.
type SessionConfig struct {
	Mode            string          `toml:"mode"` // login | attach
	BaseURL         string          `toml:"base_url"`
	ListingURL      string          `toml:"listing_url"`
	LoginURL        string          `toml:"login_url"`
	LogoutURL       string          `toml:"logout_url"`
	Endpoint        string          `toml:"endpoint"`
	Username        string          `toml:"username" env:"OUTREACH_SESSION_USERNAME"`
	Password        string          `toml:"password" env:"OUTREACH_SESSION_PASSWORD"`
	Cookie          string          `toml:"cookie" env:"OUTREACH_SESSION_COOKIE"`
	TimeoutSeconds  int             `toml:"timeout_seconds"`
	UserAgent       string          `toml:"user_agent"`
	AcquireAttempts int             `toml:"acquire_attempts"`
	Selectors       SelectorsConfig `toml:"selectors"`
}

// SelectorsConfig overrides the CSS selectors used on the remote interface.
type SelectorsConfig struct {
	ListingLink   string `toml:"listing_link"`
	MessageLink   string `toml:"message_link"`
	ComposeForm   string `toml:"compose_form"`
	ComposeField  string `toml:"compose_field"`
	LoginForm     string `toml:"login_form"`
	UsernameField string `toml:"username_field"`
	PasswordField string `toml:"password_field"`
	Authenticated string `toml:"authenticated"`
	Failure       string `toml:"failure"`
}

// DelayConfig bounds the pause between items.
type DelayConfig struct {
	MinMs      int `toml:"min_ms"`
	MaxMs      int `toml:"max_ms"`
	MaxPerHour int `toml:"max_per_hour"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token" env:"OUTREACH_TELEGRAM_TOKEN"`
	ChatID  int64  `toml:"chat_id"`
}

type ScheduleConfig struct {
	Cron string `toml:"cron"`
}
