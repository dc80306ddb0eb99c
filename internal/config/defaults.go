package config

const (
	DefaultLedgerDriver    = "csv"
	DefaultLedgerPath      = "./outreach-ledger.csv"
	DefaultSessionMode     = "login"
	DefaultTimeoutSeconds  = 30
	DefaultAcquireAttempts = 3
	DefaultDelayMinMs      = 30000
	DefaultDelayMaxMs      = 90000
	DefaultPreviewLimit    = 10
)

func applyDefaults(c *Config) {
	if c.Run.PreviewLimit == 0 {
		c.Run.PreviewLimit = DefaultPreviewLimit
	}

	if c.Ledger.Driver == "" {
		c.Ledger.Driver = DefaultLedgerDriver
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = DefaultLedgerPath
	}

	if c.Session.Mode == "" {
		c.Session.Mode = DefaultSessionMode
	}
	if c.Session.TimeoutSeconds == 0 {
		c.Session.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Session.AcquireAttempts == 0 {
		c.Session.AcquireAttempts = DefaultAcquireAttempts
	}

	if c.Delay.MinMs == 0 && c.Delay.MaxMs == 0 {
		c.Delay.MinMs = DefaultDelayMinMs
		c.Delay.MaxMs = DefaultDelayMaxMs
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
}
