package constants

// Startup messages
const (
	// MsgConfigLoadError is printed when the configuration cannot be loaded.
	MsgConfigLoadError = "❌ Failed to load configuration: %v\n"

	// MsgConfigInvalid heads the list of validation errors.
	MsgConfigInvalid = "❌ Configuration validation failed:\n"

	// MsgConfigValid confirms a valid configuration.
	MsgConfigValid = "✅ Configuration is valid"

	// MsgValidationItem formats one validation error.
	MsgValidationItem = "  - %v\n"

	// MsgLoggerInitError is printed when the logger cannot be created.
	MsgLoggerInitError = "❌ Failed to initialize logger: %v\n"

	// MsgEnvLoadError is printed when the .env file exists but cannot be read.
	MsgEnvLoadError = "❌ Failed to load .env file: %v\n"

	// MsgStartupError reports a startup failure other than configuration.
	MsgStartupError = "❌ %v\n"
)

// Run messages
const (
	// MsgRunAborted is printed when the whole run aborts.
	MsgRunAborted = "❌ Run aborted: %v\n"

	// MsgRunInterrupted is printed when a signal stops the run between items.
	MsgRunInterrupted = "⏹ Run interrupted: %v\n"

	// MsgNothingPending is printed when every target is already done.
	MsgNothingPending = "✅ Nothing pending for campaign %q\n"
)

// Ledger messages
const (
	// MsgLedgerEmpty is printed when the ledger has no entries.
	MsgLedgerEmpty = "Ledger is empty"

	// MsgLedgerHeader heads the per-campaign table.
	MsgLedgerHeader = "%-24s %8s %8s %8s  %s\n"

	// MsgLedgerRow formats one campaign summary.
	MsgLedgerRow = "%-24s %8d %8d %8d  %s\n"
)

// Serve messages
const (
	// MsgServeNoSchedule is printed when serve is started without a cron spec.
	MsgServeNoSchedule = "❌ schedule.cron is required for serve\n"

	// MsgServeStarted reports the schedule after startup.
	MsgServeStarted = "⏰ Scheduled runs on %q, next at %s\n"
)
