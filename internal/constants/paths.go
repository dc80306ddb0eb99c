package constants

// DefaultEnvPath is the default path to the .env file
const DefaultEnvPath = "./.env"

// DefaultConfigPath is the default path to the configuration file
const DefaultConfigPath = "./outreach.toml"

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "outreach"
