package main

import (
	"github.com/spf13/cobra"

	"github.com/aatumaykin/outreach/internal/constants"
)

var (
	configPath string
	envPath    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Resumable, rate-limited batch delivery runner",
	Long: `Outreach delivers one message to every target of a campaign through a
remote web interface, one target at a time, with randomized pauses.
Every attempt is recorded in an append-only ledger, so interrupted runs
resume where they stopped and finished targets are never contacted twice.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", constants.DefaultConfigPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", constants.DefaultEnvPath, "Path to an optional .env file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ledgerCmd)
}
