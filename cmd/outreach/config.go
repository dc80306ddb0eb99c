package main

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/outreach/internal/config"
	"github.com/aatumaykin/outreach/internal/constants"
)

var configShow bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Validate and inspect the Outreach configuration.`,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long: `Validate the configuration file and report every problem found.
With --show the effective configuration is printed with secrets masked.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}
		if err := config.LoadEnvOptional(envPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgEnvLoadError, err)
			os.Exit(1)
		}
		os.Exit(validateConfig(cmd.OutOrStdout(), cmd.ErrOrStderr(), path, configShow))
	},
}

func init() {
	configValidateCmd.Flags().BoolVar(&configShow, "show", false, "Print the effective configuration with secrets masked")
	configCmd.AddCommand(configValidateCmd)
}

func validateConfig(out, errOut io.Writer, path string, show bool) int {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(errOut, constants.MsgConfigLoadError, err)
		return 1
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprint(errOut, constants.MsgConfigInvalid)
		for _, e := range errs {
			fmt.Fprintf(errOut, constants.MsgValidationItem, e)
		}
		return 1
	}

	if show {
		if err := toml.NewEncoder(out).Encode(cfg.Redacted()); err != nil {
			fmt.Fprintf(errOut, constants.MsgStartupError, err)
			return 1
		}
	}
	fmt.Fprintln(out, constants.MsgConfigValid)
	return 0
}
