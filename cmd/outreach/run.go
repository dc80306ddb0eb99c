package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/outreach/internal/config"
	"github.com/aatumaykin/outreach/internal/constants"
	"github.com/aatumaykin/outreach/internal/logger"
	"github.com/aatumaykin/outreach/internal/runner"
)

// runFlags are command-line overrides applied on top of the configuration.
type runFlags struct {
	dryRun       bool
	testMode     bool
	campaign     string
	message      string
	messageFile  string
	mode         string
	endpoint     string
	baseURL      string
	delayMin     int
	delayMax     int
	targets      string
	ledger       string
	ledgerDriver string
	maxAttempts  int
	debug        bool
}

var runOpts runFlags

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one batch over the pending targets",
	Long: `Resolve the pending work set for the campaign, acquire a session and
deliver the message to every pending target, recording each outcome in
the ledger. Targets already recorded as done are skipped.

Use --dry-run to preview the pending set without contacting anyone, or
--test to exercise every step except the final confirmation.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runMain(cmd, &runOpts))
	},
}

func init() {
	registerRunFlags(runCmd, &runOpts)
}

func registerRunFlags(cmd *cobra.Command, f *runFlags) {
	flags := cmd.Flags()
	flags.BoolVar(&f.dryRun, "dry-run", false, "Preview the pending set without contacting anyone or writing the ledger")
	flags.BoolVar(&f.testMode, "test", false, "Perform every step except the final confirmation; nothing is recorded")
	flags.StringVar(&f.campaign, "campaign", "", "Campaign key")
	flags.StringVar(&f.message, "message", "", "Message text")
	flags.StringVar(&f.messageFile, "message-file", "", "Path to a message file (.md, .txt or .html)")
	flags.StringVar(&f.mode, "mode", "", "Session mode: login or attach")
	flags.StringVar(&f.endpoint, "endpoint", "", "Endpoint of an already authenticated session (attach mode)")
	flags.StringVar(&f.baseURL, "base-url", "", "Base URL of the remote interface (login mode)")
	flags.IntVar(&f.delayMin, "delay-min", 0, "Minimum pause between items in milliseconds")
	flags.IntVar(&f.delayMax, "delay-max", 0, "Maximum pause between items in milliseconds")
	flags.StringVar(&f.targets, "targets", "", "Path to the targets CSV")
	flags.StringVar(&f.ledger, "ledger", "", "Path to the ledger")
	flags.StringVar(&f.ledgerDriver, "ledger-driver", "", "Ledger backend: csv or sqlite")
	flags.IntVar(&f.maxAttempts, "max-attempts", 0, "Stop retrying a target after this many failures (0 = unlimited)")
	flags.BoolVar(&f.debug, "debug", false, "Enable debug logging")
}

// applyRunFlags copies the flags the user set explicitly into cfg.
func applyRunFlags(cmd *cobra.Command, f *runFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("dry-run") {
		cfg.Run.DryRun = f.dryRun
	}
	if changed("test") {
		cfg.Run.TestMode = f.testMode
	}
	if changed("campaign") {
		cfg.Run.Campaign = f.campaign
	}
	if changed("message") {
		cfg.Run.Message = f.message
	}
	if changed("message-file") {
		cfg.Run.MessageFile = f.messageFile
	}
	if changed("max-attempts") {
		cfg.Run.MaxAttempts = f.maxAttempts
	}
	if changed("mode") {
		cfg.Session.Mode = f.mode
	}
	if changed("endpoint") {
		cfg.Session.Endpoint = f.endpoint
	}
	if changed("base-url") {
		cfg.Session.BaseURL = f.baseURL
	}
	if changed("delay-min") {
		cfg.Delay.MinMs = f.delayMin
	}
	if changed("delay-max") {
		cfg.Delay.MaxMs = f.delayMax
	}
	if changed("targets") {
		cfg.Targets.Path = f.targets
	}
	if changed("ledger") {
		cfg.Ledger.Path = f.ledger
	}
	if changed("ledger-driver") {
		cfg.Ledger.Driver = f.ledgerDriver
	}
	if f.debug {
		cfg.Logging.Level = "debug"
	}
}

// prepare loads, overrides and validates the configuration and builds the
// logger. Problems are printed to errOut.
func prepare(cmd *cobra.Command, f *runFlags, errOut io.Writer) (*config.Config, *logger.Logger, bool) {
	cfg, err := loadConfig(configPath, envPath, cmd.Flags().Changed("config"))
	if err != nil {
		fmt.Fprintf(errOut, constants.MsgConfigLoadError, err)
		return nil, nil, false
	}
	applyRunFlags(cmd, f, cfg)

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprint(errOut, constants.MsgConfigInvalid)
		for _, e := range errs {
			fmt.Fprintf(errOut, constants.MsgValidationItem, e)
		}
		return nil, nil, false
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(errOut, constants.MsgLoggerInitError, err)
		return nil, nil, false
	}
	return cfg, log, true
}

// runMain executes one run and returns the process exit code.
func runMain(cmd *cobra.Command, f *runFlags) int {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, log, ok := prepare(cmd, f, errOut)
	if !ok {
		return 1
	}
	defer func() { _ = log.Close() }()

	a, err := newApp(cfg, log)
	if err != nil {
		fmt.Fprintf(errOut, constants.MsgStartupError, err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close ledger", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := a.runOnce(ctx)
	return finishRun(out, errOut, report, err)
}

func finishRun(out, errOut io.Writer, report *runner.Report, err error) int {
	if report != nil {
		if report.Pending == 0 && report.Exhausted == 0 && err == nil {
			fmt.Fprintf(out, constants.MsgNothingPending, report.Campaign)
		}
		fmt.Fprint(out, report.Summary())
	}

	switch {
	case err == nil:
		return 0
	case report != nil && report.Interrupted, errors.Is(err, context.Canceled):
		fmt.Fprintf(errOut, constants.MsgRunInterrupted, err)
	default:
		fmt.Fprintf(errOut, constants.MsgRunAborted, err)
	}
	return 1
}
