package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/outreach/internal/constants"
	"github.com/aatumaykin/outreach/internal/logger"
	"github.com/aatumaykin/outreach/internal/schedule"
)

var (
	serveOpts runFlags
	serveCron string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run batches on a cron schedule",
	Long: `Start a long-running process that performs one run every time the
cron schedule fires. A run still in progress when the schedule fires again
is skipped. Every run resumes from the ledger.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(serveMain(cmd))
	},
}

func init() {
	registerRunFlags(serveCmd, &serveOpts)
	serveCmd.Flags().StringVar(&serveCron, "cron", "", "Cron expression overriding schedule.cron")
}

func serveMain(cmd *cobra.Command) int {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, log, ok := prepare(cmd, &serveOpts, errOut)
	if !ok {
		return 1
	}
	defer func() { _ = log.Close() }()

	if cmd.Flags().Changed("cron") {
		cfg.Schedule.Cron = serveCron
	}
	if cfg.Schedule.Cron == "" {
		fmt.Fprint(errOut, constants.MsgServeNoSchedule)
		return 1
	}

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

	sched := schedule.New(log)
	next, err := sched.Add(cfg.Schedule.Cron, "run", func(ctx context.Context) {
		report, err := a.runOnce(ctx)
		if err != nil {
			log.Error("scheduled run failed", err)
			return
		}
		log.Info("scheduled run finished",
			logger.Field{Key: "run_id", Value: report.RunID},
			logger.Field{Key: "done", Value: report.Done},
			logger.Field{Key: "failed", Value: report.Failed})
	})
	if err != nil {
		fmt.Fprintf(errOut, constants.MsgStartupError, err)
		return 1
	}
	fmt.Fprintf(out, constants.MsgServeStarted, cfg.Schedule.Cron, next.Format(time.RFC3339))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil {
		log.Error("scheduler stopped", err)
		return 1
	}
	log.Info("scheduler stopped")
	return 0
}
