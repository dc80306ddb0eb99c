package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/outreach/internal/config"
	"github.com/aatumaykin/outreach/internal/constants"
	"github.com/aatumaykin/outreach/internal/ledger"
	"github.com/aatumaykin/outreach/internal/logger"
)

var (
	ledgerCampaign string
	ledgerPath     string
	ledgerDriver   string
)

// ledgerCmd represents the ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the delivery ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Summarize ledger entries per campaign",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath, envPath, cmd.Flags().Changed("config"))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgConfigLoadError, err)
			os.Exit(1)
		}
		if ledgerPath != "" {
			cfg.Ledger.Path = ledgerPath
		}
		if ledgerDriver != "" {
			cfg.Ledger.Driver = ledgerDriver
		}

		if err := showLedger(cmd.Context(), cmd.OutOrStdout(), cfg, ledgerCampaign); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgStartupError, err)
			os.Exit(1)
		}
	},
}

func init() {
	ledgerShowCmd.Flags().StringVar(&ledgerCampaign, "campaign", "", "Only show this campaign")
	ledgerShowCmd.Flags().StringVar(&ledgerPath, "ledger", "", "Path to the ledger")
	ledgerShowCmd.Flags().StringVar(&ledgerDriver, "ledger-driver", "", "Ledger backend: csv or sqlite")
	ledgerCmd.AddCommand(ledgerShowCmd)
}

func showLedger(ctx context.Context, out io.Writer, cfg *config.Config, campaign string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := ledger.Open(ledger.Config{Driver: cfg.Ledger.Driver, Path: cfg.Ledger.Path}, logger.Nop())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Entries(ctx)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	summaries := ledger.Summarize(entries)
	if campaign != "" {
		filtered := summaries[:0]
		for _, s := range summaries {
			if s.CampaignKey == campaign {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}

	if len(summaries) == 0 {
		fmt.Fprintln(out, constants.MsgLedgerEmpty)
		return nil
	}

	fmt.Fprintf(out, constants.MsgLedgerHeader, "CAMPAIGN", "DONE", "FAILED", "RETRY", "LAST ACTIVITY")
	for _, s := range summaries {
		last := "-"
		if !s.LastActivity.IsZero() {
			last = s.LastActivity.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(out, constants.MsgLedgerRow, s.CampaignKey, s.DoneTargets, s.FailedRows, s.PendingRetry, last)
	}
	return nil
}
