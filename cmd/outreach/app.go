package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aatumaykin/outreach/internal/actor"
	"github.com/aatumaykin/outreach/internal/config"
	"github.com/aatumaykin/outreach/internal/constants"
	"github.com/aatumaykin/outreach/internal/delay"
	"github.com/aatumaykin/outreach/internal/ledger"
	"github.com/aatumaykin/outreach/internal/logger"
	"github.com/aatumaykin/outreach/internal/notify"
	"github.com/aatumaykin/outreach/internal/payload"
	"github.com/aatumaykin/outreach/internal/runner"
	"github.com/aatumaykin/outreach/internal/targets"
)

// app holds the collaborators built once from the configuration.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    ledger.Store
	metrics  *runner.Metrics
	notifier notify.Notifier
	acquire  runner.AcquireFunc
	pacer    runner.Pauser
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	store, err := ledger.Open(ledger.Config{Driver: cfg.Ledger.Driver, Path: cfg.Ledger.Path}, log)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
		}, log)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		notifier = tg
	}

	actorCfg := actorConfig(cfg)
	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		metrics:  runner.NewMetrics(constants.MetricsNamespace, nil),
		notifier: notifier,
		acquire: func(ctx context.Context) (actor.Session, error) {
			return actor.Acquire(ctx, actorCfg, log)
		},
		pacer: delay.NewPacer(delay.Config{
			MinMs:      cfg.Delay.MinMs,
			MaxMs:      cfg.Delay.MaxMs,
			MaxPerHour: cfg.Delay.MaxPerHour,
		}),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// runOnce performs one complete run: load inputs, run the batch, export
// metrics and notify.
func (a *app) runOnce(ctx context.Context) (*runner.Report, error) {
	records, stats, err := targets.LoadCSV(a.cfg.Targets.Path, targets.LoadOptions{IDPattern: a.cfg.Targets.IDPattern}, a.log)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	if stats.MissingID > 0 || stats.Duplicates > 0 || stats.Malformed > 0 {
		a.log.Warn("targets input had skipped rows",
			logger.Field{Key: "missing_id", Value: stats.MissingID},
			logger.Field{Key: "duplicates", Value: stats.Duplicates},
			logger.Field{Key: "malformed", Value: stats.Malformed})
	}

	campaign := a.cfg.Run.Campaign
	var message string
	if !a.cfg.Run.DryRun || a.cfg.Run.Message != "" || a.cfg.Run.MessageFile != "" {
		p, err := payload.Load(a.cfg.Run.Message, a.cfg.Run.MessageFile)
		if err != nil && !a.cfg.Run.DryRun {
			return nil, fmt.Errorf("load payload: %w", err)
		}
		message = p.Text
		if campaign == "" {
			campaign = p.Campaign
		}
	}
	if campaign == "" {
		return nil, errors.New("campaign key is required")
	}

	r := runner.New(runner.Options{
		Campaign:     campaign,
		Message:      message,
		DryRun:       a.cfg.Run.DryRun,
		TestMode:     a.cfg.Run.TestMode,
		MaxAttempts:  a.cfg.Run.MaxAttempts,
		PreviewLimit: a.cfg.Run.PreviewLimit,
	}, a.store, a.acquire, a.pacer, a.log, a.metrics)

	report, runErr := r.Run(ctx, records)

	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.log.Error("failed to export metrics", err)
	}

	if !report.DryRun && (runErr == nil || report.Processed > 0) {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		if err := a.notifier.Notify(notifyCtx, report); err != nil {
			a.log.Warn("failed to send notification", logger.Field{Key: "error", Value: err.Error()})
		}
		cancel()
	}

	return report, runErr
}

func actorConfig(cfg *config.Config) actor.Config {
	s := cfg.Session
	return actor.Config{
		Mode:            actor.Mode(s.Mode),
		BaseURL:         s.BaseURL,
		ListingURL:      s.ListingURL,
		LoginURL:        s.LoginURL,
		LogoutURL:       s.LogoutURL,
		Endpoint:        s.Endpoint,
		Username:        s.Username,
		Password:        s.Password,
		Cookie:          s.Cookie,
		UserAgent:       s.UserAgent,
		Timeout:         time.Duration(s.TimeoutSeconds) * time.Second,
		AcquireAttempts: s.AcquireAttempts,
		Selectors: actor.Selectors{
			ListingLink:   s.Selectors.ListingLink,
			MessageLink:   s.Selectors.MessageLink,
			ComposeForm:   s.Selectors.ComposeForm,
			ComposeField:  s.Selectors.ComposeField,
			LoginForm:     s.Selectors.LoginForm,
			UsernameField: s.Selectors.UsernameField,
			PasswordField: s.Selectors.PasswordField,
			Authenticated: s.Selectors.Authenticated,
			Failure:       s.Selectors.Failure,
		},
	}
}

// loadConfig reads the .env file and the configuration. A missing file at
// the default path falls back to defaults so flags alone can drive a run.
func loadConfig(cfgPath, dotenvPath string, explicit bool) (*config.Config, error) {
	if err := config.LoadEnvOptional(dotenvPath); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if _, err := os.Stat(cfgPath); err != nil && os.IsNotExist(err) && !explicit {
		return config.Default()
	}
	return config.Load(cfgPath)
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}
