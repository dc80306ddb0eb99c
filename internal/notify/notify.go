// Package notify reports finished runs to an operator.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/outreach/internal/logger"
	"github.com/aatumaykin/outreach/internal/runner"
)

// maxListedFailures bounds the failure lines included in a message.
const maxListedFailures = 10

// Notifier delivers a run report.
type Notifier interface {
	Notify(ctx context.Context, report *runner.Report) error
}

// Nop discards reports.
type Nop struct{}

func (Nop) Notify(context.Context, *runner.Report) error { return nil }

// TelegramConfig selects the bot and chat.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// messageSender is the subset of the bot API used here.
type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Telegram sends run summaries to a chat.
type Telegram struct {
	sender messageSender
	chatID int64
	logger *logger.Logger
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(cfg TelegramConfig, log *logger.Logger) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}

	return &Telegram{sender: bot, chatID: cfg.ChatID, logger: log}, nil
}

// Notify sends the report summary.
func (t *Telegram) Notify(ctx context.Context, report *runner.Report) error {
	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: t.chatID},
		Text:   FormatReport(report),
	}
	if _, err := t.sender.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}
	t.logger.DebugCtx(ctx, "run notification sent", logger.Field{Key: "chat_id", Value: t.chatID})
	return nil
}

// FormatReport renders report as plain text for chat delivery.
func FormatReport(report *runner.Report) string {
	var b strings.Builder
	b.WriteString(report.Summary())

	if len(report.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for i, f := range report.Failures {
			if i == maxListedFailures {
				fmt.Fprintf(&b, "  ... and %d more\n", len(report.Failures)-maxListedFailures)
				break
			}
			step := f.Step
			if step == "" {
				step = "unknown step"
			}
			fmt.Fprintf(&b, "  %s at %s\n", f.TargetID, step)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
