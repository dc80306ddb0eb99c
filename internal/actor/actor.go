// Package actor drives the remote web interface on behalf of the runner:
// reaching a target, opening its delivery channel, composing and confirming
// the payload.
package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/outreach/internal/logger"
	"github.com/aatumaykin/outreach/internal/retry"
	"github.com/aatumaykin/outreach/internal/targets"
	"github.com/aatumaykin/outreach/internal/version"
)

// Step names reported in StepError.
const (
	StepNavigate    = "navigate"
	StepOpenChannel = "open_channel"
	StepCompose     = "compose"
	StepConfirm     = "confirm"
)

var (
	ErrAcquireFailed   = errors.New("actor: session acquisition failed")
	ErrNavigateFailed  = errors.New("actor: target unreachable")
	ErrChannelNotFound = errors.New("actor: delivery channel not found")
	ErrComposeFailed   = errors.New("actor: compose failed")
	ErrConfirmFailed   = errors.New("actor: confirm failed")
)

// StepError reports which per-item step failed for which target.
type StepError struct {
	Step   string
	Target string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Step, e.Target, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Session is an authenticated handle on the remote interface.
// Operations are called sequentially by a single runner.
type Session interface {
	Navigate(ctx context.Context, target targets.Record) error
	OpenDeliveryChannel(ctx context.Context) error
	Compose(ctx context.Context, text string) error
	Confirm(ctx context.Context) error
	Close() error
}

// Mode selects how a session is obtained.
type Mode string

const (
	// ModeLogin authenticates with credentials and logs out on Close.
	ModeLogin Mode = "login"
	// ModeAttach reuses an existing authenticated session and never logs out.
	ModeAttach Mode = "attach"
)

// Selectors locate elements of the remote interface.
type Selectors struct {
	ListingLink   string
	MessageLink   string
	ComposeForm   string
	ComposeField  string
	LoginForm     string
	UsernameField string
	PasswordField string
	// Authenticated, when set, must match on an attached endpoint page.
	// Otherwise the absence of a login form is taken as authenticated.
	Authenticated string
	// Failure, when set and matched on the confirm response, fails the confirm.
	Failure string
}

// Config describes the remote interface and session acquisition.
type Config struct {
	Mode       Mode
	BaseURL    string
	ListingURL string
	LoginURL   string
	LogoutURL  string
	Endpoint   string
	Username   string
	Password   string
	Cookie     string
	UserAgent  string
	Timeout    time.Duration

	AcquireAttempts int
	AcquireBackoff  time.Duration

	Selectors Selectors
}

const defaultTimeout = 30 * time.Second

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeLogin
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = version.UserAgent()
	}
	s := &c.Selectors
	if s.ListingLink == "" {
		s.ListingLink = "a[href]"
	}
	if s.MessageLink == "" {
		s.MessageLink = `a.message, a[data-action="message"]`
	}
	if s.ComposeForm == "" {
		s.ComposeForm = `form#compose, form[data-role="compose"]`
	}
	if s.ComposeField == "" {
		s.ComposeField = "body"
	}
	if s.LoginForm == "" {
		s.LoginForm = `form#login, form[data-role="login"]`
	}
	if s.UsernameField == "" {
		s.UsernameField = "username"
	}
	if s.PasswordField == "" {
		s.PasswordField = "password"
	}
	return c
}

// Acquire obtains a session in the configured mode. Transient network
// failures are retried; rejected credentials and unauthenticated endpoints
// are not.
func Acquire(ctx context.Context, cfg Config, log *logger.Logger) (Session, error) {
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.WithDefaults()

	retryCfg := retry.Config{
		MaxAttempts:    cfg.AcquireAttempts,
		InitialBackoff: cfg.AcquireBackoff,
	}

	session, err := retry.Do(ctx, log, retryCfg, func(ctx context.Context) (Session, error) {
		switch cfg.Mode {
		case ModeLogin:
			s, err := NewLoginSession(ctx, cfg, log)
			if err != nil {
				return nil, err
			}
			return s, nil
		case ModeAttach:
			s, err := NewAttachedSession(ctx, cfg, log)
			if err != nil {
				return nil, err
			}
			return s, nil
		default:
			return nil, fmt.Errorf("%w: unknown session mode %q", ErrAcquireFailed, cfg.Mode)
		}
	})
	if err != nil {
		if !errors.Is(err, ErrAcquireFailed) {
			err = fmt.Errorf("%w: %w", ErrAcquireFailed, err)
		}
		return nil, err
	}

	log.Info("session acquired", logger.Field{Key: "mode", Value: string(cfg.Mode)})
	return session, nil
}
