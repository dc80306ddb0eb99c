package actor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/aatumaykin/outreach/internal/logger"
)

func newWebSession(cfg Config, mode Mode, log *logger.Logger) (*WebSession, error) {
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.WithDefaults()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	s := &WebSession{
		cfg:    cfg,
		mode:   mode,
		client: &http.Client{Jar: jar},
		logger: log,
	}

	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		s.base = base
	}
	return s, nil
}

// NewLoginSession signs in with username and password through the login form.
func NewLoginSession(ctx context.Context, cfg Config, log *logger.Logger) (*WebSession, error) {
	s, err := newWebSession(cfg, ModeLogin, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquireFailed, err)
	}
	cfg = s.cfg

	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrAcquireFailed)
	}

	loginURL, err := s.resolve(cfg.LoginURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquireFailed, err)
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	p, err := s.fetch(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: load login page: %w", ErrAcquireFailed, err)
	}

	sel := p.doc.Find(cfg.Selectors.LoginForm).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: login form not found", ErrAcquireFailed)
	}
	form, err := parseForm(sel, p.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquireFailed, err)
	}
	if !form.set(cfg.Selectors.UsernameField, cfg.Username) || !form.set(cfg.Selectors.PasswordField, cfg.Password) {
		return nil, fmt.Errorf("%w: login form lacks credential fields", ErrAcquireFailed)
	}

	p, err = s.fetch(ctx, form.method, form.action, form.values)
	if err != nil {
		return nil, fmt.Errorf("%w: submit login: %w", ErrAcquireFailed, err)
	}
	if p.doc.Find(cfg.Selectors.LoginForm).Length() > 0 {
		return nil, fmt.Errorf("%w: credentials rejected", ErrAcquireFailed)
	}

	s.current = p
	s.logger.Debug("logged in", logger.Field{Key: "user", Value: cfg.Username})
	return s, nil
}

// NewAttachedSession reuses an already authenticated session identified by
// cookie at endpoint. The remote session is never logged out.
func NewAttachedSession(ctx context.Context, cfg Config, log *logger.Logger) (*WebSession, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: attach mode requires an endpoint", ErrAcquireFailed)
	}
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || !endpoint.IsAbs() {
		return nil, fmt.Errorf("%w: invalid endpoint %q", ErrAcquireFailed, cfg.Endpoint)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host, Path: "/"}).String()
	}

	s, err := newWebSession(cfg, ModeAttach, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquireFailed, err)
	}
	cfg = s.cfg

	cookies, err := parseCookies(cfg.Cookie)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquireFailed, err)
	}
	s.client.Jar.SetCookies(endpoint, cookies)

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	p, err := s.fetch(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: reach endpoint: %w", ErrAcquireFailed, err)
	}

	authenticated := p.doc.Find(cfg.Selectors.LoginForm).Length() == 0
	if cfg.Selectors.Authenticated != "" {
		authenticated = p.doc.Find(cfg.Selectors.Authenticated).Length() > 0
	}
	if !authenticated {
		return nil, fmt.Errorf("%w: endpoint session is not authenticated", ErrAcquireFailed)
	}

	s.current = p
	s.logger.Debug("attached to session", logger.Field{Key: "endpoint", Value: endpoint.Host})
	return s, nil
}

// parseCookies reads a Cookie header value ("a=1; b=2").
func parseCookies(raw string) ([]*http.Cookie, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("attach mode requires a session cookie")
	}
	cookies, err := http.ParseCookie(raw)
	if err != nil {
		return nil, fmt.Errorf("parse session cookie: %w", err)
	}
	for _, c := range cookies {
		c.Path = "/"
	}
	return cookies, nil
}
