package actor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/aatumaykin/outreach/internal/logger"
	"github.com/aatumaykin/outreach/internal/targets"
)

const maxPageBytes = 5 << 20

type page struct {
	url *url.URL
	doc *goquery.Document
}

// WebSession is a Session over plain HTTP with a cookie jar.
type WebSession struct {
	cfg    Config
	mode   Mode
	client *http.Client
	base   *url.URL
	logger *logger.Logger

	target   targets.Record
	current  *page
	form     *htmlForm
	composed bool

	closeOnce sync.Once
	closed    bool
}

// Mode reports how the session was acquired.
func (s *WebSession) Mode() Mode {
	return s.mode
}

// Navigate loads the target's page, either from its locator or by following
// its link on the listing view.
func (s *WebSession) Navigate(ctx context.Context, target targets.Record) error {
	s.target = target
	s.current = nil
	s.form = nil
	s.composed = false

	if err := s.checkOpen(); err != nil {
		return s.stepErr(StepNavigate, ErrNavigateFailed, err)
	}

	s.logger.Debug("navigating", logger.Field{Key: "target_id", Value: target.TargetID})

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if target.Locator != "" {
		u, err := s.resolve(target.Locator)
		if err != nil {
			return s.stepErr(StepNavigate, ErrNavigateFailed, err)
		}
		p, err := s.fetch(ctx, http.MethodGet, u, nil)
		if err != nil {
			return s.stepErr(StepNavigate, ErrNavigateFailed, err)
		}
		s.current = p
		return nil
	}

	listing, err := s.resolve(s.cfg.ListingURL)
	if err != nil {
		return s.stepErr(StepNavigate, ErrNavigateFailed, err)
	}
	p, err := s.fetch(ctx, http.MethodGet, listing, nil)
	if err != nil {
		return s.stepErr(StepNavigate, ErrNavigateFailed, err)
	}

	href, ok := findTargetLink(p.doc, s.cfg.Selectors.ListingLink, target)
	if !ok {
		return s.stepErr(StepNavigate, ErrNavigateFailed, errors.New("no listing link for target"))
	}
	ref, err := url.Parse(href)
	if err != nil {
		return s.stepErr(StepNavigate, ErrNavigateFailed, err)
	}

	p, err = s.fetch(ctx, http.MethodGet, p.url.ResolveReference(ref), nil)
	if err != nil {
		return s.stepErr(StepNavigate, ErrNavigateFailed, err)
	}
	s.current = p
	return nil
}

// OpenDeliveryChannel locates the compose form, following the message link
// from the target page when the form is not already there.
func (s *WebSession) OpenDeliveryChannel(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return s.stepErr(StepOpenChannel, ErrChannelNotFound, err)
	}
	if s.current == nil {
		return s.stepErr(StepOpenChannel, ErrChannelNotFound, errors.New("no target page loaded"))
	}

	if f, err := s.composeForm(s.current); err != nil || f != nil {
		if err != nil {
			return s.stepErr(StepOpenChannel, ErrChannelNotFound, err)
		}
		s.form = f
		return nil
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	link := s.current.doc.Find(s.cfg.Selectors.MessageLink).First()
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return s.stepErr(StepOpenChannel, ErrChannelNotFound, errors.New("no message link on target page"))
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return s.stepErr(StepOpenChannel, ErrChannelNotFound, err)
	}

	p, err := s.fetch(ctx, http.MethodGet, s.current.url.ResolveReference(ref), nil)
	if err != nil {
		return s.stepErr(StepOpenChannel, ErrChannelNotFound, err)
	}
	s.current = p

	f, err := s.composeForm(p)
	if err != nil {
		return s.stepErr(StepOpenChannel, ErrChannelNotFound, err)
	}
	if f == nil {
		return s.stepErr(StepOpenChannel, ErrChannelNotFound, errors.New("no compose form behind message link"))
	}
	s.form = f
	return nil
}

// Compose fills the compose field of the open delivery channel.
func (s *WebSession) Compose(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return s.stepErr(StepCompose, ErrComposeFailed, err)
	}
	if s.form == nil {
		return s.stepErr(StepCompose, ErrComposeFailed, errors.New("no delivery channel open"))
	}
	if !s.form.set(s.cfg.Selectors.ComposeField, text) {
		return s.stepErr(StepCompose, ErrComposeFailed,
			fmt.Errorf("compose field %q not found", s.cfg.Selectors.ComposeField))
	}
	s.composed = true
	return nil
}

// Confirm submits the composed form.
func (s *WebSession) Confirm(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return s.stepErr(StepConfirm, ErrConfirmFailed, err)
	}
	if s.form == nil || !s.composed {
		return s.stepErr(StepConfirm, ErrConfirmFailed, errors.New("nothing composed"))
	}

	f := s.form
	s.form = nil
	s.composed = false

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	p, err := s.fetch(ctx, f.method, f.action, f.values)
	if err != nil {
		return s.stepErr(StepConfirm, ErrConfirmFailed, err)
	}
	s.current = p

	if sel := s.cfg.Selectors.Failure; sel != "" {
		if hit := p.doc.Find(sel).First(); hit.Length() > 0 {
			return s.stepErr(StepConfirm, ErrConfirmFailed,
				fmt.Errorf("remote reported failure: %s", strings.TrimSpace(hit.Text())))
		}
	}
	return nil
}

// Close releases the session. Login sessions are logged out; attached
// sessions only drop local connections. Close is idempotent.
func (s *WebSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true

		if s.mode == ModeLogin && s.cfg.LogoutURL != "" {
			if u, err := s.resolve(s.cfg.LogoutURL); err == nil {
				ctx, cancel := s.bounded(context.Background())
				_, err := s.fetch(ctx, http.MethodGet, u, nil)
				cancel()
				if err != nil {
					s.logger.Warn("logout failed", logger.Field{Key: "error", Value: err.Error()})
				}
			}
		}

		s.client.CloseIdleConnections()
		s.logger.Debug("session closed", logger.Field{Key: "mode", Value: string(s.mode)})
	})
	return nil
}

func (s *WebSession) checkOpen() error {
	if s.closed {
		return errors.New("session closed")
	}
	return nil
}

func (s *WebSession) stepErr(step string, sentinel, cause error) error {
	return &StepError{
		Step:   step,
		Target: s.target.TargetID,
		Err:    fmt.Errorf("%w: %w", sentinel, cause),
	}
}

func (s *WebSession) composeForm(p *page) (*htmlForm, error) {
	sel := p.doc.Find(s.cfg.Selectors.ComposeForm).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	return parseForm(sel, p.url)
}

func (s *WebSession) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", raw, err)
	}
	if s.base == nil {
		if !ref.IsAbs() {
			return nil, fmt.Errorf("relative url %q without base url", raw)
		}
		return ref, nil
	}
	return s.base.ResolveReference(ref), nil
}

// bounded limits one whole operation, however many requests it makes, to the
// configured timeout.
func (s *WebSession) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// fetch performs one request and parses the response as HTML. The caller's
// context carries the operation deadline.
func (s *WebSession) fetch(ctx context.Context, method string, u *url.URL, values url.Values) (*page, error) {
	target := *u
	var body io.Reader
	if values != nil {
		if method == http.MethodGet {
			target.RawQuery = values.Encode()
		} else {
			body = strings.NewReader(values.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, u.Path, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	return &page{url: resp.Request.URL, doc: doc}, nil
}

// findTargetLink returns the href of the first link matching target by
// data-target-id, by the last path segment of href, or by its text.
func findTargetLink(doc *goquery.Document, selector string, target targets.Record) (string, bool) {
	var href string
	doc.Find(selector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, ok := a.Attr("href")
		if !ok || strings.TrimSpace(h) == "" {
			return true
		}
		h = strings.TrimSpace(h)

		if id, ok := a.Attr("data-target-id"); ok && strings.TrimSpace(id) == target.TargetID {
			href = h
			return false
		}
		if u, err := url.Parse(h); err == nil && path.Base(strings.TrimSuffix(u.Path, "/")) == target.TargetID {
			href = h
			return false
		}
		text := strings.TrimSpace(a.Text())
		if text != "" && (strings.EqualFold(text, target.TargetID) ||
			(target.RecipientLabel != "" && strings.EqualFold(text, target.RecipientLabel))) {
			href = h
			return false
		}
		return true
	})
	return href, href != ""
}
