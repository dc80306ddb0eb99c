package actor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/outreach/internal/targets"
)

type sent struct {
	To   string
	Body string
}

// fakeSite is a minimal authenticated web interface with a listing, target
// pages, compose forms and a logout endpoint.
type fakeSite struct {
	*httptest.Server

	mu      sync.Mutex
	sent    []sent
	logouts int
	logins  int
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	site := &fakeSite{}
	mux := http.NewServeMux()

	loginForm := `<form id="login" action="/login" method="post">
		<input type="hidden" name="csrf" value="tok">
		<input type="text" name="username">
		<input type="password" name="password">
		<input type="submit" value="Sign in">
	</form>`

	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>"+loginForm+"</body></html>")
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("csrf") != "tok" || r.PostForm.Get("username") != "u" || r.PostForm.Get("password") != "p" {
			fmt.Fprint(w, "<html><body><p>wrong</p>"+loginForm+"</body></html>")
			return
		}
		site.mu.Lock()
		site.logins++
		site.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/home", http.StatusSeeOther)
	})

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie("sid")
			if err != nil || c.Value != "ok" {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("GET /home", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p class="welcome">hi</p></body></html>`)
	}))
	mux.HandleFunc("GET /list", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/home">Home</a>
			<a data-target-id="1" href="/u/1">Alice</a>
			<a href="/u/2">Bob</a>
			<a href="/profile?x=3">Carol</a>
			<a href="/u/4">Dave</a>
		</body></html>`)
	}))
	mux.HandleFunc("GET /u/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		switch id {
		case "2":
			fmt.Fprint(w, composePage(id))
		case "4":
			fmt.Fprint(w, `<html><body><p>no contact</p></body></html>`)
		default:
			fmt.Fprintf(w, `<html><body><a class="message" href="/msg/%s">Message</a></body></html>`, id)
		}
	}))
	mux.HandleFunc("GET /profile", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><a class="message" href="/msg/%s">Message</a></body></html>`, r.URL.Query().Get("x"))
	}))
	mux.HandleFunc("GET /msg/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, composePage(r.PathValue("id")))
	}))
	mux.HandleFunc("POST /send", authed(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		body := r.PostForm.Get("body")
		if strings.Contains(body, "boom") {
			http.Error(w, "failed", http.StatusInternalServerError)
			return
		}
		if strings.Contains(body, "reject") {
			fmt.Fprint(w, `<html><body><div class="error">blocked</div></body></html>`)
			return
		}
		site.mu.Lock()
		site.sent = append(site.sent, sent{To: r.PostForm.Get("to"), Body: body})
		site.mu.Unlock()
		fmt.Fprint(w, `<html><body><p>sent</p></body></html>`)
	}))
	mux.HandleFunc("GET /logout", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.logouts++
		site.mu.Unlock()
		fmt.Fprint(w, "<html><body>bye</body></html>")
	})

	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func composePage(id string) string {
	return fmt.Sprintf(`<html><body>
		<form id="compose" action="/send" method="post">
			<input type="hidden" name="to" value="%s">
			<textarea name="body"></textarea>
			<button type="submit">Send</button>
		</form>
	</body></html>`, id)
}

func (f *fakeSite) Sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func (f *fakeSite) Logouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

func (f *fakeSite) loginConfig() Config {
	return Config{
		Mode:       ModeLogin,
		BaseURL:    f.URL,
		ListingURL: "/list",
		LoginURL:   "/login",
		LogoutURL:  "/logout",
		Username:   "u",
		Password:   "p",
		Timeout:    5 * time.Second,
		Selectors:  Selectors{Failure: ".error"},
	}
}

func deliver(t *testing.T, s Session, rec targets.Record, text string) error {
	t.Helper()
	ctx := context.Background()
	if err := s.Navigate(ctx, rec); err != nil {
		return err
	}
	if err := s.OpenDeliveryChannel(ctx); err != nil {
		return err
	}
	if err := s.Compose(ctx, text); err != nil {
		return err
	}
	return s.Confirm(ctx)
}

func TestWebSession_DeliverViaListing(t *testing.T) {
	site := newFakeSite(t)
	s, err := NewLoginSession(context.Background(), site.loginConfig(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, deliver(t, s, targets.Record{TargetID: "1"}, "hello one"))
	require.NoError(t, deliver(t, s, targets.Record{TargetID: "2"}, "hello two"))
	require.NoError(t, deliver(t, s, targets.Record{TargetID: "x3", RecipientLabel: "Carol"}, "hello carol"))

	assert.Equal(t, []sent{
		{To: "1", Body: "hello one"},
		{To: "2", Body: "hello two"},
		{To: "3", Body: "hello carol"},
	}, site.Sent())
}

func TestWebSession_DeliverViaLocator(t *testing.T) {
	site := newFakeSite(t)
	s, err := NewLoginSession(context.Background(), site.loginConfig(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, deliver(t, s, targets.Record{TargetID: "77", Locator: "/msg/77"}, "direct"))
	assert.Equal(t, []sent{{To: "77", Body: "direct"}}, site.Sent())
}

func TestWebSession_NavigateUnknownTarget(t *testing.T) {
	site := newFakeSite(t)
	s, err := NewLoginSession(context.Background(), site.loginConfig(), nil)
	require.NoError(t, err)
	defer s.Close()

	err = s.Navigate(context.Background(), targets.Record{TargetID: "999"})

	require.ErrorIs(t, err, ErrNavigateFailed)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepNavigate, stepErr.Step)
	assert.Equal(t, "999", stepErr.Target)
}

func TestWebSession_ChannelNotFound(t *testing.T) {
	site := newFakeSite(t)
	s, err := NewLoginSession(context.Background(), site.loginConfig(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Navigate(context.Background(), targets.Record{TargetID: "4"}))
	err = s.OpenDeliveryChannel(context.Background())

	assert.ErrorIs(t, err, ErrChannelNotFound)
	assert.Empty(t, site.Sent())
}

func TestWebSession_ComposeWithoutChannel(t *testing.T) {
	site := newFakeSite(t)
	s, err := NewLoginSession(context.Background(), site.loginConfig(), nil)
	require.NoError(t, err)
	defer s.Close()

	err = s.Compose(context.Background(), "text")
	assert.ErrorIs(t, err, ErrComposeFailed)

	err = s.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrConfirmFailed)
}

func TestWebSession_ComposeFieldMissing(t *testing.T) {
	site := newFakeSite(t)
	cfg := site.loginConfig()
	cfg.Selectors.ComposeField = "message"
	s, err := NewLoginSession(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, targets.Record{TargetID: "1"}))
	require.NoError(t, s.OpenDeliveryChannel(ctx))
	assert.ErrorIs(t, s.Compose(ctx, "text"), ErrComposeFailed)
}

func TestWebSession_ConfirmFailures(t *testing.T) {
	site := newFakeSite(t)
	s, err := NewLoginSession(context.Background(), site.loginConfig(), nil)
	require.NoError(t, err)
	defer s.Close()

	err = deliver(t, s, targets.Record{TargetID: "1"}, "boom")
	assert.ErrorIs(t, err, ErrConfirmFailed)

	err = deliver(t, s, targets.Record{TargetID: "1"}, "reject me")
	assert.ErrorIs(t, err, ErrConfirmFailed)
	assert.Contains(t, err.Error(), "blocked")

	assert.Empty(t, site.Sent())
}

func TestWebSession_ConfirmTwiceDoesNotResend(t *testing.T) {
	site := newFakeSite(t)
	s, err := NewLoginSession(context.Background(), site.loginConfig(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, deliver(t, s, targets.Record{TargetID: "1"}, "once"))
	assert.ErrorIs(t, s.Confirm(context.Background()), ErrConfirmFailed)
	assert.Len(t, site.Sent(), 1)
}

func TestWebSession_OperationTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	s, err := newWebSession(Config{BaseURL: slow.URL, Timeout: 50 * time.Millisecond}, ModeAttach, nil)
	require.NoError(t, err)

	err = s.Navigate(context.Background(), targets.Record{TargetID: "1", Locator: "/u/1"})
	assert.ErrorIs(t, err, ErrNavigateFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebSession_TimeoutCoversWholeOperation(t *testing.T) {
	wait := func(r *http.Request, d time.Duration) {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /list", func(w http.ResponseWriter, r *http.Request) {
		wait(r, 150*time.Millisecond)
		fmt.Fprint(w, `<html><body><a data-target-id="1" href="/u/1">Alice</a></body></html>`)
	})
	mux.HandleFunc("GET /u/1", func(w http.ResponseWriter, r *http.Request) {
		wait(r, 150*time.Millisecond)
		fmt.Fprint(w, `<html><body><a class="message" href="/msg/1">Message</a></body></html>`)
	})
	slow := httptest.NewServer(mux)
	defer slow.Close()

	// Each request fits the timeout on its own; the two together do not.
	s, err := newWebSession(Config{BaseURL: slow.URL, ListingURL: "/list", Timeout: 250 * time.Millisecond}, ModeAttach, nil)
	require.NoError(t, err)

	err = s.Navigate(context.Background(), targets.Record{TargetID: "1"})
	assert.ErrorIs(t, err, ErrNavigateFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewLoginSession_Rejected(t *testing.T) {
	site := newFakeSite(t)
	cfg := site.loginConfig()
	cfg.Password = "wrong"

	_, err := NewLoginSession(context.Background(), cfg, nil)

	require.ErrorIs(t, err, ErrAcquireFailed)
	assert.Contains(t, err.Error(), "credentials rejected")
}

func TestNewLoginSession_MissingCredentials(t *testing.T) {
	site := newFakeSite(t)
	cfg := site.loginConfig()
	cfg.Username = ""

	_, err := NewLoginSession(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrAcquireFailed)
}

func TestWebSession_CloseLogsOutLoginSession(t *testing.T) {
	site := newFakeSite(t)
	s, err := NewLoginSession(context.Background(), site.loginConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, site.Logouts())
	assert.ErrorIs(t, s.Navigate(context.Background(), targets.Record{TargetID: "1"}), ErrNavigateFailed)
}

func TestNewAttachedSession(t *testing.T) {
	site := newFakeSite(t)
	cfg := Config{
		Mode:       ModeAttach,
		Endpoint:   site.URL + "/home",
		ListingURL: "/list",
		LogoutURL:  "/logout",
		Cookie:     "sid=ok",
		Timeout:    5 * time.Second,
	}

	s, err := NewAttachedSession(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeAttach, s.Mode())

	require.NoError(t, deliver(t, s, targets.Record{TargetID: "1"}, "attached"))
	require.NoError(t, s.Close())

	assert.Equal(t, []sent{{To: "1", Body: "attached"}}, site.Sent())
	assert.Zero(t, site.Logouts(), "attached session must never log out")
}

func TestNewAttachedSession_Unauthenticated(t *testing.T) {
	site := newFakeSite(t)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "stale cookie", cfg: Config{Endpoint: site.URL + "/home", Cookie: "sid=stale"}},
		{name: "no cookie", cfg: Config{Endpoint: site.URL + "/home"}},
		{name: "no endpoint", cfg: Config{Cookie: "sid=ok"}},
		{name: "required marker absent", cfg: Config{
			Endpoint:  site.URL + "/home",
			Cookie:    "sid=ok",
			Selectors: Selectors{Authenticated: "#dashboard"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAttachedSession(context.Background(), tt.cfg, nil)
			assert.ErrorIs(t, err, ErrAcquireFailed)
		})
	}
}

func TestAcquire_Modes(t *testing.T) {
	site := newFakeSite(t)

	s, err := Acquire(context.Background(), site.loginConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Acquire(context.Background(), Config{Mode: "telepathy"}, nil)
	assert.ErrorIs(t, err, ErrAcquireFailed)
}

func TestAcquire_RetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer flaky.Close()

	cfg := Config{
		Mode:            ModeLogin,
		BaseURL:         flaky.URL,
		LoginURL:        "/login",
		Username:        "u",
		Password:        "p",
		Timeout:         time.Second,
		AcquireAttempts: 2,
		AcquireBackoff:  10 * time.Millisecond,
	}

	_, err := Acquire(context.Background(), cfg, nil)

	require.ErrorIs(t, err, ErrAcquireFailed)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
	mu.Lock()
	assert.Equal(t, 2, hits)
	mu.Unlock()
}

func TestAcquire_RejectedCredentialsNotRetried(t *testing.T) {
	site := newFakeSite(t)
	cfg := site.loginConfig()
	cfg.Password = "wrong"
	cfg.AcquireAttempts = 3
	cfg.AcquireBackoff = time.Hour

	_, err := Acquire(context.Background(), cfg, nil)

	require.ErrorIs(t, err, ErrAcquireFailed)
	assert.NotContains(t, err.Error(), "attempts failed")
}

func TestStepError(t *testing.T) {
	err := &StepError{Step: StepCompose, Target: "42", Err: ErrComposeFailed}

	assert.Equal(t, "compose 42: actor: compose failed", err.Error())
	assert.ErrorIs(t, err, ErrComposeFailed)
}
