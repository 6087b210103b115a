package e2e

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/carepoint/carepoint/internal/app"
	"github.com/carepoint/carepoint/internal/assignments"
	"github.com/carepoint/carepoint/internal/auth"
	"github.com/carepoint/carepoint/internal/observability"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
	_ "github.com/carepoint/carepoint/testing"
)

const password = "correct-horse-9"

var csrfField = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

type audited struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *audited) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

func (a *audited) snapshot() []shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]shared.AuditLog(nil), a.entries...)
}

type system struct {
	app     *app.Application
	server  *httptest.Server
	store   *assignments.MemoryStore
	audit   *audited
	metrics *observability.Metrics
}

func newSystem(t *testing.T) *system {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &app.Config{
		AppEnv:                 "test",
		AppRequestTimeout:      5 * time.Second,
		SessionSecret:          "session-secret",
		SessionTTL:             time.Hour,
		CSRFSecret:             "csrf-secret",
		IdentityResolveTimeout: time.Second,
		PrincipalMaxAge:        time.Minute,
		RateLimitPerMinute:     1000,
		LoginLimitPerMinute:    100,
	}
	store := assignments.NewMemoryStore()
	audit := &audited{}
	metrics := observability.NewMetrics()
	application, err := app.Build(app.Backends{
		Config:      cfg,
		Sessions:    shared.NewSessionManager(client, "carepoint_session", cfg.SessionSecret, cfg.SessionTTL, false),
		Accounts:    auth.NewMemoryRepository(),
		Assignments: store,
		Audit:       audit,
		Metrics:     metrics,
	})
	require.NoError(t, err)
	t.Cleanup(application.Close)

	server := httptest.NewServer(application.Handler)
	t.Cleanup(server.Close)
	return &system{app: application, server: server, store: store, audit: audit, metrics: metrics}
}

// account registers an identity and, when role is set, binds it through the
// system actor.
func (s *system) account(t *testing.T, email string, role rbac.RoleName) {
	t.Helper()
	ctx := context.Background()
	_, err := s.app.Provider.Register(ctx, email, "", password)
	require.NoError(t, err)
	if role != "" {
		_, err = s.app.Assignments.AssignRole(ctx, assignments.SystemActor, email, string(role), "")
		require.NoError(t, err)
	}
}

type browser struct {
	t      *testing.T
	base   string
	client *http.Client
	csrf   string
}

func (s *system) browser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: s.server.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type page struct {
	status   int
	location string
	body     string
}

func (b *browser) do(req *http.Request) page {
	b.t.Helper()
	res, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(b.t, err)
	body := string(data)
	if m := csrfField.FindStringSubmatch(body); m != nil {
		b.csrf = m[1]
	}
	return page{status: res.StatusCode, location: res.Header.Get("Location"), body: body}
}

func (b *browser) get(path string) page {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values) page {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", b.csrf)
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) postJSON(path, body string) page {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(body))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", b.csrf)
	return b.do(req)
}

func (b *browser) login(email string) page {
	b.t.Helper()
	b.get("/auth/login")
	return b.post("/auth/login", url.Values{"email": {email}, "password": {password}})
}
