package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/carepoint/carepoint/internal/assignments"
	"github.com/carepoint/carepoint/internal/auth"
	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
	"github.com/carepoint/carepoint/internal/view"
	_ "github.com/carepoint/carepoint/testing"
)

type stubRepo struct {
	accounts map[string]*auth.Account
	err      error
	sessions map[string]string
}

func newStubRepo() *stubRepo {
	return &stubRepo{accounts: map[string]*auth.Account{}, sessions: map[string]string{}}
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.accounts[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

func (s *stubRepo) CreateAccount(ctx context.Context, a auth.Account) error {
	if _, ok := s.accounts[a.Email]; ok {
		return auth.ErrEmailTaken
	}
	s.accounts[a.Email] = &a
	return nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, accountID string, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = accountID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type harness struct {
	handler  *auth.Handler
	provider *auth.Provider
	resolver *identity.Resolver
	sessions *shared.SessionManager
	store    *assignments.MemoryStore
	repo     *stubRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	reg := rbac.DefaultRegistry()
	engine := rbac.NewEngine(reg, nil)
	templates, err := view.NewEngine(engine)
	require.NoError(t, err)

	repo := newStubRepo()
	store := assignments.NewMemoryStore()
	provider := auth.NewProvider(repo)
	resolver := identity.NewResolver(store, reg, identity.ResolverConfig{Timeout: time.Second}, nil)
	return &harness{
		handler:  auth.NewHandler(nil, provider, resolver, templates, sessionManager, csrfManager),
		provider: provider,
		resolver: resolver,
		sessions: sessionManager,
		store:    store,
		repo:     repo,
	}
}

func (h *harness) account(t *testing.T, email, password string) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	h.repo.accounts[email] = &auth.Account{ID: "id-" + email, Email: email, DisplayName: "Test User", PasswordHash: string(hashed), IsActive: true}
}

func (h *harness) assign(t *testing.T, email string, role rbac.RoleName) {
	t.Helper()
	require.NoError(t, h.store.UpsertAssignment(context.Background(), assignments.RoleAssignment{
		IdentityKey: email, Role: role, Status: assignments.StatusActive,
	}, nil))
}

// committingWriter commits the session before the first header write, the
// way the session middleware does, so Set-Cookie reaches the recorder.
type committingWriter struct {
	*httptest.ResponseRecorder
	commit    func() error
	committed bool
	err       error
}

func (w *committingWriter) WriteHeader(code int) {
	if !w.committed {
		w.committed = true
		w.err = w.commit()
	}
	w.ResponseRecorder.WriteHeader(code)
}

func (w *committingWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseRecorder.Write(b)
}

// serve runs fn with a session loaded from redis, committing it as the
// response starts.
func (h *harness) serve(t *testing.T, req *http.Request, fn http.HandlerFunc) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	w := &committingWriter{ResponseRecorder: rec}
	w.commit = func() error { return h.sessions.Commit(ctx, rec, req, sess) }
	fn(w, req)
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	require.NoError(t, w.err)
	return rec, sess
}

func loginRequest(email, password string) *http.Request {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPage(t *testing.T) {
	h := newHarness(t)

	res, sess := h.serve(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil), h.handler.ShowLoginForTest)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
	assert.NotEmpty(t, sess.Get(shared.CSRFSessionKey))
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.account(t, "user@h.com", "correctpass")
	h.assign(t, "user@h.com", rbac.RoleNurse)

	res, sess := h.serve(t, loginRequest("user@h.com", "wrongpass"), h.handler.HandleLoginForTest)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password.")
	assert.Nil(t, h.resolver.CurrentPrincipal(sess))
}

func TestLoginValidationErrors(t *testing.T) {
	h := newHarness(t)

	res, _ := h.serve(t, loginRequest("not-an-email", "short"), h.handler.HandleLoginForTest)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Email")
}

func TestLoginWithoutAssignmentIsDenied(t *testing.T) {
	h := newHarness(t)
	h.account(t, "b@h.com", "password123")

	res, sess := h.serve(t, loginRequest("b@h.com", "password123"), h.handler.HandleLoginForTest)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), auth.NoAccessMessage)
	assert.Nil(t, h.resolver.CurrentPrincipal(sess))
	assert.Empty(t, sess.User())
	assert.Empty(t, h.repo.sessions)
}

func TestLoginRedirectsToLandingPage(t *testing.T) {
	h := newHarness(t)
	h.account(t, "lab@h.com", "password123")
	h.assign(t, "lab@h.com", rbac.RoleLab)

	var events []auth.Event
	unsubscribe := h.provider.Subscribe(func(e auth.Event) { events = append(events, e) })
	defer unsubscribe()

	res, sess := h.serve(t, loginRequest("LAB@h.com", "password123"), h.handler.HandleLoginForTest)
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/pages/lab.html", res.Header().Get("Location"))

	p := h.resolver.CurrentPrincipal(sess)
	require.NotNil(t, p)
	assert.Equal(t, rbac.RoleLab, p.Role)
	assert.Equal(t, "id-lab@h.com", sess.User())
	assert.Contains(t, h.repo.sessions, sess.ID)
	require.Len(t, events, 1)
	assert.Equal(t, auth.EventSignedIn, events[0].Kind)
	assert.Equal(t, "lab@h.com", events[0].Identity.Email)
}

func TestLoginStoreFailureOffersRetry(t *testing.T) {
	h := newHarness(t)
	h.account(t, "a@h.com", "password123")
	h.store.FailWith(errors.New("dial tcp: connection refused"))

	res, sess := h.serve(t, loginRequest("a@h.com", "password123"), h.handler.HandleLoginForTest)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Contains(t, res.Body.String(), "try again")
	assert.Nil(t, h.resolver.CurrentPrincipal(sess))

	h.repo.err = errors.Join(shared.ErrStore, errors.New("identity db down"))
	res, _ = h.serve(t, loginRequest("a@h.com", "password123"), h.handler.HandleLoginForTest)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestLogoutClearsPrincipal(t *testing.T) {
	h := newHarness(t)
	h.account(t, "a@h.com", "password123")
	h.assign(t, "a@h.com", rbac.RoleNurse)

	login, loginSess := h.serve(t, loginRequest("a@h.com", "password123"), h.handler.HandleLoginForTest)
	require.Equal(t, http.StatusSeeOther, login.Code)
	cookies := login.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, loginSess.ID, cookies[0].Value)
	require.Contains(t, h.repo.sessions, loginSess.ID)

	var kinds []auth.EventKind
	h.provider.Subscribe(func(e auth.Event) { kinds = append(kinds, e.Kind) })

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookies[0])
	var seen *identity.Principal
	res, sess := h.serve(t, req, func(w http.ResponseWriter, r *http.Request) {
		seen = h.resolver.CurrentPrincipal(shared.SessionFromContext(r.Context()))
		h.handler.HandleLogoutForTest(w, r)
	})
	assert.Equal(t, http.StatusSeeOther, res.Code)
	require.NotNil(t, seen, "logout ran against the signed-in session")
	assert.Equal(t, "a@h.com", seen.Email)
	assert.Equal(t, loginSess.ID, sess.ID)
	assert.Nil(t, h.resolver.CurrentPrincipal(sess))
	assert.Equal(t, []auth.EventKind{auth.EventSignedOut}, kinds)
	assert.Empty(t, h.repo.sessions)

	cleared := res.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(cookies[0])
	reloaded, err := h.sessions.Load(context.Background(), again)
	require.NoError(t, err)
	assert.NotEqual(t, loginSess.ID, reloaded.ID)
	assert.Nil(t, h.resolver.CurrentPrincipal(reloaded))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.provider.Register(ctx, " New@h.com ", "New Person", "password123")
	require.NoError(t, err)
	assert.Equal(t, "new@h.com", id.Email)
	assert.NotEmpty(t, id.ID)

	_, err = h.provider.Register(ctx, "new@h.com", "Again", "password123")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	got, err := h.provider.Authenticate(ctx, auth.Credentials{Email: "NEW@h.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
