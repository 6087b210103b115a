package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
	"github.com/carepoint/carepoint/internal/view"
)

// NoAccessMessage is shown when an identity signs in without an assignment.
const NoAccessMessage = "You do not have access. Contact Admin."

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	provider       *Provider
	resolver       *identity.Resolver
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, provider *Provider, resolver *identity.Resolver, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		provider:       provider,
		resolver:       resolver,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router. loginLimit, when
// non-nil, wraps the credential POST.
func (h *Handler) MountRoutes(r chi.Router, loginLimit func(http.Handler) http.Handler) {
	r.Get("/login", h.showLogin)
	if loginLimit != nil {
		r.With(loginLimit).Post("/login", h.handleLogin)
	} else {
		r.Post("/login", h.handleLogin)
	}
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email string
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
	Retry  bool
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if p := h.resolver.CurrentPrincipal(sess); p != nil {
		http.Redirect(w, r, rbac.PagePath(p.LandingPage), http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, http.StatusOK, loginPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)

	creds := Credentials{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	data := loginPageData{Form: loginForm{Email: creds.Email}, Errors: make(map[string]string)}
	if err := h.validator.Struct(creds); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				data.Errors[fieldErr.Field()] = fieldErr.Error()
			}
		}
		h.renderLogin(w, r, http.StatusBadRequest, data)
		return
	}

	id, err := h.provider.Authenticate(ctx, creds)
	if err != nil {
		h.loginFailed(w, r, data, err)
		return
	}

	h.sessionManager.Renew(sess)
	principal, err := h.resolver.ResolvePrincipal(ctx, sess, id)
	if err != nil {
		h.loginFailed(w, r, data, err)
		return
	}

	if sess != nil {
		expiresAt := time.Now().Add(h.sessionManager.TTL())
		if err := h.provider.SignIn(ctx, sess.ID, id, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + principal.Name()})
	} else {
		h.logger.Error("session missing during login")
	}
	http.Redirect(w, r, rbac.PagePath(principal.LandingPage), http.StatusSeeOther)
}

func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, data loginPageData, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, identity.ErrNoAssignment):
		status = http.StatusForbidden
		data.Errors["general"] = NoAccessMessage
	case errors.Is(err, shared.ErrStore):
		status = http.StatusServiceUnavailable
		data.Errors["general"] = shared.UserSafeMessage(err)
		data.Retry = true
		h.logger.Error("login store failure", slog.Any("error", err))
	default:
		data.Errors["general"] = shared.UserSafeMessage(shared.ErrInvalidCredentials)
	}
	h.renderLogin(w, r, status, data)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		p := h.resolver.CurrentPrincipal(sess)
		if err := h.provider.SignOut(r.Context(), sess.ID, p.Identity(), r.RemoteAddr); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.resolver.ClearSession(sess)
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
