package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carepoint/carepoint/internal/assignments"
	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/platform/httpx"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
)

// API serves the JSON surface for session introspection and role
// administration.
type API struct {
	logger  *slog.Logger
	service *assignments.Service
	engine  *rbac.Engine
	csrf    *shared.CSRFManager
}

// NewAPI constructs an API.
func NewAPI(logger *slog.Logger, service *assignments.Service, engine *rbac.Engine, csrf *shared.CSRFManager) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{logger: logger, service: service, engine: engine, csrf: csrf}
}

// MountRoutes registers /session, /authorize and /assignments on r. The
// request context must already carry the principal.
func (a *API) MountRoutes(r chi.Router) {
	mw := rbac.Middleware{Engine: a.engine, Subject: identity.SubjectFromContext, Logger: a.logger}

	r.Get("/session", a.session)
	r.Get("/authorize", a.authorize)
	r.Route("/assignments", func(r chi.Router) {
		r.Use(mw.RequireAll(rbac.PermRolesManage))
		r.Get("/", a.list)
		r.Post("/", a.assign)
		r.Get("/stats", a.stats)
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", a.get)
			r.Delete("/", a.revoke)
			r.Put("/role", a.changeRole)
			r.Put("/status", a.setStatus)
			r.Get("/history", a.history)
		})
	})
}

type sessionResponse struct {
	Principal *identity.Principal `json:"principal"`
	Pages     []string            `json:"pages"`
	Menu      []rbac.NavItem      `json:"menu"`
	CSRFToken string              `json:"csrf_token,omitempty"`
}

func (a *API) session(w http.ResponseWriter, r *http.Request) {
	p := identity.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	resp := sessionResponse{Principal: p, Pages: a.engine.AccessiblePages(p), Menu: a.engine.Menu(p)}
	if sess := shared.SessionFromContext(r.Context()); sess != nil && a.csrf != nil {
		resp.CSRFToken, _ = a.csrf.EnsureToken(r.Context(), sess)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type authorizeResponse struct {
	Permission string `json:"permission,omitempty"`
	Page       string `json:"page,omitempty"`
	Allowed    bool   `json:"allowed"`
}

// authorize answers a single permission or page question for the caller.
// An anonymous caller is always denied.
func (a *API) authorize(w http.ResponseWriter, r *http.Request) {
	subject := identity.SubjectFromContext(r.Context())
	q := r.URL.Query()
	resp := authorizeResponse{Permission: q.Get("permission"), Page: q.Get("page")}
	switch {
	case resp.Permission != "":
		resp.Allowed = a.engine.HasPermission(subject, resp.Permission)
	case resp.Page != "":
		resp.Allowed = a.engine.CanAccessPage(subject, resp.Page)
	default:
		httpx.RespondError(w, fmt.Errorf("%w: permission or page is required", httpx.ErrValidation))
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type assignRequest struct {
	IdentityKey string             `json:"identity_key"`
	Role        string             `json:"role"`
	Department  string             `json:"department"`
	Status      assignments.Status `json:"status"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type statusRequest struct {
	Status assignments.Status `json:"status"`
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := a.service.ListAssignments(r.Context(), assignments.Filter{
		Query:  q.Get("q"),
		Role:   rbac.RoleName(q.Get("role")),
		Status: assignments.Status(q.Get("status")),
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	item, err := a.service.Get(r.Context(), keyParam(r))
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.service.Stats(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (a *API) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	item, err := a.service.AssignRoleWithStatus(r.Context(), identity.SubjectFromContext(r.Context()), req.IdentityKey, req.Role, req.Department, req.Status)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (a *API) changeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	item, err := a.service.ChangeRole(r.Context(), identity.SubjectFromContext(r.Context()), keyParam(r), req.Role)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (a *API) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	item, err := a.service.SetStatus(r.Context(), identity.SubjectFromContext(r.Context()), keyParam(r), req.Status)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (a *API) revoke(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RevokeAccess(r.Context(), identity.SubjectFromContext(r.Context()), keyParam(r)); err != nil {
		a.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	changes, err := a.service.History(r.Context(), keyParam(r))
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": changes})
}

func (a *API) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assignments.ErrNotFound):
		err = fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, assignments.ErrInvalidRole), errors.Is(err, assignments.ErrInvalidInput):
		err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, assignments.ErrLastAdmin):
		err = fmt.Errorf("%w: %v", httpx.ErrConflict, err)
	case errors.Is(err, rbac.ErrForbidden):
	default:
		a.logger.Error("assignments api", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
