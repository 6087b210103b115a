package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carepoint/carepoint/internal/assignments"
	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
	"github.com/carepoint/carepoint/internal/view"
)

const perPage = 25

// Handler serves the role administration screens.
type Handler struct {
	logger    *slog.Logger
	service   *assignments.Service
	engine    *rbac.Engine
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *assignments.Service, engine *rbac.Engine, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, engine: engine, templates: templates, csrf: csrf}
}

// MountRoutes registers the admin routes. Callers gate r behind the admin
// page guard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.assign)
	r.Get("/export.csv", h.exportCSV)
	r.Route("/{key}", func(r chi.Router) {
		r.Get("/history", h.history)
		r.Post("/role", h.changeRole)
		r.Post("/status", h.setStatus)
		r.Post("/revoke", h.revoke)
	})
}

type assignForm struct {
	Email      string
	Role       string
	Department string
	Status     string
}

type listPageData struct {
	Query       string
	Assignments []assignments.RoleAssignment
	Stats       assignments.Stats
	Roles       []rbac.Role
	Grants      []roleGrants
	Pagination  shared.Pagination
	Form        assignForm
	Errors      map[string]string
}

type historyPageData struct {
	IdentityKey string
	Current     *assignments.RoleAssignment
	Grants      *roleGrants
	Changes     []assignments.AssignmentChange
}

// roleGrants is what a role unlocks, shown before an admin assigns it.
type roleGrants struct {
	Role           rbac.RoleName
	Label          string
	Landing        rbac.NavItem
	Pages          []rbac.NavItem
	Permissions    []string
	AllPermissions bool
}

func grantsFor(role rbac.Role) roleGrants {
	g := roleGrants{Role: role.Name, Label: role.Label}
	for _, item := range rbac.Navigation() {
		if item.Page == role.LandingPage {
			g.Landing = item
		}
		if slices.Contains(role.Pages, item.Page) {
			g.Pages = append(g.Pages, item)
		}
	}
	if slices.Contains(role.Permissions, rbac.PermissionAll) {
		g.AllPermissions = true
	} else {
		g.Permissions = role.Permissions
	}
	return g
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, http.StatusOK, assignForm{Status: string(assignments.StatusActive)}, nil)
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, status int, form assignForm, formErrors map[string]string) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")
	items, err := h.service.ListAssignments(ctx, assignments.Filter{Query: query})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pagination := shared.NewPagination(page, perPage, len(items))
	roles := h.service.Roles()
	grants := make([]roleGrants, 0, len(roles))
	for _, role := range roles {
		grants = append(grants, grantsFor(role))
	}
	data := listPageData{
		Query:       query,
		Assignments: shared.Paginate(items, pagination),
		Stats:       stats,
		Roles:       roles,
		Grants:      grants,
		Pagination:  pagination,
		Form:        form,
		Errors:      formErrors,
	}
	h.render(w, r, status, "pages/admin_assignments.html", "Role assignments", data)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := assignForm{
		Email:      r.PostFormValue("email"),
		Role:       r.PostFormValue("role"),
		Department: r.PostFormValue("department"),
		Status:     r.PostFormValue("status"),
	}
	ctx := r.Context()
	actor := identity.SubjectFromContext(ctx)
	assignment, err := h.service.AssignRoleWithStatus(ctx, actor, form.Email, form.Role, form.Department, assignments.Status(form.Status))
	if err != nil {
		if msg, ok := formMessage(err); ok {
			h.renderList(w, r, http.StatusBadRequest, form, map[string]string{"general": msg})
			return
		}
		h.fail(w, r, err)
		return
	}
	landing := ""
	if role, ok := h.engine.Registry().Get(string(assignment.Role)); ok {
		landing = rbac.PagePath(role.LandingPage)
	}
	h.flash(r, "success", "Role assigned to "+assignment.IdentityKey+". They will land on "+landing+" after sign-in.")
	http.Redirect(w, r, "/admin/assignments", http.StatusSeeOther)
}

// keyParam returns the {key} path segment decoded and normalised. chi
// matches on the escaped path, so "a%40h.com" arrives still encoded.
func keyParam(r *http.Request) string {
	raw := chi.URLParam(r, "key")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return assignments.NormalizeKey(raw)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	_, err := h.service.ChangeRole(r.Context(), identity.SubjectFromContext(r.Context()), key, r.PostFormValue("role"))
	h.afterMutation(w, r, err, "Role updated for "+key+".")
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	status := assignments.Status(r.PostFormValue("status"))
	_, err := h.service.SetStatus(r.Context(), identity.SubjectFromContext(r.Context()), key, status)
	h.afterMutation(w, r, err, "Status set to "+string(status)+" for "+key+".")
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	err := h.service.RevokeAccess(r.Context(), identity.SubjectFromContext(r.Context()), key)
	h.afterMutation(w, r, err, "Access revoked for "+key+".")
}

func (h *Handler) afterMutation(w http.ResponseWriter, r *http.Request, err error, success string) {
	if err != nil {
		if msg, ok := formMessage(err); ok {
			h.flash(r, "error", msg)
			http.Redirect(w, r, "/admin/assignments", http.StatusSeeOther)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.flash(r, "success", success)
	http.Redirect(w, r, "/admin/assignments", http.StatusSeeOther)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	data := historyPageData{IdentityKey: key}
	current, err := h.service.Get(r.Context(), key)
	switch {
	case err == nil:
		data.Current = &current
		if role, ok := h.engine.Registry().Get(string(current.Role)); ok {
			g := grantsFor(role)
			data.Grants = &g
		}
	case !errors.Is(err, assignments.ErrNotFound):
		h.fail(w, r, err)
		return
	}
	data.Changes, err = h.service.History(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/admin_history.html", "History", data)
}

// formMessage returns inline text for errors the admin can correct.
func formMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, rbac.ErrForbidden):
		return "You are not allowed to manage role assignments.", true
	case errors.Is(err, assignments.ErrInvalidRole):
		return "Choose one of the listed roles.", true
	case errors.Is(err, assignments.ErrInvalidInput):
		return "Enter a valid email address.", true
	case errors.Is(err, assignments.ErrNotFound):
		return "No assignment exists for that identity.", true
	case errors.Is(err, assignments.ErrLastAdmin):
		return "At least one active Admin must remain.", true
	}
	return "", false
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("role administration", slog.String("path", r.URL.Path), slog.Any("error", err))
	if errors.Is(err, shared.ErrStore) {
		h.render(w, r, http.StatusServiceUnavailable, "pages/unavailable.html", "Unavailable", nil)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) flash(r *http.Request, kind, msg string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: msg})
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	p := identity.PrincipalFromContext(ctx)
	var token string
	if sess != nil {
		token, _ = h.csrf.EnsureToken(ctx, sess)
	}
	td := view.TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: "/admin/assignments",
		Principal:   p,
		Nav:         h.engine.Menu(p),
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, name, td); err != nil {
		h.logger.Error("render admin page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
