package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
	"github.com/carepoint/carepoint/internal/view"
)

// LoginPath is where visitors without a principal are sent.
const LoginPath = "/auth/login"

// PageInit prepares page-specific data for an authorized principal.
type PageInit func(ctx context.Context, p *identity.Principal) (any, error)

// Renderer turns guard decisions into HTTP responses.
type Renderer struct {
	guard     *Guard
	templates *view.Engine
	csrf      *shared.CSRFManager
	logger    *slog.Logger
	observe   func(Decision)
}

// NewRenderer constructs a Renderer. observe, when set, sees every decision.
func NewRenderer(g *Guard, templates *view.Engine, csrf *shared.CSRFManager, observe func(Decision)) *Renderer {
	return &Renderer{guard: g, templates: templates, csrf: csrf, logger: g.logger, observe: observe}
}

// Require gates next behind pageID. Authorized requests carry the
// principal in their context.
func (rd *Renderer) Require(pageID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess := shared.SessionFromContext(ctx)
			d := rd.guard.Evaluate(ctx, sess, pageID)
			if rd.observe != nil {
				rd.observe(d)
			}
			if d.State != Authorized {
				rd.deny(w, r, sess, d)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.ContextWithPrincipal(ctx, d.Principal)))
		})
	}
}

// Protect serves pageID with the template, filling Data from init.
func (rd *Renderer) Protect(pageID, template string, init PageInit) http.Handler {
	return rd.Require(pageID)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := identity.PrincipalFromContext(r.Context())
		var data any
		if init != nil {
			var err error
			data, err = init(r.Context(), p)
			if err != nil {
				rd.logger.Error("page init", slog.String("page", pageID), slog.Any("error", err))
				if errors.Is(err, shared.ErrStore) {
					rd.render(w, r, http.StatusServiceUnavailable, "pages/unavailable.html", "Unavailable", p, nil, nil)
					return
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}
		rd.render(w, r, http.StatusOK, template, navTitle(pageID), p, rd.guard.Menu(p), data)
	}))
}

// Page renders a page built with the catalogue in pages.go.
func (rd *Renderer) Page(def PageDef) http.Handler {
	return rd.Protect(def.ID, "pages/page.html", func(ctx context.Context, p *identity.Principal) (any, error) {
		return def, nil
	})
}

// Mount registers the dashboard and catalogue pages on r.
func (rd *Renderer) Mount(r chi.Router, dashboard PageInit) {
	r.Method(http.MethodGet, "/", rd.Protect(rbac.PageDashboard, "pages/dashboard.html", dashboard))
	pages := make(map[string]http.Handler)
	for _, def := range Catalogue() {
		pages[def.ID] = rd.Page(def)
	}
	r.Get("/pages/{page}", func(w http.ResponseWriter, r *http.Request) {
		page := chi.URLParam(r, "page")
		switch page {
		case rbac.PageDashboard:
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		case rbac.PageAdmin:
			http.Redirect(w, r, rbac.PagePath(rbac.PageAdmin), http.StatusSeeOther)
			return
		}
		h, ok := pages[page]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (rd *Renderer) deny(w http.ResponseWriter, r *http.Request, sess *shared.Session, d Decision) {
	rd.logger.Info("page denied",
		slog.String("page", d.Page),
		slog.String("reason", string(d.Reason)),
		slog.String("identity", d.Principal.SubjectID()))

	switch d.Reason {
	case ReasonNoSession:
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	case ReasonNoAssignment:
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "You do not have access. Contact Admin."})
		}
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	case ReasonResolveFailed:
		rd.logger.Error("resolve principal", slog.Any("error", d.Err))
		rd.render(w, r, http.StatusServiceUnavailable, "pages/unavailable.html", "Unavailable", nil, nil, nil)
	default:
		rd.render(w, r, http.StatusForbidden, "pages/denied.html", "Access denied", d.Principal, nil, nil)
	}
}

func (rd *Renderer) render(w http.ResponseWriter, r *http.Request, status int, name, title string, p *identity.Principal, nav []rbac.NavItem, data any) {
	sess := shared.SessionFromContext(r.Context())
	var token string
	if sess != nil && rd.csrf != nil {
		token, _ = rd.csrf.EnsureToken(r.Context(), sess)
	}
	td := view.TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Principal:   p,
		Nav:         nav,
		Data:        data,
	}
	if err := rd.templates.RenderStatus(w, status, name, td); err != nil {
		rd.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func navTitle(pageID string) string {
	for _, item := range rbac.Navigation() {
		if item.Page == pageID {
			return item.Title
		}
	}
	return ""
}
