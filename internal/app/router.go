package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	assignmentshttp "github.com/carepoint/carepoint/internal/assignments/http"
	"github.com/carepoint/carepoint/internal/auth"
	"github.com/carepoint/carepoint/internal/guard"
	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/observability"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
	"github.com/carepoint/carepoint/jobs"
	"github.com/carepoint/carepoint/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SessionManager    *shared.SessionManager
	CSRFManager       *shared.CSRFManager
	Resolver          *identity.Resolver
	AuthHandler       *auth.Handler
	Pages             *guard.Renderer
	Dashboard         guard.PageInit
	AssignmentHandler *assignmentshttp.Handler
	AssignmentAPI     *assignmentshttp.API
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with CarePoint defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r, LoginLimiter(params.Config))
	})

	params.Pages.Mount(r, params.Dashboard)

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.Pages.Require(rbac.PageAdmin))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/admin/assignments", http.StatusSeeOther)
		})
		r.Route("/assignments", params.AssignmentHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.AssignmentAPI != nil {
		r.Route("/api", func(r chi.Router) {
			r.Use(params.Resolver.Middleware)
			params.AssignmentAPI.MountRoutes(r)
		})
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler marks embedded assets cacheable for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
