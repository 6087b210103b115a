package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/carepoint/carepoint/internal/assignments"
	assignmentshttp "github.com/carepoint/carepoint/internal/assignments/http"
	"github.com/carepoint/carepoint/internal/auth"
	"github.com/carepoint/carepoint/internal/guard"
	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/observability"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
	"github.com/carepoint/carepoint/internal/view"
	"github.com/carepoint/carepoint/jobs"
)

// AuditRecorder persists access audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Backends are the stores and side channels the application runs on.
// Notifier, Audit, Metrics and JobHandler are optional.
type Backends struct {
	Logger      *slog.Logger
	Config      *Config
	Sessions    *shared.SessionManager
	Accounts    auth.Repository
	Assignments assignments.Store
	Notifier    assignments.Notifier
	Audit       AuditRecorder
	Metrics     *observability.Metrics
	JobHandler  *jobs.Handler
}

// Application is the assembled web application.
type Application struct {
	Handler     http.Handler
	Registry    *rbac.Registry
	Engine      *rbac.Engine
	Provider    *auth.Provider
	Resolver    *identity.Resolver
	Assignments *assignments.Service

	unsubscribe func()
}

// Close detaches event subscribers.
func (a *Application) Close() {
	if a != nil && a.unsubscribe != nil {
		a.unsubscribe()
	}
}

// Build wires the role registry, identity resolution, page guard and role
// administration onto the HTTP router.
func Build(b Backends) (*Application, error) {
	if b.Config == nil || b.Sessions == nil || b.Accounts == nil || b.Assignments == nil {
		return nil, fmt.Errorf("app: config, sessions, accounts and assignments are required")
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := rbac.DefaultRegistry()
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("app: role registry: %w", err)
	}
	var recorder rbac.DecisionRecorder
	if b.Metrics != nil {
		recorder = b.Metrics
	}
	engine := rbac.NewEngine(registry, recorder)

	templates, err := view.NewEngine(engine)
	if err != nil {
		return nil, fmt.Errorf("app: parse templates: %w", err)
	}
	csrfManager := shared.NewCSRFManager(b.Config.CSRFSecret)

	resolver := identity.NewResolver(b.Assignments, registry, identity.ResolverConfig{
		Timeout: b.Config.IdentityResolveTimeout,
		MaxAge:  b.Config.PrincipalMaxAge,
	}, logger)
	service := assignments.NewService(b.Assignments, engine, b.Notifier, logger)

	provider := auth.NewProvider(b.Accounts)
	unsubscribe := provider.Subscribe(func(e auth.Event) {
		b.Metrics.RecordAuthEvent(string(e.Kind))
		recordAudit(logger, b.Audit, shared.AuditLog{
			Actor:    e.Identity.Email,
			Action:   "auth." + string(e.Kind),
			Entity:   "login_session",
			EntityID: e.SessionID,
			Meta:     map[string]any{"ip": e.RemoteIP},
			At:       e.At,
		})
	})

	pageGuard := guard.New(resolver, engine, logger)
	pages := guard.NewRenderer(pageGuard, templates, csrfManager, func(d guard.Decision) {
		b.Metrics.RecordGuard(d.State.String(), string(d.Reason))
		if d.Reason == guard.ReasonPageForbidden {
			recordAudit(logger, b.Audit, shared.AuditLog{
				Actor:    d.Principal.SubjectID(),
				Action:   "access.denied",
				Entity:   "page",
				EntityID: d.Page,
				Meta:     map[string]any{"role": d.Principal.RoleName()},
			})
		}
	})

	router := NewRouter(RouterParams{
		Logger:            logger,
		Config:            b.Config,
		SessionManager:    b.Sessions,
		CSRFManager:       csrfManager,
		Resolver:          resolver,
		AuthHandler:       auth.NewHandler(logger, provider, resolver, templates, b.Sessions, csrfManager),
		Pages:             pages,
		AssignmentHandler: assignmentshttp.NewHandler(logger, service, engine, templates, csrfManager),
		AssignmentAPI:     assignmentshttp.NewAPI(logger, service, engine, csrfManager),
		JobHandler:        b.JobHandler,
		Metrics:           b.Metrics,
	})

	return &Application{
		Handler:     router,
		Registry:    registry,
		Engine:      engine,
		Provider:    provider,
		Resolver:    resolver,
		Assignments: service,
		unsubscribe: unsubscribe,
	}, nil
}

func recordAudit(logger *slog.Logger, audit AuditRecorder, entry shared.AuditLog) {
	if audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := audit.Record(ctx, entry); err != nil {
		logger.Warn("record audit", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
