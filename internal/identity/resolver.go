package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/carepoint/carepoint/internal/assignments"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
)

// SessionKey is the session value holding the serialised principal.
const SessionKey = "principal"

// ErrNoAssignment means the identity has no active assignment to a known
// role. Callers must deny and sign the identity out.
var ErrNoAssignment = errors.New("identity: no active role assignment")

// AssignmentSource is the read side of the assignment store.
type AssignmentSource interface {
	GetAssignment(ctx context.Context, key string) (assignments.RoleAssignment, error)
}

// ResolverConfig tunes resolution.
type ResolverConfig struct {
	// Timeout bounds a single assignment lookup. Zero means no bound.
	Timeout time.Duration
	// MaxAge is how long a cached principal is trusted before Current
	// re-resolves it. Zero disables refresh.
	MaxAge time.Duration
}

// Resolver owns the lifecycle of the principal held in a session.
type Resolver struct {
	source   AssignmentSource
	registry *rbac.Registry
	cfg      ResolverConfig
	logger   *slog.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(source AssignmentSource, registry *rbac.Registry, cfg ResolverConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		source:   source,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ResolvePrincipal materialises the principal for id and stores it in sess.
// The lookup order is assignment, status, role; nothing is written to the
// session until every step succeeds. On ErrNoAssignment the session is
// cleared. Store failures are wrapped in shared.ErrStore and leave the
// session untouched.
func (r *Resolver) ResolvePrincipal(ctx context.Context, sess *shared.Session, id Identity) (*Principal, error) {
	key := assignments.NormalizeKey(id.Email)
	if key == "" {
		r.ClearSession(sess)
		return nil, ErrNoAssignment
	}

	assignment, err := r.lookup(ctx, key)
	switch {
	case errors.Is(err, assignments.ErrNotFound):
		r.ClearSession(sess)
		return nil, ErrNoAssignment
	case err != nil:
		return nil, fmt.Errorf("identity: resolve %s: %w", key, errors.Join(shared.ErrStore, err))
	}
	if !assignment.Active() {
		r.ClearSession(sess)
		return nil, ErrNoAssignment
	}
	role, ok := r.registry.Get(string(assignment.Role))
	if !ok {
		r.logger.Warn("assignment names unknown role",
			slog.String("identity", key),
			slog.String("role", string(assignment.Role)))
		r.ClearSession(sess)
		return nil, ErrNoAssignment
	}

	p := &Principal{
		IdentityID:  id.ID,
		Email:       key,
		DisplayName: id.DisplayName,
		Role:        role.Name,
		RoleLabel:   role.Label,
		Department:  assignment.Department,
		Permissions: role.Permissions,
		Pages:       role.Pages,
		LandingPage: role.LandingPage,
		ResolvedAt:  r.now(),
	}
	if sess != nil {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("identity: encode principal: %w", err)
		}
		sess.Set(SessionKey, string(data))
		sess.SetUser(id.ID)
	}
	return p, nil
}

// CurrentPrincipal returns the principal cached in sess, or nil.
func (r *Resolver) CurrentPrincipal(sess *shared.Session) *Principal {
	raw := sess.Get(SessionKey)
	if raw == "" {
		return nil
	}
	var p Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		r.logger.Warn("discarding unreadable principal", slog.Any("error", err))
		return nil
	}
	return &p
}

// Current returns the cached principal, re-resolving it first when it is
// older than MaxAge. refreshed reports whether a re-resolution happened.
func (r *Resolver) Current(ctx context.Context, sess *shared.Session) (p *Principal, refreshed bool, err error) {
	p = r.CurrentPrincipal(sess)
	if p == nil || !p.OlderThan(r.cfg.MaxAge, r.now()) {
		return p, false, nil
	}
	p, err = r.ResolvePrincipal(ctx, sess, p.Identity())
	return p, true, err
}

// ClearSession discards the cached principal.
func (r *Resolver) ClearSession(sess *shared.Session) {
	if sess == nil {
		return
	}
	sess.Delete(SessionKey)
	if sess.User() != "" {
		sess.SetUser("")
	}
}

// Middleware places the session principal on the request context. Requests
// whose principal cannot be refreshed continue without one.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		p, _, err := r.Current(ctx, shared.SessionFromContext(ctx))
		if err != nil {
			r.logger.Warn("refresh principal", slog.Any("error", err))
			p = nil
		}
		if p != nil {
			req = req.WithContext(ContextWithPrincipal(ctx, p))
		}
		next.ServeHTTP(w, req)
	})
}

// lookup collapses concurrent lookups for the same key. The shared call is
// detached from any single caller's cancellation and bounded by Timeout.
func (r *Resolver) lookup(ctx context.Context, key string) (assignments.RoleAssignment, error) {
	ch := r.group.DoChan(key, func() (interface{}, error) {
		callCtx := context.WithoutCancel(ctx)
		if r.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, r.cfg.Timeout)
			defer cancel()
		}
		return r.source.GetAssignment(callCtx, key)
	})

	var timeout <-chan time.Time
	if r.cfg.Timeout > 0 {
		timer := time.NewTimer(r.cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return assignments.RoleAssignment{}, ctx.Err()
	case <-timeout:
		return assignments.RoleAssignment{}, context.DeadlineExceeded
	case res := <-ch:
		if res.Err != nil {
			return assignments.RoleAssignment{}, res.Err
		}
		return res.Val.(assignments.RoleAssignment), nil
	}
}
