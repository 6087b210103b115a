// Package guard gates every protected page load.
package guard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/rbac"
	"github.com/carepoint/carepoint/internal/shared"
)

// State is a step of the per-page-load state machine.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authorized
	Denied
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Reason explains a Denied decision.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonNoSession     Reason = "no_session"
	ReasonNoAssignment  Reason = "no_assignment"
	ReasonPageForbidden Reason = "page_forbidden"
	ReasonResolveFailed Reason = "resolve_failed"
)

// Decision is the outcome of one page load.
type Decision struct {
	Page      string
	State     State
	Reason    Reason
	Principal *identity.Principal
	// Refreshed is set when the cached principal was older than the
	// configured max age and had to be resolved again.
	Refreshed bool
	Err       error
}

// Guard evaluates page access for the session principal.
type Guard struct {
	resolver *identity.Resolver
	engine   *rbac.Engine
	logger   *slog.Logger
}

// New constructs a Guard.
func New(resolver *identity.Resolver, engine *rbac.Engine, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{resolver: resolver, engine: engine, logger: logger}
}

// Evaluate runs Unauthenticated -> Authenticating -> {Authorized, Denied}
// for pageID. It never returns Authorized on error.
func (g *Guard) Evaluate(ctx context.Context, sess *shared.Session, pageID string) Decision {
	d := Decision{Page: pageID, State: Authenticating}

	p, refreshed, err := g.resolver.Current(ctx, sess)
	d.Refreshed = refreshed
	switch {
	case errors.Is(err, identity.ErrNoAssignment):
		return d.deny(ReasonNoAssignment, nil)
	case err != nil:
		d.Err = err
		return d.deny(ReasonResolveFailed, nil)
	case p == nil:
		return d.deny(ReasonNoSession, nil)
	case !g.engine.CanAccessPage(p, pageID):
		return d.deny(ReasonPageForbidden, p)
	}
	d.State = Authorized
	d.Principal = p
	return d
}

// Menu returns the navigation entries for p.
func (g *Guard) Menu(p *identity.Principal) []rbac.NavItem {
	if p == nil {
		return nil
	}
	return g.engine.Menu(p)
}

func (d Decision) deny(reason Reason, p *identity.Principal) Decision {
	d.State = Denied
	d.Reason = reason
	d.Principal = p
	return d
}
