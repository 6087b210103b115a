package rbac

import (
	"errors"
	"fmt"
	"slices"
)

// ErrForbidden indicates the acting principal lacks the required permission.
var ErrForbidden = errors.New("rbac: forbidden")

// Subject is the view of an acting principal the engine needs.
// Implementations must tolerate nil receivers.
type Subject interface {
	SubjectID() string
	RoleName() string
	GrantedPermissions() []string
	GrantedPages() []string
}

// DecisionRecorder observes authorization outcomes.
type DecisionRecorder interface {
	RecordDecision(kind string, allowed bool)
}

// Decision kinds passed to DecisionRecorder.
const (
	DecisionPermission = "permission"
	DecisionPage       = "page"
)

// Engine answers allow/deny questions against the role registry.
type Engine struct {
	registry *Registry
	recorder DecisionRecorder
}

// NewEngine builds an Engine. recorder may be nil.
func NewEngine(registry *Registry, recorder DecisionRecorder) *Engine {
	return &Engine{registry: registry, recorder: recorder}
}

// Registry exposes the role table the engine consults.
func (e *Engine) Registry() *Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// HasPermission reports whether the subject holds perm. The all sentinel
// grants everything; otherwise only an exact match counts.
func (e *Engine) HasPermission(s Subject, perm string) bool {
	allowed := e.hasPermission(s, perm)
	e.record(DecisionPermission, allowed)
	return allowed
}

// CanPerform checks the `<resource>.<action>` permission.
func (e *Engine) CanPerform(s Subject, resource, action string) bool {
	return e.HasPermission(s, Permission(resource, action))
}

// Authorize returns ErrForbidden unless the subject holds perm.
func (e *Engine) Authorize(s Subject, perm string) error {
	if e.HasPermission(s, perm) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, perm)
}

// CanAccessPage reports whether pageID is in the subject's page set.
func (e *Engine) CanAccessPage(s Subject, pageID string) bool {
	allowed := false
	if _, ok := e.roleOf(s); ok && pageID != "" {
		allowed = slices.Contains(s.GrantedPages(), pageID)
	}
	e.record(DecisionPage, allowed)
	return allowed
}

// AccessiblePages returns the subject's pages in navigation order.
func (e *Engine) AccessiblePages(s Subject) []string {
	pages := []string{}
	if _, ok := e.roleOf(s); !ok {
		return pages
	}
	granted := s.GrantedPages()
	for _, item := range navigation {
		if slices.Contains(granted, item.Page) {
			pages = append(pages, item.Page)
		}
	}
	return pages
}

// Menu returns the navigation entries the subject may open.
func (e *Engine) Menu(s Subject) []NavItem {
	pages := e.AccessiblePages(s)
	items := make([]NavItem, 0, len(pages))
	for _, page := range pages {
		if item, ok := navItem(page); ok {
			items = append(items, item)
		}
	}
	return items
}

func (e *Engine) hasPermission(s Subject, perm string) bool {
	if perm == "" {
		return false
	}
	if _, ok := e.roleOf(s); !ok {
		return false
	}
	granted := s.GrantedPermissions()
	if slices.Contains(granted, PermissionAll) {
		return true
	}
	return slices.Contains(granted, perm)
}

// roleOf fails closed: no subject or an unregistered role yields no role.
func (e *Engine) roleOf(s Subject) (Role, bool) {
	if e == nil || s == nil {
		return Role{}, false
	}
	return e.registry.Get(s.RoleName())
}

func (e *Engine) record(kind string, allowed bool) {
	if e == nil || e.recorder == nil {
		return
	}
	e.recorder.RecordDecision(kind, allowed)
}
