package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// SubjectFunc extracts the acting principal from a request context.
type SubjectFunc func(ctx context.Context) Subject

// Middleware wires permission checks into HTTP handlers.
type Middleware struct {
	Engine  *Engine
	Subject SubjectFunc
	Logger  *slog.Logger
}

// RequireAny ensures the current principal holds at least one of the permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := m.subject(r)
			for _, perm := range normalized {
				if m.Engine.HasPermission(subject, perm) {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.forbid(w, r, normalized)
		})
	}
}

// RequireAll ensures the current principal holds every permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := m.subject(r)
			if _, ok := m.Engine.roleOf(subject); !ok {
				m.forbid(w, r, normalized)
				return
			}
			for _, perm := range normalized {
				if !m.Engine.HasPermission(subject, perm) {
					m.forbid(w, r, normalized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) subject(r *http.Request) Subject {
	if m.Subject == nil {
		return nil
	}
	return m.Subject(r.Context())
}

func (m Middleware) forbid(w http.ResponseWriter, r *http.Request, perms []string) {
	if m.Logger != nil {
		m.Logger.Warn("rbac forbidden",
			slog.String("path", r.URL.Path),
			slog.String("required", strings.Join(perms, ",")))
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// normalizePermissions trims and de-duplicates while keeping order. Case is
// preserved because permission strings match exactly.
func normalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
