package identity

import (
	"time"

	"github.com/carepoint/carepoint/internal/rbac"
)

// Identity is what the identity provider vouches for.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Principal is a point-in-time copy of an identity, its assignment and the
// role's grants. Later assignment changes are not reflected until the
// principal is resolved again.
type Principal struct {
	IdentityID  string        `json:"identity_id"`
	Email       string        `json:"email"`
	DisplayName string        `json:"display_name"`
	Role        rbac.RoleName `json:"role"`
	RoleLabel   string        `json:"role_label"`
	Department  string        `json:"department,omitempty"`
	Permissions []string      `json:"permissions"`
	Pages       []string      `json:"pages"`
	LandingPage string        `json:"landing_page"`
	ResolvedAt  time.Time     `json:"resolved_at"`
}

// Identity returns the identity the principal was resolved from.
func (p *Principal) Identity() Identity {
	if p == nil {
		return Identity{}
	}
	return Identity{ID: p.IdentityID, Email: p.Email, DisplayName: p.DisplayName}
}

// Name is the display name, falling back to the email.
func (p *Principal) Name() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}

// OlderThan reports whether the principal was resolved more than maxAge ago.
// A zero maxAge never expires.
func (p *Principal) OlderThan(maxAge time.Duration, now time.Time) bool {
	if p == nil || maxAge <= 0 {
		return false
	}
	return now.Sub(p.ResolvedAt) > maxAge
}

func (p *Principal) SubjectID() string {
	if p == nil {
		return ""
	}
	return p.Email
}

func (p *Principal) RoleName() string {
	if p == nil {
		return ""
	}
	return string(p.Role)
}

func (p *Principal) GrantedPermissions() []string {
	if p == nil {
		return nil
	}
	return p.Permissions
}

func (p *Principal) GrantedPages() []string {
	if p == nil {
		return nil
	}
	return p.Pages
}

var _ rbac.Subject = (*Principal)(nil)
