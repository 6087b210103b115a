package assignments

import (
	"time"

	"github.com/carepoint/carepoint/internal/rbac"
)

// Status is the activation state of an assignment.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// RoleAssignment binds one identity to exactly one role.
type RoleAssignment struct {
	IdentityKey string        `json:"identity_key"`
	Role        rbac.RoleName `json:"role"`
	Department  string        `json:"department,omitempty"`
	Status      Status        `json:"status"`
	AssignedBy  string        `json:"assigned_by"`
	AssignedAt  time.Time     `json:"assigned_at"`
	UpdatedBy   string        `json:"updated_by"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Active reports whether the assignment grants access.
func (a RoleAssignment) Active() bool {
	return a.Status == StatusActive
}

// Action names a recorded assignment mutation.
type Action string

const (
	ActionAssign     Action = "assign"
	ActionChangeRole Action = "change_role"
	ActionSetStatus  Action = "set_status"
	ActionRevoke     Action = "revoke"
)

// AssignmentChange is an append-only history row.
type AssignmentChange struct {
	ID          int64         `json:"id"`
	IdentityKey string        `json:"identity_key"`
	Action      Action        `json:"action"`
	OldRole     rbac.RoleName `json:"old_role,omitempty"`
	NewRole     rbac.RoleName `json:"new_role,omitempty"`
	OldStatus   Status        `json:"old_status,omitempty"`
	NewStatus   Status        `json:"new_status,omitempty"`
	ChangedBy   string        `json:"changed_by"`
	ChangedAt   time.Time     `json:"changed_at"`
}

// Filter narrows ListAssignments. Query matches identity key, role or
// department case-insensitively.
type Filter struct {
	Query  string
	Role   rbac.RoleName
	Status Status
}

// Stats summarises the assignment table for the admin screen. Staff counts
// every role other than Admin, Doctor and Nurse.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Admins  int `json:"admins"`
	Doctors int `json:"doctors"`
	Nurses  int `json:"nurses"`
	Staff   int `json:"staff"`
}
