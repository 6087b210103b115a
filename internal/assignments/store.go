package assignments

import "context"

// Store persists assignments and their history. Implementations return
// ErrNotFound for missing keys and wrap connectivity failures in
// shared.ErrStore.
type Store interface {
	GetAssignment(ctx context.Context, key string) (RoleAssignment, error)
	// UpsertAssignment writes the assignment and, when change is non-nil,
	// its history row in one unit.
	UpsertAssignment(ctx context.Context, assignment RoleAssignment, change *AssignmentChange) error
	DeleteAssignment(ctx context.Context, key string, change AssignmentChange) error
	ListAssignments(ctx context.Context) ([]RoleAssignment, error)
	ListHistory(ctx context.Context, key string) ([]AssignmentChange, error)
}
