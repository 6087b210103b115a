package assignments

import "errors"

var (
	// ErrNotFound is returned when the identity has no assignment.
	ErrNotFound = errors.New("assignments: not found")
	// ErrInvalidRole is returned for role names missing from the registry.
	ErrInvalidRole = errors.New("assignments: invalid role")
	// ErrInvalidInput wraps validation failures on keys and fields.
	ErrInvalidInput = errors.New("assignments: invalid input")
	// ErrLastAdmin is returned when a mutation would leave no active Admin.
	ErrLastAdmin = errors.New("assignments: last active admin")
)
