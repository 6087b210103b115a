package auth

import (
	"time"

	"github.com/carepoint/carepoint/internal/identity"
)

// Account is an identity known to the local identity provider.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the provider-neutral view of the account.
func (a *Account) Identity() identity.Identity {
	return identity.Identity{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName}
}

// Credentials are submitted on sign-in.
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

// EventKind names an identity-changed event.
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
)

// Event is delivered to subscribers when the signed-in identity changes.
type Event struct {
	Kind      EventKind
	Identity  identity.Identity
	SessionID string
	RemoteIP  string
	At        time.Time
}
