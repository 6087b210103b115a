package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/carepoint/carepoint/internal/identity"
	"github.com/carepoint/carepoint/internal/shared"
)

// Provider is the local identity provider: it verifies credentials and
// announces sign-in and sign-out.
type Provider struct {
	repo Repository

	mu          sync.RWMutex
	subscribers map[int]func(Event)
	nextSub     int
	now         func() time.Time
}

// NewProvider constructs a Provider.
func NewProvider(repo Repository) *Provider {
	return &Provider{
		repo:        repo,
		subscribers: make(map[int]func(Event)),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate validates email/password credentials. Unknown, inactive and
// mismatched accounts all yield shared.ErrInvalidCredentials; an unreachable
// store yields shared.ErrStore.
func (p *Provider) Authenticate(ctx context.Context, creds Credentials) (identity.Identity, error) {
	account, err := p.repo.FindByEmail(ctx, normalizeEmail(creds.Email))
	if err != nil {
		if errors.Is(err, shared.ErrStore) {
			return identity.Identity{}, err
		}
		return identity.Identity{}, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return identity.Identity{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(creds.Password)); err != nil {
		return identity.Identity{}, shared.ErrInvalidCredentials
	}
	return account.Identity(), nil
}

// Register creates an active account with a bcrypt password hash.
func (p *Provider) Register(ctx context.Context, email, displayName, password string) (identity.Identity, error) {
	email = normalizeEmail(email)
	if email == "" || len(password) < 8 {
		return identity.Identity{}, fmt.Errorf("auth: email and a password of at least 8 characters are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("auth: hash password: %w", err)
	}
	account := Account{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    p.now(),
	}
	if err := p.repo.CreateAccount(ctx, account); err != nil {
		return identity.Identity{}, err
	}
	return account.Identity(), nil
}

// Subscribe registers fn for identity-changed events and returns a function
// that removes it. Callbacks run synchronously on the signing-in request.
func (p *Provider) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subscribers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

// SignIn records the login session and announces the sign-in.
func (p *Provider) SignIn(ctx context.Context, sessionID string, id identity.Identity, expiresAt time.Time, ip, ua string) error {
	err := p.repo.CreateSession(ctx, sessionID, id.ID, expiresAt, ip, ua)
	p.publish(Event{Kind: EventSignedIn, Identity: id, SessionID: sessionID, RemoteIP: ip, At: p.now()})
	return err
}

// SignOut removes the login session and announces the sign-out.
func (p *Provider) SignOut(ctx context.Context, sessionID string, id identity.Identity, ip string) error {
	err := p.repo.DeleteSession(ctx, sessionID)
	p.publish(Event{Kind: EventSignedOut, Identity: id, SessionID: sessionID, RemoteIP: ip, At: p.now()})
	return err
}

func (p *Provider) publish(e Event) {
	p.mu.RLock()
	subs := make([]func(Event), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		subs = append(subs, fn)
	}
	p.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
