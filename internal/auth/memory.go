package auth

import (
	"context"
	"sync"
	"time"

	"github.com/carepoint/carepoint/internal/shared"
)

// MemoryRepository keeps accounts and login sessions in process. It backs
// local demos and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
	sessions map[string]string
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]Account), sessions: make(map[string]string)}
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &account, nil
}

func (r *MemoryRepository) CreateAccount(ctx context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.Email]; ok {
		return ErrEmailTaken
	}
	r.accounts[account.Email] = account
	return nil
}

func (r *MemoryRepository) CreateSession(ctx context.Context, id string, accountID string, expiresAt time.Time, ip, ua string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = accountID
	return nil
}

func (r *MemoryRepository) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// ActiveSessions reports the number of recorded login sessions.
func (r *MemoryRepository) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
