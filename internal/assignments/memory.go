package assignments

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and the test-mode server.
type MemoryStore struct {
	mu       sync.RWMutex
	rows     map[string]RoleAssignment
	history  []AssignmentChange
	nextID   int64
	failWith error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(seed ...RoleAssignment) *MemoryStore {
	s := &MemoryStore{rows: make(map[string]RoleAssignment)}
	for _, a := range seed {
		s.rows[a.IdentityKey] = a
	}
	return s
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *MemoryStore) GetAssignment(ctx context.Context, key string) (RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return RoleAssignment{}, s.failWith
	}
	a, ok := s.rows[key]
	if !ok {
		return RoleAssignment{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) UpsertAssignment(ctx context.Context, assignment RoleAssignment, change *AssignmentChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.rows[assignment.IdentityKey] = assignment
	if change != nil {
		s.appendLocked(*change)
	}
	return nil
}

func (s *MemoryStore) DeleteAssignment(ctx context.Context, key string, change AssignmentChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.rows[key]; !ok {
		return ErrNotFound
	}
	delete(s.rows, key)
	s.appendLocked(change)
	return nil
}

func (s *MemoryStore) ListAssignments(ctx context.Context) ([]RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make([]RoleAssignment, 0, len(s.rows))
	for _, a := range s.rows {
		out = append(out, a)
	}
	return out, nil
}

func (s *MemoryStore) ListHistory(ctx context.Context, key string) ([]AssignmentChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []AssignmentChange
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].IdentityKey == key {
			out = append(out, s.history[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) appendLocked(change AssignmentChange) {
	s.nextID++
	change.ID = s.nextID
	s.history = append(s.history, change)
}

var _ Store = (*MemoryStore)(nil)
