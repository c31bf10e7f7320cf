package pairing

import (
	"context"
	"sync"
	"time"
)

// Store holds in-flight pairing attempts. Nothing here survives a restart:
// the handshake is cheap to re-initiate, so durability buys nothing.
type Store interface {
	Put(ctx context.Context, a *Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	Delete(ctx context.Context, id string) error

	// DeleteIfUnapproved removes the attempt only while no session is
	// attached, under the store's lock, and reports whether it removed
	// anything. An approval landing between a caller's read and its
	// delete must win.
	DeleteIfUnapproved(ctx context.Context, id string) (bool, error)

	// AttachSession assigns the approval result to an attempt, exactly once.
	AttachSession(ctx context.Context, id string, s *Session) error

	// FindByTopic returns the approved session with the given topic.
	FindByTopic(ctx context.Context, topic string) (*Session, error)

	// UpdateByTopic runs fn on every attempt whose session matches topic,
	// under the store's lock, and reports whether any matched. Readers never
	// observe a half-applied mutation.
	UpdateByTopic(ctx context.Context, topic string, fn func(a *Attempt)) (bool, error)

	// DeleteByTopic removes every attempt whose session matches topic.
	DeleteByTopic(ctx context.Context, topic string) error

	// Sweep removes all attempts created before cutoff and returns how many.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore is the in-memory Store used in production; pairing state is
// intentionally process-local.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]*Attempt
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty pairing store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string]*Attempt)}
}

func (m *MemoryStore) Put(ctx context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAttempt(a), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, id)
	return nil
}

func (m *MemoryStore) DeleteIfUnapproved(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.Session != nil {
		return false, nil
	}
	delete(m.attempts, id)
	return true, nil
}

func (m *MemoryStore) AttachSession(ctx context.Context, id string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Session != nil {
		return ErrAlreadyApproved
	}
	a.Session = copySession(s)
	return nil
}

func (m *MemoryStore) FindByTopic(ctx context.Context, topic string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.Session != nil && a.Session.Topic == topic {
			return copySession(a.Session), nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) UpdateByTopic(ctx context.Context, topic string, fn func(a *Attempt)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := false
	for _, a := range m.attempts {
		if a.Session != nil && a.Session.Topic == topic {
			fn(a)
			matched = true
		}
	}
	return matched, nil
}

func (m *MemoryStore) DeleteByTopic(ctx context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.attempts {
		if a.Session != nil && a.Session.Topic == topic {
			delete(m.attempts, id)
		}
	}
	return nil
}

func (m *MemoryStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, a := range m.attempts {
		// Approved sessions live until the wallet disconnects; the TTL
		// only bounds attempts still waiting on approval.
		if a.Session == nil && a.CreatedAt.Before(cutoff) {
			delete(m.attempts, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored attempts (for metrics and tests).
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.attempts)
}

// Deep copies keep callers off the shared pointers; slice backing arrays
// must not leak or a caller append could mutate the stored session.
func copyAttempt(a *Attempt) *Attempt {
	cp := *a
	cp.Session = copySession(a.Session)
	return &cp
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Addresses = append([]string(nil), s.Addresses...)
	cp.Chains = append([]string(nil), s.Chains...)
	return &cp
}
