package workspace

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id uuid.UUID) (Session, error)
	// Save replaces the session when its stored revision still equals
	// expected, and returns it with the bumped revision.
	Save(ctx context.Context, s Session, expected int64) (Session, error)
}

// MemoryStore keeps sessions in process. Sessions are stored encoded so
// callers never share slices with the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID][]byte
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[uuid.UUID][]byte{}}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Draft.ID]; ok {
		return ErrExists
	}
	m.sessions[s.Draft.ID] = raw
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Session, error) {
	m.mu.Lock()
	raw, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	return decodeSession(raw)
}

func (m *MemoryStore) Save(_ context.Context, s Session, expected int64) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.sessions[s.Draft.ID]
	if !ok {
		return Session{}, ErrNotFound
	}
	current, err := decodeSession(raw)
	if err != nil {
		return Session{}, err
	}
	if current.Revision != expected {
		return Session{}, &voucher.ConcurrentModificationError{Expected: expected, Actual: current.Revision}
	}
	s.Revision = expected + 1
	next, err := json.Marshal(s)
	if err != nil {
		return Session{}, err
	}
	m.sessions[s.Draft.ID] = next
	return s, nil
}

func decodeSession(raw []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}
