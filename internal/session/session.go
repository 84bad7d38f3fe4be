package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"doc-reader/internal/models"
)

var ErrNotFound = errors.New("session not found")

// Store keeps the explicit per-session state: the latest payload and the last prompt.
type Store interface {
	Save(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryStore is a process-local Store. Sessions idle for longer than the TTL are dropped on read.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]models.Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]models.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	if m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl {
		_ = m.Delete(ctx, id)
		return nil, ErrNotFound
	}

	return &s, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}
