package memory

import (
	"context"
	"sort"
	"sync"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"
)

type MemoryStreamRepository struct {
	sessions map[string]*domain.StreamSession
	mu       sync.RWMutex
}

func NewMemoryStreamRepository() ports.StreamRepository {
	return &MemoryStreamRepository{
		sessions: make(map[string]*domain.StreamSession),
	}
}

// Save inserts or updates a session by id.
func (r *MemoryStreamRepository) Save(ctx context.Context, session *domain.StreamSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *MemoryStreamRepository) GetByID(ctx context.Context, id string) (*domain.StreamSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrStreamNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *MemoryStreamRepository) ListLive(ctx context.Context) ([]*domain.StreamSession, error) {
	return r.list(func(s *domain.StreamSession) bool { return s.IsLive() }), nil
}

func (r *MemoryStreamRepository) ListAll(ctx context.Context) ([]*domain.StreamSession, error) {
	return r.list(func(*domain.StreamSession) bool { return true }), nil
}

func (r *MemoryStreamRepository) list(keep func(*domain.StreamSession) bool) []*domain.StreamSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.StreamSession
	for _, session := range r.sessions {
		if keep(session) {
			copied := *session
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
