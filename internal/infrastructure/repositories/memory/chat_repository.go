package memory

import (
	"context"
	"sync"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"
)

// MemoryChatRepository keeps the most recent messages in insertion order.
type MemoryChatRepository struct {
	mu       sync.RWMutex
	messages []*domain.ChatMessage
	byID     map[string]*domain.ChatMessage
	capacity int
}

func NewMemoryChatRepository(capacity int) ports.ChatRepository {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryChatRepository{
		byID:     make(map[string]*domain.ChatMessage),
		capacity: capacity,
	}
}

func (r *MemoryChatRepository) Save(ctx context.Context, msg *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[msg.ID]; ok {
		return domain.ErrDuplicateMessage
	}
	copied := *msg
	r.messages = append(r.messages, &copied)
	r.byID[copied.ID] = &copied

	if over := len(r.messages) - r.capacity; over > 0 {
		for _, old := range r.messages[:over] {
			delete(r.byID, old.ID)
		}
		r.messages = append([]*domain.ChatMessage(nil), r.messages[over:]...)
	}
	return nil
}

func (r *MemoryChatRepository) Get(ctx context.Context, id string) (*domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

func (r *MemoryChatRepository) MarkDeleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.byID[id]
	if !ok {
		return domain.ErrMessageNotFound
	}
	msg.Deleted = true
	return nil
}

func (r *MemoryChatRepository) List(ctx context.Context, streamKey domain.StreamKey, limit, offset int) ([]*domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]*domain.ChatMessage, 0, limit)
	skipped := 0
	for i := len(r.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := r.messages[i]
		if streamKey != "" && msg.StreamKey != streamKey {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		copied := *msg
		out = append(out, &copied)
	}
	return out, nil
}

func (r *MemoryChatRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, msg := range r.messages {
		if !msg.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}
