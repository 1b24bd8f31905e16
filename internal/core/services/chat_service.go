package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"
	"livehub/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// ChatService persists chat history behind a circuit breaker so a failing
// store never stalls the live conversation.
type ChatService struct {
	repo    ports.ChatRepository
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewChatService(repo ports.ChatRepository, breaker *circuitbreaker.CircuitBreaker, logger *zap.SugaredLogger) *ChatService {
	if breaker == nil {
		breaker = circuitbreaker.New("chat-store", circuitbreaker.DefaultConfig())
	}
	return &ChatService{repo: repo, breaker: breaker, logger: logger}
}

// Record stores msg. Failures are logged and returned, callers keep going.
// A duplicate id is refused without counting against the breaker.
func (s *ChatService) Record(ctx context.Context, msg *domain.ChatMessage) error {
	duplicate := false
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		err := s.repo.Save(ctx, msg)
		if errors.Is(err, domain.ErrDuplicateMessage) {
			duplicate = true
			return nil
		}
		return err
	})
	if duplicate {
		s.logger.Warnw("Refusing to overwrite chat message", "message_id", msg.ID)
		return domain.ErrDuplicateMessage
	}
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			s.logger.Debugw("Chat store circuit open, message not persisted", "message_id", msg.ID)
		} else {
			s.logger.Warnw("Failed to persist chat message", "message_id", msg.ID, "error", err)
		}
		return err
	}
	return nil
}

func (s *ChatService) Get(ctx context.Context, id string) (*domain.ChatMessage, error) {
	return s.repo.Get(ctx, id)
}

// Delete tombstones a message.
func (s *ChatService) Delete(ctx context.Context, id string) error {
	notFound := false
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		err := s.repo.MarkDeleted(ctx, id)
		if errors.Is(err, domain.ErrMessageNotFound) {
			notFound = true
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	if notFound {
		return domain.ErrMessageNotFound
	}
	return nil
}

// History lists messages newest first, skipping tombstones.
func (s *ChatService) History(ctx context.Context, streamKey domain.StreamKey, limit, offset int) ([]*domain.ChatMessage, error) {
	msgs, err := s.repo.List(ctx, streamKey, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	out := msgs[:0]
	for _, m := range msgs {
		if !m.Deleted {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *ChatService) CountSince(ctx context.Context, since time.Time) (int, error) {
	return s.repo.CountSince(ctx, since)
}
