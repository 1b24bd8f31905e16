package sqlstore

import (
	"context"
	"fmt"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ports.ChatRepository {
	return &ChatRepository{db: db}
}

// Save is insert only. Stored messages are never rewritten.
func (r *ChatRepository) Save(ctx context.Context, msg *domain.ChatMessage) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(newChatRecord(msg))
	if res.Error != nil {
		return fmt.Errorf("failed to save chat message %s: %w", msg.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateMessage, msg.ID)
	}
	return nil
}

func (r *ChatRepository) Get(ctx context.Context, id string) (*domain.ChatMessage, error) {
	var rec chatRecord
	res := r.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to get chat message %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrMessageNotFound
	}
	return rec.toDomain(), nil
}

func (r *ChatRepository) MarkDeleted(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&chatRecord{}).Where("id = ?", id).Update("deleted", true)
	if res.Error != nil {
		return fmt.Errorf("failed to delete chat message %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Some drivers count changed rows only, so an already deleted message
	// reports zero.
	var count int64
	if err := r.db.WithContext(ctx).Model(&chatRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to delete chat message %s: %w", id, err)
	}
	if count == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *ChatRepository) List(ctx context.Context, streamKey domain.StreamKey, limit, offset int) ([]*domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("sent_at DESC").Order("id DESC").Limit(limit)
	if offset > 0 {
		q = q.Offset(offset)
	}
	if streamKey != "" {
		q = q.Where("stream_key = ?", string(streamKey))
	}

	var recs []chatRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	out := make([]*domain.ChatMessage, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}

func (r *ChatRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&chatRecord{}).Where("sent_at >= ?", since.UTC()).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count chat messages: %w", err)
	}
	return int(count), nil
}
