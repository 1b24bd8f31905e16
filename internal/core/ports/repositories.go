package ports

import (
	"context"
	"time"

	"livehub/internal/core/domain"
)

// ModerationStore is the authoritative record of bans, mutes and the
// moderation audit log. Implementations only guarantee atomic single-record
// reads and writes; enforcement lives in the moderation guard.
type ModerationStore interface {
	// SaveBan replaces any ban with the same key.
	SaveBan(ctx context.Context, ban *domain.Ban) error
	// RemoveBans deletes bans keyed by fingerprint and bans on ip. Removing
	// nothing is not an error.
	RemoveBans(ctx context.Context, fingerprint, ip string) (int, error)
	// FindBan returns the first active ban matching fingerprint or ip, or nil.
	FindBan(ctx context.Context, fingerprint, ip string, now time.Time) (*domain.Ban, error)
	ActiveBans(ctx context.Context, now time.Time) ([]*domain.Ban, error)

	SaveMute(ctx context.Context, mute *domain.Mute) error
	RemoveMute(ctx context.Context, fingerprint string) (bool, error)
	FindMute(ctx context.Context, fingerprint string, now time.Time) (*domain.Mute, error)
	ActiveMutes(ctx context.Context, now time.Time) ([]*domain.Mute, error)

	// SweepExpired deletes inert records and reports how many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	RecordAction(ctx context.Context, action *domain.ModerationAction) error
	RecentActions(ctx context.Context, limit int) ([]*domain.ModerationAction, error)
}

type ChatRepository interface {
	Save(ctx context.Context, msg *domain.ChatMessage) error
	Get(ctx context.Context, id string) (*domain.ChatMessage, error)
	// MarkDeleted tombstones a message; content is never edited.
	MarkDeleted(ctx context.Context, id string) error
	// List returns newest first. An empty stream key lists every room.
	List(ctx context.Context, streamKey domain.StreamKey, limit, offset int) ([]*domain.ChatMessage, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

type StreamRepository interface {
	Save(ctx context.Context, session *domain.StreamSession) error
	GetByID(ctx context.Context, id string) (*domain.StreamSession, error)
	ListLive(ctx context.Context) ([]*domain.StreamSession, error)
	ListAll(ctx context.Context) ([]*domain.StreamSession, error)
}
