package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"
	"livehub/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const adminDataLimit = 100

// AdminService is the moderation surface shared by the websocket
// admin_action frames and the HTTP admin API.
type AdminService struct {
	guard     *ModerationGuard
	chat      *ChatService
	presence  *PresenceService
	analytics *AnalyticsService
	publisher ports.Publisher
	logger    *zap.SugaredLogger

	playlistMu sync.RWMutex
	playlist   []domain.PlaylistStream
}

func NewAdminService(
	guard *ModerationGuard,
	chat *ChatService,
	presence *PresenceService,
	analytics *AnalyticsService,
	publisher ports.Publisher,
	logger *zap.SugaredLogger,
) *AdminService {
	return &AdminService{
		guard:     guard,
		chat:      chat,
		presence:  presence,
		analytics: analytics,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *AdminService) Ban(ctx context.Context, req BanRequest) (*domain.Ban, error) {
	ban, err := s.guard.ApplyBan(ctx, req)
	if ban != nil {
		s.presence.Broadcast(ctx)
	}
	return ban, err
}

func (s *AdminService) Unban(ctx context.Context, fingerprint, ip, issuedBy string) error {
	return s.guard.ClearBan(ctx, fingerprint, ip, issuedBy)
}

func (s *AdminService) Mute(ctx context.Context, req MuteRequest) (*domain.Mute, error) {
	mute, err := s.guard.ApplyMute(ctx, req)
	if mute != nil {
		s.presence.Broadcast(ctx)
	}
	return mute, err
}

func (s *AdminService) Unmute(ctx context.Context, fingerprint, issuedBy string) error {
	if err := s.guard.ClearMute(ctx, fingerprint, issuedBy); err != nil {
		return err
	}
	s.presence.Broadcast(ctx)
	return nil
}

// DeleteMessage tombstones the message and tells every client to drop it.
// The broadcast happens even when the store has no record, since clients may
// hold a copy the store never saw.
func (s *AdminService) DeleteMessage(ctx context.Context, id, issuedBy string) error {
	id = strings.TrimSpace(id)
	if err := validation.ValidateMessageID(id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMissingTarget, err)
	}

	notice := domain.MessageDeletedEvent{MessageID: id}
	if msg, err := s.chat.Get(ctx, id); err == nil {
		notice.ClientID = msg.ClientID
	}
	if err := s.chat.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrMessageNotFound) {
		s.logger.Warnw("Message tombstone not stored", "message_id", id, "error", err)
	}

	s.publisher.Publish(notice, domain.All())
	s.guard.RecordAction(ctx, &domain.ModerationAction{
		Action:      domain.ActionDeleteMessage,
		PerformedBy: issuedBy,
		Detail:      id,
	})
	return nil
}

// ClearExpired runs a sweep on demand.
func (s *AdminService) ClearExpired(ctx context.Context, issuedBy string) (int, error) {
	removed, err := s.guard.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	s.guard.RecordAction(ctx, &domain.ModerationAction{
		Action:      domain.ActionClearExpired,
		PerformedBy: issuedBy,
		Detail:      fmt.Sprintf("%d records", removed),
	})
	s.presence.Broadcast(ctx)
	return removed, nil
}

// UpdatePlaylist replaces the curated playlist and relays it to everyone but
// the sender. from may be empty for HTTP callers.
func (s *AdminService) UpdatePlaylist(ctx context.Context, streams []domain.PlaylistStream, issuedBy string, from domain.ConnectionID) ([]domain.PlaylistStream, error) {
	now := time.Now()
	cleaned := make([]domain.PlaylistStream, 0, len(streams))
	for i, st := range streams {
		st.Name = strings.TrimSpace(st.Name)
		st.URL = strings.TrimSpace(st.URL)
		if st.Name == "" {
			return nil, fmt.Errorf("stream %d: name is required", i)
		}
		if err := validation.ValidateURL(st.URL); err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		if st.CreatedAt.IsZero() {
			st.CreatedAt = now
		}
		if st.CreatedBy == "" {
			st.CreatedBy = issuedBy
		}
		if st.Type == "" {
			st.Type = "m3u"
		}
		cleaned = append(cleaned, st)
	}

	s.playlistMu.Lock()
	s.playlist = cleaned
	s.playlistMu.Unlock()

	audience := domain.All()
	if from != "" {
		audience = domain.AllExcept(from)
	}
	s.publisher.Publish(domain.StreamsUpdateEvent{Streams: cleaned}, audience)
	s.guard.RecordAction(ctx, &domain.ModerationAction{
		Action:      domain.ActionStreamsUpdate,
		PerformedBy: issuedBy,
		Detail:      fmt.Sprintf("%d streams", len(cleaned)),
	})
	return cleaned, nil
}

func (s *AdminService) Playlist() []domain.PlaylistStream {
	s.playlistMu.RLock()
	defer s.playlistMu.RUnlock()
	return append([]domain.PlaylistStream(nil), s.playlist...)
}

// SendPlaylist pushes the current playlist to one connection, if one is set.
func (s *AdminService) SendPlaylist(id domain.ConnectionID) {
	playlist := s.Playlist()
	if len(playlist) == 0 {
		return
	}
	s.publisher.Publish(domain.StreamsUpdateEvent{Streams: playlist}, domain.Single(id))
}

func (s *AdminService) ConnectedUsers(ctx context.Context) []domain.PresenceEntry {
	return s.presence.Snapshot(ctx).Users
}

func (s *AdminService) ActiveBans(ctx context.Context) ([]*domain.Ban, error) {
	return s.guard.ActiveBans(ctx)
}

func (s *AdminService) ActiveMutes(ctx context.Context) ([]*domain.Mute, error) {
	return s.guard.ActiveMutes(ctx)
}

func (s *AdminService) Actions(ctx context.Context, limit int) ([]*domain.ModerationAction, error) {
	return s.guard.RecentActions(ctx, limit)
}

// AdminData assembles the dashboard payload. Partial failures leave the
// affected list empty rather than failing the whole update.
func (s *AdminService) AdminData(ctx context.Context) domain.AdminDataUpdateEvent {
	ev := domain.AdminDataUpdateEvent{
		Success:        true,
		BannedUsers:    []*domain.Ban{},
		MutedUsers:     []*domain.Mute{},
		ChatMessages:   []*domain.ChatMessage{},
		ActivityLogs:   []*domain.ModerationAction{},
		ConnectedUsers: s.ConnectedUsers(ctx),
	}

	if bans, err := s.guard.ActiveBans(ctx); err == nil {
		ev.BannedUsers = bans
	} else {
		s.logger.Warnw("Admin data: bans unavailable", "error", err)
	}
	if mutes, err := s.guard.ActiveMutes(ctx); err == nil {
		ev.MutedUsers = mutes
	} else {
		s.logger.Warnw("Admin data: mutes unavailable", "error", err)
	}
	if msgs, err := s.chat.History(ctx, "", adminDataLimit, 0); err == nil {
		ev.ChatMessages = msgs
	} else {
		s.logger.Warnw("Admin data: chat history unavailable", "error", err)
	}
	if actions, err := s.guard.RecentActions(ctx, adminDataLimit); err == nil {
		ev.ActivityLogs = actions
	} else {
		s.logger.Warnw("Admin data: activity log unavailable", "error", err)
	}

	stats := s.analytics.Stats(ctx)
	ev.StreamStats = &stats
	return ev
}
