package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"
	"livehub/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const streamKeyPlaceholder = "{stream_key}"

// StreamBridge turns ingest start/stop signals into stream_status broadcasts.
// Several keys may be live at once; the most recently started one is the
// displayed stream.
type StreamBridge struct {
	repo      ports.StreamRepository
	publisher ports.Publisher
	template  string
	logger    *zap.SugaredLogger
	metrics   Metrics
	now       func() time.Time

	mu        sync.Mutex
	live      map[domain.StreamKey]*domain.StreamSession
	displayed domain.StreamKey
}

func NewStreamBridge(repo ports.StreamRepository, publisher ports.Publisher, playbackTemplate string, metrics Metrics, logger *zap.SugaredLogger) *StreamBridge {
	return &StreamBridge{
		repo:      repo,
		publisher: publisher,
		template:  playbackTemplate,
		logger:    logger,
		metrics:   metricsOrNop(metrics),
		now:       time.Now,
		live:      make(map[domain.StreamKey]*domain.StreamSession),
	}
}

// PlaybackURL derives the HLS playlist URL for key.
func (b *StreamBridge) PlaybackURL(key domain.StreamKey) string {
	if b.template == "" {
		return "/live/" + string(key) + "/index.m3u8"
	}
	return strings.ReplaceAll(b.template, streamKeyPlaceholder, string(key))
}

// Restore reloads sessions left live by a previous run so late joiners still
// see them. Nothing is broadcast.
func (b *StreamBridge) Restore(ctx context.Context) error {
	sessions, err := b.repo.ListLive(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range sessions {
		b.live[s.Key] = s
		if d, ok := b.live[b.displayed]; !ok || s.StartedAt.After(d.StartedAt) {
			b.displayed = s.Key
		}
	}
	b.metrics.StreamsLive(len(b.live))
	return nil
}

// Start moves key to Live and broadcasts the transition. Starting a key that
// is already live only refreshes its metadata.
func (b *StreamBridge) Start(ctx context.Context, key domain.StreamKey, meta domain.StreamMetadata) (*domain.StreamSession, error) {
	if err := validation.ValidateStreamKey(string(key)); err != nil {
		return nil, domain.ErrInvalidStreamKey
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	session, alreadyLive := b.live[key]
	if alreadyLive {
		if meta.Title != "" {
			session.Title = meta.Title
		}
		if meta.Description != "" {
			session.Description = meta.Description
		}
		if meta.Thumbnail != "" {
			session.Thumbnail = meta.Thumbnail
		}
	} else {
		session = &domain.StreamSession{
			ID:          uuid.NewString(),
			Key:         key,
			Title:       meta.Title,
			Description: meta.Description,
			Thumbnail:   meta.Thumbnail,
			PlaybackURL: b.PlaybackURL(key),
			StartedAt:   b.now(),
		}
		if session.Title == "" {
			session.Title = string(key)
		}
		b.live[key] = session
		b.displayed = key
	}

	b.save(ctx, session)
	b.metrics.StreamsLive(len(b.live))

	copied := *session
	b.publisher.Publish(domain.NewStreamStatusEvent(&copied), domain.All())
	b.logger.Infow("Stream live",
		"stream_key", key,
		"session_id", session.ID,
		"refresh", alreadyLive,
	)
	return &copied, nil
}

// Stop moves key to Idle. It reports false, without broadcasting, when the
// key was not live.
func (b *StreamBridge) Stop(ctx context.Context, key domain.StreamKey) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.live[key]
	if !ok {
		return false, nil
	}
	delete(b.live, key)

	ended := b.now()
	session.EndedAt = &ended
	b.save(ctx, session)

	if b.displayed == key {
		b.displayed = ""
		var newest *domain.StreamSession
		for _, s := range b.live {
			if newest == nil || s.StartedAt.After(newest.StartedAt) {
				newest = s
			}
		}
		if newest != nil {
			b.displayed = newest.Key
		}
	}
	b.metrics.StreamsLive(len(b.live))

	copied := *session
	b.publisher.Publish(domain.NewStreamStatusEvent(&copied), domain.All())
	b.logger.Infow("Stream ended",
		"stream_key", key,
		"session_id", session.ID,
		"duration", ended.Sub(session.StartedAt).String(),
	)
	return true, nil
}

// Live returns copies of the live sessions, oldest first.
func (b *StreamBridge) Live() []*domain.StreamSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*domain.StreamSession, 0, len(b.live))
	for _, s := range b.live {
		copied := *s
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Displayed returns the stream players should show, if any is live.
func (b *StreamBridge) Displayed() (*domain.StreamSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.live[b.displayed]
	if !ok {
		return nil, false
	}
	copied := *s
	return &copied, true
}

// SendStatus replays the live statuses to a single connection, displayed
// stream last.
func (b *StreamBridge) SendStatus(id domain.ConnectionID) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	sessions := make([]*domain.StreamSession, 0, len(b.live))
	for _, s := range b.live {
		if s.Key != b.displayed {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
	if d, ok := b.live[b.displayed]; ok {
		sessions = append(sessions, d)
	}

	sent := 0
	for _, s := range sessions {
		sent += b.publisher.Publish(domain.NewStreamStatusEvent(s), domain.Single(id))
	}
	return sent
}

// History lists every recorded session.
func (b *StreamBridge) History(ctx context.Context) ([]*domain.StreamSession, error) {
	return b.repo.ListAll(ctx)
}

func (b *StreamBridge) save(ctx context.Context, s *domain.StreamSession) {
	copied := *s
	if err := b.repo.Save(ctx, &copied); err != nil {
		b.logger.Warnw("Failed to persist stream session",
			"stream_key", s.Key,
			"session_id", s.ID,
			"error", err,
		)
	}
}
