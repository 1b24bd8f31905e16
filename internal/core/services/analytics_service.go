package services

import (
	"context"
	"fmt"
	"time"

	"livehub/internal/core/domain"

	"go.uber.org/zap"
)

// AnalyticsService aggregates dashboard counters. Each counter degrades to
// zero on its own when its source fails.
type AnalyticsService struct {
	registry *ConnectionRegistry
	chat     *ChatService
	bridge   *StreamBridge
	guard    *ModerationGuard
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewAnalyticsService(registry *ConnectionRegistry, chat *ChatService, bridge *StreamBridge, guard *ModerationGuard, logger *zap.SugaredLogger) *AnalyticsService {
	return &AnalyticsService{
		registry: registry,
		chat:     chat,
		bridge:   bridge,
		guard:    guard,
		logger:   logger,
		now:      time.Now,
	}
}

// activeWindow is how recent the last frame must be for a user to count as
// active.
const activeWindow = 5 * time.Minute

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (a *AnalyticsService) Stats(ctx context.Context) domain.DashboardStats {
	now := a.now()
	midnight := startOfDay(now)

	stats := domain.DashboardStats{
		ConnectedUsers: a.registry.Count(),
		LiveStreams:    len(a.bridge.Live()),
	}

	if n, err := a.chat.CountSince(ctx, time.Time{}); err == nil {
		stats.TotalMessages = n
	} else {
		a.logger.Debugw("Analytics: total messages unavailable", "error", err)
	}
	if n, err := a.chat.CountSince(ctx, midnight); err == nil {
		stats.MessagesToday = n
	} else {
		a.logger.Debugw("Analytics: messages today unavailable", "error", err)
	}
	if sessions, err := a.bridge.History(ctx); err == nil {
		stats.TotalStreams = len(sessions)
	} else {
		a.logger.Debugw("Analytics: stream history unavailable", "error", err)
	}
	if bans, err := a.guard.ActiveBans(ctx); err == nil {
		stats.ActiveBans = len(bans)
	}
	if mutes, err := a.guard.ActiveMutes(ctx); err == nil {
		stats.ActiveMutes = len(mutes)
	}
	if actions, err := a.guard.RecentActions(ctx, 0); err == nil {
		for _, act := range actions {
			if !act.CreatedAt.Before(midnight) {
				stats.ActionsToday++
			}
		}
	}
	return stats
}

// MessageStats buckets messages over period. The last bucket holds the
// current hour or day.
func (a *AnalyticsService) MessageStats(ctx context.Context, period domain.StatsPeriod) (domain.MessageStats, error) {
	width, n := period.Buckets()
	daily := width == 24*time.Hour
	now := a.now()
	last := now.Truncate(width)
	if daily {
		last = startOfDay(now)
	}

	starts := make([]time.Time, n)
	since := make([]int, n)
	for i := range starts {
		if daily {
			starts[i] = last.AddDate(0, 0, i-(n-1))
		} else {
			starts[i] = last.Add(-time.Duration(n-1-i) * width)
		}
		count, err := a.chat.CountSince(ctx, starts[i])
		if err != nil {
			return domain.MessageStats{}, fmt.Errorf("failed to count messages: %w", err)
		}
		since[i] = count
	}

	stats := domain.MessageStats{Period: period, Total: since[0], Buckets: make([]domain.MessageBucket, n)}
	for i := range starts {
		count := since[i]
		if i+1 < n {
			count -= since[i+1]
		}
		stats.Buckets[i] = domain.MessageBucket{Start: starts[i], Count: count}
	}
	return stats, nil
}

func (a *AnalyticsService) ActivityStats(ctx context.Context) domain.ActivityStats {
	snap := a.registry.Snapshot()
	cutoff := a.now().Add(-activeWindow)

	stats := domain.ActivityStats{
		Connections: snap.Count,
		UniqueUsers: len(snap.Users),
		ByRole:      make(map[domain.UserRole]int),
	}
	for _, u := range snap.Users {
		stats.ByRole[u.Role]++
		if !u.LastActivity.Before(cutoff) {
			stats.RecentlyActive++
		}
	}
	return stats
}

// StreamStats summarizes every recorded session. Live sessions count their
// duration up to now.
func (a *AnalyticsService) StreamStats(ctx context.Context) (domain.StreamStats, error) {
	sessions, err := a.bridge.History(ctx)
	if err != nil {
		return domain.StreamStats{}, fmt.Errorf("failed to load stream history: %w", err)
	}
	now := a.now()

	stats := domain.StreamStats{Total: len(sessions), Sessions: sessions}
	var total time.Duration
	for _, s := range sessions {
		end := now
		if s.IsLive() {
			stats.Live++
		} else {
			end = *s.EndedAt
		}
		if d := end.Sub(s.StartedAt); d > 0 {
			total += d
		}
	}
	stats.TotalDurationSeconds = int64(total / time.Second)
	if len(sessions) > 0 {
		stats.AverageDurationSeconds = stats.TotalDurationSeconds / int64(len(sessions))
	}
	return stats, nil
}

func (a *AnalyticsService) ModerationStats(ctx context.Context) (domain.ModerationStats, error) {
	bans, err := a.guard.ActiveBans(ctx)
	if err != nil {
		return domain.ModerationStats{}, fmt.Errorf("failed to list bans: %w", err)
	}
	mutes, err := a.guard.ActiveMutes(ctx)
	if err != nil {
		return domain.ModerationStats{}, fmt.Errorf("failed to list mutes: %w", err)
	}
	actions, err := a.guard.RecentActions(ctx, 0)
	if err != nil {
		return domain.ModerationStats{}, fmt.Errorf("failed to load moderation log: %w", err)
	}

	midnight := startOfDay(a.now())
	stats := domain.ModerationStats{
		ActiveBans:  len(bans),
		ActiveMutes: len(mutes),
		ByAction:    make(map[domain.ModerationActionType]int),
	}
	for _, act := range actions {
		stats.ByAction[act.Action]++
		if !act.CreatedAt.Before(midnight) {
			stats.ActionsToday++
		}
	}
	return stats, nil
}

// ActivityLog pages the moderation audit log, newest first.
func (a *AnalyticsService) ActivityLog(ctx context.Context, limit, offset int) ([]*domain.ModerationAction, error) {
	actions, err := a.guard.RecentActions(ctx, limit+offset)
	if err != nil {
		return nil, fmt.Errorf("failed to load moderation log: %w", err)
	}
	if offset >= len(actions) {
		return []*domain.ModerationAction{}, nil
	}
	return actions[offset:], nil
}
