package services

import (
	"context"
	"sync"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"

	"go.uber.org/zap"
)

// PresenceService publishes user_count and user_list derived from the
// registry. Broadcasts are serialized so a stale snapshot never overtakes a
// newer one.
type PresenceService struct {
	registry  *ConnectionRegistry
	guard     *ModerationGuard
	publisher ports.Publisher
	logger    *zap.SugaredLogger

	mu sync.Mutex
}

func NewPresenceService(registry *ConnectionRegistry, guard *ModerationGuard, publisher ports.Publisher, logger *zap.SugaredLogger) *PresenceService {
	return &PresenceService{
		registry:  registry,
		guard:     guard,
		publisher: publisher,
		logger:    logger,
	}
}

// Snapshot returns the current presence with mute end times filled in.
func (p *PresenceService) Snapshot(ctx context.Context) domain.PresenceSnapshot {
	snap := p.registry.Snapshot()
	if p.guard == nil || len(snap.Users) == 0 {
		return snap
	}

	mutes, err := p.guard.ActiveMutes(ctx)
	if err != nil {
		p.logger.Warnw("Presence without mute state", "error", err)
		return snap
	}
	ends := make(map[string]*domain.Mute, len(mutes))
	for _, m := range mutes {
		ends[m.Fingerprint] = m
	}
	for i := range snap.Users {
		if m, ok := ends[snap.Users[i].Fingerprint]; ok && snap.Users[i].Fingerprint != "" {
			end := m.ExpiresAt
			snap.Users[i].MuteEndTime = &end
		}
	}
	return snap
}

// Broadcast sends the current presence to every connection.
func (p *PresenceService) Broadcast(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.Snapshot(ctx)
	p.publisher.Publish(domain.UserCountEvent{Count: snap.Count}, domain.All())
	p.publisher.Publish(domain.NewUserListEvent(snap.Users), domain.All())
}

// SendTo sends the current presence to one connection.
func (p *PresenceService) SendTo(ctx context.Context, id domain.ConnectionID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.Snapshot(ctx)
	p.publisher.Publish(domain.UserCountEvent{Count: snap.Count}, domain.Single(id))
	p.publisher.Publish(domain.NewUserListEvent(snap.Users), domain.Single(id))
}
