package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"
)

const maxActions = 1000

type MemoryModerationStore struct {
	mu      sync.RWMutex
	bans    map[string]*domain.Ban
	mutes   map[string]*domain.Mute
	actions []*domain.ModerationAction
}

func NewMemoryModerationStore() ports.ModerationStore {
	return &MemoryModerationStore{
		bans:  make(map[string]*domain.Ban),
		mutes: make(map[string]*domain.Mute),
	}
}

func (s *MemoryModerationStore) SaveBan(ctx context.Context, ban *domain.Ban) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *ban
	s.bans[ban.Key()] = &copied
	return nil
}

func (s *MemoryModerationStore) RemoveBans(ctx context.Context, fingerprint, ip string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, ban := range s.bans {
		if (fingerprint != "" && ban.Fingerprint == fingerprint) || (ip != "" && ban.IP == ip) {
			delete(s.bans, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryModerationStore) FindBan(ctx context.Context, fingerprint, ip string, now time.Time) (*domain.Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fingerprint != "" {
		if ban, ok := s.bans[domain.BanKey(fingerprint, "")]; ok && ban.IsActive(now) {
			copied := *ban
			return &copied, nil
		}
	}
	for _, ban := range s.bans {
		if ban.IsActive(now) && ban.Matches(fingerprint, ip) {
			copied := *ban
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryModerationStore) ActiveBans(ctx context.Context, now time.Time) ([]*domain.Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Ban, 0, len(s.bans))
	for _, ban := range s.bans {
		if ban.IsActive(now) {
			copied := *ban
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BannedAt.After(out[j].BannedAt) })
	return out, nil
}

func (s *MemoryModerationStore) SaveMute(ctx context.Context, mute *domain.Mute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *mute
	s.mutes[mute.Fingerprint] = &copied
	return nil
}

func (s *MemoryModerationStore) RemoveMute(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.mutes[fingerprint]
	delete(s.mutes, fingerprint)
	return ok, nil
}

func (s *MemoryModerationStore) FindMute(ctx context.Context, fingerprint string, now time.Time) (*domain.Mute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mute, ok := s.mutes[fingerprint]
	if !ok || !mute.IsActive(now) {
		return nil, nil
	}
	copied := *mute
	return &copied, nil
}

func (s *MemoryModerationStore) ActiveMutes(ctx context.Context, now time.Time) ([]*domain.Mute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Mute, 0, len(s.mutes))
	for _, mute := range s.mutes {
		if mute.IsActive(now) {
			copied := *mute
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MutedAt.After(out[j].MutedAt) })
	return out, nil
}

func (s *MemoryModerationStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, ban := range s.bans {
		if !ban.IsActive(now) {
			delete(s.bans, key)
			removed++
		}
	}
	for key, mute := range s.mutes {
		if !mute.IsActive(now) {
			delete(s.mutes, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryModerationStore) RecordAction(ctx context.Context, action *domain.ModerationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *action
	s.actions = append(s.actions, &copied)
	if len(s.actions) > maxActions {
		s.actions = s.actions[len(s.actions)-maxActions:]
	}
	return nil
}

func (s *MemoryModerationStore) RecentActions(ctx context.Context, limit int) ([]*domain.ModerationAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.actions) {
		limit = len(s.actions)
	}
	out := make([]*domain.ModerationAction, 0, limit)
	for i := len(s.actions) - 1; i >= 0 && len(out) < limit; i-- {
		copied := *s.actions[i]
		out = append(out, &copied)
	}
	return out, nil
}
