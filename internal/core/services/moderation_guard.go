package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"
	"livehub/pkg/retry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Decision is the outcome of an admission or speech check.
type Decision struct {
	Allowed bool
	Ban     *domain.Ban
	Mute    *domain.Mute
}

func allow() Decision { return Decision{Allowed: true} }

// Reason renders a user facing explanation for a denial.
func (d Decision) Reason() string {
	switch {
	case d.Allowed:
		return ""
	case d.Ban != nil:
		if d.Ban.Reason != "" {
			return d.Ban.Reason
		}
		return "banned"
	case d.Mute != nil:
		if d.Mute.Reason != "" {
			return d.Mute.Reason
		}
		return "muted"
	}
	return "denied"
}

type BanRequest struct {
	Fingerprint string             `json:"fingerprint"`
	IP          string             `json:"ip"`
	Username    string             `json:"username"`
	Reason      string             `json:"reason"`
	Duration    domain.BanDuration `json:"duration"`
	IssuedBy    string             `json:"-"`
}

type MuteRequest struct {
	Fingerprint string              `json:"fingerprint"`
	IP          string              `json:"ip"`
	Username    string              `json:"username"`
	Reason      string              `json:"reason"`
	Duration    domain.MuteDuration `json:"duration"`
	IssuedBy    string              `json:"-"`
}

// ModerationGuard enforces bans and mutes. Writes the store could not confirm
// are kept in a pending overlay that Check and CanSpeak still honour, and are
// retried on every sweep.
type ModerationGuard struct {
	store   ports.ModerationStore
	retry   retry.Config
	logger  *zap.SugaredLogger
	metrics Metrics
	now     func() time.Time

	disconnectorMu sync.RWMutex
	disconnector   ports.Disconnector

	pendingMu    sync.Mutex
	pendingBans  map[string]*domain.Ban
	pendingMutes map[string]*domain.Mute

	// flushMu serializes flushing a pending record with clearing it, so a
	// lifted ban or mute is never written back by a flush in flight.
	flushMu sync.Mutex
}

func NewModerationGuard(store ports.ModerationStore, retryCfg retry.Config, metrics Metrics, logger *zap.SugaredLogger) *ModerationGuard {
	return &ModerationGuard{
		store:        store,
		retry:        retryCfg,
		logger:       logger,
		metrics:      metricsOrNop(metrics),
		now:          time.Now,
		pendingBans:  make(map[string]*domain.Ban),
		pendingMutes: make(map[string]*domain.Mute),
	}
}

// SetDisconnector wires the session layer, which is built after the guard.
func (g *ModerationGuard) SetDisconnector(d ports.Disconnector) {
	g.disconnectorMu.Lock()
	g.disconnector = d
	g.disconnectorMu.Unlock()
}

func (g *ModerationGuard) getDisconnector() ports.Disconnector {
	g.disconnectorMu.RLock()
	defer g.disconnectorMu.RUnlock()
	return g.disconnector
}

// Check reports whether a connection with this fingerprint and ip may stay.
// Store failures fail open, pending records are always enforced.
func (g *ModerationGuard) Check(ctx context.Context, fingerprint, ip string) Decision {
	now := g.now()
	if ban := g.pendingBan(fingerprint, ip, now); ban != nil {
		return Decision{Ban: ban}
	}
	if fingerprint == "" && ip == "" {
		return allow()
	}

	ban, err := g.store.FindBan(ctx, fingerprint, ip, now)
	if err != nil {
		g.logger.Warnw("Ban lookup failed, admitting",
			"fingerprint", fingerprint,
			"ip", ip,
			"error", err,
		)
		return allow()
	}
	if ban != nil && ban.IsActive(now) {
		return Decision{Ban: ban}
	}
	return allow()
}

// CanSpeak is Check plus the mute lookup.
func (g *ModerationGuard) CanSpeak(ctx context.Context, fingerprint, ip string) Decision {
	if d := g.Check(ctx, fingerprint, ip); !d.Allowed {
		return d
	}
	if fingerprint == "" {
		return allow()
	}

	now := g.now()
	if mute := g.pendingMute(fingerprint, now); mute != nil {
		return Decision{Mute: mute}
	}

	mute, err := g.store.FindMute(ctx, fingerprint, now)
	if err != nil {
		g.logger.Warnw("Mute lookup failed, allowing message",
			"fingerprint", fingerprint,
			"error", err,
		)
		return allow()
	}
	if mute != nil && mute.IsActive(now) {
		return Decision{Mute: mute}
	}
	return allow()
}

// ApplyBan records the ban and immediately disconnects matching connections.
// Enforcement happens even if the store write fails; the error is still
// returned so the caller knows the ban is not durable yet.
func (g *ModerationGuard) ApplyBan(ctx context.Context, req BanRequest) (*domain.Ban, error) {
	req.Fingerprint = strings.TrimSpace(req.Fingerprint)
	req.IP = strings.TrimSpace(req.IP)
	if req.Fingerprint == "" && req.IP == "" {
		return nil, domain.ErrMissingTarget
	}
	if err := req.Duration.Validate(); err != nil {
		return nil, err
	}

	now := g.now()
	ban := &domain.Ban{
		Fingerprint: req.Fingerprint,
		IP:          req.IP,
		Username:    req.Username,
		Reason:      reasonOrDefault(req.Reason, "Banned by moderator"),
		BannedBy:    req.IssuedBy,
		BannedAt:    now,
		ExpiresAt:   req.Duration.ExpiresAt(now),
	}

	writeErr := g.persist(ctx, func(ctx context.Context) error { return g.store.SaveBan(ctx, ban) })
	if writeErr != nil {
		g.addPendingBan(ban)
	} else {
		g.clearPendingBan(ban.Key())
	}

	closed := 0
	if d := g.getDisconnector(); d != nil {
		closed = d.DisconnectMatching(ban.Fingerprint, ban.IP, domain.BannedEvent{
			Message:   "You have been banned",
			Reason:    ban.Reason,
			ExpiresAt: ban.ExpiresAt,
		})
	}

	g.metrics.ModerationApplied(domain.ActionBan)
	g.RecordAction(ctx, &domain.ModerationAction{
		Action:            domain.ActionBan,
		TargetFingerprint: ban.Fingerprint,
		TargetIP:          ban.IP,
		TargetUsername:    ban.Username,
		PerformedBy:       ban.BannedBy,
		Detail:            fmt.Sprintf("%s: %s", req.Duration, ban.Reason),
	})
	g.logger.Infow("Ban applied",
		"fingerprint", ban.Fingerprint,
		"ip", ban.IP,
		"duration", req.Duration.String(),
		"by", ban.BannedBy,
		"disconnected", closed,
	)

	if writeErr != nil {
		return ban, fmt.Errorf("%w: %v", domain.ErrModerationWriteFailed, writeErr)
	}
	return ban, nil
}

// ApplyMute records the mute and notifies matching connections.
func (g *ModerationGuard) ApplyMute(ctx context.Context, req MuteRequest) (*domain.Mute, error) {
	req.Fingerprint = strings.TrimSpace(req.Fingerprint)
	if req.Fingerprint == "" {
		return nil, domain.ErrMissingTarget
	}
	if err := req.Duration.Validate(); err != nil {
		return nil, err
	}

	now := g.now()
	mute := &domain.Mute{
		Fingerprint: req.Fingerprint,
		Username:    req.Username,
		IP:          req.IP,
		Reason:      reasonOrDefault(req.Reason, "Muted by moderator"),
		MutedBy:     req.IssuedBy,
		MutedAt:     now,
		ExpiresAt:   req.Duration.ExpiresAt(now),
	}

	writeErr := g.persist(ctx, func(ctx context.Context) error { return g.store.SaveMute(ctx, mute) })
	if writeErr != nil {
		g.addPendingMute(mute)
	} else {
		g.clearPendingMute(mute.Fingerprint)
	}

	if d := g.getDisconnector(); d != nil {
		d.NotifyMatching(mute.Fingerprint, "", domain.MutedEvent{
			Reason:      mute.Reason,
			MuteEndTime: mute.ExpiresAt,
		})
	}

	g.metrics.ModerationApplied(domain.ActionMute)
	g.RecordAction(ctx, &domain.ModerationAction{
		Action:            domain.ActionMute,
		TargetFingerprint: mute.Fingerprint,
		TargetIP:          mute.IP,
		TargetUsername:    mute.Username,
		PerformedBy:       mute.MutedBy,
		Detail:            fmt.Sprintf("%dm: %s", int(req.Duration), mute.Reason),
	})
	g.logger.Infow("Mute applied",
		"fingerprint", mute.Fingerprint,
		"minutes", int(req.Duration),
		"by", mute.MutedBy,
	)

	if writeErr != nil {
		return mute, fmt.Errorf("%w: %v", domain.ErrModerationWriteFailed, writeErr)
	}
	return mute, nil
}

// ClearBan lifts bans on the fingerprint and on the ip. Clearing a ban that
// does not exist succeeds.
func (g *ModerationGuard) ClearBan(ctx context.Context, fingerprint, ip, issuedBy string) error {
	fingerprint = strings.TrimSpace(fingerprint)
	ip = strings.TrimSpace(ip)
	if fingerprint == "" && ip == "" {
		return domain.ErrMissingTarget
	}

	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	g.pendingMu.Lock()
	for key, ban := range g.pendingBans {
		if (fingerprint != "" && ban.Fingerprint == fingerprint) || (ip != "" && ban.IP == ip) {
			delete(g.pendingBans, key)
		}
	}
	g.pendingMu.Unlock()

	var removed int
	err := g.persist(ctx, func(ctx context.Context) error {
		n, err := g.store.RemoveBans(ctx, fingerprint, ip)
		removed = n
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrModerationWriteFailed, err)
	}

	g.metrics.ModerationApplied(domain.ActionUnban)
	g.RecordAction(ctx, &domain.ModerationAction{
		Action:            domain.ActionUnban,
		TargetFingerprint: fingerprint,
		TargetIP:          ip,
		PerformedBy:       issuedBy,
	})
	g.logger.Infow("Ban cleared", "fingerprint", fingerprint, "ip", ip, "removed", removed, "by", issuedBy)
	return nil
}

func (g *ModerationGuard) ClearMute(ctx context.Context, fingerprint, issuedBy string) error {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return domain.ErrMissingTarget
	}

	g.flushMu.Lock()
	defer g.flushMu.Unlock()
	g.clearPendingMute(fingerprint)

	err := g.persist(ctx, func(ctx context.Context) error {
		_, err := g.store.RemoveMute(ctx, fingerprint)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrModerationWriteFailed, err)
	}

	g.metrics.ModerationApplied(domain.ActionUnmute)
	g.RecordAction(ctx, &domain.ModerationAction{
		Action:            domain.ActionUnmute,
		TargetFingerprint: fingerprint,
		PerformedBy:       issuedBy,
	})
	g.logger.Infow("Mute cleared", "fingerprint", fingerprint, "by", issuedBy)
	return nil
}

// SweepExpired flushes pending writes and removes expired records. Expired
// records are already inert, so the sweep only reclaims space.
func (g *ModerationGuard) SweepExpired(ctx context.Context) (int, error) {
	now := g.now()
	g.flushPending(ctx, now)

	removed, err := g.store.SweepExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired moderation records: %w", err)
	}
	if removed > 0 {
		g.logger.Debugw("Swept expired moderation records", "removed", removed)
	}
	return removed, nil
}

// ActiveBans merges stored bans with pending ones.
func (g *ModerationGuard) ActiveBans(ctx context.Context) ([]*domain.Ban, error) {
	now := g.now()
	stored, err := g.store.ActiveBans(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}

	byKey := make(map[string]*domain.Ban, len(stored))
	for _, b := range stored {
		byKey[b.Key()] = b
	}
	g.pendingMu.Lock()
	for key, b := range g.pendingBans {
		if b.IsActive(now) {
			byKey[key] = b
		}
	}
	g.pendingMu.Unlock()

	out := make([]*domain.Ban, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BannedAt.After(out[j].BannedAt) })
	return out, nil
}

func (g *ModerationGuard) ActiveMutes(ctx context.Context) ([]*domain.Mute, error) {
	now := g.now()
	stored, err := g.store.ActiveMutes(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutes: %w", err)
	}

	byKey := make(map[string]*domain.Mute, len(stored))
	for _, m := range stored {
		byKey[m.Fingerprint] = m
	}
	g.pendingMu.Lock()
	for key, m := range g.pendingMutes {
		if m.IsActive(now) {
			byKey[key] = m
		}
	}
	g.pendingMu.Unlock()

	out := make([]*domain.Mute, 0, len(byKey))
	for _, m := range byKey {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MutedAt.After(out[j].MutedAt) })
	return out, nil
}

// RecentActions returns the audit log, newest first.
func (g *ModerationGuard) RecentActions(ctx context.Context, limit int) ([]*domain.ModerationAction, error) {
	return g.store.RecentActions(ctx, limit)
}

// RecordAction appends to the audit log. Failures are logged only.
func (g *ModerationGuard) RecordAction(ctx context.Context, action *domain.ModerationAction) {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = g.now()
	}
	if action.PerformedBy == "" {
		action.PerformedBy = "system"
	}
	if err := g.store.RecordAction(ctx, action); err != nil {
		g.logger.Warnw("Failed to record moderation action",
			"action", action.Action,
			"error", err,
		)
	}
}

// PendingCount reports writes still waiting for the store.
func (g *ModerationGuard) PendingCount() int {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	return len(g.pendingBans) + len(g.pendingMutes)
}

// Run sweeps on every tick until ctx is done. onSweep, if set, receives the
// number of removed records.
func (g *ModerationGuard) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := g.SweepExpired(ctx)
			if err != nil {
				g.logger.Warnw("Moderation sweep failed", "error", err)
				continue
			}
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

func (g *ModerationGuard) persist(ctx context.Context, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, g.retry, fn)
	if err != nil {
		g.metrics.ModerationWriteFailed()
		g.logger.Errorw("Moderation store write failed", "error", err)
	}
	return err
}

func (g *ModerationGuard) flushPending(ctx context.Context, now time.Time) {
	g.pendingMu.Lock()
	bans := make([]*domain.Ban, 0, len(g.pendingBans))
	for key, b := range g.pendingBans {
		if !b.IsActive(now) {
			delete(g.pendingBans, key)
			continue
		}
		bans = append(bans, b)
	}
	mutes := make([]*domain.Mute, 0, len(g.pendingMutes))
	for key, m := range g.pendingMutes {
		if !m.IsActive(now) {
			delete(g.pendingMutes, key)
			continue
		}
		mutes = append(mutes, m)
	}
	g.pendingMu.Unlock()

	for _, b := range bans {
		g.flushBan(ctx, b)
	}
	for _, m := range mutes {
		g.flushMute(ctx, m)
	}
}

func (g *ModerationGuard) flushBan(ctx context.Context, b *domain.Ban) {
	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	g.pendingMu.Lock()
	current := g.pendingBans[b.Key()] == b
	g.pendingMu.Unlock()
	if !current {
		return
	}
	if err := g.store.SaveBan(ctx, b); err != nil {
		g.logger.Warnw("Pending ban still not stored", "key", b.Key(), "error", err)
		return
	}
	g.clearPendingBanIf(b)
}

func (g *ModerationGuard) flushMute(ctx context.Context, m *domain.Mute) {
	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	g.pendingMu.Lock()
	current := g.pendingMutes[m.Fingerprint] == m
	g.pendingMu.Unlock()
	if !current {
		return
	}
	if err := g.store.SaveMute(ctx, m); err != nil {
		g.logger.Warnw("Pending mute still not stored", "fingerprint", m.Fingerprint, "error", err)
		return
	}
	g.clearPendingMuteIf(m)
}

func (g *ModerationGuard) pendingBan(fingerprint, ip string, now time.Time) *domain.Ban {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	for _, b := range g.pendingBans {
		if b.IsActive(now) && b.Matches(fingerprint, ip) {
			return b
		}
	}
	return nil
}

func (g *ModerationGuard) pendingMute(fingerprint string, now time.Time) *domain.Mute {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	if m, ok := g.pendingMutes[fingerprint]; ok && m.IsActive(now) {
		return m
	}
	return nil
}

func (g *ModerationGuard) addPendingBan(b *domain.Ban) {
	g.pendingMu.Lock()
	g.pendingBans[b.Key()] = b
	g.pendingMu.Unlock()
}

func (g *ModerationGuard) clearPendingBan(key string) {
	g.pendingMu.Lock()
	delete(g.pendingBans, key)
	g.pendingMu.Unlock()
}

// clearPendingBanIf drops b only if it was not replaced in the meantime.
func (g *ModerationGuard) clearPendingBanIf(b *domain.Ban) {
	g.pendingMu.Lock()
	if g.pendingBans[b.Key()] == b {
		delete(g.pendingBans, b.Key())
	}
	g.pendingMu.Unlock()
}

func (g *ModerationGuard) addPendingMute(m *domain.Mute) {
	g.pendingMu.Lock()
	g.pendingMutes[m.Fingerprint] = m
	g.pendingMu.Unlock()
}

func (g *ModerationGuard) clearPendingMute(fingerprint string) {
	g.pendingMu.Lock()
	delete(g.pendingMutes, fingerprint)
	g.pendingMu.Unlock()
}

func (g *ModerationGuard) clearPendingMuteIf(m *domain.Mute) {
	g.pendingMu.Lock()
	if g.pendingMutes[m.Fingerprint] == m {
		delete(g.pendingMutes, m.Fingerprint)
	}
	g.pendingMu.Unlock()
}

func reasonOrDefault(reason, fallback string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return fallback
}

// IsWriteFailure reports whether err means a moderation record was enforced
// but not yet persisted.
func IsWriteFailure(err error) bool {
	return errors.Is(err, domain.ErrModerationWriteFailed)
}
