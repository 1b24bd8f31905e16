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

type ModerationStore struct {
	db *gorm.DB
}

func NewModerationStore(db *gorm.DB) ports.ModerationStore {
	return &ModerationStore{db: db}
}

func (s *ModerationStore) SaveBan(ctx context.Context, ban *domain.Ban) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(newBanRecord(ban)).Error
	if err != nil {
		return fmt.Errorf("failed to save ban %s: %w", ban.Key(), err)
	}
	return nil
}

func (s *ModerationStore) RemoveBans(ctx context.Context, fingerprint, ip string) (int, error) {
	q, ok := matchBan(s.db.WithContext(ctx), fingerprint, ip)
	if !ok {
		return 0, nil
	}
	res := q.Delete(&banRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to remove bans: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// FindBan prefers the ban keyed by fingerprint over one that only matches ip.
func (s *ModerationStore) FindBan(ctx context.Context, fingerprint, ip string, now time.Time) (*domain.Ban, error) {
	db := s.db.WithContext(ctx)
	if fingerprint != "" {
		var rec banRecord
		res := active(db, now).Where("ban_key = ?", domain.BanKey(fingerprint, "")).Limit(1).Find(&rec)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to find ban: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return rec.toDomain(), nil
		}
	}

	q, ok := matchBan(active(db, now), fingerprint, ip)
	if !ok {
		return nil, nil
	}
	var rec banRecord
	res := q.Order("banned_at DESC").Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to find ban: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return rec.toDomain(), nil
}

func (s *ModerationStore) ActiveBans(ctx context.Context, now time.Time) ([]*domain.Ban, error) {
	var recs []banRecord
	if err := active(s.db.WithContext(ctx), now).Order("banned_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}
	out := make([]*domain.Ban, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}

func (s *ModerationStore) SaveMute(ctx context.Context, mute *domain.Mute) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(newMuteRecord(mute)).Error
	if err != nil {
		return fmt.Errorf("failed to save mute %s: %w", mute.Fingerprint, err)
	}
	return nil
}

func (s *ModerationStore) RemoveMute(ctx context.Context, fingerprint string) (bool, error) {
	res := s.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).Delete(&muteRecord{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to remove mute %s: %w", fingerprint, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *ModerationStore) FindMute(ctx context.Context, fingerprint string, now time.Time) (*domain.Mute, error) {
	var rec muteRecord
	res := s.db.WithContext(ctx).
		Where("fingerprint = ? AND expires_at > ?", fingerprint, now.UTC()).
		Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to find mute: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return rec.toDomain(), nil
}

func (s *ModerationStore) ActiveMutes(ctx context.Context, now time.Time) ([]*domain.Mute, error) {
	var recs []muteRecord
	err := s.db.WithContext(ctx).
		Where("expires_at > ?", now.UTC()).
		Order("muted_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list mutes: %w", err)
	}
	out := make([]*domain.Mute, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}

func (s *ModerationStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	removed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bans := tx.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&banRecord{})
		if bans.Error != nil {
			return bans.Error
		}
		mutes := tx.Where("expires_at <= ?", now).Delete(&muteRecord{})
		if mutes.Error != nil {
			return mutes.Error
		}
		removed = int(bans.RowsAffected + mutes.RowsAffected)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired moderation records: %w", err)
	}
	return removed, nil
}

func (s *ModerationStore) RecordAction(ctx context.Context, action *domain.ModerationAction) error {
	if err := s.db.WithContext(ctx).Create(newActionRecord(action)).Error; err != nil {
		return fmt.Errorf("failed to record moderation action: %w", err)
	}
	return nil
}

func (s *ModerationStore) RecentActions(ctx context.Context, limit int) ([]*domain.ModerationAction, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []actionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list moderation actions: %w", err)
	}
	out := make([]*domain.ModerationAction, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}

// active keeps bans that are permanent or expire after now.
func active(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where("expires_at IS NULL OR expires_at > ?", now.UTC())
}

// matchBan adds the fingerprint-or-ip condition. It reports false when
// neither is set, since nothing can match.
func matchBan(db *gorm.DB, fingerprint, ip string) (*gorm.DB, bool) {
	switch {
	case fingerprint != "" && ip != "":
		return db.Where("fingerprint = ? OR ip = ?", fingerprint, ip), true
	case fingerprint != "":
		return db.Where("fingerprint = ?", fingerprint), true
	case ip != "":
		return db.Where("ip = ?", ip), true
	default:
		return db, false
	}
}
