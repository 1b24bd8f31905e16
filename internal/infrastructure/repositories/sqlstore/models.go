package sqlstore

import (
	"time"

	"livehub/internal/core/domain"
)

type banRecord struct {
	Key         string `gorm:"column:ban_key;primaryKey;size:191"`
	Fingerprint string `gorm:"size:128;index"`
	IP          string `gorm:"size:64;index"`
	Username    string `gorm:"size:64"`
	Reason      string `gorm:"size:500"`
	BannedBy    string `gorm:"size:64"`
	BannedAt    time.Time
	ExpiresAt   *time.Time `gorm:"index"`
}

func (banRecord) TableName() string { return "bans" }

func newBanRecord(b *domain.Ban) *banRecord {
	rec := &banRecord{
		Key:         b.Key(),
		Fingerprint: b.Fingerprint,
		IP:          b.IP,
		Username:    b.Username,
		Reason:      b.Reason,
		BannedBy:    b.BannedBy,
		BannedAt:    b.BannedAt.UTC(),
	}
	if b.ExpiresAt != nil {
		t := b.ExpiresAt.UTC()
		rec.ExpiresAt = &t
	}
	return rec
}

func (r *banRecord) toDomain() *domain.Ban {
	return &domain.Ban{
		Fingerprint: r.Fingerprint,
		IP:          r.IP,
		Username:    r.Username,
		Reason:      r.Reason,
		BannedBy:    r.BannedBy,
		BannedAt:    r.BannedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

type muteRecord struct {
	Fingerprint string `gorm:"primaryKey;size:128"`
	Username    string `gorm:"size:64"`
	IP          string `gorm:"size:64"`
	Reason      string `gorm:"size:500"`
	MutedBy     string `gorm:"size:64"`
	MutedAt     time.Time
	ExpiresAt   time.Time `gorm:"index"`
}

func (muteRecord) TableName() string { return "mutes" }

func newMuteRecord(m *domain.Mute) *muteRecord {
	return &muteRecord{
		Fingerprint: m.Fingerprint,
		Username:    m.Username,
		IP:          m.IP,
		Reason:      m.Reason,
		MutedBy:     m.MutedBy,
		MutedAt:     m.MutedAt.UTC(),
		ExpiresAt:   m.ExpiresAt.UTC(),
	}
}

func (r *muteRecord) toDomain() *domain.Mute {
	return &domain.Mute{
		Fingerprint: r.Fingerprint,
		Username:    r.Username,
		IP:          r.IP,
		Reason:      r.Reason,
		MutedBy:     r.MutedBy,
		MutedAt:     r.MutedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

type actionRecord struct {
	ID                string    `gorm:"primaryKey;size:64"`
	Action            string    `gorm:"size:64;index"`
	TargetFingerprint string    `gorm:"size:128"`
	TargetIP          string    `gorm:"size:64"`
	TargetUsername    string    `gorm:"size:64"`
	PerformedBy       string    `gorm:"size:64"`
	Detail            string    `gorm:"size:500"`
	CreatedAt         time.Time `gorm:"index"`
}

func (actionRecord) TableName() string { return "moderation_actions" }

func newActionRecord(a *domain.ModerationAction) *actionRecord {
	return &actionRecord{
		ID:                a.ID,
		Action:            string(a.Action),
		TargetFingerprint: a.TargetFingerprint,
		TargetIP:          a.TargetIP,
		TargetUsername:    a.TargetUsername,
		PerformedBy:       a.PerformedBy,
		Detail:            a.Detail,
		CreatedAt:         a.CreatedAt.UTC(),
	}
}

func (r *actionRecord) toDomain() *domain.ModerationAction {
	return &domain.ModerationAction{
		ID:                r.ID,
		Action:            domain.ModerationActionType(r.Action),
		TargetFingerprint: r.TargetFingerprint,
		TargetIP:          r.TargetIP,
		TargetUsername:    r.TargetUsername,
		PerformedBy:       r.PerformedBy,
		Detail:            r.Detail,
		CreatedAt:         r.CreatedAt,
	}
}

type chatRecord struct {
	ID          string    `gorm:"primaryKey;size:64"`
	ClientID    string    `gorm:"size:64"`
	Username    string    `gorm:"size:64"`
	Role        string    `gorm:"size:16"`
	Fingerprint string    `gorm:"size:128"`
	IP          string    `gorm:"size:64"`
	Body        string    `gorm:"type:text"`
	Timestamp   time.Time `gorm:"column:sent_at;index"`
	StreamKey   string    `gorm:"size:128;index"`
	Deleted     bool
}

func (chatRecord) TableName() string { return "chat_messages" }

func newChatRecord(m *domain.ChatMessage) *chatRecord {
	return &chatRecord{
		ID:          m.ID,
		ClientID:    m.ClientID,
		Username:    m.Username,
		Role:        string(m.Role),
		Fingerprint: m.Fingerprint,
		IP:          m.IP,
		Body:        m.Body,
		Timestamp:   m.Timestamp.UTC(),
		StreamKey:   string(m.StreamKey),
		Deleted:     m.Deleted,
	}
}

func (r *chatRecord) toDomain() *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:          r.ID,
		ClientID:    r.ClientID,
		Username:    r.Username,
		Role:        domain.UserRole(r.Role),
		Fingerprint: r.Fingerprint,
		IP:          r.IP,
		Body:        r.Body,
		Timestamp:   r.Timestamp,
		StreamKey:   domain.StreamKey(r.StreamKey),
		Deleted:     r.Deleted,
	}
}
