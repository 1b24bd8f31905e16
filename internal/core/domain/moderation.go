package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ban denies a fingerprint and/or an IP. ExpiresAt nil means permanent.
type Ban struct {
	Fingerprint string     `json:"fingerprint,omitempty"`
	IP          string     `json:"ip_address,omitempty"`
	Username    string     `json:"username,omitempty"`
	Reason      string     `json:"reason"`
	BannedBy    string     `json:"banned_by"`
	BannedAt    time.Time  `json:"banned_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// BanKey returns the replacement key for a ban: one active ban per
// fingerprint, or per IP when no fingerprint is known.
func BanKey(fingerprint, ip string) string {
	if fingerprint != "" {
		return "fp:" + fingerprint
	}
	return "ip:" + ip
}

func (b *Ban) Key() string {
	return BanKey(b.Fingerprint, b.IP)
}

// IsActive treats an expiry equal to now as already expired.
func (b *Ban) IsActive(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

func (b *Ban) IsPermanent() bool {
	return b.ExpiresAt == nil
}

// Matches uses OR semantics: either the fingerprint or the IP is enough.
func (b *Ban) Matches(fingerprint, ip string) bool {
	if fingerprint != "" && b.Fingerprint == fingerprint {
		return true
	}
	return ip != "" && b.IP == ip
}

type Mute struct {
	Fingerprint string    `json:"fingerprint"`
	Username    string    `json:"username,omitempty"`
	IP          string    `json:"ip_address,omitempty"`
	Reason      string    `json:"reason"`
	MutedBy     string    `json:"muted_by"`
	MutedAt     time.Time `json:"muted_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (m *Mute) IsActive(now time.Time) bool {
	return m.ExpiresAt.After(now)
}

type ModerationActionType string

const (
	ActionBan           ModerationActionType = "ban"
	ActionUnban         ModerationActionType = "unban"
	ActionMute          ModerationActionType = "mute"
	ActionUnmute        ModerationActionType = "unmute"
	ActionDeleteMessage ModerationActionType = "delete_message"
	ActionClearExpired  ModerationActionType = "clear_expired"
	ActionStreamsUpdate ModerationActionType = "streams_update"
	ActionUnauthorized  ModerationActionType = "unauthorized_admin_attempt"
)

// ModerationAction is one entry of the moderation audit log.
type ModerationAction struct {
	ID                string               `json:"id"`
	Action            ModerationActionType `json:"action"`
	TargetFingerprint string               `json:"target_fingerprint,omitempty"`
	TargetIP          string               `json:"target_ip,omitempty"`
	TargetUsername    string               `json:"target_username,omitempty"`
	PerformedBy       string               `json:"performed_by"`
	Detail            string               `json:"detail,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

// BanDuration is either a positive number of hours or permanent. On the wire
// it is the string "permanent", a number, or a numeric string.
type BanDuration struct {
	Hours     int
	Permanent bool
}

func PermanentBan() BanDuration {
	return BanDuration{Permanent: true}
}

func BanHours(h int) BanDuration {
	return BanDuration{Hours: h}
}

func ParseBanDuration(s string) (BanDuration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "permanent" {
		return PermanentBan(), nil
	}
	h, err := strconv.Atoi(s)
	if err != nil {
		return BanDuration{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	d := BanHours(h)
	return d, d.Validate()
}

func (d BanDuration) Validate() error {
	if d.Permanent {
		return nil
	}
	if d.Hours <= 0 {
		return fmt.Errorf("%w: ban hours must be > 0 or permanent", ErrInvalidDuration)
	}
	return nil
}

// ExpiresAt returns nil for a permanent ban.
func (d BanDuration) ExpiresAt(from time.Time) *time.Time {
	if d.Permanent {
		return nil
	}
	t := from.Add(time.Duration(d.Hours) * time.Hour)
	return &t
}

func (d BanDuration) String() string {
	if d.Permanent {
		return "permanent"
	}
	return strconv.Itoa(d.Hours) + "h"
}

func (d *BanDuration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseBanDuration(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	var h int
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, string(data))
	}
	*d = BanHours(h)
	return d.Validate()
}

func (d BanDuration) MarshalJSON() ([]byte, error) {
	if d.Permanent {
		return []byte(`"permanent"`), nil
	}
	return []byte(strconv.Itoa(d.Hours)), nil
}

// MuteDuration is a positive number of minutes. Mutes always expire.
type MuteDuration int

func (d MuteDuration) Validate() error {
	if d <= 0 {
		return fmt.Errorf("%w: mute minutes must be > 0", ErrInvalidDuration)
	}
	return nil
}

func (d MuteDuration) ExpiresAt(from time.Time) time.Time {
	return from.Add(time.Duration(d) * time.Minute)
}

func (d *MuteDuration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		m, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		*d = MuteDuration(m)
		return d.Validate()
	}
	var m int
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, string(data))
	}
	*d = MuteDuration(m)
	return d.Validate()
}
