package domain

import "time"

type PresenceEntry struct {
	ConnectionID ConnectionID `json:"-"`
	Username     string       `json:"username"`
	Role         UserRole     `json:"role"`
	Fingerprint  string       `json:"fingerprint,omitempty"`
	IP           string       `json:"ip,omitempty"`
	Page         string       `json:"page,omitempty"`
	ConnectTime  time.Time    `json:"connectTime"`
	LastActivity time.Time    `json:"lastActivity"`
	MuteEndTime  *time.Time   `json:"muteEndTime,omitempty"`
}

// PublicUser is the presence entry every viewer sees. Moderation keys stay
// in PresenceEntry, which only reaches staff.
type PublicUser struct {
	Username     string     `json:"username"`
	Role         UserRole   `json:"role"`
	ConnectTime  time.Time  `json:"connectTime"`
	LastActivity time.Time  `json:"lastActivity"`
	MuteEndTime  *time.Time `json:"muteEndTime,omitempty"`
}

func (e PresenceEntry) Public() PublicUser {
	return PublicUser{
		Username:     e.Username,
		Role:         e.Role,
		ConnectTime:  e.ConnectTime,
		LastActivity: e.LastActivity,
		MuteEndTime:  e.MuteEndTime,
	}
}

// PresenceSnapshot is derived from the connection registry on demand.
// Count covers every live connection, Users only the distinct identified ones.
type PresenceSnapshot struct {
	Count   int             `json:"count"`
	Users   []PresenceEntry `json:"users"`
	TakenAt time.Time       `json:"takenAt"`
}

type DashboardStats struct {
	ConnectedUsers int `json:"connectedUsers"`
	TotalMessages  int `json:"totalMessages"`
	MessagesToday  int `json:"messagesToday"`
	LiveStreams    int `json:"liveStreams"`
	TotalStreams   int `json:"totalStreams"`
	ActiveBans     int `json:"activeBans"`
	ActiveMutes    int `json:"activeMutes"`
	ActionsToday   int `json:"actionsToday"`
}

type AudienceKind int

const (
	AudienceAll AudienceKind = iota
	AudienceAllExceptSender
	AudienceSingle
)

// Audience selects broadcast recipients.
type Audience struct {
	Kind AudienceKind
	ID   ConnectionID
}

func All() Audience {
	return Audience{Kind: AudienceAll}
}

func AllExcept(id ConnectionID) Audience {
	return Audience{Kind: AudienceAllExceptSender, ID: id}
}

func Single(id ConnectionID) Audience {
	return Audience{Kind: AudienceSingle, ID: id}
}
