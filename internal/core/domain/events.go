package domain

import (
	"encoding/json"
	"time"
)

type EventType string

// Client to hub.
const (
	EventIdentify         EventType = "identify"
	EventHeartbeat        EventType = "heartbeat"
	EventRequestSnapshot  EventType = "request_snapshot"
	EventAdminAction      EventType = "admin_action"
	EventRequestAdminData EventType = "request_admin_data"
)

// Both directions.
const (
	EventChatMessage   EventType = "chat_message"
	EventStreamsUpdate EventType = "streams_update"
)

// Hub to client.
const (
	EventUserCount       EventType = "user_count"
	EventUserList        EventType = "user_list"
	EventStreamStatus    EventType = "stream_status"
	EventMessageDeleted  EventType = "message_deleted"
	EventAdminDataUpdate EventType = "admin_data_update"
	EventBanned          EventType = "banned"
	EventMuted           EventType = "muted"
	EventChatDenied      EventType = "chat_denied"
	EventError           EventType = "error"
)

// Error codes carried by ErrorEvent.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Event is the closed set of frames exchanged over a hub connection. The
// unexported method keeps implementations inside this package.
type Event interface {
	EventType() EventType
	event()
}

type IdentifyEvent struct {
	Username    string `json:"username"`
	Page        string `json:"page,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Token       string `json:"token,omitempty"`
}

type HeartbeatEvent struct{}

type RequestSnapshotEvent struct{}

// ChatMessageEvent.ID is the hub's id on the way out. Inbound, a client may
// put its local id in either ID or ClientID; it only ever comes back as
// ClientID.
type ChatMessageEvent struct {
	ID        string    `json:"id,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Role      UserRole  `json:"role,omitempty"`
	Body      string    `json:"body"`
	Timestamp int64     `json:"timestamp,omitempty"`
	StreamKey StreamKey `json:"streamKey,omitempty"`
}

type UserCountEvent struct {
	Count int `json:"count"`
}

type UserListEvent struct {
	Users []PublicUser `json:"users"`
}

type StreamStatusEvent struct {
	Action      string       `json:"action"`
	Status      StreamStatus `json:"status"`
	StreamKey   StreamKey    `json:"streamKey"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Thumbnail   string       `json:"thumbnail,omitempty"`
	PlaybackURL string       `json:"playbackUrl,omitempty"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
}

type MessageDeletedEvent struct {
	MessageID string `json:"messageId"`
	ClientID  string `json:"clientId,omitempty"`
}

// AdminActionEvent keeps Data raw; the coordinator decodes it per action.
type AdminActionEvent struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type RequestAdminDataEvent struct{}

type AdminDataUpdateEvent struct {
	Action         string              `json:"action,omitempty"`
	Success        bool                `json:"success"`
	Error          string              `json:"error,omitempty"`
	BannedUsers    []*Ban              `json:"bannedUsers"`
	MutedUsers     []*Mute             `json:"mutedUsers"`
	ConnectedUsers []PresenceEntry     `json:"connectedUsers"`
	ChatMessages   []*ChatMessage      `json:"chatMessages"`
	ActivityLogs   []*ModerationAction `json:"activityLogs"`
	StreamStats    *DashboardStats     `json:"streamStats,omitempty"`
}

type StreamsUpdateEvent struct {
	Streams []PlaylistStream `json:"streams"`
}

type BannedEvent struct {
	Message   string     `json:"message"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type MutedEvent struct {
	Reason      string    `json:"reason,omitempty"`
	MuteEndTime time.Time `json:"muteEndTime"`
}

type ChatDeniedEvent struct {
	Reason      string     `json:"reason"`
	MuteEndTime *time.Time `json:"muteEndTime,omitempty"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (IdentifyEvent) EventType() EventType         { return EventIdentify }
func (HeartbeatEvent) EventType() EventType        { return EventHeartbeat }
func (RequestSnapshotEvent) EventType() EventType  { return EventRequestSnapshot }
func (ChatMessageEvent) EventType() EventType      { return EventChatMessage }
func (UserCountEvent) EventType() EventType        { return EventUserCount }
func (UserListEvent) EventType() EventType         { return EventUserList }
func (StreamStatusEvent) EventType() EventType     { return EventStreamStatus }
func (MessageDeletedEvent) EventType() EventType   { return EventMessageDeleted }
func (AdminActionEvent) EventType() EventType      { return EventAdminAction }
func (RequestAdminDataEvent) EventType() EventType { return EventRequestAdminData }
func (AdminDataUpdateEvent) EventType() EventType  { return EventAdminDataUpdate }
func (StreamsUpdateEvent) EventType() EventType    { return EventStreamsUpdate }
func (BannedEvent) EventType() EventType           { return EventBanned }
func (MutedEvent) EventType() EventType            { return EventMuted }
func (ChatDeniedEvent) EventType() EventType       { return EventChatDenied }
func (ErrorEvent) EventType() EventType            { return EventError }

func (IdentifyEvent) event()         {}
func (HeartbeatEvent) event()        {}
func (RequestSnapshotEvent) event()  {}
func (ChatMessageEvent) event()      {}
func (UserCountEvent) event()        {}
func (UserListEvent) event()         {}
func (StreamStatusEvent) event()     {}
func (MessageDeletedEvent) event()   {}
func (AdminActionEvent) event()      {}
func (RequestAdminDataEvent) event() {}
func (AdminDataUpdateEvent) event()  {}
func (StreamsUpdateEvent) event()    {}
func (BannedEvent) event()           {}
func (MutedEvent) event()            {}
func (ChatDeniedEvent) event()       {}
func (ErrorEvent) event()            {}

// NewUserListEvent strips the entries down to their public view.
func NewUserListEvent(entries []PresenceEntry) UserListEvent {
	users := make([]PublicUser, len(entries))
	for i, e := range entries {
		users[i] = e.Public()
	}
	return UserListEvent{Users: users}
}

// NewChatMessageEvent renders a stored message for the wire.
func NewChatMessageEvent(m *ChatMessage) ChatMessageEvent {
	return ChatMessageEvent{
		ID:        m.ID,
		ClientID:  m.ClientID,
		Username:  m.Username,
		Role:      m.Role,
		Body:      m.Body,
		Timestamp: m.Timestamp.UnixMilli(),
		StreamKey: m.StreamKey,
	}
}

func NewStreamStatusEvent(s *StreamSession) StreamStatusEvent {
	ev := StreamStatusEvent{
		Action:      "stop",
		Status:      s.Status(),
		StreamKey:   s.Key,
		Title:       s.Title,
		Description: s.Description,
		Thumbnail:   s.Thumbnail,
		PlaybackURL: s.PlaybackURL,
	}
	if s.IsLive() {
		started := s.StartedAt
		ev.Action = "start"
		ev.StartedAt = &started
	}
	return ev
}
