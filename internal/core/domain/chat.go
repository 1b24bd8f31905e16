package domain

import "time"

// ChatMessage carries a snapshot of the author at send time, not a live
// reference to the connection. ID is always assigned by the hub; ClientID is
// whatever the sender used for its local copy and is never a lookup key.
type ChatMessage struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"clientId,omitempty"`
	Username    string    `json:"username"`
	Role        UserRole  `json:"role"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	IP          string    `json:"-"`
	Body        string    `json:"body"`
	Timestamp   time.Time `json:"timestamp"`
	StreamKey   StreamKey `json:"streamKey,omitempty"`
	Deleted     bool      `json:"deleted,omitempty"`
}

// PublicChatMessage is a history entry without the author's moderation keys.
type PublicChatMessage struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId,omitempty"`
	Username  string    `json:"username"`
	Role      UserRole  `json:"role"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	StreamKey StreamKey `json:"streamKey,omitempty"`
}

func (m *ChatMessage) Public() PublicChatMessage {
	return PublicChatMessage{
		ID:        m.ID,
		ClientID:  m.ClientID,
		Username:  m.Username,
		Role:      m.Role,
		Body:      m.Body,
		Timestamp: m.Timestamp,
		StreamKey: m.StreamKey,
	}
}
