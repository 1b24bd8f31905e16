package domain

import "time"

type StreamKey string

type StreamStatus string

const (
	StreamLive    StreamStatus = "live"
	StreamOffline StreamStatus = "offline"
)

type StreamMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// StreamSession is one Idle -> Live -> Idle cycle of a stream key. Ended
// sessions are kept for analytics.
type StreamSession struct {
	ID          string     `json:"id"`
	Key         StreamKey  `json:"streamKey"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Thumbnail   string     `json:"thumbnail,omitempty"`
	PlaybackURL string     `json:"playbackUrl"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

func (s *StreamSession) IsLive() bool {
	return s.EndedAt == nil
}

func (s *StreamSession) Status() StreamStatus {
	if s.IsLive() {
		return StreamLive
	}
	return StreamOffline
}

// PlaylistStream is an admin-curated external playlist entry relayed to
// every client through streams_update.
type PlaylistStream struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Type      string    `json:"type,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
}
