package ports

import (
	"context"

	"livehub/internal/core/domain"
)

// Publisher is the part of the broadcast hub other services depend on.
type Publisher interface {
	Publish(ev domain.Event, audience domain.Audience) int
}

// Disconnector force-closes live connections. The moderation guard uses it
// to enforce bans immediately.
type Disconnector interface {
	// DisconnectMatching closes every connection whose identity fingerprint
	// or remote ip matches, after sending them notice. It returns once the
	// matching connections are unregistered.
	DisconnectMatching(fingerprint, ip string, notice domain.Event) int
	// NotifyMatching sends notice to matching connections without closing them.
	NotifyMatching(fingerprint, ip string, notice domain.Event) int
}

// StreamLifecycle is what the ingest collaborator drives.
type StreamLifecycle interface {
	Start(ctx context.Context, key domain.StreamKey, meta domain.StreamMetadata) (*domain.StreamSession, error)
	Stop(ctx context.Context, key domain.StreamKey) (bool, error)
}
