package ingest

import (
	"context"
	"fmt"
	"strings"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"
	"livehub/pkg/tracing"
)

const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// DetectRequest is the start/stop notice sent by the media server, over HTTP
// or the ingest channel.
type DetectRequest struct {
	Action      string           `json:"action"`
	StreamKey   domain.StreamKey `json:"streamKey"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Thumbnail   string           `json:"thumbnail,omitempty"`
}

// DetectResult reports what a request changed. Session is nil when a stop
// found nothing live.
type DetectResult struct {
	Action  string                `json:"action"`
	Changed bool                  `json:"changed"`
	Session *domain.StreamSession `json:"session,omitempty"`
}

// Apply drives lifecycle with req.
func Apply(ctx context.Context, lifecycle ports.StreamLifecycle, req DetectRequest) (DetectResult, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	key := domain.StreamKey(strings.TrimSpace(string(req.StreamKey)))

	ctx, span := tracing.TraceIngest(ctx, action, string(key))
	defer span.End()

	switch action {
	case ActionStart:
		session, err := lifecycle.Start(ctx, key, domain.StreamMetadata{
			Title:       req.Title,
			Description: req.Description,
			Thumbnail:   req.Thumbnail,
		})
		if err != nil {
			return DetectResult{}, err
		}
		return DetectResult{Action: action, Changed: true, Session: session}, nil

	case ActionStop:
		stopped, err := lifecycle.Stop(ctx, key)
		if err != nil {
			return DetectResult{}, err
		}
		return DetectResult{Action: action, Changed: stopped}, nil

	default:
		return DetectResult{}, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, req.Action)
	}
}
