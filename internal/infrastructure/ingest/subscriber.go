package ingest

import (
	"context"
	"encoding/json"
	"time"

	"livehub/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "livehub:ingest"

// Subscriber feeds start/stop notices published on a Redis channel into the
// stream bridge.
type Subscriber struct {
	client    *redis.Client
	channel   string
	lifecycle ports.StreamLifecycle
	retry     time.Duration
	logger    *zap.SugaredLogger
	doneCh    chan struct{}
}

func NewSubscriber(client *redis.Client, channel string, lifecycle ports.StreamLifecycle, logger *zap.SugaredLogger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{
		client:    client,
		channel:   channel,
		lifecycle: lifecycle,
		retry:     2 * time.Second,
		logger:    logger,
		doneCh:    make(chan struct{}),
	}
}

// Done is closed when Run returns.
func (s *Subscriber) Done() <-chan struct{} { return s.doneCh }

// Run consumes the channel until ctx is done, resubscribing after errors.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		err := s.runSubscription(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warnw("Ingest subscription lost, resubscribing",
			"channel", s.channel,
			"retry_in", s.retry.String(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry):
		}
	}
}

func (s *Subscriber) runSubscription(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	s.logger.Infow("Subscribed to ingest channel", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			s.handleMessage(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, payload string) {
	var req DetectRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		s.logger.Warnw("Invalid ingest payload", "error", err)
		return
	}

	result, err := Apply(ctx, s.lifecycle, req)
	if err != nil {
		s.logger.Warnw("Ingest notice rejected",
			"action", req.Action,
			"stream_key", req.StreamKey,
			"error", err,
		)
		return
	}
	s.logger.Debugw("Ingest notice applied",
		"action", result.Action,
		"stream_key", req.StreamKey,
		"changed", result.Changed,
	)
}
