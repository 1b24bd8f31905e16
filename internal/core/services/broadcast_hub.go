package services

import (
	"sync"
	"time"

	"livehub/internal/core/domain"

	"go.uber.org/zap"
)

// BroadcastHub delivers events to registered clients. Publishes are
// serialized, so every recipient sees events in publish order.
type BroadcastHub struct {
	registry    *ConnectionRegistry
	sendTimeout time.Duration
	logger      *zap.SugaredLogger
	metrics     Metrics

	publishMu sync.Mutex

	overflowMu sync.RWMutex
	onOverflow func(*Client)
}

func NewBroadcastHub(registry *ConnectionRegistry, sendTimeout time.Duration, metrics Metrics, logger *zap.SugaredLogger) *BroadcastHub {
	return &BroadcastHub{
		registry:    registry,
		sendTimeout: sendTimeout,
		logger:      logger,
		metrics:     metricsOrNop(metrics),
	}
}

// OnOverflow sets the handler for clients whose queue stayed full past the
// send timeout. It runs on its own goroutine, outside any hub lock.
func (h *BroadcastHub) OnOverflow(fn func(*Client)) {
	h.overflowMu.Lock()
	h.onOverflow = fn
	h.overflowMu.Unlock()
}

// Publish encodes ev once and enqueues it for the audience. It returns the
// number of clients the event was queued for. A single target that is no
// longer registered is silently dropped.
func (h *BroadcastHub) Publish(ev domain.Event, audience domain.Audience) int {
	data, err := domain.Encode(ev)
	if err != nil {
		h.logger.Errorw("Failed to encode event", "type", ev.EventType(), "error", err)
		return 0
	}

	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	var (
		sent     int
		stalled  []*Client
		overflow []*Client
	)
	deliver := func(c *Client) {
		switch c.enqueue(data, 0) {
		case delivered:
			sent++
		case bufferFull:
			stalled = append(stalled, c)
		}
	}

	switch audience.Kind {
	case domain.AudienceSingle:
		if c, ok := h.registry.Get(audience.ID); ok {
			deliver(c)
		}
	case domain.AudienceAllExceptSender:
		h.registry.ForEachExcept(audience.ID, deliver)
	default:
		h.registry.ForEachExcept("", deliver)
	}

	// Stalled clients share one send timeout.
	deadline := time.Now().Add(h.sendTimeout)
	for _, c := range stalled {
		switch c.enqueue(data, time.Until(deadline)) {
		case delivered:
			sent++
		case bufferFull:
			overflow = append(overflow, c)
		}
	}

	h.metrics.EventPublished(ev.EventType(), sent)
	for _, c := range overflow {
		h.metrics.DeliveryFailed(ev.EventType())
		h.logger.Warnw("Client send queue full, closing connection",
			"connection_id", c.ID,
			"type", ev.EventType(),
		)
		h.scheduleOverflow(c)
	}
	return sent
}

func (h *BroadcastHub) scheduleOverflow(c *Client) {
	h.overflowMu.RLock()
	fn := h.onOverflow
	h.overflowMu.RUnlock()

	if fn == nil {
		go c.Close(nil, 0)
		return
	}
	go fn(c)
}
