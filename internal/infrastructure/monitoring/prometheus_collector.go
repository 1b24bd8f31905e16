package monitoring

import (
	"livehub/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements services.Metrics.
type PrometheusCollector struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	connectionsClosed *prometheus.CounterVec

	eventsPublished  *prometheus.CounterVec
	eventRecipients  prometheus.Histogram
	deliveryFailures *prometheus.CounterVec

	chatAccepted     prometheus.Counter
	chatDenied       *prometheus.CounterVec
	chatNotPersisted prometheus.Counter

	moderationActions      *prometheus.CounterVec
	moderationWriteFailure prometheus.Counter

	streamsLive    prometheus.Gauge
	framesRejected *prometheus.CounterVec
}

// NewPrometheusCollector registers the hub metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livehub_connections_active",
			Help: "Number of currently registered hub connections",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "livehub_connections_total",
			Help: "Total number of accepted websocket connections",
		}),
		connectionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livehub_connections_closed_total",
			Help: "Closed connections by reason",
		}, []string{"reason"}),

		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livehub_events_published_total",
			Help: "Events published through the broadcast hub",
		}, []string{"type"}),
		eventRecipients: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livehub_event_recipients",
			Help:    "Recipients per published event",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		deliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livehub_delivery_failures_total",
			Help: "Events dropped because a client queue stayed full",
		}, []string{"type"}),

		chatAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "livehub_chat_messages_total",
			Help: "Chat messages accepted and relayed",
		}),
		chatDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livehub_chat_denied_total",
			Help: "Chat messages refused by reason",
		}, []string{"reason"}),
		chatNotPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "livehub_chat_not_persisted_total",
			Help: "Chat messages relayed without a durable record",
		}),

		moderationActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livehub_moderation_actions_total",
			Help: "Moderation actions applied",
		}, []string{"action"}),
		moderationWriteFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "livehub_moderation_write_failures_total",
			Help: "Moderation writes the store did not confirm after retries",
		}),

		streamsLive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livehub_streams_live",
			Help: "Number of stream keys currently live",
		}),
		framesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livehub_frames_rejected_total",
			Help: "Inbound frames dropped by kind",
		}, []string{"kind"}),
	}
}

func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsActive.Inc()
	c.connectionsTotal.Inc()
}

func (c *PrometheusCollector) ConnectionClosed(reason string) {
	c.connectionsActive.Dec()
	c.connectionsClosed.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) EventPublished(eventType domain.EventType, recipients int) {
	c.eventsPublished.WithLabelValues(string(eventType)).Inc()
	c.eventRecipients.Observe(float64(recipients))
}

func (c *PrometheusCollector) DeliveryFailed(eventType domain.EventType) {
	c.deliveryFailures.WithLabelValues(string(eventType)).Inc()
}

func (c *PrometheusCollector) ChatAccepted() {
	c.chatAccepted.Inc()
}

func (c *PrometheusCollector) ChatDenied(reason string) {
	c.chatDenied.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) ChatNotPersisted() {
	c.chatNotPersisted.Inc()
}

func (c *PrometheusCollector) ModerationApplied(action domain.ModerationActionType) {
	c.moderationActions.WithLabelValues(string(action)).Inc()
}

func (c *PrometheusCollector) ModerationWriteFailed() {
	c.moderationWriteFailure.Inc()
}

func (c *PrometheusCollector) StreamsLive(n int) {
	c.streamsLive.Set(float64(n))
}

func (c *PrometheusCollector) FrameRejected(kind string) {
	c.framesRejected.WithLabelValues(kind).Inc()
}
