package services

import "livehub/internal/core/domain"

// Metrics is implemented by the prometheus collector. Services accept nil and
// fall back to NopMetrics.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed(reason string)
	EventPublished(eventType domain.EventType, recipients int)
	DeliveryFailed(eventType domain.EventType)
	ChatAccepted()
	ChatDenied(reason string)
	ChatNotPersisted()
	ModerationApplied(action domain.ModerationActionType)
	ModerationWriteFailed()
	StreamsLive(n int)
	FrameRejected(kind string)
}

type NopMetrics struct{}

func (NopMetrics) ConnectionOpened()                             {}
func (NopMetrics) ConnectionClosed(string)                       {}
func (NopMetrics) EventPublished(domain.EventType, int)          {}
func (NopMetrics) DeliveryFailed(domain.EventType)               {}
func (NopMetrics) ChatAccepted()                                 {}
func (NopMetrics) ChatDenied(string)                             {}
func (NopMetrics) ChatNotPersisted()                             {}
func (NopMetrics) ModerationApplied(domain.ModerationActionType) {}
func (NopMetrics) ModerationWriteFailed()                        {}
func (NopMetrics) StreamsLive(int)                               {}
func (NopMetrics) FrameRejected(string)                          {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return NopMetrics{}
	}
	return m
}
