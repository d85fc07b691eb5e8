// Package metrics holds the Prometheus collectors shared by the room engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	EventsAppended     *prometheus.CounterVec
	DirectedMisses     prometheus.Counter
	SlowSubscribers    prometheus.Counter
	Subscriptions      prometheus.Gauge
	Connections        prometheus.Gauge
	ClientMessages     *prometheus.CounterVec
	ClientMessageFails *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomsync",
			Name:      "events_appended_total",
			Help:      "Events appended to room logs, by event type.",
		}, []string{"type"}),
		DirectedMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomsync",
			Name:      "directed_publish_misses_total",
			Help:      "Directed events published to a recipient with no live subscription.",
		}),
		SlowSubscribers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomsync",
			Name:      "slow_subscribers_total",
			Help:      "Subscriptions closed because their delivery queue was full.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomsync",
			Name:      "subscriptions",
			Help:      "Live event bus subscriptions.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomsync",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		ClientMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomsync",
			Name:      "client_messages_total",
			Help:      "Inbound client messages, by message type.",
		}, []string{"type"}),
		ClientMessageFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomsync",
			Name:      "client_message_failures_total",
			Help:      "Rejected inbound client messages, by error code.",
		}, []string{"code"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.EventsAppended,
			m.DirectedMisses,
			m.SlowSubscribers,
			m.Subscriptions,
			m.Connections,
			m.ClientMessages,
			m.ClientMessageFails,
		)
	}
	return m
}

func (m *Metrics) EventAppended(eventType string) {
	if m == nil {
		return
	}
	m.EventsAppended.WithLabelValues(eventType).Inc()
}

func (m *Metrics) DirectedMiss() {
	if m == nil {
		return
	}
	m.DirectedMisses.Inc()
}

func (m *Metrics) SlowSubscriber() {
	if m == nil {
		return
	}
	m.SlowSubscribers.Inc()
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.Subscriptions.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.Subscriptions.Dec()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

func (m *Metrics) ClientMessage(msgType string) {
	if m == nil {
		return
	}
	m.ClientMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) ClientMessageFailed(code string) {
	if m == nil {
		return
	}
	m.ClientMessageFails.WithLabelValues(code).Inc()
}
