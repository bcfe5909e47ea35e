package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the coordination-layer collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	online      prometheus.Gauge
	pushes      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	messages    prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "push_clients_online",
			Help:      "Users with a registered push connection.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "push_events_total",
			Help:      "Push events by type and outcome.",
		}, []string{"type", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "call_transitions_total",
			Help:      "Call session state transitions by target status.",
		}, []string{"status"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "messages_sent_total",
			Help:      "Messages persisted.",
		}),
	}
	reg.MustRegister(m.online, m.pushes, m.transitions, m.messages)
	return m
}

func (m *Metrics) setOnline(n int) {
	if m == nil {
		return
	}
	m.online.Set(float64(n))
}

func (m *Metrics) pushDelivered(eventType string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(eventType, "delivered").Inc()
}

func (m *Metrics) pushDropped(eventType string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(eventType, "dropped").Inc()
}

func (m *Metrics) callTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) messageSent() {
	if m == nil {
		return
	}
	m.messages.Inc()
}
