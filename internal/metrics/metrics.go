package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation results used as label values
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics holds the chat counters and gauges
// TECHNICAL DISCOVERY: Each instance owns its registry so tests can build as
// many as they like; every method is safe on a nil receiver
type Metrics struct {
	registry *prometheus.Registry

	joins              *prometheus.CounterVec
	messages           *prometheus.CounterVec
	roomsDeleted       prometheus.Counter
	historyDecryptFail prometheus.Counter
	activeRooms        prometheus.Gauge
	activeConnections  prometheus.Gauge
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_joins_total",
			Help: "Join attempts by result.",
		}, []string{"result"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_messages_total",
			Help: "Send attempts by result.",
		}, []string{"result"}),
		roomsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_rooms_deleted_total",
			Help: "Rooms deleted.",
		}),
		historyDecryptFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_history_decrypt_failures_total",
			Help: "History entries replaced by the placeholder.",
		}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomchat_active_rooms",
			Help: "Rooms with at least one member.",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomchat_active_connections",
			Help: "Connections currently joined to a room.",
		}),
	}

	m.registry.MustRegister(
		m.joins,
		m.messages,
		m.roomsDeleted,
		m.historyDecryptFail,
		m.activeRooms,
		m.activeConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Join records the outcome of a join
func (m *Metrics) Join(result string) {
	if m == nil {
		return
	}
	m.joins.WithLabelValues(result).Inc()
}

// Message records the outcome of a send
func (m *Metrics) Message(result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(result).Inc()
}

// RoomDeleted records a successful delete
func (m *Metrics) RoomDeleted() {
	if m == nil {
		return
	}
	m.roomsDeleted.Inc()
}

// HistoryDecryptFailure records one placeholder in a history replay
func (m *Metrics) HistoryDecryptFailure() {
	if m == nil {
		return
	}
	m.historyDecryptFail.Inc()
}

// SetActive updates the active rooms and connections gauges
func (m *Metrics) SetActive(rooms, connections int) {
	if m == nil {
		return
	}
	m.activeRooms.Set(float64(rooms))
	m.activeConnections.Set(float64(connections))
}

// Handler exposes the metrics at /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
