// ABOUTME: Prometheus collectors for the realtime engine
// ABOUTME: Tracks connections, rooms, broadcast volume, and command outcomes

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is
// valid everywhere it is accepted; the instrumented paths skip recording.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	RoomsActive       prometheus.Gauge
	EventsBroadcast   *prometheus.CounterVec
	EventsDropped     prometheus.Counter
	Commands          *prometheus.CounterVec
}

// New creates and registers the engine collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "palaver",
			Name:      "connections_active",
			Help:      "Number of live websocket connections.",
		}),
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "palaver",
			Name:      "rooms_active",
			Help:      "Number of conversations with at least one subscribed connection.",
		}),
		EventsBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "palaver",
			Name:      "events_broadcast_total",
			Help:      "Events pushed to connections, by event name.",
		}, []string{"event"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "palaver",
			Name:      "events_dropped_total",
			Help:      "Events dropped for dead or slow connections.",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "palaver",
			Name:      "commands_total",
			Help:      "Inbound client commands, by type and outcome.",
		}, []string{"command", "outcome"}),
	}
}

// RecordCommand counts one command outcome. Safe on a nil receiver.
func (m *Metrics) RecordCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, outcome).Inc()
}

// RecordBroadcast counts one event push. Safe on a nil receiver.
func (m *Metrics) RecordBroadcast(event string) {
	if m == nil {
		return
	}
	m.EventsBroadcast.WithLabelValues(event).Inc()
}

// RecordDrop counts one dropped event. Safe on a nil receiver.
func (m *Metrics) RecordDrop() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// SetConnections updates the live connection gauge. Safe on a nil receiver.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Set(float64(n))
}

// SetRooms updates the active room gauge. Safe on a nil receiver.
func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.RoomsActive.Set(float64(n))
}
