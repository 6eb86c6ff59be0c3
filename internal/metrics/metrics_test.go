// ABOUTME: Tests for the Prometheus collectors
// ABOUTME: Verifies recording and nil-receiver safety

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecording(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetConnections(3)
	m.SetRooms(2)
	m.RecordBroadcast("message.created")
	m.RecordBroadcast("message.created")
	m.RecordDrop()
	m.RecordCommand("send", "ok")
	m.RecordCommand("send", "not_a_member")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConnectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RoomsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsBroadcast.WithLabelValues("message.created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("send", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("send", "not_a_member")))
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.SetConnections(1)
	m.SetRooms(1)
	m.RecordBroadcast("x")
	m.RecordDrop()
	m.RecordCommand("send", "ok")
}
