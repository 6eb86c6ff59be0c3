// ABOUTME: Fan-out dispatcher pushing events to room members and user connections
// ABOUTME: Serializes per-conversation broadcasts so event order matches invocation order

package dispatch

import (
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/palaver-chat/palaver/internal/metrics"
	"github.com/palaver-chat/palaver/internal/presence"
	"github.com/palaver-chat/palaver/internal/rooms"
)

// convShards is the number of per-conversation serialization locks.
// Broadcasts for the same conversation always take the same shard, which
// is what preserves their relative order per receiving connection.
const convShards = 64

// Dispatcher is the single entry point for pushing events to live
// connections. Pushes are non-blocking: a dead or slow connection drops
// the event and its teardown is handled by the session's own cleanup
// path, never by the sender.
type Dispatcher struct {
	registry *presence.Registry
	tracker  *rooms.Tracker
	shards   [convShards]sync.Mutex
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given registries.
// Pass nil metrics to disable instrumentation, nil logger for default.
func NewDispatcher(registry *presence.Registry, tracker *rooms.Tracker, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		tracker:  tracker,
		metrics:  m,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Broadcast pushes an event to every connection subscribed to the
// conversation's room. If excludeConnID is non-empty that connection is
// skipped (a convenience for typing hints; clients must still tolerate
// receiving their own events).
func (d *Dispatcher) Broadcast(conversationID string, event *Event, excludeConnID string) {
	shard := &d.shards[shardFor(conversationID)]
	shard.Lock()
	defer shard.Unlock()

	frame, err := event.Encode()
	if err != nil {
		d.logger.Error("encoding event", "event", event.Event, "error", err)
		return
	}

	for _, connID := range d.tracker.Members(conversationID) {
		if excludeConnID != "" && connID == excludeConnID {
			continue
		}
		conn, ok := d.registry.Get(connID)
		if !ok {
			// Room entry outlived the registry entry; disconnect cleanup
			// will purge it
			continue
		}
		d.push(conn, frame, event.Event)
	}
}

// NotifyUser pushes an event to all of a user's live connections
// regardless of room membership. Used for notifications about
// conversations the recipient has not joined yet.
func (d *Dispatcher) NotifyUser(userID string, event *Event) {
	frame, err := event.Encode()
	if err != nil {
		d.logger.Error("encoding event", "event", event.Event, "error", err)
		return
	}

	for _, conn := range d.registry.Connections(userID) {
		d.push(conn, frame, event.Event)
	}
}

// BroadcastAll pushes an event to every live connection. Used for
// presence changes, which any client may render.
func (d *Dispatcher) BroadcastAll(event *Event, excludeConnID string) {
	frame, err := event.Encode()
	if err != nil {
		d.logger.Error("encoding event", "event", event.Event, "error", err)
		return
	}

	for _, conn := range d.registry.All() {
		if excludeConnID != "" && conn.ID() == excludeConnID {
			continue
		}
		d.push(conn, frame, event.Event)
	}
}

// Send pushes an event to a single connection.
func (d *Dispatcher) Send(conn presence.Conn, event *Event) {
	frame, err := event.Encode()
	if err != nil {
		d.logger.Error("encoding event", "event", event.Event, "error", err)
		return
	}
	d.push(conn, frame, event.Event)
}

// push enqueues one frame, counting drops. A refused frame means the
// connection is closed or its queue is full; either way the event is
// advisory and the connection's own lifecycle handles cleanup.
func (d *Dispatcher) push(conn presence.Conn, frame []byte, eventName string) {
	if conn.Enqueue(frame) {
		d.metrics.RecordBroadcast(eventName)
		return
	}
	d.metrics.RecordDrop()
	d.logger.Debug("dropped event for dead or slow connection",
		"conn_id", conn.ID(),
		"event", eventName)
}

// shardFor maps a conversation ID onto a serialization shard.
func shardFor(conversationID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return h.Sum32() % convShards
}
