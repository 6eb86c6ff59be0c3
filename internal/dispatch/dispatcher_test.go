// ABOUTME: Tests for the event Dispatcher
// ABOUTME: Covers room fan-out, exclusion, per-user delivery, ordering, dead connections

package dispatch

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palaver-chat/palaver/internal/presence"
	"github.com/palaver-chat/palaver/internal/rooms"
)

// captureConn implements presence.Conn and records every enqueued frame.
type captureConn struct {
	id     string
	userID string
	mu     sync.Mutex
	frames [][]byte
	dead   bool
}

func (c *captureConn) ID() string     { return c.id }
func (c *captureConn) UserID() string { return c.userID }

func (c *captureConn) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *captureConn) events(t *testing.T) []*Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]*Event, 0, len(c.frames))
	for _, frame := range c.frames {
		var e Event
		require.NoError(t, json.Unmarshal(frame, &e))
		events = append(events, &e)
	}
	return events
}

type fixture struct {
	registry   *presence.Registry
	tracker    *rooms.Tracker
	dispatcher *Dispatcher
}

func newFixture() *fixture {
	registry := presence.NewRegistry(nil)
	tracker := rooms.NewTracker(nil)
	return &fixture{
		registry:   registry,
		tracker:    tracker,
		dispatcher: NewDispatcher(registry, tracker, nil, nil),
	}
}

func (f *fixture) addConn(connID, userID string, joined ...string) *captureConn {
	conn := &captureConn{id: connID, userID: userID}
	f.registry.Register(conn)
	for _, conversationID := range joined {
		f.tracker.Join(connID, conversationID)
	}
	return conn
}

func TestDispatcher_BroadcastReachesRoomMembers(t *testing.T) {
	f := newFixture()
	a := f.addConn("c1", "alice", "conv-1")
	b := f.addConn("c2", "bob", "conv-1")
	outsider := f.addConn("c3", "carol") // online but not joined

	f.dispatcher.Broadcast("conv-1", NewEvent(EventMessageCreated, "conv-1", map[string]string{"content": "hi"}), "")

	require.Len(t, a.events(t), 1)
	require.Len(t, b.events(t), 1)
	assert.Empty(t, outsider.events(t))

	got := b.events(t)[0]
	assert.Equal(t, "event", got.Type)
	assert.Equal(t, EventMessageCreated, got.Event)
	assert.Equal(t, "conv-1", got.ConversationID)
}

func TestDispatcher_BroadcastExcludesConnection(t *testing.T) {
	f := newFixture()
	a := f.addConn("c1", "alice", "conv-1")
	b := f.addConn("c2", "bob", "conv-1")

	f.dispatcher.Broadcast("conv-1", NewEvent(EventTypingChanged, "conv-1", &TypingPayload{UserID: "alice"}), "c1")

	assert.Empty(t, a.events(t))
	assert.Len(t, b.events(t), 1)
}

func TestDispatcher_NotifyUserHitsAllConnections(t *testing.T) {
	f := newFixture()
	tab1 := f.addConn("c1", "alice")
	tab2 := f.addConn("c2", "alice")
	other := f.addConn("c3", "bob")

	f.dispatcher.NotifyUser("alice", NewEvent(EventMessageCreated, "conv-1", nil))

	assert.Len(t, tab1.events(t), 1)
	assert.Len(t, tab2.events(t), 1)
	assert.Empty(t, other.events(t))
}

func TestDispatcher_BroadcastAll(t *testing.T) {
	f := newFixture()
	a := f.addConn("c1", "alice")
	b := f.addConn("c2", "bob")

	f.dispatcher.BroadcastAll(NewEvent(EventPresenceChanged, "", &PresencePayload{UserID: "carol", Online: true}), "c1")

	assert.Empty(t, a.events(t))
	require.Len(t, b.events(t), 1)
	assert.Equal(t, EventPresenceChanged, b.events(t)[0].Event)
}

func TestDispatcher_PerConversationOrdering(t *testing.T) {
	f := newFixture()
	receiver := f.addConn("c1", "alice", "conv-1")

	const n = 200
	for i := 0; i < n; i++ {
		payload := map[string]int{"seq": i}
		f.dispatcher.Broadcast("conv-1", NewEvent(EventMessageCreated, "conv-1", payload), "")
	}

	events := receiver.events(t)
	require.Len(t, events, n)
	for i, e := range events {
		payload, ok := e.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(i), payload["seq"], fmt.Sprintf("event %d out of order", i))
	}
}

func TestDispatcher_DeadConnectionIsSkippedSilently(t *testing.T) {
	f := newFixture()
	dead := f.addConn("c1", "alice", "conv-1")
	dead.dead = true
	live := f.addConn("c2", "bob", "conv-1")

	// Broadcast must not error or panic; the live member still receives
	f.dispatcher.Broadcast("conv-1", NewEvent(EventMessageCreated, "conv-1", nil), "")

	assert.Empty(t, dead.events(t))
	assert.Len(t, live.events(t), 1)
}

func TestDispatcher_SendSingleConnection(t *testing.T) {
	f := newFixture()
	conn := f.addConn("c1", "alice")

	f.dispatcher.Send(conn, NewEvent(EventConnected, "", &ConnectedPayload{ConnectionID: "c1", UserID: "alice"}))

	events := conn.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, EventConnected, events[0].Event)
}

func TestDispatcher_ConcurrentBroadcastsSameConversationStayOrderedPerSender(t *testing.T) {
	f := newFixture()
	receiver := f.addConn("c1", "alice", "conv-1")

	// Two goroutines interleave; the shard lock guarantees each event is
	// delivered atomically and the total count is exact.
	var wg sync.WaitGroup
	const perSender = 100
	for s := 0; s < 2; s++ {
		wg.Add(1)
		go func(sender int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				f.dispatcher.Broadcast("conv-1", NewEvent(EventMessageCreated, "conv-1", map[string]int{"sender": sender, "seq": i}), "")
			}
		}(s)
	}
	wg.Wait()

	events := receiver.events(t)
	require.Len(t, events, 2*perSender)

	// Per-sender sequences must each be in order
	next := map[float64]float64{0: 0, 1: 0}
	for _, e := range events {
		payload := e.Payload.(map[string]any)
		sender := payload["sender"].(float64)
		seq := payload["seq"].(float64)
		assert.Equal(t, next[sender], seq)
		next[sender]++
	}
}
