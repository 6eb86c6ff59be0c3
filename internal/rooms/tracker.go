// ABOUTME: In-memory tracker of which live connections are subscribed to which conversation
// ABOUTME: Maintains forward and inverse indices so disconnect cleanup never scans all rooms

package rooms

import (
	"log/slog"
	"sync"
)

// Tracker maps conversations to the live connections subscribed to their
// event stream. Room membership is not durable conversation membership:
// it exists only while a connection has joined and is purged on leave or
// disconnect.
//
// An inverse index (connection -> joined conversations) is kept in step
// with the forward index so removing a dropped connection touches only
// the rooms it actually joined.
type Tracker struct {
	mu     sync.RWMutex
	byRoom map[string]map[string]struct{} // conversationID -> connID set
	byConn map[string]map[string]struct{} // connID -> conversationID set
	logger *slog.Logger
}

// NewTracker creates a room membership tracker. Pass nil logger for default.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		byRoom: make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
		logger: logger.With("component", "rooms"),
	}
}

// Join subscribes a connection to a conversation's event stream.
// Joining an already-joined room is a no-op.
func (t *Tracker) Join(connID, conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byRoom[conversationID]; !ok {
		t.byRoom[conversationID] = make(map[string]struct{})
	}
	t.byRoom[conversationID][connID] = struct{}{}

	if _, ok := t.byConn[connID]; !ok {
		t.byConn[connID] = make(map[string]struct{})
	}
	t.byConn[connID][conversationID] = struct{}{}

	t.logger.Debug("room joined",
		"conn_id", connID,
		"conversation_id", conversationID,
		"room_size", len(t.byRoom[conversationID]))
}

// Leave unsubscribes a connection from a conversation. Returns true if
// the connection was actually in the room.
func (t *Tracker) Leave(connID, conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.leaveLocked(connID, conversationID)
}

// leaveLocked removes one membership and cleans empty index entries.
// Must be called with mu held.
func (t *Tracker) leaveLocked(connID, conversationID string) bool {
	room, ok := t.byRoom[conversationID]
	if !ok {
		return false
	}
	if _, in := room[connID]; !in {
		return false
	}

	delete(room, connID)
	if len(room) == 0 {
		delete(t.byRoom, conversationID)
	}

	joined := t.byConn[connID]
	delete(joined, conversationID)
	if len(joined) == 0 {
		delete(t.byConn, connID)
	}

	t.logger.Debug("room left",
		"conn_id", connID,
		"conversation_id", conversationID)
	return true
}

// RemoveConnection purges a connection from every room it joined and
// returns the conversation IDs it left. Used on disconnect, where an
// abrupt drop must behave exactly like an explicit leave from each room.
func (t *Tracker) RemoveConnection(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	joined, ok := t.byConn[connID]
	if !ok {
		return nil
	}

	left := make([]string, 0, len(joined))
	for conversationID := range joined {
		left = append(left, conversationID)
	}
	for _, conversationID := range left {
		t.leaveLocked(connID, conversationID)
	}
	return left
}

// Members returns the connection IDs currently subscribed to a conversation.
func (t *Tracker) Members(conversationID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room := t.byRoom[conversationID]
	members := make([]string, 0, len(room))
	for connID := range room {
		members = append(members, connID)
	}
	return members
}

// InRoom reports whether a connection is subscribed to a conversation.
func (t *Tracker) InRoom(connID, conversationID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.byRoom[conversationID][connID]
	return ok
}

// JoinedRooms returns the conversations a connection has joined.
func (t *Tracker) JoinedRooms(connID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	joined := t.byConn[connID]
	rooms := make([]string, 0, len(joined))
	for conversationID := range joined {
		rooms = append(rooms, conversationID)
	}
	return rooms
}

// RoomCount returns the number of rooms with at least one subscriber.
func (t *Tracker) RoomCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.byRoom)
}
