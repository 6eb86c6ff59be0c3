// Package rooms tracks which live connections are subscribed to which
// conversation's event stream.
//
// Room membership is ephemeral and distinct from durable conversation
// membership in the store: a client must join a room to receive its
// events, and the engine verifies durable membership before admitting
// the join. The tracker itself holds no store knowledge; it is a pure
// index pair (room -> connections, connection -> rooms) guarded by one
// lock, with the inverse index making disconnect cleanup proportional to
// the rooms a connection joined rather than to all rooms.
package rooms
