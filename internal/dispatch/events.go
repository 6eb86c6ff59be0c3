// ABOUTME: Outbound event envelope and event name constants
// ABOUTME: Everything a client receives asynchronously is one of these frames

package dispatch

import (
	"encoding/json"
	"time"
)

// Event names pushed to clients.
const (
	EventConnected       = "connected"
	EventPresenceChanged = "presence.changed"
	EventMessageCreated  = "message.created"
	EventMessageUpdated  = "message.updated"
	EventMessageDeleted  = "message.deleted"
	EventReactionChanged = "reaction.changed"
	EventTypingChanged   = "typing.changed"
	EventReadUpdated     = "read.updated"
	EventMemberLeft      = "member.left"
)

// Event is the envelope every asynchronous frame is wrapped in. The
// top-level "type" discriminates events from command acknowledgments on
// the wire.
type Event struct {
	Type           string    `json:"type"` // always "event"
	Event          string    `json:"event"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Payload        any       `json:"payload,omitempty"`
	Timestamp      time.Time `json:"ts"`
}

// NewEvent builds an event envelope stamped with the current time.
func NewEvent(name, conversationID string, payload any) *Event {
	return &Event{
		Type:           "event",
		Event:          name,
		ConversationID: conversationID,
		Payload:        payload,
		Timestamp:      time.Now(),
	}
}

// Encode marshals the envelope once so a broadcast serializes a single
// frame shared by every target connection.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// PresencePayload announces a user coming online or going offline.
type PresencePayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// DeletionPayload carries only the identifiers of a deleted message.
// Content is deliberately absent: clients that cached the original must
// never receive it again after deletion.
type DeletionPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// ReactionPayload describes the outcome of a reaction command.
type ReactionPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"` // "added", "removed", "replaced"
}

// TypingPayload is the ephemeral typing hint.
type TypingPayload struct {
	UserID string `json:"user_id"`
}

// ReadPayload announces a read-cursor advance.
type ReadPayload struct {
	UserID     string    `json:"user_id"`
	LastReadAt time.Time `json:"last_read_at"`
}

// MemberLeftPayload announces that a user no longer has any connection in
// the room. Fired once per user, not once per connection.
type MemberLeftPayload struct {
	UserID string `json:"user_id"`
}

// ConnectedPayload acknowledges a successful registration to the client.
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}
