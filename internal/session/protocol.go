// ABOUTME: Wire types for the client command protocol
// ABOUTME: Inbound Command frames and outbound Ack frames

package session

import (
	"time"

	"github.com/palaver-chat/palaver/internal/store"
)

// Inbound command types.
const (
	CmdJoin     = "join"
	CmdLeave    = "leave"
	CmdSend     = "send"
	CmdEdit     = "edit"
	CmdDelete   = "delete"
	CmdReact    = "react"
	CmdTyping   = "typing"
	CmdMarkRead = "mark_read"
)

// Command is every inbound client frame. Type selects the operation;
// the remaining fields are populated per command. ID is an opaque
// client-chosen correlation token echoed back in the acknowledgment.
type Command struct {
	ID             string     `json:"id,omitempty"`
	Type           string     `json:"type"`
	ConversationID string     `json:"conversation_id,omitempty"`
	MessageID      string     `json:"message_id,omitempty"`
	Content        string     `json:"content,omitempty"`
	MediaRef       string     `json:"media_ref,omitempty"`
	ReplyToID      *string    `json:"reply_to_id,omitempty"`
	Emoji          string     `json:"emoji,omitempty"`
	Point          *time.Time `json:"point,omitempty"`
}

// AckError carries the failure code and a human-readable message.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ack is the structured acknowledgment returned to the originating
// connection for every command except typing. The top-level "type"
// discriminates acks from events on the wire.
type Ack struct {
	Type    string    `json:"type"` // always "ack"
	ID      string    `json:"id,omitempty"`
	Success bool      `json:"success"`
	Error   *AckError `json:"error,omitempty"`

	// Command-specific results
	Message  *store.Message   `json:"message,omitempty"`
	Backlog  []*store.Message `json:"backlog,omitempty"`
	Reaction string           `json:"reaction,omitempty"`
	Advanced *bool            `json:"advanced,omitempty"`
}
