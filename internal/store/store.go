// ABOUTME: Store interface and data types for palaver persistence
// ABOUTME: Defines Conversation, Message, Reaction, ReadCursor and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when creating a conversation that already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrAlreadyMember is returned when adding a user who is already a member
var ErrAlreadyMember = errors.New("already a member")

// ConversationKind constants
const (
	KindDirect = "direct"
	KindGroup  = "group"
)

// Member role constants
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Conversation represents a direct or group conversation
type Conversation struct {
	ID            string
	Kind          string // "direct" or "group"
	Title         string // empty for direct conversations
	AdminOnly     bool   // restrict posting to admins
	LastMessageID *string
	LastMessageAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Member represents a durable conversation membership
type Member struct {
	ConversationID string
	UserID         string
	Role           string // "member" or "admin"
	JoinedAt       time.Time
}

// Message represents a single message within a conversation.
// Soft-deleted messages keep their row but lose their content.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	MediaRef       string     `json:"media_ref,omitempty"`
	ReplyToID      *string    `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	Deleted        bool       `json:"deleted,omitempty"`
}

// Reaction represents one user's emoji reaction to a message.
// At most one reaction exists per (message, user) pair.
type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionOutcome describes what an UpsertReaction call did.
type ReactionOutcome int

const (
	ReactionAdded    ReactionOutcome = iota // no prior reaction existed
	ReactionRemoved                         // same emoji repeated, reaction toggled off
	ReactionReplaced                        // different emoji, replaced in place
)

// String returns the wire name for the outcome.
func (o ReactionOutcome) String() string {
	switch o {
	case ReactionAdded:
		return "added"
	case ReactionRemoved:
		return "removed"
	case ReactionReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// ReadCursor marks how far a user has read within a conversation.
// LastReadAt is monotonically non-decreasing.
type ReadCursor struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	LastReadAt     time.Time `json:"last_read_at"`
	UpdatedAt      time.Time `json:"-"`
}

// Store defines the interface for conversation persistence
type Store interface {
	// Conversations and membership
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	AddMember(ctx context.Context, conversationID, userID, role string) error
	RemoveMember(ctx context.Context, conversationID, userID string) error
	IsMember(ctx context.Context, userID, conversationID string) (bool, error)
	HasRole(ctx context.Context, userID, conversationID, role string) (bool, error)
	ListMemberIDs(ctx context.Context, conversationID string) ([]string, error)
	TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error

	// Messages
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error
	SoftDeleteMessage(ctx context.Context, id string) error
	MessagesSince(ctx context.Context, conversationID string, since time.Time, limit int) ([]*Message, error)

	// Reactions
	UpsertReaction(ctx context.Context, messageID, userID, emoji string) (ReactionOutcome, error)
	ListReactions(ctx context.Context, messageID string) ([]*Reaction, error)

	// Read cursors
	AdvanceReadCursor(ctx context.Context, conversationID, userID string, point time.Time) (advanced bool, err error)
	GetReadCursor(ctx context.Context, conversationID, userID string) (*ReadCursor, error)

	Close() error
}
