// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps :memory: databases coherent and sidesteps
	// SQLITE_BUSY under concurrent writers
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL DEFAULT 'group',
			title TEXT NOT NULL DEFAULT '',
			admin_only INTEGER NOT NULL DEFAULT 0,
			last_message_id TEXT,
			last_message_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversation_members (
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			joined_at DATETIME NOT NULL,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_members_user
			ON conversation_members(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			content TEXT NOT NULL,
			media_ref TEXT NOT NULL DEFAULT '',
			reply_to_id TEXT,
			created_at DATETIME NOT NULL,
			edited_at DATETIME,
			deleted_at DATETIME,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS reactions (
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			emoji TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id)
		);

		CREATE TABLE IF NOT EXISTS read_cursors (
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			last_read_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// CreateConversation inserts a new conversation
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, kind, title, admin_only, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		conv.ID, conv.Kind, conv.Title, boolToInt(conv.AdminOnly),
		conv.CreatedAt.UTC(), conv.UpdatedAt.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, kind, title, admin_only, last_message_id, last_message_at, created_at, updated_at
		FROM conversations WHERE id = ?
	`
	var conv Conversation
	var adminOnly int
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID, &conv.Kind, &conv.Title, &adminOnly,
		&conv.LastMessageID, &conv.LastMessageAt,
		&conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	conv.AdminOnly = adminOnly != 0
	return &conv, nil
}

// AddMember adds a user to a conversation with the given role
func (s *SQLiteStore) AddMember(ctx context.Context, conversationID, userID, role string) error {
	query := `
		INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, conversationID, userID, role, time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyMember
		}
		return fmt.Errorf("inserting member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a conversation
func (s *SQLiteStore) RemoveMember(ctx context.Context, conversationID, userID string) error {
	query := `DELETE FROM conversation_members WHERE conversation_id = ? AND user_id = ?`
	res, err := s.db.ExecContext(ctx, query, conversationID, userID)
	if err != nil {
		return fmt.Errorf("deleting member: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// IsMember reports whether the user has durable membership in the conversation
func (s *SQLiteStore) IsMember(ctx context.Context, userID, conversationID string) (bool, error) {
	query := `SELECT 1 FROM conversation_members WHERE conversation_id = ? AND user_id = ?`
	var one int
	err := s.db.QueryRowContext(ctx, query, conversationID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying membership: %w", err)
	}
	return true, nil
}

// HasRole reports whether the user holds the given role in the conversation
func (s *SQLiteStore) HasRole(ctx context.Context, userID, conversationID, role string) (bool, error) {
	query := `SELECT role FROM conversation_members WHERE conversation_id = ? AND user_id = ?`
	var got string
	err := s.db.QueryRowContext(ctx, query, conversationID, userID).Scan(&got)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying role: %w", err)
	}
	return got == role, nil
}

// ListMemberIDs returns the user IDs of all durable members
func (s *SQLiteStore) ListMemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	query := `SELECT user_id FROM conversation_members WHERE conversation_id = ? ORDER BY user_id`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TouchLastMessage updates a conversation's last-message summary
func (s *SQLiteStore) TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	query := `
		UPDATE conversations
		SET last_message_id = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := s.db.ExecContext(ctx, query, messageID, at.UTC(), time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("updating last message: %w", err)
	}
	return nil
}

// CreateMessage inserts a new message
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, content, media_ref, reply_to_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content,
		msg.MediaRef, msg.ReplyToID, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID. Soft-deleted messages are returned
// with empty content and Deleted set; callers decide whether that counts.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, conversation_id, sender_id,
		       CASE WHEN deleted_at IS NULL THEN content ELSE '' END,
		       CASE WHEN deleted_at IS NULL THEN media_ref ELSE '' END,
		       reply_to_id, created_at, edited_at, deleted_at IS NOT NULL
		FROM messages WHERE id = ?
	`
	var msg Message
	var deleted int
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
		&msg.MediaRef, &msg.ReplyToID, &msg.CreatedAt, &msg.EditedAt, &deleted)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	msg.Deleted = deleted != 0
	return &msg, nil
}

// UpdateMessageContent replaces a message's content and stamps edited_at.
// Soft-deleted messages cannot be edited.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error {
	query := `
		UPDATE messages SET content = ?, edited_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, content, editedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteMessage marks a message deleted. Content stays in the row for
// any separate compliance path; reads null it out.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, id string) error {
	query := `UPDATE messages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// MessagesSince returns messages created after the given point, oldest
// first. Soft-deleted messages appear with nulled content so late joiners
// see the tombstone, never the original text.
func (s *SQLiteStore) MessagesSince(ctx context.Context, conversationID string, since time.Time, limit int) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, sender_id,
		       CASE WHEN deleted_at IS NULL THEN content ELSE '' END,
		       CASE WHEN deleted_at IS NULL THEN media_ref ELSE '' END,
		       reply_to_id, created_at, edited_at, deleted_at IS NOT NULL
		FROM messages
		WHERE conversation_id = ? AND created_at > ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		var deleted int
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
			&msg.MediaRef, &msg.ReplyToID, &msg.CreatedAt, &msg.EditedAt, &deleted); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Deleted = deleted != 0
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

// UpsertReaction applies toggle-with-replace semantics for a user's
// reaction: no prior reaction inserts, the same emoji removes, a different
// emoji replaces in place.
func (s *SQLiteStore) UpsertReaction(ctx context.Context, messageID, userID, emoji string) (ReactionOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT emoji FROM reactions WHERE message_id = ? AND user_id = ?`,
		messageID, userID).Scan(&existing)

	var outcome ReactionOutcome
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)`,
			messageID, userID, emoji, time.Now().UTC())
		outcome = ReactionAdded
	case err != nil:
		return 0, fmt.Errorf("querying reaction: %w", err)
	case existing == emoji:
		_, err = tx.ExecContext(ctx,
			`DELETE FROM reactions WHERE message_id = ? AND user_id = ?`,
			messageID, userID)
		outcome = ReactionRemoved
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE reactions SET emoji = ?, created_at = ? WHERE message_id = ? AND user_id = ?`,
			emoji, time.Now().UTC(), messageID, userID)
		outcome = ReactionReplaced
	}
	if err != nil {
		return 0, fmt.Errorf("applying reaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing reaction: %w", err)
	}
	return outcome, nil
}

// ListReactions returns all reactions on a message
func (s *SQLiteStore) ListReactions(ctx context.Context, messageID string) ([]*Reaction, error) {
	query := `
		SELECT message_id, user_id, emoji, created_at
		FROM reactions WHERE message_id = ? ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("querying reactions: %w", err)
	}
	defer rows.Close()

	var reactions []*Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reaction: %w", err)
		}
		reactions = append(reactions, &r)
	}
	return reactions, rows.Err()
}

// AdvanceReadCursor moves a user's cursor forward. The WHERE clause makes
// regression impossible; advanced reports whether anything changed so the
// caller can suppress no-op broadcasts.
func (s *SQLiteStore) AdvanceReadCursor(ctx context.Context, conversationID, userID string, point time.Time) (bool, error) {
	query := `
		INSERT INTO read_cursors (conversation_id, user_id, last_read_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET
			last_read_at = excluded.last_read_at,
			updated_at = excluded.updated_at
		WHERE excluded.last_read_at > read_cursors.last_read_at
	`
	res, err := s.db.ExecContext(ctx, query, conversationID, userID, point.UTC(), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("advancing read cursor: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetReadCursor retrieves a user's cursor for a conversation
func (s *SQLiteStore) GetReadCursor(ctx context.Context, conversationID, userID string) (*ReadCursor, error) {
	query := `
		SELECT conversation_id, user_id, last_read_at, updated_at
		FROM read_cursors WHERE conversation_id = ? AND user_id = ?
	`
	var c ReadCursor
	err := s.db.QueryRowContext(ctx, query, conversationID, userID).Scan(
		&c.ConversationID, &c.UserID, &c.LastReadAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying read cursor: %w", err)
	}
	return &c, nil
}

// Ping verifies the database connection is alive
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
