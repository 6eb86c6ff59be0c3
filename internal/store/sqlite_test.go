// ABOUTME: Tests for the SQLite Store implementation
// ABOUTME: Covers membership, messages, reaction toggling, and cursor monotonicity

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestConversation(t *testing.T, s *SQLiteStore, members ...string) *Conversation {
	t.Helper()
	ctx := context.Background()
	conv := &Conversation{
		ID:        uuid.New().String(),
		Kind:      KindGroup,
		Title:     "test conversation",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreateConversation(ctx, conv))
	for _, userID := range members {
		require.NoError(t, s.AddMember(ctx, conv.ID, userID, RoleMember))
	}
	return conv
}

func createTestMessage(t *testing.T, s *SQLiteStore, convID, sender, content string, at time.Time) *Message {
	t.Helper()
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: convID,
		SenderID:       sender,
		Content:        content,
		CreatedAt:      at,
	}
	require.NoError(t, s.CreateMessage(context.Background(), msg))
	return msg
}

func TestSQLiteStore_ConversationRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		ID:        "conv-1",
		Kind:      KindGroup,
		Title:     "engineering",
		AdminOnly: true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	got, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "engineering", got.Title)
	assert.Equal(t, KindGroup, got.Kind)
	assert.True(t, got.AdminOnly)
	assert.Nil(t, got.LastMessageID)
}

func TestSQLiteStore_DuplicateConversation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	conv := &Conversation{ID: "conv-1", Kind: KindDirect, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.CreateConversation(ctx, conv))
	assert.ErrorIs(t, s.CreateConversation(ctx, conv), ErrDuplicateConversation)
}

func TestSQLiteStore_GetConversation_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Membership(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	conv := createTestConversation(t, s, "alice")
	require.NoError(t, s.AddMember(ctx, conv.ID, "bob", RoleAdmin))

	isMember, err := s.IsMember(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.True(t, isMember)

	isMember, err = s.IsMember(ctx, "carol", conv.ID)
	require.NoError(t, err)
	assert.False(t, isMember)

	hasRole, err := s.HasRole(ctx, "bob", conv.ID, RoleAdmin)
	require.NoError(t, err)
	assert.True(t, hasRole)

	hasRole, err = s.HasRole(ctx, "alice", conv.ID, RoleAdmin)
	require.NoError(t, err)
	assert.False(t, hasRole)

	ids, err := s.ListMemberIDs(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, ids)

	assert.ErrorIs(t, s.AddMember(ctx, conv.ID, "alice", RoleMember), ErrAlreadyMember)

	require.NoError(t, s.RemoveMember(ctx, conv.ID, "bob"))
	isMember, err = s.IsMember(ctx, "bob", conv.ID)
	require.NoError(t, err)
	assert.False(t, isMember)

	assert.ErrorIs(t, s.RemoveMember(ctx, conv.ID, "bob"), ErrNotFound)
}

func TestSQLiteStore_MessageLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	conv := createTestConversation(t, s, "alice")

	replyTo := "original-msg"
	msg := &Message{
		ID:             "msg-1",
		ConversationID: conv.ID,
		SenderID:       "alice",
		Content:        "hello",
		ReplyToID:      &replyTo,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	got, err := s.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "alice", got.SenderID)
	require.NotNil(t, got.ReplyToID)
	assert.Equal(t, "original-msg", *got.ReplyToID)
	assert.Nil(t, got.EditedAt)
	assert.False(t, got.Deleted)

	// Edit
	require.NoError(t, s.UpdateMessageContent(ctx, "msg-1", "hello, edited", time.Now()))
	got, err = s.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "hello, edited", got.Content)
	assert.NotNil(t, got.EditedAt)

	// Soft delete nulls content on read
	require.NoError(t, s.SoftDeleteMessage(ctx, "msg-1"))
	got, err = s.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Empty(t, got.Content)

	// A deleted message can be neither edited nor re-deleted
	assert.ErrorIs(t, s.UpdateMessageContent(ctx, "msg-1", "x", time.Now()), ErrNotFound)
	assert.ErrorIs(t, s.SoftDeleteMessage(ctx, "msg-1"), ErrNotFound)
}

func TestSQLiteStore_MessagesSince(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	conv := createTestConversation(t, s, "alice")

	base := time.Now().Add(-time.Hour)
	m1 := createTestMessage(t, s, conv.ID, "alice", "first", base)
	m2 := createTestMessage(t, s, conv.ID, "alice", "second", base.Add(time.Minute))
	m3 := createTestMessage(t, s, conv.ID, "alice", "third", base.Add(2*time.Minute))

	// Everything after m1
	msgs, err := s.MessagesSince(ctx, conv.ID, m1.CreatedAt, 100)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m2.ID, msgs[0].ID)
	assert.Equal(t, m3.ID, msgs[1].ID)

	// Limit applies oldest-first
	msgs, err = s.MessagesSince(ctx, conv.ID, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m1.ID, msgs[0].ID)

	// Deleted messages come back as tombstones, never with content
	require.NoError(t, s.SoftDeleteMessage(ctx, m2.ID))
	msgs, err = s.MessagesSince(ctx, conv.ID, m1.CreatedAt, 100)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Deleted)
	assert.Empty(t, msgs[0].Content)
}

func TestSQLiteStore_ReactionToggle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	conv := createTestConversation(t, s, "alice", "bob")
	msg := createTestMessage(t, s, conv.ID, "alice", "react to me", time.Now())

	// First reaction adds
	outcome, err := s.UpsertReaction(ctx, msg.ID, "bob", "👍")
	require.NoError(t, err)
	assert.Equal(t, ReactionAdded, outcome)

	reactions, err := s.ListReactions(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, "👍", reactions[0].Emoji)

	// Same emoji toggles off
	outcome, err = s.UpsertReaction(ctx, msg.ID, "bob", "👍")
	require.NoError(t, err)
	assert.Equal(t, ReactionRemoved, outcome)

	reactions, err = s.ListReactions(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, reactions)

	// Add then a different emoji replaces in place
	_, err = s.UpsertReaction(ctx, msg.ID, "bob", "👍")
	require.NoError(t, err)
	outcome, err = s.UpsertReaction(ctx, msg.ID, "bob", "❤️")
	require.NoError(t, err)
	assert.Equal(t, ReactionReplaced, outcome)

	reactions, err = s.ListReactions(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, "❤️", reactions[0].Emoji)

	// Reactions from different users coexist
	_, err = s.UpsertReaction(ctx, msg.ID, "alice", "😀")
	require.NoError(t, err)
	reactions, err = s.ListReactions(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, reactions, 2)
}

func TestSQLiteStore_ReadCursorMonotonic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	conv := createTestConversation(t, s, "alice")

	base := time.Now()

	// First mark creates the cursor
	advanced, err := s.AdvanceReadCursor(ctx, conv.ID, "alice", base)
	require.NoError(t, err)
	assert.True(t, advanced)

	// Same point is a no-op
	advanced, err = s.AdvanceReadCursor(ctx, conv.ID, "alice", base)
	require.NoError(t, err)
	assert.False(t, advanced)

	// Earlier point never regresses
	advanced, err = s.AdvanceReadCursor(ctx, conv.ID, "alice", base.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, advanced)

	cursor, err := s.GetReadCursor(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.WithinDuration(t, base, cursor.LastReadAt, time.Second)

	// Later point advances
	advanced, err = s.AdvanceReadCursor(ctx, conv.ID, "alice", base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, advanced)
}

func TestSQLiteStore_GetReadCursor_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetReadCursor(context.Background(), "conv-1", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_TouchLastMessage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	conv := createTestConversation(t, s, "alice")
	msg := createTestMessage(t, s, conv.ID, "alice", "latest", time.Now())

	require.NoError(t, s.TouchLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, msg.ID, *got.LastMessageID)
	require.NotNil(t, got.LastMessageAt)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
}
