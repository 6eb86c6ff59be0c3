// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
// ForceErr, when set, is returned by every operation; tests use it to
// exercise transient-failure paths.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation      // keyed by conversation ID
	members       map[string]map[string]*Member // conversationID -> userID -> member
	messages      map[string]*Message           // keyed by message ID
	byConv        map[string][]string           // conversationID -> message IDs in creation order
	reactions     map[string]map[string]string  // messageID -> userID -> emoji
	cursors       map[string]*ReadCursor        // keyed by "conversationID|userID"
	ForceErr      error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		members:       make(map[string]map[string]*Member),
		messages:      make(map[string]*Message),
		byConv:        make(map[string][]string),
		reactions:     make(map[string]map[string]string),
		cursors:       make(map[string]*ReadCursor),
	}
}

func cursorKey(conversationID, userID string) string {
	return conversationID + "|" + userID
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceErr != nil {
		return m.ForceErr
	}

	if _, exists := m.conversations[conv.ID]; exists {
		return ErrDuplicateConversation
	}
	c := *conv
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceErr != nil {
		return nil, m.ForceErr
	}

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// AddMember adds a user to a conversation.
func (m *MockStore) AddMember(ctx context.Context, conversationID, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceErr != nil {
		return m.ForceErr
	}

	if m.members[conversationID] == nil {
		m.members[conversationID] = make(map[string]*Member)
	}
	if _, exists := m.members[conversationID][userID]; exists {
		return ErrAlreadyMember
	}
	m.members[conversationID][userID] = &Member{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		JoinedAt:       time.Now(),
	}
	return nil
}

// RemoveMember removes a user from a conversation.
func (m *MockStore) RemoveMember(ctx context.Context, conversationID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceErr != nil {
		return m.ForceErr
	}

	if _, ok := m.members[conversationID][userID]; !ok {
		return ErrNotFound
	}
	delete(m.members[conversationID], userID)
	return nil
}

// IsMember reports durable membership.
func (m *MockStore) IsMember(ctx context.Context, userID, conversationID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceErr != nil {
		return false, m.ForceErr
	}

	_, ok := m.members[conversationID][userID]
	return ok, nil
}

// HasRole reports whether the user holds the given role.
func (m *MockStore) HasRole(ctx context.Context, userID, conversationID, role string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceErr != nil {
		return false, m.ForceErr
	}

	member, ok := m.members[conversationID][userID]
	if !ok {
		return false, nil
	}
	return member.Role == role, nil
}

// ListMemberIDs returns all member user IDs, sorted.
func (m *MockStore) ListMemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceErr != nil {
		return nil, m.ForceErr
	}

	var ids []string
	for id := range m.members[conversationID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// TouchLastMessage updates a conversation's last-message summary.
func (m *MockStore) TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceErr != nil {
		return m.ForceErr
	}

	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	id := messageID
	t := at
	conv.LastMessageID = &id
	conv.LastMessageAt = &t
	conv.UpdatedAt = time.Now()
	return nil
}

// CreateMessage stores a new message.
func (m *MockStore) CreateMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceErr != nil {
		return m.ForceErr
	}

	stored := *msg
	m.messages[stored.ID] = &stored
	m.byConv[stored.ConversationID] = append(m.byConv[stored.ConversationID], stored.ID)
	return nil
}

// GetMessage retrieves a message, nulling content if soft-deleted.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceErr != nil {
		return nil, m.ForceErr
	}

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *msg
	if result.Deleted {
		result.Content = ""
		result.MediaRef = ""
	}
	return &result, nil
}

// UpdateMessageContent replaces content and stamps edited_at.
func (m *MockStore) UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceErr != nil {
		return m.ForceErr
	}

	msg, ok := m.messages[id]
	if !ok || msg.Deleted {
		return ErrNotFound
	}
	msg.Content = content
	t := editedAt
	msg.EditedAt = &t
	return nil
}

// SoftDeleteMessage marks a message deleted.
func (m *MockStore) SoftDeleteMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceErr != nil {
		return m.ForceErr
	}

	msg, ok := m.messages[id]
	if !ok || msg.Deleted {
		return ErrNotFound
	}
	msg.Deleted = true
	return nil
}

// MessagesSince returns messages created after the given point.
func (m *MockStore) MessagesSince(ctx context.Context, conversationID string, since time.Time, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceErr != nil {
		return nil, m.ForceErr
	}

	var msgs []*Message
	for _, id := range m.byConv[conversationID] {
		msg := m.messages[id]
		if !msg.CreatedAt.After(since) {
			continue
		}
		result := *msg
		if result.Deleted {
			result.Content = ""
			result.MediaRef = ""
		}
		msgs = append(msgs, &result)
		if len(msgs) >= limit {
			break
		}
	}
	return msgs, nil
}

// UpsertReaction applies toggle-with-replace semantics.
func (m *MockStore) UpsertReaction(ctx context.Context, messageID, userID, emoji string) (ReactionOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceErr != nil {
		return 0, m.ForceErr
	}

	if m.reactions[messageID] == nil {
		m.reactions[messageID] = make(map[string]string)
	}
	existing, ok := m.reactions[messageID][userID]
	switch {
	case !ok:
		m.reactions[messageID][userID] = emoji
		return ReactionAdded, nil
	case existing == emoji:
		delete(m.reactions[messageID], userID)
		return ReactionRemoved, nil
	default:
		m.reactions[messageID][userID] = emoji
		return ReactionReplaced, nil
	}
}

// ListReactions returns all reactions on a message.
func (m *MockStore) ListReactions(ctx context.Context, messageID string) ([]*Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceErr != nil {
		return nil, m.ForceErr
	}

	var userIDs []string
	for userID := range m.reactions[messageID] {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)

	var reactions []*Reaction
	for _, userID := range userIDs {
		reactions = append(reactions, &Reaction{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     m.reactions[messageID][userID],
		})
	}
	return reactions, nil
}

// AdvanceReadCursor moves a cursor forward, never backward.
func (m *MockStore) AdvanceReadCursor(ctx context.Context, conversationID, userID string, point time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceErr != nil {
		return false, m.ForceErr
	}

	key := cursorKey(conversationID, userID)
	cursor, ok := m.cursors[key]
	if !ok {
		m.cursors[key] = &ReadCursor{
			ConversationID: conversationID,
			UserID:         userID,
			LastReadAt:     point,
			UpdatedAt:      time.Now(),
		}
		return true, nil
	}
	if !point.After(cursor.LastReadAt) {
		return false, nil
	}
	cursor.LastReadAt = point
	cursor.UpdatedAt = time.Now()
	return true, nil
}

// GetReadCursor retrieves a cursor.
func (m *MockStore) GetReadCursor(ctx context.Context, conversationID, userID string) (*ReadCursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceErr != nil {
		return nil, m.ForceErr
	}

	cursor, ok := m.cursors[cursorKey(conversationID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *cursor
	return &result, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
