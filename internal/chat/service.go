// ABOUTME: Command handlers for the realtime conversation engine
// ABOUTME: Each command validates, persists, broadcasts, then acknowledges

package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/palaver-chat/palaver/internal/dispatch"
	"github.com/palaver-chat/palaver/internal/metrics"
	"github.com/palaver-chat/palaver/internal/presence"
	"github.com/palaver-chat/palaver/internal/rooms"
	"github.com/palaver-chat/palaver/internal/store"
	"github.com/palaver-chat/palaver/internal/throttle"
)

// Service implements every inbound client command. Each handler follows
// the same shape: validate against the store, persist the effect, then
// fan the result out. Broadcast failures never roll back persistence.
type Service struct {
	store        store.Store
	registry     *presence.Registry
	tracker      *rooms.Tracker
	dispatcher   *dispatch.Dispatcher
	typing       *throttle.Keyed
	backlogLimit int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewService wires the command handlers over their collaborators.
// backlogLimit caps how many unread messages a join returns. Pass nil
// metrics to disable instrumentation.
func NewService(st store.Store, registry *presence.Registry, tracker *rooms.Tracker, dispatcher *dispatch.Dispatcher, typing *throttle.Keyed, backlogLimit int, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        st,
		registry:     registry,
		tracker:      tracker,
		dispatcher:   dispatcher,
		typing:       typing,
		backlogLimit: backlogLimit,
		metrics:      m,
		logger:       logger.With("component", "chat"),
	}
}

// Connect registers an authenticated connection, announces presence to
// everyone else if this is the user's first live connection, and sends
// the connection-accepted event to the new connection itself.
func (s *Service) Connect(conn presence.Conn) {
	cameOnline := s.registry.Register(conn)
	s.metrics.SetConnections(s.registry.ConnectionCount())

	s.dispatcher.Send(conn, dispatch.NewEvent(dispatch.EventConnected, "", &dispatch.ConnectedPayload{
		ConnectionID: conn.ID(),
		UserID:       conn.UserID(),
	}))

	if cameOnline {
		s.dispatcher.BroadcastAll(dispatch.NewEvent(dispatch.EventPresenceChanged, "", &dispatch.PresencePayload{
			UserID: conn.UserID(),
			Online: true,
		}), conn.ID())
	}
}

// Disconnect tears down everything a connection touched: it leaves every
// joined room (announcing member.left once per user, not per tab),
// drops typing throttle state, and emits the offline presence event if
// this was the user's last connection. An abrupt disconnect is
// indistinguishable from an explicit leave of every room.
func (s *Service) Disconnect(connID string) {
	userID, _ := s.registry.Owner(connID)

	left := s.tracker.RemoveConnection(connID)
	for _, conversationID := range left {
		s.typing.Forget(typingKey(connID, conversationID))
		if userID != "" && !s.userInRoom(userID, conversationID) {
			s.dispatcher.Broadcast(conversationID,
				dispatch.NewEvent(dispatch.EventMemberLeft, conversationID, &dispatch.MemberLeftPayload{UserID: userID}), "")
		}
	}

	userID, wentOffline := s.registry.Unregister(connID)
	s.metrics.SetConnections(s.registry.ConnectionCount())
	s.metrics.SetRooms(s.tracker.RoomCount())
	if wentOffline {
		s.dispatcher.BroadcastAll(dispatch.NewEvent(dispatch.EventPresenceChanged, "", &dispatch.PresencePayload{
			UserID: userID,
			Online: false,
		}), "")
	}
}

// Join subscribes a connection to a conversation's event stream after
// verifying durable membership, and returns the caller's unread backlog
// so the client can render without a separate fetch.
func (s *Service) Join(ctx context.Context, conn presence.Conn, conversationID string) ([]*store.Message, error) {
	if conversationID == "" {
		return nil, NewError(CodeValidationFailed, "conversation_id is required")
	}

	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, mapStoreErr(err)
	}
	member, err := s.store.IsMember(ctx, conn.UserID(), conversationID)
	if err != nil {
		return nil, WrapTransient(err)
	}
	if !member {
		return nil, NewError(CodeNotAMember, "not a member of conversation %s", conversationID)
	}

	var since time.Time
	cursor, err := s.store.GetReadCursor(ctx, conversationID, conn.UserID())
	switch {
	case err == nil:
		since = cursor.LastReadAt
	case errors.Is(err, store.ErrNotFound):
		// never read anything, backlog starts from the beginning
	default:
		return nil, WrapTransient(err)
	}

	// Subscribe before fetching the backlog so nothing broadcast during the
	// fetch is missed. A message can arrive both live and in the backlog;
	// clients reconcile by message ID.
	s.tracker.Join(conn.ID(), conversationID)
	s.metrics.SetRooms(s.tracker.RoomCount())

	backlog, err := s.store.MessagesSince(ctx, conversationID, since, s.backlogLimit)
	if err != nil {
		s.tracker.Leave(conn.ID(), conversationID)
		s.metrics.SetRooms(s.tracker.RoomCount())
		return nil, WrapTransient(err)
	}
	return backlog, nil
}

// Leave unsubscribes a connection from a conversation's event stream.
// Other members are told the user left only when none of the user's
// other connections remain in the room.
func (s *Service) Leave(conn presence.Conn, conversationID string) error {
	if conversationID == "" {
		return NewError(CodeValidationFailed, "conversation_id is required")
	}

	if !s.tracker.Leave(conn.ID(), conversationID) {
		return nil // was not in the room, nothing to announce
	}
	s.metrics.SetRooms(s.tracker.RoomCount())
	s.typing.Forget(typingKey(conn.ID(), conversationID))

	if !s.userInRoom(conn.UserID(), conversationID) {
		s.dispatcher.Broadcast(conversationID,
			dispatch.NewEvent(dispatch.EventMemberLeft, conversationID, &dispatch.MemberLeftPayload{UserID: conn.UserID()}), "")
	}
	return nil
}

// SendMessage persists a new message and fans it out. Members who are
// online but have not joined the room get a per-user notification so
// clients can badge unopened threads.
func (s *Service) SendMessage(ctx context.Context, conn presence.Conn, conversationID, content, mediaRef string, replyToID *string) (*store.Message, error) {
	if conversationID == "" {
		return nil, NewError(CodeValidationFailed, "conversation_id is required")
	}
	if content == "" && mediaRef == "" {
		return nil, NewError(CodeValidationFailed, "message needs content or a media reference")
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	member, err := s.store.IsMember(ctx, conn.UserID(), conversationID)
	if err != nil {
		return nil, WrapTransient(err)
	}
	if !member {
		return nil, NewError(CodeNotAMember, "not a member of conversation %s", conversationID)
	}
	if conv.AdminOnly {
		admin, err := s.store.HasRole(ctx, conn.UserID(), conversationID, store.RoleAdmin)
		if err != nil {
			return nil, WrapTransient(err)
		}
		if !admin {
			return nil, NewError(CodeForbidden, "conversation is restricted to admins")
		}
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       conn.UserID(),
		Content:        content,
		MediaRef:       mediaRef,
		ReplyToID:      replyToID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, mapStoreErr(err)
	}

	// The message is durable from here on; summary and cursor updates
	// are best-effort and never fail the command
	if err := s.store.TouchLastMessage(ctx, conversationID, msg.ID, msg.CreatedAt); err != nil {
		s.logger.Warn("updating last-message summary", "conversation_id", conversationID, "error", err)
	}
	if _, err := s.store.AdvanceReadCursor(ctx, conversationID, conn.UserID(), msg.CreatedAt); err != nil {
		s.logger.Warn("advancing sender read cursor", "conversation_id", conversationID, "error", err)
	}

	s.dispatcher.Broadcast(conversationID, dispatch.NewEvent(dispatch.EventMessageCreated, conversationID, msg), "")
	s.notifyAbsentMembers(ctx, conversationID, conn.UserID(), msg)

	return msg, nil
}

// EditMessage replaces a message's content. Only the original author may
// edit, only text messages are editable, and a deleted message edits
// like one that never existed.
func (s *Service) EditMessage(ctx context.Context, conn presence.Conn, messageID, content string) (*store.Message, error) {
	if messageID == "" || content == "" {
		return nil, NewError(CodeValidationFailed, "message_id and content are required")
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if msg.Deleted {
		return nil, NewError(CodeNotFound, "message %s not found", messageID)
	}
	if msg.SenderID != conn.UserID() {
		return nil, NewError(CodeForbidden, "only the author can edit a message")
	}
	if msg.MediaRef != "" {
		return nil, NewError(CodeValidationFailed, "media messages cannot be edited")
	}

	editedAt := time.Now().UTC()
	if err := s.store.UpdateMessageContent(ctx, messageID, content, editedAt); err != nil {
		return nil, mapStoreErr(err)
	}
	msg.Content = content
	msg.EditedAt = &editedAt

	s.dispatcher.Broadcast(msg.ConversationID, dispatch.NewEvent(dispatch.EventMessageUpdated, msg.ConversationID, msg), "")
	return msg, nil
}

// DeleteMessage soft-deletes a message and announces the deletion with
// identifiers only. Clients that cached the content must never receive
// it again, so the broadcast payload carries no content at all.
func (s *Service) DeleteMessage(ctx context.Context, conn presence.Conn, messageID string) error {
	if messageID == "" {
		return NewError(CodeValidationFailed, "message_id is required")
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return mapStoreErr(err)
	}
	if msg.Deleted {
		return NewError(CodeNotFound, "message %s not found", messageID)
	}
	if msg.SenderID != conn.UserID() {
		return NewError(CodeForbidden, "only the author can delete a message")
	}

	if err := s.store.SoftDeleteMessage(ctx, messageID); err != nil {
		return mapStoreErr(err)
	}

	s.dispatcher.Broadcast(msg.ConversationID, dispatch.NewEvent(dispatch.EventMessageDeleted, msg.ConversationID, &dispatch.DeletionPayload{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
	}), "")
	return nil
}

// React toggles or replaces the caller's reaction on a message. Reacting
// with the emoji already present removes it; a different emoji replaces
// the existing reaction in place.
func (s *Service) React(ctx context.Context, conn presence.Conn, messageID, emoji string) (store.ReactionOutcome, error) {
	if messageID == "" || emoji == "" {
		return 0, NewError(CodeValidationFailed, "message_id and emoji are required")
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	if msg.Deleted {
		return 0, NewError(CodeNotFound, "message %s not found", messageID)
	}
	member, err := s.store.IsMember(ctx, conn.UserID(), msg.ConversationID)
	if err != nil {
		return 0, WrapTransient(err)
	}
	if !member {
		return 0, NewError(CodeNotAMember, "not a member of conversation %s", msg.ConversationID)
	}

	outcome, err := s.store.UpsertReaction(ctx, messageID, conn.UserID(), emoji)
	if err != nil {
		return 0, mapStoreErr(err)
	}

	s.dispatcher.Broadcast(msg.ConversationID, dispatch.NewEvent(dispatch.EventReactionChanged, msg.ConversationID, &dispatch.ReactionPayload{
		MessageID: messageID,
		UserID:    conn.UserID(),
		Emoji:     emoji,
		Action:    outcome.String(),
	}), "")
	return outcome, nil
}

// Typing emits an ephemeral typing hint to the other room members. It is
// never persisted, never acknowledged, throttled per connection per
// conversation, and silently dropped when the sender is not in the room.
func (s *Service) Typing(conn presence.Conn, conversationID string) {
	if conversationID == "" || !s.tracker.InRoom(conn.ID(), conversationID) {
		return
	}
	if !s.typing.Allow(typingKey(conn.ID(), conversationID)) {
		return
	}
	s.dispatcher.Broadcast(conversationID,
		dispatch.NewEvent(dispatch.EventTypingChanged, conversationID, &dispatch.TypingPayload{UserID: conn.UserID()}), conn.ID())
}

// MarkRead advances the caller's read cursor. The cursor never moves
// backward; a request for an older point is a no-op with no broadcast,
// so repeated marks produce at most one read.updated event.
func (s *Service) MarkRead(ctx context.Context, conn presence.Conn, conversationID string, point time.Time) (bool, error) {
	if conversationID == "" {
		return false, NewError(CodeValidationFailed, "conversation_id is required")
	}
	if point.IsZero() {
		point = time.Now()
	}
	point = point.UTC()

	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return false, mapStoreErr(err)
	}
	member, err := s.store.IsMember(ctx, conn.UserID(), conversationID)
	if err != nil {
		return false, WrapTransient(err)
	}
	if !member {
		return false, NewError(CodeNotAMember, "not a member of conversation %s", conversationID)
	}

	advanced, err := s.store.AdvanceReadCursor(ctx, conversationID, conn.UserID(), point)
	if err != nil {
		return false, mapStoreErr(err)
	}
	if advanced {
		s.dispatcher.Broadcast(conversationID, dispatch.NewEvent(dispatch.EventReadUpdated, conversationID, &dispatch.ReadPayload{
			UserID:     conn.UserID(),
			LastReadAt: point,
		}), "")
	}
	return advanced, nil
}

// notifyAbsentMembers pushes a new-message notification to members who
// are online but have no connection in the room, so their clients can
// badge the thread before opening it.
func (s *Service) notifyAbsentMembers(ctx context.Context, conversationID, senderID string, msg *store.Message) {
	memberIDs, err := s.store.ListMemberIDs(ctx, conversationID)
	if err != nil {
		s.logger.Warn("listing members for notification", "conversation_id", conversationID, "error", err)
		return
	}
	for _, memberID := range memberIDs {
		if memberID == senderID || !s.registry.IsOnline(memberID) || s.userInRoom(memberID, conversationID) {
			continue
		}
		s.dispatcher.NotifyUser(memberID, dispatch.NewEvent(dispatch.EventMessageCreated, conversationID, msg))
	}
}

// userInRoom reports whether any of the user's live connections is
// subscribed to the conversation's room.
func (s *Service) userInRoom(userID, conversationID string) bool {
	for _, conn := range s.registry.Connections(userID) {
		if s.tracker.InRoom(conn.ID(), conversationID) {
			return true
		}
	}
	return false
}

// typingKey scopes the typing throttle to one connection in one room.
func typingKey(connID, conversationID string) string {
	return connID + ":" + conversationID
}

// mapStoreErr converts store failures into command errors: a missing
// row is NotFound, anything else is a retryable transient failure.
func mapStoreErr(err error) *Error {
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Code: CodeNotFound, Message: "not found", cause: err}
	}
	return WrapTransient(err)
}
