// ABOUTME: One live websocket connection bound to an authenticated user
// ABOUTME: Owns the read/write pumps and routes inbound commands to the chat service

package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/palaver-chat/palaver/internal/chat"
	"github.com/palaver-chat/palaver/internal/metrics"
)

const (
	// maxMessageSize bounds a single inbound frame
	maxMessageSize = 64 * 1024
	// writeWait bounds a single outbound write
	writeWait = 10 * time.Second
)

// Session is one live bidirectional channel to a single client. The
// identity is fixed at construction; a session never exists without a
// verified user. It satisfies presence.Conn so the dispatcher can push
// frames into its outbound queue without blocking.
type Session struct {
	id      string
	userID  string
	conn    *websocket.Conn
	service *chat.Service
	metrics *metrics.Metrics
	logger  *slog.Logger

	pingInterval time.Duration
	pongTimeout  time.Duration

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a session over an upgraded websocket for a verified user.
// sendBuffer sizes the outbound queue; when it fills, further events for
// this connection are dropped rather than blocking the sender.
func New(conn *websocket.Conn, userID string, service *chat.Service, m *metrics.Metrics, sendBuffer int, pingInterval, pongTimeout time.Duration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Session{
		id:           id,
		userID:       userID,
		conn:         conn,
		service:      service,
		metrics:      m,
		logger:       logger.With("component", "session", "conn_id", id, "user_id", userID),
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
	}
}

// ID returns the opaque per-socket identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the authenticated identity owning this session.
func (s *Session) UserID() string { return s.userID }

// Enqueue hands a frame to the write pump without blocking. It reports
// false when the session is closing or its queue is full; the caller
// treats that as an advisory drop, never an error.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Run registers the session and pumps until the client disconnects.
// It blocks for the lifetime of the connection; on any exit path the
// session is fully purged from the presence and room state.
func (s *Session) Run(ctx context.Context) {
	s.service.Connect(s)
	defer s.service.Disconnect(s.id)
	defer s.close()

	go s.writePump()
	s.readPump(ctx)
}

// close shuts the outbound side down exactly once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// readPump reads inbound frames until the connection dies. Liveness is
// enforced through the pong deadline: a client that stops answering
// pings times out here and falls into disconnect cleanup.
func (s *Session) readPump(ctx context.Context) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		s.handleCommand(ctx, data)
	}
}

// writePump is the single writer to the websocket. It drains the send
// queue and keeps the connection alive with periodic pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	defer s.close()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleCommand decodes one inbound frame and dispatches it. Every
// command except typing gets an acknowledgment back on this connection.
func (s *Session) handleCommand(ctx context.Context, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.metrics.RecordCommand("unknown", string(chat.CodeValidationFailed))
		s.ack(&Ack{Type: "ack", Success: false, Error: &AckError{
			Code:    string(chat.CodeValidationFailed),
			Message: "malformed command frame",
		}})
		return
	}

	switch cmd.Type {
	case CmdJoin:
		backlog, err := s.service.Join(ctx, s, cmd.ConversationID)
		s.finish(&cmd, &Ack{Backlog: backlog}, err)
	case CmdLeave:
		s.finish(&cmd, &Ack{}, s.service.Leave(s, cmd.ConversationID))
	case CmdSend:
		msg, err := s.service.SendMessage(ctx, s, cmd.ConversationID, cmd.Content, cmd.MediaRef, cmd.ReplyToID)
		s.finish(&cmd, &Ack{Message: msg}, err)
	case CmdEdit:
		msg, err := s.service.EditMessage(ctx, s, cmd.MessageID, cmd.Content)
		s.finish(&cmd, &Ack{Message: msg}, err)
	case CmdDelete:
		s.finish(&cmd, &Ack{}, s.service.DeleteMessage(ctx, s, cmd.MessageID))
	case CmdReact:
		outcome, err := s.service.React(ctx, s, cmd.MessageID, cmd.Emoji)
		ack := &Ack{}
		if err == nil {
			ack.Reaction = outcome.String()
		}
		s.finish(&cmd, ack, err)
	case CmdTyping:
		// Ephemeral hint: no acknowledgment, drops are fine
		s.service.Typing(s, cmd.ConversationID)
		s.metrics.RecordCommand(CmdTyping, "ok")
	case CmdMarkRead:
		var point time.Time
		if cmd.Point != nil {
			point = *cmd.Point
		}
		advanced, err := s.service.MarkRead(ctx, s, cmd.ConversationID, point)
		ack := &Ack{}
		if err == nil {
			ack.Advanced = &advanced
		}
		s.finish(&cmd, ack, err)
	default:
		s.metrics.RecordCommand("unknown", string(chat.CodeValidationFailed))
		s.ack(&Ack{Type: "ack", ID: cmd.ID, Success: false, Error: &AckError{
			Code:    string(chat.CodeValidationFailed),
			Message: "unknown command type " + cmd.Type,
		}})
	}
}

// finish stamps the shared ack fields, records the command outcome, and
// sends the acknowledgment back to the originating connection.
func (s *Session) finish(cmd *Command, ack *Ack, err error) {
	ack.Type = "ack"
	ack.ID = cmd.ID

	if err == nil {
		ack.Success = true
		s.metrics.RecordCommand(cmd.Type, "ok")
		s.ack(ack)
		return
	}

	cmdErr := chat.AsError(err)
	ack.Success = false
	ack.Error = &AckError{Code: string(cmdErr.Code), Message: cmdErr.Message}
	// Scrub command-specific results from a failed ack
	ack.Message = nil
	ack.Backlog = nil
	ack.Reaction = ""
	ack.Advanced = nil
	s.metrics.RecordCommand(cmd.Type, string(cmdErr.Code))
	s.ack(ack)
}

// ack serializes and enqueues an acknowledgment frame.
func (s *Session) ack(ack *Ack) {
	frame, err := json.Marshal(ack)
	if err != nil {
		s.logger.Error("encoding ack", "error", err)
		return
	}
	if !s.Enqueue(frame) {
		s.logger.Debug("dropped ack for closing connection")
	}
}
