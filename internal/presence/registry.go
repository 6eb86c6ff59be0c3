// ABOUTME: In-memory registry mapping authenticated users to their live connections
// ABOUTME: Source of truth for online state, OR-combined across a user's connections

package presence

import (
	"log/slog"
	"sync"
)

// Conn is the narrow view of a live connection the engine needs: identity
// plus a non-blocking push of an encoded frame. Enqueue returns false when
// the frame was not accepted (connection closed or outbound queue full).
type Conn interface {
	ID() string
	UserID() string
	Enqueue(frame []byte) bool
}

// Registry tracks which users currently have live connections. A user is
// online while at least one of their connections is registered; the entry
// is removed the moment the last one goes away.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Conn // userID -> connID -> conn
	byConn map[string]Conn            // connID -> conn
	logger *slog.Logger
}

// NewRegistry creates a presence registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byUser: make(map[string]map[string]Conn),
		byConn: make(map[string]Conn),
		logger: logger.With("component", "presence"),
	}
}

// Register adds an authenticated connection. Returns true if this is the
// user's first live connection, i.e. the user just came online.
func (r *Registry) Register(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := conn.UserID()
	conns, existed := r.byUser[userID]
	if !existed {
		conns = make(map[string]Conn)
		r.byUser[userID] = conns
	}
	conns[conn.ID()] = conn
	r.byConn[conn.ID()] = conn

	r.logger.Debug("connection registered",
		"conn_id", conn.ID(),
		"user_id", userID,
		"user_connections", len(conns))

	return !existed
}

// Unregister removes a connection. Returns the owning user and true if
// that was the user's last connection, i.e. the user just went offline.
// Unknown connection IDs are a no-op.
func (r *Registry) Unregister(connID string) (userID string, wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)

	userID = conn.UserID()
	conns := r.byUser[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
		wentOffline = true
	}

	r.logger.Debug("connection unregistered",
		"conn_id", connID,
		"user_id", userID,
		"went_offline", wentOffline)

	return userID, wentOffline
}

// Connections returns all live connections for a user.
func (r *Registry) Connections(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// All returns every live connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		conns = append(conns, c)
	}
	return conns
}

// Get returns the connection with the given ID.
func (r *Registry) Get(connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byConn[connID]
	return c, ok
}

// Owner returns the user ID that owns a connection.
func (r *Registry) Owner(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	return c.UserID(), true
}

// IsOnline reports whether a user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser[userID]) > 0
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byConn)
}
