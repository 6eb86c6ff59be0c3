// ABOUTME: Tests for the presence Registry
// ABOUTME: Covers OR-combined online state, offline-once semantics, concurrency

package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn implements Conn for tests.
type fakeConn struct {
	id     string
	userID string
}

func (f *fakeConn) ID() string               { return f.id }
func (f *fakeConn) UserID() string           { return f.userID }
func (f *fakeConn) Enqueue(frame []byte) bool { return true }

func TestRegistry_RegisterFirstConnection(t *testing.T) {
	r := NewRegistry(nil)

	cameOnline := r.Register(&fakeConn{id: "c1", userID: "alice"})
	assert.True(t, cameOnline)
	assert.True(t, r.IsOnline("alice"))
	assert.Equal(t, 1, r.ConnectionCount())
}

func TestRegistry_PresenceORCombined(t *testing.T) {
	r := NewRegistry(nil)

	// Two tabs: only the first registration reports coming online
	assert.True(t, r.Register(&fakeConn{id: "c1", userID: "alice"}))
	assert.False(t, r.Register(&fakeConn{id: "c2", userID: "alice"}))
	assert.True(t, r.IsOnline("alice"))
	assert.Len(t, r.Connections("alice"), 2)

	// Dropping one connection keeps the user online
	userID, wentOffline := r.Unregister("c1")
	assert.Equal(t, "alice", userID)
	assert.False(t, wentOffline)
	assert.True(t, r.IsOnline("alice"))

	// Dropping the last one takes the user offline, exactly once
	userID, wentOffline = r.Unregister("c2")
	assert.Equal(t, "alice", userID)
	assert.True(t, wentOffline)
	assert.False(t, r.IsOnline("alice"))
	assert.Empty(t, r.Connections("alice"))
}

func TestRegistry_UnregisterUnknownConn(t *testing.T) {
	r := NewRegistry(nil)

	userID, wentOffline := r.Unregister("nope")
	assert.Empty(t, userID)
	assert.False(t, wentOffline)
}

func TestRegistry_Owner(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeConn{id: "c1", userID: "alice"})

	owner, ok := r.Owner("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", owner)

	_, ok = r.Owner("missing")
	assert.False(t, ok)
}

func TestRegistry_AllSpansUsers(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeConn{id: "c1", userID: "alice"})
	r.Register(&fakeConn{id: "c2", userID: "bob"})
	r.Register(&fakeConn{id: "c3", userID: "bob"})

	assert.Len(t, r.All(), 3)
	assert.Equal(t, 3, r.ConnectionCount())
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", n)
			userID := fmt.Sprintf("user-%d", n%5)
			r.Register(&fakeConn{id: connID, userID: userID})
			r.Unregister(connID)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.ConnectionCount())
	for i := 0; i < 5; i++ {
		assert.False(t, r.IsOnline(fmt.Sprintf("user-%d", i)))
	}
}
