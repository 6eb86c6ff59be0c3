// ABOUTME: Tests for the keyed rate limiter.
// ABOUTME: Covers first-call allowance, per-interval throttling, key independence, eviction.

package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyed_FirstCallAllowed(t *testing.T) {
	k := NewKeyed(time.Second)
	defer k.Close()

	assert.True(t, k.Allow("c1:conv-1"))
}

func TestKeyed_SecondCallWithinIntervalDenied(t *testing.T) {
	k := NewKeyed(time.Second)
	defer k.Close()

	assert.True(t, k.Allow("c1:conv-1"))
	assert.False(t, k.Allow("c1:conv-1"))
}

func TestKeyed_AllowedAgainAfterInterval(t *testing.T) {
	k := NewKeyed(20 * time.Millisecond)
	defer k.Close()

	assert.True(t, k.Allow("c1:conv-1"))
	assert.False(t, k.Allow("c1:conv-1"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, k.Allow("c1:conv-1"))
}

func TestKeyed_KeysAreIndependent(t *testing.T) {
	k := NewKeyed(time.Second)
	defer k.Close()

	assert.True(t, k.Allow("c1:conv-1"))
	assert.True(t, k.Allow("c1:conv-2"))
	assert.True(t, k.Allow("c2:conv-1"))
	assert.False(t, k.Allow("c1:conv-1"))
}

func TestKeyed_Forget(t *testing.T) {
	k := NewKeyed(time.Second)
	defer k.Close()

	assert.True(t, k.Allow("c1:conv-1"))
	assert.Equal(t, 1, k.Len())

	k.Forget("c1:conv-1")
	assert.Equal(t, 0, k.Len())

	// A fresh limiter is created, so the first call is allowed again
	assert.True(t, k.Allow("c1:conv-1"))
}

func TestKeyed_EvictIdle(t *testing.T) {
	k := NewKeyed(5 * time.Millisecond)
	defer k.Close()

	k.Allow("stale")
	time.Sleep(60 * time.Millisecond) // past the 10x-interval idle TTL
	k.evictIdle()

	assert.Equal(t, 0, k.Len())
}

func TestKeyed_CloseIsIdempotent(t *testing.T) {
	k := NewKeyed(time.Second)
	k.Close()
	k.Close()
}
