// Package presence tracks which users currently have live connections.
//
// A user's online state is OR-combined across all of their connections:
// Register reports when the first connection arrives and Unregister
// reports when the last one leaves, which is what lets the engine emit
// online/offline events exactly once per user rather than once per tab.
//
// The registry is one of the two shared mutable maps in the engine (the
// other is the room tracker) and is only ever mutated through its own
// methods under its own lock.
package presence
