// Package dispatch fans events out to live connections.
//
// Events are JSON-encoded exactly once per broadcast and then pushed to
// each recipient's outbound queue. Delivery is best-effort: a full or
// closing connection drops the frame and never blocks or fails the
// broadcast, so persistence is never held hostage by a slow reader.
//
// Per-conversation ordering is preserved by serializing broadcasts for
// the same conversation through a fixed array of shard mutexes keyed by
// an FNV hash of the conversation ID. Two events for the same
// conversation are enqueued to every recipient in the same relative
// order; events for different conversations proceed concurrently.
package dispatch
