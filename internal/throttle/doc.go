// Package throttle rate-limits noisy per-connection signals.
//
// Typing notifications can arrive on every keystroke; the engine only
// wants to fan one out per connection per conversation per interval.
// Keyed keeps a token-bucket limiter per key and silently reclaims
// limiters for keys that have gone idle, so long-lived servers do not
// accumulate state for connections that stopped typing hours ago.
package throttle
