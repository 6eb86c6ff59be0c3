// Package server wires the realtime engine together and serves it.
//
// It owns construction order: SQLite store, JWT verifier, presence
// registry, room tracker, dispatcher, typing throttle, and the command
// service, then exposes a single websocket endpoint plus health and
// metrics routes. The listener is either plain TCP or an embedded
// tailscale node, optionally funneled to the public internet.
package server
