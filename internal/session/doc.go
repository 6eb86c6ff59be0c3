// Package session owns one live websocket per authenticated client.
//
// A session is created only after the handshake credential has been
// verified, so there is never a half-authenticated socket to reason
// about. It runs two goroutines: a read pump decoding Command frames
// and routing them to the chat service, and a single write pump
// draining the outbound queue and keeping the connection alive with
// pings. Events are handed to the session through a bounded queue;
// when the client cannot keep up the queue drops frames, and the
// client recovers missed messages by rejoining with its read cursor.
package session
