// Package store provides persistence for conversations, messages,
// reactions, and read cursors.
//
// # Overview
//
// The realtime engine treats the store as the durable source of truth:
// every command handler persists its effect here before anything is
// broadcast, and broadcast failures never roll persistence back.
//
// # Key semantics
//
//   - Messages are soft-deleted: the row survives, but every read path
//     nulls the content so deleted text can never reach a client.
//   - Reactions hold a uniqueness constraint of one row per
//     (message, user). UpsertReaction toggles the same emoji off and
//     replaces a different emoji in place, reporting which happened.
//   - Read cursors are monotonic watermarks. AdvanceReadCursor enforces
//     this in SQL and reports whether the cursor actually moved, so
//     callers can suppress no-op broadcasts.
//   - MessagesSince is the backfill-on-rejoin query: everything created
//     after a cursor, oldest first, tombstones included.
//
// # Implementations
//
// SQLiteStore is the production implementation (modernc.org/sqlite, WAL
// mode, auto-created schema). MockStore is an in-memory implementation
// for tests with a ForceErr hook for failure injection.
package store
