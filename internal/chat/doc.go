// Package chat implements the conversation command handlers.
//
// Every inbound client action lands here: join, leave, send, edit,
// delete, react, typing, and mark-read, plus the connect and disconnect
// lifecycle transitions. Each handler runs the same pipeline: validate
// membership and ownership against the store, persist the effect, then
// hand the result to the dispatcher. Validation failures travel back to
// the caller only; persistence failures abort before anything is
// broadcast; a broadcast that reaches a dead connection never rolls the
// persisted effect back.
package chat
