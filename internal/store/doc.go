// Package store provides the storage collaborator and the host journal.
//
// Two implementations share the same method set:
//   - Store: SQLite-backed, durable across host restarts
//   - Memory: map-backed, for tests and short-lived hosts
//
// # Slots
//
// A slot is an opaque byte string addressed by (account, slot id). Reads
// past the written data are zero padded to exactly the requested length.
// Writes past the end extend the slot with zeros.
//
// # Journal
//
// The journal is an append-only log of what the host observed for each
// transaction and node: leader nondet results, validator votes, emitted
// messages and events, and the final outcome. Ordering uses the seq column
// (insertion order), never wall time.
//
// Leader results and votes are idempotent per (tx, node, kind, call_no):
// a duplicate append is silently ignored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
