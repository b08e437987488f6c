// Package mvcc layers multi-version concurrency control over a single
// internal/storage.Engine, giving every Transaction a consistent
// snapshot of the keyspace and first-committer-wins conflict detection
// on write-write collisions.
//
// # Key space
//
// MVCC owns the engine's entire key space; callers never touch the
// underlying Engine directly once an MVCC is constructed. Every key it
// writes begins with a one-byte discriminant identifying one of four
// key families (see keys.go):
//
//   - NextVersion: a singleton holding the next version number to hand
//     out, advanced by one on every Begin.
//   - TxnActive(version): present for exactly as long as a transaction
//     is open, so a later Begin can snapshot the set of in-flight
//     versions.
//   - TxnWrite(version, raw_key): journals every key a transaction has
//     written, so Commit and Rollback can find and finalize or undo
//     them without a separate in-memory write set.
//   - Version(raw_key, version): the actual versioned data cell, whose
//     payload is either a present value or a tombstone (see
//     internal/codec's EncodeOptional).
//
// # Visibility and isolation
//
// A transaction is a fixed version number plus the set of versions
// that were still active (not yet committed or rolled back) when it
// began. A version v is visible to transaction T iff v == T.version
// (T always sees its own writes) or v <= T.version and v was not in
// T's active set. This gives snapshot isolation: dirty reads, repeated
// reads that change mid-transaction, and phantoms from concurrent
// inserts are all excluded by construction, since a transaction's view
// of the keyspace is fixed at Begin and never moves.
//
// # Write conflicts
//
// Before a Set or Delete takes effect, it scans for any Version entry
// newer than what the transaction could have seen that is not its own.
// If one exists, the write fails with a write-conflict error rather
// than silently overwriting a commit the transaction never observed --
// first-committer-wins, not last-writer-wins.
//
// # Concurrency
//
// A single mutex serializes every operation across every open
// Transaction sharing an MVCC: Begin, Get, Set, Delete, Commit,
// Rollback, and ScanPrefix all take it for their entire duration.
// This trades fine-grained concurrency for a much simpler correctness
// argument -- there is never more than one in-flight read or write
// against the underlying engine at a time, so the conflict-detection
// scan and the write it guards can never race against another
// transaction's write to the same key.
package mvcc
