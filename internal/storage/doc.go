// Package storage defines the ordered key-value Engine abstraction and
// provides two concrete back-ends: an in-memory engine and an on-disk
// append-only log engine with a crash-recoverable keydir and offline
// compaction.
//
// Keys and values are both arbitrary byte strings, ordered
// lexicographically, because the MVCC layer built on top of it
// (internal/mvcc) needs range and prefix scans over composite keys to
// behave like range and prefix scans over the logical keys they encode.
//
// # Engine and Cursor
//
// Engine is intentionally small: Set, Get, Delete, Scan, ScanPrefix,
// Close. Scan returns a Cursor, a snapshot-backed bidirectional
// iterator rather than a live borrowing iterator -- simpler to reason
// about correctness for, and sufficient because the only caller,
// internal/mvcc, always holds its own outer mutex for the scan's
// entire lifetime anyway, so the cursor never needs to survive a
// concurrent mutation.
//
// # MemoryEngine
//
// Backed by a github.com/google/btree ordered tree. No durability;
// used for tests and as an embeddable in-process backend.
//
// # DiskEngine
//
// A Bitcask-style append-only log with an in-memory keydir (itself a
// btree, mapping key -> (offset, length) of the most recent live
// value) built by replaying the log at open. See disk.go for the
// record format, compaction algorithm, and crash-recovery contract.
package storage
