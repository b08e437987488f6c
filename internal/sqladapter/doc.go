// Package sqladapter translates table and row concepts onto the MVCC
// raw-key space (internal/mvcc): a Table(name) key family for schema
// objects and a Row(table, primary_key) family for data. It has no
// parser or planner of its own -- callers build Schema and Row values
// directly, so the cmd/sqldb REPL (or any other caller) is the closest
// thing to a statement layer above it.
//
// # Key space
//
// Engine lays two key families on top of mvcc.Transaction's raw-key
// space (see adapter.go):
//
//   - Table(name): the gob-encoded Schema for a table, keyed by its
//     name.
//   - Row(table, pk): a gob-encoded Row, keyed by the table name
//     followed by its primary-key value, order-preservingly encoded so
//     ScanTable returns rows in primary-key order without a separate
//     index.
//
// # Values and schemas
//
// Value (types.go) is a tagged union over integer, float, boolean, and
// string, plus a null flag, standing in for Go's lack of a native sum
// type. Schema describes a table's columns; exactly one column must be
// marked Primary, enforced by Schema.Validate at CreateTable time.
// CreateRow checks both column count and per-column dynamic type
// against the table's schema before a row is ever written, so a
// malformed row never reaches storage.
//
// # Concurrency
//
// Transaction is a thin wrapper around *mvcc.Transaction: every
// CreateTable, CreateRow, GetTable, and ScanTable call delegates
// directly to the underlying transaction's Get/Set/ScanPrefix, so this
// package itself holds no locks and inherits mvcc's serialization and
// conflict-detection guarantees unchanged.
package sqladapter
