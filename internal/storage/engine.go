package storage

import "github.com/dreamware/tinysql/internal/codec"

// KV is a single key-value pair yielded by a Cursor.
type KV struct {
	Key   []byte
	Value []byte
}

// Cursor is a bidirectional iterator over a snapshot of a key range.
// Next yields ascending order from the lower end; Prev yields
// descending order from the upper end. A Cursor never observes
// mutations made to the Engine after it was created (see doc.go).
type Cursor interface {
	// Next advances and returns the next pair in ascending order, or
	// (KV{}, false) when the cursor is exhausted.
	Next() (KV, bool)
	// Prev advances and returns the next pair in descending order from
	// the upper end, or (KV{}, false) when the cursor is exhausted.
	Prev() (KV, bool)
}

// Engine is the ordered key-value store abstraction every back-end
// implements. Keys and values are both arbitrary byte strings,
// including empty. A missing key's Get returns (nil, nil); there is no
// sentinel "not found" error at this layer (the MVCC layer above
// distinguishes "no record" from "tombstone" itself, see
// internal/mvcc).
type Engine interface {
	// Set overwrites or creates key with value.
	Set(key, value []byte) error
	// Get returns the current value for key, or (nil, nil) if absent.
	Get(key []byte) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key []byte) error
	// Scan returns a Cursor over keys in [lo, hi). A nil lo means
	// unbounded below; a nil hi means unbounded above.
	Scan(lo, hi []byte) (Cursor, error)
	// ScanPrefix returns a Cursor over every key starting with prefix.
	ScanPrefix(prefix []byte) (Cursor, error)
	// Close releases any resources (file handles, locks) held by the
	// engine. Subsequent calls to other methods are undefined.
	Close() error
}

// scanPrefixBounds computes the [lo, hi) range scanPrefix(prefix) scans,
// shared by every Engine implementation so the prefix-to-range
// translation stays in exactly one place.
func scanPrefixBounds(prefix []byte) (lo, hi []byte) {
	return prefix, codec.PrefixUpperBound(prefix)
}

// sliceCursor is the shared Cursor implementation: every Engine in this
// package snapshots its scan range into a slice before returning a
// cursor, so the cursor never holds the engine open (see doc.go).
type sliceCursor struct {
	items []KV
	lo    int // next index to yield from the front, inclusive
	hi    int // next index to yield from the back, exclusive
}

func newSliceCursor(items []KV) *sliceCursor {
	return &sliceCursor{items: items, lo: 0, hi: len(items)}
}

func (c *sliceCursor) Next() (KV, bool) {
	if c.lo >= c.hi {
		return KV{}, false
	}
	item := c.items[c.lo]
	c.lo++
	return item, true
}

func (c *sliceCursor) Prev() (KV, bool) {
	if c.lo >= c.hi {
		return KV{}, false
	}
	c.hi--
	return c.items[c.hi], true
}
