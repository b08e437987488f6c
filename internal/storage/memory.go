package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// memItem is the btree element backing MemoryEngine: a key-value pair
// ordered solely by Key, mirroring the btree.Item pattern used by the
// axfor-MetaStore and neo-go examples this engine is grounded on.
type memItem struct {
	key   []byte
	value []byte
}

func memItemLess(a, b memItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemoryEngine is an Engine backed by an in-memory ordered tree. It has
// no durability: all data is lost when the process exits. It is
// intended for tests and as an embeddable, ephemeral back-end.
type MemoryEngine struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[memItem]
}

// NewMemoryEngine creates an empty MemoryEngine ready for immediate use.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{tree: btree.NewG[memItem](32, memItemLess)}
}

func (m *MemoryEngine) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	m.tree.ReplaceOrInsert(memItem{key: k, value: v})
	return nil
}

func (m *MemoryEngine) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.tree.Get(memItem{key: key})
	if !ok {
		return nil, nil
	}
	return append([]byte{}, item.value...), nil
}

func (m *MemoryEngine) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Delete(memItem{key: key})
	return nil
}

func (m *MemoryEngine) Scan(lo, hi []byte) (Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []KV
	visit := func(it memItem) bool {
		items = append(items, KV{
			Key:   append([]byte(nil), it.key...),
			Value: append([]byte(nil), it.value...),
		})
		return true
	}

	switch {
	case lo == nil && hi == nil:
		m.tree.Ascend(visit)
	case lo == nil:
		m.tree.AscendLessThan(memItem{key: hi}, visit)
	case hi == nil:
		m.tree.AscendGreaterOrEqual(memItem{key: lo}, visit)
	default:
		m.tree.AscendRange(memItem{key: lo}, memItem{key: hi}, visit)
	}
	return newSliceCursor(items), nil
}

func (m *MemoryEngine) ScanPrefix(prefix []byte) (Cursor, error) {
	lo, hi := scanPrefixBounds(prefix)
	return m.Scan(lo, hi)
}

func (m *MemoryEngine) Close() error { return nil }
