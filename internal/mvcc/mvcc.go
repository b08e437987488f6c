package mvcc

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/dreamware/tinysql/internal/codec"
	"github.com/dreamware/tinysql/internal/dberr"
	"github.com/dreamware/tinysql/internal/logging"
	"github.com/dreamware/tinysql/internal/storage"

	"go.uber.org/zap"
)

// ScanResult is one live entry yielded by Transaction.ScanPrefix.
type ScanResult struct {
	Key   []byte
	Value []byte
}

// MVCC wraps a storage.Engine with multi-version concurrency control.
// It owns the engine's entire key space (see keys.go); callers never
// touch the underlying Engine directly once an MVCC is constructed.
type MVCC struct {
	mu     sync.Mutex
	engine storage.Engine
	log    *zap.Logger
}

// Option configures an MVCC instance.
type Option func(*MVCC)

// WithLogger attaches a structured logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *MVCC) { m.log = logger }
}

// New wraps engine with an MVCC transaction manager.
func New(engine storage.Engine, opts ...Option) *MVCC {
	m := &MVCC{engine: engine, log: logging.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transaction is a single MVCC transaction: a fixed version and the set
// of versions that were in flight (and therefore invisible) when it
// began.
type Transaction struct {
	mvcc      *MVCC
	version   uint64
	activeSet map[uint64]struct{}
	done      bool
}

// Version returns the transaction's own version.
func (t *Transaction) Version() uint64 { return t.version }

// isVisible reports whether version v is visible to this transaction:
// v == t.version (the transaction always sees its own writes), or
// v <= t.version and v was not in the active set captured at Begin
// (an in-flight transaction's writes stay invisible until it commits).
func (t *Transaction) isVisible(v uint64) bool {
	if v == t.version {
		return true
	}
	if v > t.version {
		return false
	}
	_, active := t.activeSet[v]
	return !active
}

// Begin starts a new transaction: it allocates a fresh version, snapshots
// the currently active set, and marks itself active.
func (m *MVCC) Begin() (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	version, err := m.readNextVersionLocked()
	if err != nil {
		return nil, err
	}
	if err := m.engine.Set(nextVersionKey(), codec.EncodeUint64(version+1)); err != nil {
		return nil, dberr.InternalWrap(err, "advance NextVersion")
	}

	activeSet, err := m.snapshotActiveSetLocked()
	if err != nil {
		return nil, err
	}

	if err := m.engine.Set(txnActiveKey(version), []byte{}); err != nil {
		return nil, dberr.InternalWrap(err, "mark TxnActive(%d)", version)
	}

	m.log.Debug("txn begin", zap.Uint64("version", version), zap.Int("active_set_size", len(activeSet)))
	return &Transaction{mvcc: m, version: version, activeSet: activeSet}, nil
}

func (m *MVCC) readNextVersionLocked() (uint64, error) {
	raw, err := m.engine.Get(nextVersionKey())
	if err != nil {
		return 0, dberr.InternalWrap(err, "read NextVersion")
	}
	if raw == nil {
		return 1, nil
	}
	v, _, err := codec.DecodeUint64(raw)
	if err != nil {
		return 0, dberr.InternalWrap(err, "decode NextVersion")
	}
	return v, nil
}

func (m *MVCC) snapshotActiveSetLocked() (map[uint64]struct{}, error) {
	lo, hi := txnActivePrefix(), codec.PrefixUpperBound(txnActivePrefix())
	cur, err := m.engine.Scan(lo, hi)
	if err != nil {
		return nil, dberr.InternalWrap(err, "scan TxnActive")
	}
	active := make(map[uint64]struct{})
	for {
		kv, ok := cur.Next()
		if !ok {
			break
		}
		if len(kv.Key) != 1+8 {
			return nil, dberr.Internal("malformed TxnActive key")
		}
		v := binary.BigEndian.Uint64(kv.Key[1:])
		active[v] = struct{}{}
	}
	return active, nil
}

// Get returns the value visible to t for k, or (nil, nil) if no visible
// version exists or the newest visible version is a deletion.
func (t *Transaction) Get(k []byte) ([]byte, error) {
	if t.done {
		return nil, dberr.Internal("use of finalized transaction")
	}
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	lo := versionKeyPrefix(k)
	hi := maxVersionBound(k)

	cur, err := t.mvcc.engine.Scan(lo, hi)
	if err != nil {
		return nil, dberr.InternalWrap(err, "scan Version(%x, *)", k)
	}

	var newest *storage.KV
	for {
		kv, ok := cur.Next()
		if !ok {
			break
		}
		_, version, err := decodeVersionKey(kv.Key)
		if err != nil {
			return nil, err
		}
		if !t.isVisible(version) {
			continue
		}
		kvCopy := kv
		newest = &kvCopy
	}
	if newest == nil {
		return nil, nil
	}

	value, present, err := codec.DecodeOptional(newest.Value)
	if err != nil {
		return nil, dberr.InternalWrap(err, "decode Version payload")
	}
	if !present {
		return nil, nil
	}
	return value, nil
}

// Set writes k = v, visible to t and any transaction that begins after
// t commits.
func (t *Transaction) Set(k, v []byte) error {
	return t.write(k, v, true)
}

// Delete marks k deleted within t.
func (t *Transaction) Delete(k []byte) error {
	return t.write(k, nil, false)
}

func (t *Transaction) write(k, v []byte, present bool) error {
	if t.done {
		return dberr.Internal("use of finalized transaction")
	}
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	if err := t.checkConflictLocked(k); err != nil {
		return err
	}

	if err := t.mvcc.engine.Set(txnWriteKey(t.version, k), []byte{}); err != nil {
		return dberr.InternalWrap(err, "journal TxnWrite(%d, %x)", t.version, k)
	}
	payload := codec.EncodeOptional(v, present)
	if err := t.mvcc.engine.Set(versionKey(k, t.version), payload); err != nil {
		return dberr.InternalWrap(err, "write Version(%x, %d)", k, t.version)
	}
	return nil
}

// checkConflictLocked implements first-committer-wins conflict
// detection: scan from the lowest version this transaction cannot
// ignore up to MaxUint64, and fail if the newest record found there is
// invisible to t.
func (t *Transaction) checkConflictLocked(k []byte) error {
	lo := t.version + 1
	for active := range t.activeSet {
		if active < lo {
			lo = active
		}
	}

	loKey := versionKey(k, lo)
	hi := maxVersionBound(k)

	cur, err := t.mvcc.engine.Scan(loKey, hi)
	if err != nil {
		return dberr.InternalWrap(err, "scan for write conflict on %x", k)
	}

	var newest *storage.KV
	for {
		kv, ok := cur.Next()
		if !ok {
			break
		}
		kvCopy := kv
		newest = &kvCopy
	}
	if newest == nil {
		return nil
	}
	_, version, err := decodeVersionKey(newest.Key)
	if err != nil {
		return err
	}
	if !t.isVisible(version) {
		return dberr.WriteConflict(k)
	}
	return nil
}

// Commit finalizes t: its TxnWrite journal and TxnActive marker are
// removed, leaving its Version entries permanently visible to later
// transactions per the usual visibility rule.
func (t *Transaction) Commit() error {
	if t.done {
		return dberr.Internal("commit of already-finalized transaction")
	}
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	writeKeys, err := t.collectTxnWriteKeysLocked()
	if err != nil {
		return err
	}
	for _, wk := range writeKeys {
		if err := t.mvcc.engine.Delete(wk); err != nil {
			return dberr.InternalWrap(err, "delete TxnWrite entry during commit")
		}
	}
	if err := t.mvcc.engine.Delete(txnActiveKey(t.version)); err != nil {
		return dberr.InternalWrap(err, "delete TxnActive(%d) during commit", t.version)
	}
	t.done = true
	t.mvcc.log.Debug("txn commit", zap.Uint64("version", t.version))
	return nil
}

// Rollback finalizes t and discards every Version entry it wrote, in
// addition to its journal and active marker.
func (t *Transaction) Rollback() error {
	if t.done {
		return dberr.Internal("rollback of already-finalized transaction")
	}
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	writeKeys, err := t.collectTxnWriteKeysLocked()
	if err != nil {
		return err
	}
	for _, wk := range writeKeys {
		rawKey, err := decodeTxnWriteKey(wk)
		if err != nil {
			return err
		}
		if err := t.mvcc.engine.Delete(versionKey(rawKey, t.version)); err != nil {
			return dberr.InternalWrap(err, "delete Version entry during rollback")
		}
		if err := t.mvcc.engine.Delete(wk); err != nil {
			return dberr.InternalWrap(err, "delete TxnWrite entry during rollback")
		}
	}
	if err := t.mvcc.engine.Delete(txnActiveKey(t.version)); err != nil {
		return dberr.InternalWrap(err, "delete TxnActive(%d) during rollback", t.version)
	}
	t.done = true
	t.mvcc.log.Debug("txn rollback", zap.Uint64("version", t.version), zap.Int("keys_undone", len(writeKeys)))
	return nil
}

func (t *Transaction) collectTxnWriteKeysLocked() ([][]byte, error) {
	prefix := txnWritePrefix(t.version)
	cur, err := t.mvcc.engine.ScanPrefix(prefix)
	if err != nil {
		return nil, dberr.InternalWrap(err, "scan TxnWrite(%d, *)", t.version)
	}
	var keys [][]byte
	for {
		kv, ok := cur.Next()
		if !ok {
			break
		}
		keys = append(keys, append([]byte(nil), kv.Key...))
	}
	return keys, nil
}

// ScanPrefix returns every live key visible to t that starts with
// prefix, in key order.
func (t *Transaction) ScanPrefix(prefix []byte) ([]ScanResult, error) {
	if t.done {
		return nil, dberr.Internal("use of finalized transaction")
	}
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	cur, err := t.mvcc.engine.ScanPrefix(versionScanPrefix(prefix))
	if err != nil {
		return nil, dberr.InternalWrap(err, "scan Version(%x*, *)", prefix)
	}

	type versioned struct {
		value   []byte
		present bool
		version uint64
	}
	newestByKey := make(map[string]versioned)
	var order []string

	for {
		kv, ok := cur.Next()
		if !ok {
			break
		}
		rawKey, version, err := decodeVersionKey(kv.Key)
		if err != nil {
			return nil, err
		}
		if !t.isVisible(version) {
			continue
		}
		s := string(rawKey)
		prev, seen := newestByKey[s]
		if seen && prev.version >= version {
			continue
		}
		value, present, err := codec.DecodeOptional(kv.Value)
		if err != nil {
			return nil, dberr.InternalWrap(err, "decode Version payload")
		}
		if !seen {
			order = append(order, s)
		}
		newestByKey[s] = versioned{value: value, present: present, version: version}
	}

	sort.Strings(order)
	results := make([]ScanResult, 0, len(order))
	for _, s := range order {
		v := newestByKey[s]
		if !v.present {
			continue
		}
		results = append(results, ScanResult{Key: []byte(s), Value: v.value})
	}
	return results, nil
}
