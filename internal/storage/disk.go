package storage

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/dreamware/tinysql/internal/dberr"
	"github.com/dreamware/tinysql/internal/logging"
)

// logHeaderSize is the fixed 8-byte header (key_len, value_len) every
// record carries.
const logHeaderSize = 8

// crc32Size is the trailing checksum every record carries, computed
// over the header, key, and value bytes with the IEEE polynomial, so a
// record truncated or flipped mid-write is detectable at replay
// instead of silently corrupting the keydir.
const crc32Size = 4

// keydirEntry is the btree element backing a DiskEngine's keydir: a key
// mapped to the (offset, length) of its most recent live value in the
// log file. Ordered solely by Key so the keydir itself doubles as the
// range/prefix scan index.
type keydirEntry struct {
	key    []byte
	offset uint64
	length uint32
}

func keydirLess(a, b keydirEntry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// DiskEngine is a Bitcask-style append-only log engine: every Set or
// Delete appends a record to a single log file, and an in-memory
// keydir indexes the offset and length of each live key's most recent
// value. Recovery replays the whole log; compaction rewrites it to
// contain only live records.
type DiskEngine struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	lock   *flock.Flock
	keydir *btree.BTreeG[keydirEntry]
	log    *zap.Logger
}

// DiskEngineOption configures optional behavior of NewDiskEngine.
type DiskEngineOption func(*DiskEngine)

// WithLogger attaches a structured logger to the engine; compaction and
// recovery progress are logged at Info level. The default is a no-op
// logger (logging.Nop()).
func WithLogger(logger *zap.Logger) DiskEngineOption {
	return func(d *DiskEngine) { d.log = logger }
}

// NewDiskEngine opens (creating if necessary) the log file at path,
// acquires an exclusive advisory lock on it for the lifetime of the
// process, and rebuilds the keydir by replaying the log from offset 0.
// A partial trailing record or checksum mismatch during replay is a
// fatal, Kind-Internal error: the engine is not returned.
func NewDiskEngine(path string, opts ...DiskEngineOption) (*DiskEngine, error) {
	d := &DiskEngine{path: path, log: logging.Nop()}
	for _, opt := range opts {
		opt(d)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, dberr.InternalWrap(err, "create log directory %q", dir)
		}
	}

	lock := flock.New(lockPath(path))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, dberr.InternalWrap(err, "acquire lock on %q", path)
	}
	if !locked {
		return nil, dberr.Internal("log file %q is already locked by another process", path)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, dberr.InternalWrap(err, "open log file %q", path)
	}

	d.file = file
	d.lock = lock

	keydir, err := buildKeydir(file)
	if err != nil {
		_ = file.Close()
		_ = lock.Unlock()
		return nil, err
	}
	d.keydir = keydir
	d.log.Info("disk engine opened", zap.String("path", path), zap.Int("live_keys", keydir.Len()))
	return d, nil
}

// lockPath returns the path the advisory lock is taken on. flock locks
// the file itself, so the log file's own path is used directly.
func lockPath(path string) string { return path }

func (d *DiskEngine) Set(key, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, valOffset, valLen, err := writeRecord(d.file, key, value, true)
	if err != nil {
		return err
	}
	d.keydir.ReplaceOrInsert(keydirEntry{
		key:    append([]byte(nil), key...),
		offset: valOffset,
		length: valLen,
	})
	return nil
}

func (d *DiskEngine) Delete(key []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, _, _, err := writeRecord(d.file, key, nil, false); err != nil {
		return err
	}
	d.keydir.Delete(keydirEntry{key: key})
	return nil
}

func (d *DiskEngine) Get(key []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.keydir.Get(keydirEntry{key: key})
	if !ok {
		return nil, nil
	}
	return readValueAt(d.file, entry.offset, entry.length)
}

func (d *DiskEngine) Scan(lo, hi []byte) (Cursor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var entries []keydirEntry
	visit := func(e keydirEntry) bool {
		entries = append(entries, e)
		return true
	}
	switch {
	case lo == nil && hi == nil:
		d.keydir.Ascend(visit)
	case lo == nil:
		d.keydir.AscendLessThan(keydirEntry{key: hi}, visit)
	case hi == nil:
		d.keydir.AscendGreaterOrEqual(keydirEntry{key: lo}, visit)
	default:
		d.keydir.AscendRange(keydirEntry{key: lo}, keydirEntry{key: hi}, visit)
	}

	items := make([]KV, 0, len(entries))
	for _, e := range entries {
		val, err := readValueAt(d.file, e.offset, e.length)
		if err != nil {
			return nil, err
		}
		items = append(items, KV{Key: append([]byte(nil), e.key...), Value: val})
	}
	return newSliceCursor(items), nil
}

func (d *DiskEngine) ScanPrefix(prefix []byte) (Cursor, error) {
	lo, hi := scanPrefixBounds(prefix)
	return d.Scan(lo, hi)
}

// Close releases the log file handle and the advisory lock. The
// DiskEngine must not be used afterwards.
func (d *DiskEngine) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	if err := d.file.Close(); err != nil {
		firstErr = dberr.InternalWrap(err, "close log file %q", d.path)
	}
	if err := d.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = dberr.InternalWrap(err, "release lock on %q", d.path)
	}
	return firstErr
}

// Compact rewrites the log file to contain only the current live
// records, dropping tombstones and superseded versions. It is not safe
// to call concurrently with Set/Delete/Scan/Get on the same engine.
// A crash mid-compaction leaves the original file intact, since rename
// is the only step that commits the new log.
func (d *DiskEngine) Compact() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	compactPath := d.path + ".compact"
	newFile, err := os.OpenFile(compactPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return dberr.InternalWrap(err, "open compaction file %q", compactPath)
	}

	newKeydir := btree.NewG[keydirEntry](32, keydirLess)
	var walkErr error
	d.keydir.Ascend(func(e keydirEntry) bool {
		value, err := readValueAt(d.file, e.offset, e.length)
		if err != nil {
			walkErr = err
			return false
		}
		_, valOffset, valLen, err := writeRecord(newFile, e.key, value, true)
		if err != nil {
			walkErr = err
			return false
		}
		newKeydir.ReplaceOrInsert(keydirEntry{
			key:    append([]byte(nil), e.key...),
			offset: valOffset,
			length: valLen,
		})
		return true
	})
	if walkErr != nil {
		_ = newFile.Close()
		_ = os.Remove(compactPath)
		return walkErr
	}

	if err := newFile.Sync(); err != nil {
		_ = newFile.Close()
		_ = os.Remove(compactPath)
		return dberr.InternalWrap(err, "sync compaction file %q", compactPath)
	}

	// rename is the commit point: everything before this can crash
	// and leave d.path untouched.
	if err := os.Rename(compactPath, d.path); err != nil {
		_ = newFile.Close()
		return dberr.InternalWrap(err, "rename compaction file over %q", d.path)
	}

	if err := d.file.Close(); err != nil {
		d.log.Warn("failed closing old log handle after compaction", zap.Error(err))
	}
	d.file = newFile
	d.keydir = newKeydir
	d.log.Info("compaction complete", zap.String("path", d.path), zap.Int("live_keys", newKeydir.Len()))
	return nil
}

// --- log record framing -----------------------------------------------

// writeRecord appends one record to f: header, key, value (if present),
// trailing crc32. It returns the record's start offset, the offset of
// the value payload within the file, and the value's length, so the
// keydir can be updated without re-deriving the arithmetic at every
// call site.
func writeRecord(f *os.File, key, value []byte, present bool) (recordOffset, valOffset uint64, valLen uint32, err error) {
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, 0, 0, dberr.InternalWrap(err, "seek to end of log")
	}

	keyLen := uint32(len(key))
	var vLen int32 = -1
	if present {
		vLen = int32(len(value))
	}

	buf := make([]byte, logHeaderSize, logHeaderSize+len(key)+len(value)+crc32Size)
	binary.BigEndian.PutUint32(buf[0:4], keyLen)
	binary.BigEndian.PutUint32(buf[4:8], uint32(vLen))
	buf = append(buf, key...)
	if present {
		buf = append(buf, value...)
	}
	sum := crc32.ChecksumIEEE(buf)
	checksum := make([]byte, crc32Size)
	binary.BigEndian.PutUint32(checksum, sum)
	buf = append(buf, checksum...)

	if _, err := f.Write(buf); err != nil {
		return 0, 0, 0, dberr.InternalWrap(err, "write log record")
	}
	if err := f.Sync(); err != nil {
		return 0, 0, 0, dberr.InternalWrap(err, "flush log record")
	}

	vOffset := uint64(offset) + logHeaderSize + uint64(len(key))
	return uint64(offset), vOffset, uint32(len(value)), nil
}

func readValueAt(f *os.File, offset uint64, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, int64(offset)); err != nil {
		return nil, dberr.InternalWrap(err, "read value at offset %d", offset)
	}
	return buf, nil
}

// buildKeydir replays the log file from offset 0 to EOF, applying last
// write wins: a tombstone removes any earlier mapping, a put
// (re)inserts one. A short read or checksum mismatch partway through a
// record is treated as fatal corruption: a crash mid-append can only
// ever leave a partial record at the very end of the file, never in
// the middle, so there is nothing safe to recover past that point.
func buildKeydir(f *os.File) (*btree.BTreeG[keydirEntry], error) {
	keydir := btree.NewG[keydirEntry](32, keydirLess)

	fileLen, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, dberr.InternalWrap(err, "seek to measure log length")
	}

	var offset int64
	for offset < fileLen {
		header := make([]byte, logHeaderSize)
		if _, err := f.ReadAt(header, offset); err != nil {
			return nil, dberr.InternalWrap(err, "read record header at offset %d", offset)
		}
		keyLen := binary.BigEndian.Uint32(header[0:4])
		valLenRaw := int32(binary.BigEndian.Uint32(header[4:8]))

		present := valLenRaw >= 0
		valLen := uint32(0)
		if present {
			valLen = uint32(valLenRaw)
		}

		bodyLen := int64(keyLen) + int64(valLen)
		total := logHeaderSize + bodyLen + crc32Size
		if offset+total > fileLen {
			return nil, dberr.Internal("truncated record at offset %d (need %d bytes, have %d)", offset, total, fileLen-offset)
		}

		body := make([]byte, logHeaderSize+bodyLen)
		if _, err := f.ReadAt(body, offset); err != nil {
			return nil, dberr.InternalWrap(err, "read record body at offset %d", offset)
		}
		checksum := make([]byte, crc32Size)
		if _, err := f.ReadAt(checksum, offset+logHeaderSize+bodyLen); err != nil {
			return nil, dberr.InternalWrap(err, "read record checksum at offset %d", offset)
		}
		if crc32.ChecksumIEEE(body) != binary.BigEndian.Uint32(checksum) {
			return nil, dberr.Internal("checksum mismatch for record at offset %d", offset)
		}

		key := body[logHeaderSize : logHeaderSize+int64(keyLen)]
		keyCopy := append([]byte(nil), key...)

		if present {
			keydir.ReplaceOrInsert(keydirEntry{
				key:    keyCopy,
				offset: uint64(offset) + logHeaderSize + uint64(keyLen),
				length: valLen,
			})
		} else {
			keydir.Delete(keydirEntry{key: keyCopy})
		}

		offset += total
	}

	return keydir, nil
}
