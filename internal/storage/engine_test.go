package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// truncateFile chops cut trailing bytes off the file at path, simulating
// a crash partway through an append.
func truncateFile(t *testing.T, path string, cut int64) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-cut))
}

// drain collects every (key, value) pair a Cursor yields via Next, in
// order.
func drain(t *testing.T, c Cursor) []KV {
	t.Helper()
	var out []KV
	for {
		kv, ok := c.Next()
		if !ok {
			break
		}
		out = append(out, kv)
	}
	return out
}

func drainBack(t *testing.T, c Cursor) []KV {
	t.Helper()
	var out []KV
	for {
		kv, ok := c.Prev()
		if !ok {
			break
		}
		out = append(out, kv)
	}
	return out
}

// engineFactories lists every Engine implementation the shared property
// tests below must pass against.
func engineFactories(t *testing.T) map[string]func() Engine {
	t.Helper()
	return map[string]func() Engine{
		"memory": func() Engine { return NewMemoryEngine() },
		"disk": func() Engine {
			dir := t.TempDir()
			eng, err := NewDiskEngine(filepath.Join(dir, "data.log"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = eng.Close() })
			return eng
		},
	}
}

func TestEnginePointOps(t *testing.T) {
	for name, factory := range engineFactories(t) {
		t.Run(name, func(t *testing.T) {
			eng := factory()

			v, err := eng.Get([]byte("missing"))
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, eng.Set([]byte("aa"), []byte{1, 2, 3, 4}))
			v, err = eng.Get([]byte("aa"))
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3, 4}, v)

			require.NoError(t, eng.Delete([]byte("aa")))
			v, err = eng.Get([]byte("aa"))
			require.NoError(t, err)
			assert.Nil(t, v)

			// empty key and empty value
			require.NoError(t, eng.Set([]byte(""), []byte{}))
			v, err = eng.Get([]byte(""))
			require.NoError(t, err)
			assert.Equal(t, []byte{}, v)

			require.NoError(t, eng.Delete([]byte("never-existed")))
		})
	}
}

func TestEngineOverwrite(t *testing.T) {
	for name, factory := range engineFactories(t) {
		t.Run(name, func(t *testing.T) {
			eng := factory()
			require.NoError(t, eng.Set([]byte("k"), []byte("v1")))
			require.NoError(t, eng.Set([]byte("k"), []byte("v2")))
			v, err := eng.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), v)
		})
	}
}

func TestEngineRangeScan(t *testing.T) {
	for name, factory := range engineFactories(t) {
		t.Run(name, func(t *testing.T) {
			eng := factory()
			for _, k := range []string{"nnaes", "amhue", "meeae", "uujeh", "anehe"} {
				require.NoError(t, eng.Set([]byte(k), []byte("value-"+k)))
			}

			c, err := eng.Scan([]byte("a"), []byte("e"))
			require.NoError(t, err)
			fwd := drain(t, c)
			require.Len(t, fwd, 2)
			assert.Equal(t, "amhue", string(fwd[0].Key))
			assert.Equal(t, "anehe", string(fwd[1].Key))

			c, err = eng.Scan([]byte("b"), []byte("z"))
			require.NoError(t, err)
			rev := drainBack(t, c)
			require.Len(t, rev, 3)
			assert.Equal(t, "uujeh", string(rev[0].Key))
			assert.Equal(t, "nnaes", string(rev[1].Key))
			assert.Equal(t, "meeae", string(rev[2].Key))
		})
	}
}

func TestEnginePrefixScan(t *testing.T) {
	for name, factory := range engineFactories(t) {
		t.Run(name, func(t *testing.T) {
			eng := factory()
			for _, k := range []string{"ccnaes", "camhue", "deeae", "eeujeh", "canehe", "aanehe"} {
				require.NoError(t, eng.Set([]byte(k), []byte("value-"+k)))
			}

			c, err := eng.ScanPrefix([]byte("ca"))
			require.NoError(t, err)
			got := drain(t, c)
			require.Len(t, got, 2)
			assert.Equal(t, "camhue", string(got[0].Key))
			assert.Equal(t, "canehe", string(got[1].Key))
		})
	}
}

// TestDiskEngineCompactionRoundTrip documents that compaction preserves
// the live key/value pairs visible before it ran, and discards
// tombstones and superseded versions, when the log is closed, reopened,
// and compacted on the reopened handle.
func TestDiskEngineCompactionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")

	eng, err := NewDiskEngine(path)
	require.NoError(t, err)

	require.NoError(t, eng.Set([]byte("key1"), []byte("value1")))
	require.NoError(t, eng.Set([]byte("key2"), []byte("value2")))
	require.NoError(t, eng.Set([]byte("key3"), []byte("value3")))
	require.NoError(t, eng.Delete([]byte("key1")))
	require.NoError(t, eng.Delete([]byte("key2")))
	require.NoError(t, eng.Set([]byte("aa"), []byte("value1")))
	require.NoError(t, eng.Set([]byte("aa"), []byte("value2")))
	require.NoError(t, eng.Set([]byte("aa"), []byte("value3")))
	require.NoError(t, eng.Set([]byte("bb"), []byte("value4")))
	require.NoError(t, eng.Set([]byte("bb"), []byte("value5")))

	want := []KV{
		{Key: []byte("aa"), Value: []byte("value3")},
		{Key: []byte("bb"), Value: []byte("value5")},
		{Key: []byte("key3"), Value: []byte("value3")},
	}

	c, err := eng.Scan(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, want, drain(t, c))

	require.NoError(t, eng.Close())

	eng2, err := NewDiskEngine(path)
	require.NoError(t, err)
	defer eng2.Close()
	require.NoError(t, eng2.Compact())

	c, err = eng2.Scan(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, want, drain(t, c))
}

// TestDiskEngineRecovery is property 6: closing and reopening a
// DiskEngine on the same path reproduces the state at close.
func TestDiskEngineRecovery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")

	eng, err := NewDiskEngine(path)
	require.NoError(t, err)
	require.NoError(t, eng.Set([]byte("x"), []byte("1")))
	require.NoError(t, eng.Set([]byte("y"), []byte("2")))
	require.NoError(t, eng.Delete([]byte("x")))
	require.NoError(t, eng.Close())

	eng2, err := NewDiskEngine(path)
	require.NoError(t, err)
	defer eng2.Close()

	v, err := eng2.Get([]byte("x"))
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = eng2.Get([]byte("y"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestDiskEngineExclusiveLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")

	eng, err := NewDiskEngine(path)
	require.NoError(t, err)
	defer eng.Close()

	_, err = NewDiskEngine(path)
	require.Error(t, err)
}

func TestDiskEngineCorruptRecordIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")

	eng, err := NewDiskEngine(path)
	require.NoError(t, err)
	require.NoError(t, eng.Set([]byte("k"), []byte("v")))
	require.NoError(t, eng.Close())

	// Truncate the file mid-record to simulate a crash during append.
	truncateFile(t, path, 4)

	_, err = NewDiskEngine(path)
	require.Error(t, err)
}
