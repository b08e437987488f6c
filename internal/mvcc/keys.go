package mvcc

import (
	"github.com/dreamware/tinysql/internal/codec"
	"github.com/dreamware/tinysql/internal/dberr"
)

// Key family discriminants, in declaration order.
const (
	tagNextVersion byte = 0
	tagTxnActive   byte = 1
	tagTxnWrite    byte = 2
	tagVersion     byte = 3
)

// nextVersionKey is the singleton key holding the next version to hand
// out.
func nextVersionKey() []byte {
	return []byte{tagNextVersion}
}

// txnActiveKey marks version as currently in-flight.
func txnActiveKey(version uint64) []byte {
	buf := make([]byte, 0, 1+8)
	buf = append(buf, tagTxnActive)
	buf = append(buf, codec.EncodeUint64(version)...)
	return buf
}

// txnActivePrefix is the shared prefix of every txnActiveKey, used to
// prefix-scan the active set at Begin.
func txnActivePrefix() []byte {
	return []byte{tagTxnActive}
}

// txnWriteKey journals that transaction version wrote rawKey.
func txnWriteKey(version uint64, rawKey []byte) []byte {
	buf := make([]byte, 0, 1+8+len(rawKey)+2)
	buf = append(buf, tagTxnWrite)
	buf = append(buf, codec.EncodeUint64(version)...)
	buf = append(buf, codec.EncodeBytes(rawKey)...)
	return buf
}

// txnWritePrefix is the prefix shared by every key a single
// transaction journaled, used at Commit/Rollback to find them all.
func txnWritePrefix(version uint64) []byte {
	buf := make([]byte, 0, 1+8)
	buf = append(buf, tagTxnWrite)
	buf = append(buf, codec.EncodeUint64(version)...)
	return buf
}

// decodeTxnWriteKey recovers the raw key journaled by a TxnWrite entry,
// given the full engine key it was stored under.
func decodeTxnWriteKey(key []byte) ([]byte, error) {
	if len(key) < 1+8 || key[0] != tagTxnWrite {
		return nil, dberr.Internal("malformed TxnWrite key")
	}
	rawKey, rest, err := codec.DecodeBytes(key[1+8:])
	if err != nil {
		return nil, dberr.ParseWrap(err, "decode TxnWrite key")
	}
	if len(rest) != 0 {
		return nil, dberr.Internal("trailing bytes after TxnWrite key")
	}
	return rawKey, nil
}

// versionKey is the versioned data cell for rawKey at version.
func versionKey(rawKey []byte, version uint64) []byte {
	buf := make([]byte, 0, 1+len(rawKey)+2+8)
	buf = append(buf, tagVersion)
	buf = append(buf, codec.EncodeBytes(rawKey)...)
	buf = append(buf, codec.EncodeUint64(version)...)
	return buf
}

// versionKeyPrefix returns the prefix of every versionKey for rawKey,
// i.e. versionKey(rawKey, *) with the trailing version omitted.
func versionKeyPrefix(rawKey []byte) []byte {
	buf := make([]byte, 0, 1+len(rawKey)+2)
	buf = append(buf, tagVersion)
	buf = append(buf, codec.EncodeBytes(rawKey)...)
	return buf
}

// maxVersionBound returns the exclusive upper bound for a scan covering
// every Version(rawKey, *) entry, i.e. one byte past
// versionKey(rawKey, MaxUint64).
func maxVersionBound(rawKey []byte) []byte {
	bound := versionKey(rawKey, ^uint64(0))
	return append(bound, 0x00)
}

// versionScanPrefix returns the truncated encoding used to prefix-scan
// every Version(k, v) where k itself starts with prefix: encode
// Version(prefix) and strip the two-byte string terminator the codec
// appends, since a full prefix match on the raw key must not require
// that prefix to itself be a complete, terminated encoded key.
func versionScanPrefix(prefix []byte) []byte {
	full := versionKeyPrefix(prefix)
	return full[:len(full)-2]
}

// decodeVersionKey splits a Version(k, v) engine key back into its raw
// key and version.
func decodeVersionKey(key []byte) (rawKey []byte, version uint64, err error) {
	if len(key) < 1 || key[0] != tagVersion {
		return nil, 0, dberr.Internal("malformed Version key")
	}
	rawKey, rest, err := codec.DecodeBytes(key[1:])
	if err != nil {
		return nil, 0, dberr.ParseWrap(err, "decode Version key raw key")
	}
	version, rest, err = codec.DecodeUint64(rest)
	if err != nil {
		return nil, 0, dberr.ParseWrap(err, "decode Version key version")
	}
	if len(rest) != 0 {
		return nil, 0, dberr.Internal("trailing bytes after Version key")
	}
	return rawKey, version, nil
}
