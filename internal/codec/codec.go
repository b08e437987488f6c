// Package codec implements the order-preserving byte encoding that the
// MVCC layer (internal/mvcc) and the SQL-facing adapter (internal/sqladapter)
// build composite keys out of.
//
// Three primitives compose into every key this module ever stores:
//
//   - a one-byte discriminant tag, so tag ordering matches declaration
//     order of the key family it selects;
//   - an escaped, self-delimited byte string, so enc(a) < enc(b) iff
//     a < b lexicographically and a following field is unambiguous;
//   - a fixed-width big-endian unsigned integer, so numeric ordering
//     matches byte ordering.
//
// A prefix scan over encoded keys built from these primitives corresponds
// exactly to a prefix scan over the logical (raw_key, version) tuples the
// MVCC layer reasons about. This matters more than it looks like it
// should: generic length-prefixed serialization (encoding/gob, JSON,
// bincode) does not preserve byte ordering for variable-length fields,
// which would silently break every range and prefix scan built on top
// of it.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/dreamware/tinysql/internal/dberr"
)

// escape and terminator bytes for the order-preserving string encoding.
const (
	escByte  byte = 0x00
	escFF    byte = 0xff
	termByte byte = 0x00
)

// EncodeBytes encodes b as an order-preserving, self-delimited byte
// string: every 0x00 byte is escaped to 0x00 0xff, and the whole string
// is terminated by 0x00 0x00.
func EncodeBytes(b []byte) []byte {
	out := make([]byte, 0, len(b)+2)
	for _, c := range b {
		if c == escByte {
			out = append(out, escByte, escFF)
		} else {
			out = append(out, c)
		}
	}
	out = append(out, escByte, termByte)
	return out
}

// DecodeBytes decodes the first order-preserving byte string found at
// the start of buf, returning the decoded value and the remainder of buf
// following the terminator.
func DecodeBytes(buf []byte) (value []byte, rest []byte, err error) {
	out := make([]byte, 0, len(buf))
	i := 0
	for {
		idx := indexByte(buf, i, escByte)
		if idx < 0 {
			return nil, nil, dberr.Parse("codec: unterminated byte string")
		}
		if idx+1 >= len(buf) {
			return nil, nil, dberr.Parse("codec: truncated escape sequence")
		}
		out = append(out, buf[i:idx]...)
		switch buf[idx+1] {
		case termByte:
			return out, buf[idx+2:], nil
		case escFF:
			out = append(out, escByte)
			i = idx + 2
		default:
			return nil, nil, dberr.Parse("codec: invalid escape byte 0x%02x", buf[idx+1])
		}
	}
}

func indexByte(buf []byte, from int, b byte) int {
	for i := from; i < len(buf); i++ {
		if buf[i] == b {
			return i
		}
	}
	return -1
}

// EncodeUint64 encodes v as an 8-byte big-endian integer, so that
// numeric ordering matches byte ordering.
func EncodeUint64(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

// DecodeUint64 decodes an 8-byte big-endian integer from the start of
// buf, returning the value and the remainder of buf.
func DecodeUint64(buf []byte) (value uint64, rest []byte, err error) {
	if len(buf) < 8 {
		return 0, nil, dberr.Parse("codec: truncated uint64 (got %d bytes)", len(buf))
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:], nil
}

// PrefixUpperBound returns the exclusive upper bound for a scan over
// every key starting with prefix: prefix with its final byte
// incremented, or nil (unbounded above) if prefix is empty or entirely
// 0xff bytes.
func PrefixUpperBound(prefix []byte) []byte {
	up := make([]byte, len(prefix))
	copy(up, prefix)
	for i := len(up) - 1; i >= 0; i-- {
		if up[i] < 0xff {
			up[i]++
			return up[:i+1]
		}
	}
	return nil
}

// EncodeInt64 encodes v as an order-preserving 8-byte big-endian
// integer: the sign bit is flipped so that negative values sort below
// non-negative ones under plain byte comparison, matching signed
// numeric ordering.
func EncodeInt64(v int64) []byte {
	return EncodeUint64(uint64(v) ^ (1 << 63))
}

// DecodeInt64 is the inverse of EncodeInt64.
func DecodeInt64(buf []byte) (value int64, rest []byte, err error) {
	u, rest, err := DecodeUint64(buf)
	if err != nil {
		return 0, nil, err
	}
	return int64(u ^ (1 << 63)), rest, nil
}

// EncodeFloat64 encodes v as an order-preserving 8-byte big-endian
// value: for non-negative floats the sign bit is set, for negative
// floats every bit is flipped, the standard transform that makes IEEE
// 754 bit patterns compare correctly as unsigned integers.
func EncodeFloat64(v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return EncodeUint64(bits)
}

// DecodeFloat64 is the inverse of EncodeFloat64.
func DecodeFloat64(buf []byte) (value float64, rest []byte, err error) {
	bits, rest, err := DecodeUint64(buf)
	if err != nil {
		return 0, nil, err
	}
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), rest, nil
}

// EncodeOptional encodes an optional byte string: a present value is a
// 0x01 presence byte followed by the raw bytes; an absent value
// (a tombstone, in MVCC terms) is a single 0x00 byte. This is not
// order-preserving and is not meant to be: it is used only for the
// *value* half of a Version(k, v) cell, never for a key.
func EncodeOptional(value []byte, present bool) []byte {
	if !present {
		return []byte{0x00}
	}
	out := make([]byte, 0, len(value)+1)
	out = append(out, 0x01)
	out = append(out, value...)
	return out
}

// DecodeOptional is the inverse of EncodeOptional.
func DecodeOptional(buf []byte) (value []byte, present bool, err error) {
	if len(buf) == 0 {
		return nil, false, dberr.Parse("codec: empty optional payload")
	}
	switch buf[0] {
	case 0x00:
		return nil, false, nil
	case 0x01:
		return buf[1:], true, nil
	default:
		return nil, false, dberr.Parse("codec: invalid optional presence byte 0x%02x", buf[0])
	}
}
