package codec

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBytesRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("hello"),
		{0x00},
		{0x00, 0x00},
		{0x00, 0x01, 0x00},
		{0xff, 0x00, 0xff},
	}
	for _, c := range cases {
		enc := EncodeBytes(c)
		dec, rest, err := DecodeBytes(enc)
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.True(t, bytes.Equal(c, dec), "round trip mismatch for %v", c)
	}
}

func TestEncodeBytesSelfDelimited(t *testing.T) {
	enc := EncodeBytes([]byte("ab"))
	enc = append(enc, 0xAB, 0xCD)
	dec, rest, err := DecodeBytes(enc)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), dec)
	assert.Equal(t, []byte{0xAB, 0xCD}, rest)
}

func TestEncodeBytesOrderPreserving(t *testing.T) {
	inputs := [][]byte{
		[]byte("b"),
		[]byte("a"),
		[]byte("aa"),
		[]byte("ab"),
		{0x00},
		{0x00, 0x01},
		[]byte(""),
		[]byte("aaa"),
	}
	sortedInputs := make([][]byte, len(inputs))
	copy(sortedInputs, inputs)
	sort.Slice(sortedInputs, func(i, j int) bool {
		return bytes.Compare(sortedInputs[i], sortedInputs[j]) < 0
	})

	encoded := make([][]byte, len(inputs))
	for i, in := range inputs {
		encoded[i] = EncodeBytes(in)
	}
	sortedEncoded := make([][]byte, len(encoded))
	copy(sortedEncoded, encoded)
	sort.Slice(sortedEncoded, func(i, j int) bool {
		return bytes.Compare(sortedEncoded[i], sortedEncoded[j]) < 0
	})

	// Decode the sorted-by-encoding order and compare against the
	// sorted-by-raw-bytes order: they must match key for key.
	for i := range sortedEncoded {
		dec, _, err := DecodeBytes(sortedEncoded[i])
		require.NoError(t, err)
		assert.True(t, bytes.Equal(dec, sortedInputs[i]), "order mismatch at index %d: got %q want %q", i, dec, sortedInputs[i])
	}
}

func TestEncodeUint64OrderPreserving(t *testing.T) {
	values := []uint64{0, 1, 2, 255, 256, 1 << 32, ^uint64(0)}
	for i := 0; i < len(values); i++ {
		for j := 0; j < len(values); j++ {
			a, b := values[i], values[j]
			want := 0
			switch {
			case a < b:
				want = -1
			case a > b:
				want = 1
			}
			got := bytes.Compare(EncodeUint64(a), EncodeUint64(b))
			if want < 0 {
				assert.Negative(t, got)
			} else if want > 0 {
				assert.Positive(t, got)
			} else {
				assert.Zero(t, got)
			}
		}
	}
}

func TestEncodeInt64OrderPreserving(t *testing.T) {
	values := []int64{math.MinInt64, -1000, -1, 0, 1, 1000, math.MaxInt64}
	for i := range values {
		for j := range values {
			a, b := values[i], values[j]
			got := bytes.Compare(EncodeInt64(a), EncodeInt64(b))
			switch {
			case a < b:
				assert.Negative(t, got)
			case a > b:
				assert.Positive(t, got)
			default:
				assert.Zero(t, got)
			}
		}
	}
}

func TestEncodeInt64RoundTrip(t *testing.T) {
	for _, v := range []int64{math.MinInt64, -1, 0, 1, math.MaxInt64} {
		got, rest, err := DecodeInt64(EncodeInt64(v))
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, v, got)
	}
}

func TestEncodeFloat64OrderPreserving(t *testing.T) {
	values := []float64{math.Inf(-1), -1000.5, -1, -0.0001, 0, 0.0001, 1, 1000.5, math.Inf(1)}
	for i := range values {
		for j := range values {
			a, b := values[i], values[j]
			got := bytes.Compare(EncodeFloat64(a), EncodeFloat64(b))
			switch {
			case a < b:
				assert.Negative(t, got)
			case a > b:
				assert.Positive(t, got)
			default:
				assert.Zero(t, got)
			}
		}
	}
}

func TestEncodeFloat64RoundTrip(t *testing.T) {
	for _, v := range []float64{math.Inf(-1), -1.5, 0, 1.5, math.Inf(1)} {
		got, rest, err := DecodeFloat64(EncodeFloat64(v))
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, v, got)
	}
}

func TestDecodeUint64Truncated(t *testing.T) {
	_, _, err := DecodeUint64([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("cb"), PrefixUpperBound([]byte("ca")))
	assert.Equal(t, []byte{0x01}, PrefixUpperBound([]byte{0x00}))
	assert.Nil(t, PrefixUpperBound([]byte{0xff, 0xff}))
	assert.Nil(t, PrefixUpperBound(nil))
}

func TestEncodeOptionalRoundTrip(t *testing.T) {
	v, present, err := DecodeOptional(EncodeOptional([]byte("hi"), true))
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, []byte("hi"), v)

	v, present, err = DecodeOptional(EncodeOptional(nil, false))
	require.NoError(t, err)
	assert.False(t, present)
	assert.Nil(t, v)
}

func TestDecodeOptionalInvalid(t *testing.T) {
	_, _, err := DecodeOptional(nil)
	require.Error(t, err)
	_, _, err = DecodeOptional([]byte{0x05})
	require.Error(t, err)
}
