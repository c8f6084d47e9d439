package varint_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.tunwire.dev/bridge/pkg/varint"
)

func TestWriteReadRoundTrip(t *testing.T) {
	cases := []int32{0, 1, 2, 127, 128, 255, 300, 2097151, 2147483647}
	for _, v := range cases {
		var buf bytes.Buffer
		require.NoError(t, varint.Write(&buf, v))
		got, err := varint.Read(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, buf.Len(), varint.Size(v))
	}
}

func TestWriteRejectsNegative(t *testing.T) {
	var buf bytes.Buffer
	err := varint.Write(&buf, -1)
	assert.ErrorIs(t, err, varint.ErrNegativeValue)
	assert.Equal(t, 0, buf.Len())
}

func TestReadShortBuffer(t *testing.T) {
	_, err := varint.Read(bytes.NewReader([]byte{0x80, 0x80}))
	assert.ErrorIs(t, err, varint.ErrShortBuffer)
}

func TestReadOverlong(t *testing.T) {
	// S7: six continuation-shaped bytes is one too many for a 32-bit VarInt.
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, err := varint.Read(bytes.NewReader(buf))
	assert.ErrorIs(t, err, varint.ErrOverlong)
}

func TestReadFromBytesConsumedCount(t *testing.T) {
	buf, err := varint.Append(nil, 300)
	require.NoError(t, err)
	v, n, err := varint.ReadFromBytes(buf)
	require.NoError(t, err)
	assert.Equal(t, int32(300), v)
	assert.Equal(t, len(buf), n)
}
