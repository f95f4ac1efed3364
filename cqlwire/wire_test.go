package cqlwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{
		Version: ProtoVersion4,
		Flags:   FlagCompressed,
		Stream:  1027,
		Op:      OpQuery,
		Length:  0xdeadbe,
	}
	buf := in.AppendTo(nil)
	require.Len(t, buf, HeaderLen)

	out, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestHeaderResponseDirectionBit(t *testing.T) {
	h := Header{Version: ProtoVersion3, Response: true, Op: OpReady}
	buf := h.AppendTo(nil)
	assert.Equal(t, uint8(0x83), buf[0])

	parsed, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.True(t, parsed.Response)
	assert.Equal(t, ProtoVersion3, parsed.Version)
}

func TestHeaderNegativeStream(t *testing.T) {
	h := Header{Version: ProtoVersion4, Stream: -1, Op: OpEvent, Response: true}
	parsed, err := ParseHeader(h.AppendTo(nil))
	require.NoError(t, err)
	assert.Equal(t, int16(-1), parsed.Stream)
}

func TestParseHeaderTooShort(t *testing.T) {
	_, err := ParseHeader([]byte{0x04, 0x00, 0x00})
	assert.Equal(t, ErrHeaderTooShort, err)
}

func TestParseHeaderBadVersion(t *testing.T) {
	for _, version := range []uint8{0x00, 0x01, 0x02, 0x05, 0x7f} {
		buf := make([]byte, HeaderLen)
		buf[0] = version
		_, err := ParseHeader(buf)
		assert.ErrorIs(t, err, ErrUnsupportedVersion, "version 0x%02x", version)
	}
}

func TestStreamIDMatchesParsedHeader(t *testing.T) {
	h := Header{Version: ProtoVersion4, Stream: -32768, Op: OpExecute}
	buf := h.AppendTo(nil)
	assert.Equal(t, h.Stream, StreamID(buf))
}

func TestReaderPrimitives(t *testing.T) {
	w := NewWriter()
	w.WriteUint8(0x42)
	w.WriteShort(515)
	w.WriteInt(-7)
	w.WriteLong(1 << 40)
	w.WriteString("keyspace1")
	w.WriteLongString("SELECT * FROM t")
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteBytes(nil)
	w.WriteShortBytes([]byte{9})
	w.WriteStringMap(map[string]string{"CQL_VERSION": "3.0.0"})

	r := NewReader(w.Bytes())
	assert.Equal(t, uint8(0x42), r.ReadUint8())
	assert.Equal(t, uint16(515), r.ReadShort())
	assert.Equal(t, int32(-7), r.ReadInt())
	assert.Equal(t, int64(1<<40), r.ReadLong())
	assert.Equal(t, "keyspace1", r.ReadString())
	assert.Equal(t, "SELECT * FROM t", r.ReadLongString())
	assert.Equal(t, []byte{1, 2, 3}, r.ReadBytes())
	assert.Nil(t, r.ReadBytes())
	assert.Equal(t, []byte{9}, r.ReadShortBytes())
	assert.Equal(t, map[string]string{"CQL_VERSION": "3.0.0"}, r.ReadStringMap())
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Remaining())
}

func TestReaderErrorSticks(t *testing.T) {
	r := NewReader([]byte{0x00, 0x05, 'a', 'b'}) // [string] claims 5 bytes, has 2
	assert.Equal(t, "", r.ReadString())
	require.ErrorIs(t, r.Err(), ErrBodyTruncated)

	// subsequent reads keep returning zero values, error unchanged
	assert.Equal(t, int32(0), r.ReadInt())
	assert.ErrorIs(t, r.Err(), ErrBodyTruncated)
}

func TestWriteStringMultiMap(t *testing.T) {
	w := NewWriter()
	w.WriteStringMultiMap(map[string][]string{"COMPRESSION": {"lz4", "snappy"}})
	r := NewReader(w.Bytes())
	assert.Equal(t, uint16(1), r.ReadShort())
	assert.Equal(t, "COMPRESSION", r.ReadString())
	assert.Equal(t, uint16(2), r.ReadShort())
	assert.Equal(t, "lz4", r.ReadString())
	assert.Equal(t, "snappy", r.ReadString())
	require.NoError(t, r.Err())
}
