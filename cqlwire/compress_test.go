package cqlwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compressibleBody() []byte {
	return bytes.Repeat([]byte("rows rows rows rows "), 100)
}

func TestCodecRoundTrip(t *testing.T) {
	for _, name := range CodecNames() {
		name := name
		t.Run(name, func(t *testing.T) {
			codec, ok := LookupCodec(name)
			require.True(t, ok)
			assert.Equal(t, name, codec.Name())

			body := compressibleBody()
			enc, err := codec.Encode(body)
			require.NoError(t, err)
			assert.Less(t, len(enc), len(body))

			dec, err := codec.Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, body, dec)
		})
	}
}

func TestCodecIncompressible(t *testing.T) {
	// 1-byte body cannot shrink under either scheme
	for _, name := range CodecNames() {
		codec, _ := LookupCodec(name)
		_, err := codec.Encode([]byte{0xff})
		assert.ErrorIs(t, err, ErrIncompressible, name)
	}
}

func TestLookupCodecUnknown(t *testing.T) {
	_, ok := LookupCodec("zstd")
	assert.False(t, ok)
}

func TestLZ4LengthPrefix(t *testing.T) {
	codec, _ := LookupCodec("lz4")
	body := compressibleBody()
	enc, err := codec.Encode(body)
	require.NoError(t, err)
	// 4-byte big-endian uncompressed length precedes the block
	assert.Equal(t, byte(len(body)>>8), enc[2])
	assert.Equal(t, byte(len(body)), enc[3])

	// corrupting the prefix must be detected
	enc[3]++
	_, err = codec.Decode(enc)
	assert.Error(t, err)
}

func TestLZ4DecodeShortInput(t *testing.T) {
	codec, _ := LookupCodec("lz4")
	_, err := codec.Decode([]byte{0x00, 0x01})
	assert.Error(t, err)
}
