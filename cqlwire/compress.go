package cqlwire

import (
	"encoding/binary"
	"sort"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Codec compresses and decompresses frame bodies. The scheme is
// negotiated once per connection at STARTUP and is immutable afterwards.
type Codec interface {
	Name() string
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

// ErrIncompressible is returned by Encode when the codec cannot shrink
// the input. The compression flag is per-frame, so callers are free to
// send such a body uncompressed instead.
var ErrIncompressible = errors.New("body did not compress")

var codecs = map[string]Codec{
	"snappy": snappyCodec{},
	"lz4":    lz4Codec{},
}

// LookupCodec resolves a codec by the name the client sent in the
// STARTUP COMPRESSION option.
func LookupCodec(name string) (Codec, bool) {
	c, ok := codecs[name]
	return c, ok
}

// CodecNames lists the supported codec names, sorted, for the
// SUPPORTED response.
func CodecNames() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type snappyCodec struct{}

func (snappyCodec) Name() string { return "snappy" }

func (snappyCodec) Encode(src []byte) ([]byte, error) {
	dst := snappy.Encode(nil, src)
	if len(dst) >= len(src) {
		return nil, ErrIncompressible
	}
	return dst, nil
}

func (snappyCodec) Decode(src []byte) ([]byte, error) {
	dst, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, errors.Wrap(err, "snappy decode")
	}
	return dst, nil
}

// lz4Codec implements the LZ4 block scheme mandated by the protocol
// spec: a 4-byte big-endian uncompressed length followed by a single
// LZ4 block.
type lz4Codec struct{}

func (lz4Codec) Name() string { return "lz4" }

func (lz4Codec) Encode(src []byte) ([]byte, error) {
	dst := make([]byte, 4+lz4.CompressBlockBound(len(src)))
	binary.BigEndian.PutUint32(dst[:4], uint32(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst[4:])
	if err != nil {
		return nil, errors.Wrap(err, "lz4 encode")
	}
	if n == 0 || 4+n >= len(src) {
		return nil, ErrIncompressible
	}
	return dst[:4+n], nil
}

func (lz4Codec) Decode(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, errors.New("lz4 body too short for length prefix")
	}
	uncompressedLen := binary.BigEndian.Uint32(src[:4])
	if uncompressedLen == 0 {
		return []byte{}, nil
	}
	dst := make([]byte, uncompressedLen)
	n, err := lz4.UncompressBlock(src[4:], dst)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 decode")
	}
	if uint32(n) != uncompressedLen {
		return nil, errors.Errorf("lz4 length prefix %d does not match decoded length %d", uncompressedLen, n)
	}
	return dst, nil
}
