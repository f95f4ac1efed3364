package cqlwire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var ErrBodyTruncated = errors.New("frame body truncated")

// Reader decodes the CQL body primitives ([int], [short], [string],
// [long string], [bytes], [short bytes], [string map], ...) from a
// frame body. The first decode error sticks; subsequent reads return
// zero values so call sites can decode a whole body and check Err once.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Err() error { return r.err }

func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Rest consumes and returns all remaining bytes, for payloads that
// travel opaquely behind the decoded fields.
func (r *Reader) Rest() []byte {
	return r.take(r.Remaining())
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = errors.Wrapf(ErrBodyTruncated, "need %d bytes at offset %d, have %d", n, r.off, r.Remaining())
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadShort() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) ReadInt() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) ReadLong() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *Reader) ReadString() string {
	n := r.ReadShort()
	return string(r.take(int(n)))
}

func (r *Reader) ReadLongString() string {
	n := r.ReadInt()
	if n < 0 {
		r.err = errors.Wrapf(ErrBodyTruncated, "negative long string length %d", n)
		return ""
	}
	return string(r.take(int(n)))
}

// ReadBytes returns nil for a -1 length, distinguishing "no value"
// from an empty value.
func (r *Reader) ReadBytes() []byte {
	n := r.ReadInt()
	if n < 0 {
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *Reader) ReadShortBytes() []byte {
	n := r.ReadShort()
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *Reader) ReadStringMap() map[string]string {
	n := r.ReadShort()
	m := make(map[string]string, n)
	for i := uint16(0); i < n; i++ {
		k := r.ReadString()
		v := r.ReadString()
		if r.err != nil {
			return nil
		}
		m[k] = v
	}
	return m
}

func (r *Reader) ReadStringList() []string {
	n := r.ReadShort()
	l := make([]string, 0, n)
	for i := uint16(0); i < n; i++ {
		l = append(l, r.ReadString())
		if r.err != nil {
			return nil
		}
	}
	return l
}

// Writer appends CQL body primitives to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

func (w *Writer) Bytes() []byte { return w.buf }

// WriteRaw appends pre-encoded bytes verbatim, e.g. an opaque row
// payload that already carries its own framing.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteShort(v uint16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

func (w *Writer) WriteInt(v int32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (w *Writer) WriteLong(v int64) {
	w.buf = append(w.buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (w *Writer) WriteString(s string) {
	w.WriteShort(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteLongString(s string) {
	w.WriteInt(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes writes a [bytes] value; nil encodes as length -1.
func (w *Writer) WriteBytes(b []byte) {
	if b == nil {
		w.WriteInt(-1)
		return
	}
	w.WriteInt(int32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteShortBytes(b []byte) {
	w.WriteShort(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteStringMap(m map[string]string) {
	w.WriteShort(uint16(len(m)))
	for k, v := range m {
		w.WriteString(k)
		w.WriteString(v)
	}
}

func (w *Writer) WriteStringMultiMap(m map[string][]string) {
	w.WriteShort(uint16(len(m)))
	for k, vs := range m {
		w.WriteString(k)
		w.WriteShort(uint16(len(vs)))
		for _, v := range vs {
			w.WriteString(v)
		}
	}
}
