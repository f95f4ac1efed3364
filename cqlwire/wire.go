// Package cqlwire implements the binary framing layer of the CQL native
// protocol (versions 3 and 4): frame headers, body primitives, and the
// body compression codecs negotiated at STARTUP.
package cqlwire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// HeaderLen is the fixed length of a v3/v4 frame header.
const HeaderLen = 9

const (
	ProtoVersion3 uint8 = 0x03
	ProtoVersion4 uint8 = 0x04

	protoVersionMask   uint8 = 0x7f
	protoDirectionMask uint8 = 0x80
)

// Frame flags (second header byte).
const (
	FlagCompressed uint8 = 0x01
	FlagTracing    uint8 = 0x02
)

type Opcode uint8

const (
	OpError        Opcode = 0x00
	OpStartup      Opcode = 0x01
	OpReady        Opcode = 0x02
	OpAuthenticate Opcode = 0x03
	OpOptions      Opcode = 0x05
	OpSupported    Opcode = 0x06
	OpQuery        Opcode = 0x07
	OpResult       Opcode = 0x08
	OpPrepare      Opcode = 0x09
	OpExecute      Opcode = 0x0a
	OpRegister     Opcode = 0x0b
	OpEvent        Opcode = 0x0c
)

func (o Opcode) String() string {
	switch o {
	case OpError:
		return "ERROR"
	case OpStartup:
		return "STARTUP"
	case OpReady:
		return "READY"
	case OpAuthenticate:
		return "AUTHENTICATE"
	case OpOptions:
		return "OPTIONS"
	case OpSupported:
		return "SUPPORTED"
	case OpQuery:
		return "QUERY"
	case OpResult:
		return "RESULT"
	case OpPrepare:
		return "PREPARE"
	case OpExecute:
		return "EXECUTE"
	case OpRegister:
		return "REGISTER"
	case OpEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// Error codes carried in ERROR response bodies.
type ErrorCode uint32

const (
	ErrCodeServerError   ErrorCode = 0x0000
	ErrCodeProtocolError ErrorCode = 0x000a
	ErrCodeOverloaded    ErrorCode = 0x1001
	ErrCodeReadTimeout   ErrorCode = 0x1200
	ErrCodeSyntaxError   ErrorCode = 0x2000
	ErrCodeInvalid       ErrorCode = 0x2200
	ErrCodeUnprepared    ErrorCode = 0x2500
)

// RESULT body kinds.
const (
	ResultKindVoid        int32 = 0x0001
	ResultKindRows        int32 = 0x0002
	ResultKindSetKeyspace int32 = 0x0003
	ResultKindPrepared    int32 = 0x0004
)

// Rows / prepared metadata flags.
const (
	RowsFlagGlobalTableSpec int32 = 0x0001
	RowsFlagHasMorePages    int32 = 0x0002
	RowsFlagNoMetadata      int32 = 0x0004
)

// Query parameter flags (QUERY and EXECUTE bodies).
const (
	QueryFlagValues          uint8 = 0x01
	QueryFlagSkipMetadata    uint8 = 0x02
	QueryFlagPageSize        uint8 = 0x04
	QueryFlagWithPagingState uint8 = 0x08
	QueryFlagSerialCons      uint8 = 0x10
	QueryFlagDefaultTS       uint8 = 0x20
)

var (
	ErrHeaderTooShort     = errors.New("frame header requires 9 bytes")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrDirection          = errors.New("frame direction bit does not match expectation")
)

// Header is the decoded form of the 9-byte frame header:
//
//	version(1) | flags(1) | stream(2, int16 BE) | opcode(1) | length(4, int32 BE)
type Header struct {
	Version  uint8 // protocol version without the direction bit
	Response bool
	Flags    uint8
	Stream   int16
	Op       Opcode
	Length   uint32
}

// ParseHeader decodes a request frame header. The version byte is
// validated immediately: a binary stream with an unparseable header
// cannot be resynchronized, so callers must treat an error as fatal to
// the connection.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, ErrHeaderTooShort
	}
	version := buf[0] & protoVersionMask
	if version < ProtoVersion3 || version > ProtoVersion4 {
		return Header{}, errors.Wrapf(ErrUnsupportedVersion, "version byte 0x%02x", buf[0])
	}
	return Header{
		Version:  version,
		Response: buf[0]&protoDirectionMask != 0,
		Flags:    buf[1],
		Stream:   int16(binary.BigEndian.Uint16(buf[2:4])),
		Op:       Opcode(buf[4]),
		Length:   binary.BigEndian.Uint32(buf[5:9]),
	}, nil
}

// StreamID reads the demultiplexing id from raw header bytes without
// decoding the rest of the header. The transport needs the id to
// correlate a call even if payload decoding fails later.
func StreamID(hdr []byte) int16 {
	return int16(binary.BigEndian.Uint16(hdr[2:4]))
}

// AppendTo appends the encoded 9-byte header.
func (h Header) AppendTo(buf []byte) []byte {
	version := h.Version
	if h.Response {
		version |= protoDirectionMask
	}
	var stream [2]byte
	binary.BigEndian.PutUint16(stream[:], uint16(h.Stream))
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], h.Length)
	buf = append(buf, version, h.Flags, stream[0], stream[1], byte(h.Op))
	return append(buf, length[:]...)
}
