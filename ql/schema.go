// Package ql holds the model shared between the wire front-end and the
// statement execution engine: column schemas, the closed set of
// statement results, row blocks, prepared statements, and the executor
// contract including its suspension handle.
package ql

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TypeID is the wire id of a native CQL type (the [option] id in
// result metadata).
type TypeID uint16

const (
	TypeCustom    TypeID = 0x0000
	TypeAscii     TypeID = 0x0001
	TypeBigInt    TypeID = 0x0002
	TypeBlob      TypeID = 0x0003
	TypeBoolean   TypeID = 0x0004
	TypeCounter   TypeID = 0x0005
	TypeDouble    TypeID = 0x0007
	TypeFloat     TypeID = 0x0008
	TypeInt       TypeID = 0x0009
	TypeTimestamp TypeID = 0x000b
	TypeUUID      TypeID = 0x000c
	TypeVarchar   TypeID = 0x000d
	TypeTimeUUID  TypeID = 0x000f
	TypeInet      TypeID = 0x0010
)

func (t TypeID) String() string {
	switch t {
	case TypeAscii:
		return "ascii"
	case TypeBigInt:
		return "bigint"
	case TypeBlob:
		return "blob"
	case TypeBoolean:
		return "boolean"
	case TypeCounter:
		return "counter"
	case TypeDouble:
		return "double"
	case TypeFloat:
		return "float"
	case TypeInt:
		return "int"
	case TypeTimestamp:
		return "timestamp"
	case TypeUUID:
		return "uuid"
	case TypeVarchar:
		return "varchar"
	case TypeTimeUUID:
		return "timeuuid"
	case TypeInet:
		return "inet"
	default:
		return fmt.Sprintf("type<0x%04x>", uint16(t))
	}
}

// TableName identifies a table within a keyspace.
type TableName struct {
	Keyspace string
	Table    string
}

func (n TableName) String() string {
	return n.Keyspace + "." + n.Table
}

// ColumnSchema describes one bind variable or output column.
type ColumnSchema struct {
	Keyspace string
	Table    string
	Name     string
	Type     TypeID
}

// decodeCell decodes one serialized cell against its column type.
// A nil cell decodes to nil regardless of type.
func decodeCell(t TypeID, data []byte) (interface{}, error) {
	if data == nil {
		return nil, nil
	}
	switch t {
	case TypeAscii, TypeVarchar:
		return string(data), nil
	case TypeInt:
		if len(data) != 4 {
			return nil, errors.Errorf("int cell has %d bytes", len(data))
		}
		return int32(binary.BigEndian.Uint32(data)), nil
	case TypeBigInt, TypeCounter, TypeTimestamp:
		if len(data) != 8 {
			return nil, errors.Errorf("%s cell has %d bytes", t, len(data))
		}
		return int64(binary.BigEndian.Uint64(data)), nil
	case TypeBoolean:
		if len(data) != 1 {
			return nil, errors.Errorf("boolean cell has %d bytes", len(data))
		}
		return data[0] != 0, nil
	case TypeFloat:
		if len(data) != 4 {
			return nil, errors.Errorf("float cell has %d bytes", len(data))
		}
		return math.Float32frombits(binary.BigEndian.Uint32(data)), nil
	case TypeDouble:
		if len(data) != 8 {
			return nil, errors.Errorf("double cell has %d bytes", len(data))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
	case TypeUUID, TypeTimeUUID:
		u, err := uuid.FromBytes(data)
		if err != nil {
			return nil, errors.Wrap(err, "uuid cell")
		}
		return u, nil
	default:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
}

// encodeCell is the inverse of decodeCell.
func encodeCell(t TypeID, v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeAscii, TypeVarchar:
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("%s cell requires string, got %T", t, v)
		}
		return []byte(s), nil
	case TypeInt:
		i, ok := v.(int32)
		if !ok {
			return nil, errors.Errorf("int cell requires int32, got %T", v)
		}
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(i))
		return b[:], nil
	case TypeBigInt, TypeCounter, TypeTimestamp:
		i, ok := v.(int64)
		if !ok {
			return nil, errors.Errorf("%s cell requires int64, got %T", t, v)
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(i))
		return b[:], nil
	case TypeBoolean:
		bv, ok := v.(bool)
		if !ok {
			return nil, errors.Errorf("boolean cell requires bool, got %T", v)
		}
		if bv {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TypeFloat:
		f, ok := v.(float32)
		if !ok {
			return nil, errors.Errorf("float cell requires float32, got %T", v)
		}
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(f))
		return b[:], nil
	case TypeDouble:
		f, ok := v.(float64)
		if !ok {
			return nil, errors.Errorf("double cell requires float64, got %T", v)
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
		return b[:], nil
	case TypeUUID, TypeTimeUUID:
		u, ok := v.(uuid.UUID)
		if !ok {
			return nil, errors.Errorf("uuid cell requires uuid.UUID, got %T", v)
		}
		return u[:], nil
	default:
		b, ok := v.([]byte)
		if !ok {
			return nil, errors.Errorf("%s cell requires []byte, got %T", t, v)
		}
		return b, nil
	}
}
