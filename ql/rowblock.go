package ql

import (
	"github.com/pkg/errors"

	"github.com/lineCode/yugabyte-db/cqlwire"
)

// ErrCorruption marks a row payload that fails to decode against its
// own recorded schema. It must never be swallowed: it indicates a bug
// or data damage on the server side, not a client mistake.
var ErrCorruption = errors.New("row payload does not decode against its schema")

// Row is one decoded row, one value per column schema (nil for null
// cells).
type Row []interface{}

// RowBlock is the in-process decoded form of a rows payload, used for
// local consumption such as diagnostics. The wire path never needs it;
// the payload travels opaquely.
type RowBlock struct {
	Columns []ColumnSchema
	Rows    []Row
}

// DecodeRowBlock is the exact inverse of EncodeRowBlock:
//
//	[int row_count] then row_count x len(columns) [bytes] cells
//
// Any short read, negative count, undecodable cell, or trailing bytes
// is reported as ErrCorruption.
func DecodeRowBlock(payload []byte, columns []ColumnSchema) (*RowBlock, error) {
	r := cqlwire.NewReader(payload)
	rowCount := r.ReadInt()
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(ErrCorruption, err.Error())
	}
	if rowCount < 0 {
		return nil, errors.Wrapf(ErrCorruption, "negative row count %d", rowCount)
	}
	rows := make([]Row, 0, rowCount)
	for i := int32(0); i < rowCount; i++ {
		row := make(Row, len(columns))
		for j, col := range columns {
			cell := r.ReadBytes()
			if err := r.Err(); err != nil {
				return nil, errors.Wrapf(ErrCorruption, "row %d column %q: %s", i, col.Name, err)
			}
			v, err := decodeCell(col.Type, cell)
			if err != nil {
				return nil, errors.Wrapf(ErrCorruption, "row %d column %q: %s", i, col.Name, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	if r.Remaining() != 0 {
		return nil, errors.Wrapf(ErrCorruption, "%d trailing bytes after %d rows", r.Remaining(), rowCount)
	}
	return &RowBlock{Columns: columns, Rows: rows}, nil
}

// EncodeRowBlock serializes rows into the opaque payload format the
// execution engine hands to the wire layer.
func EncodeRowBlock(columns []ColumnSchema, rows []Row) ([]byte, error) {
	w := cqlwire.NewWriter()
	w.WriteInt(int32(len(rows)))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.Errorf("row %d has %d cells, schema has %d columns", i, len(row), len(columns))
		}
		for j, col := range columns {
			cell, err := encodeCell(col.Type, row[j])
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %q", i, col.Name)
			}
			w.WriteBytes(cell)
		}
	}
	return w.Bytes(), nil
}
