package ql

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testColumns = []ColumnSchema{
	{Keyspace: "ks", Table: "t", Name: "id", Type: TypeUUID},
	{Keyspace: "ks", Table: "t", Name: "name", Type: TypeVarchar},
	{Keyspace: "ks", Table: "t", Name: "age", Type: TypeInt},
	{Keyspace: "ks", Table: "t", Name: "active", Type: TypeBoolean},
	{Keyspace: "ks", Table: "t", Name: "score", Type: TypeDouble},
}

func testRows(t *testing.T) []Row {
	t.Helper()
	id1 := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")
	id2 := uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	return []Row{
		{id1, "alice", int32(30), true, 1.5},
		{id2, "bob", int32(-1), false, -0.25},
		{id1, nil, nil, nil, nil}, // null cells
	}
}

func TestRowBlockRoundTrip(t *testing.T) {
	rows := testRows(t)
	payload, err := EncodeRowBlock(testColumns, rows)
	require.NoError(t, err)

	block, err := DecodeRowBlock(payload, testColumns)
	require.NoError(t, err)
	assert.Equal(t, rows, block.Rows)
	assert.Equal(t, testColumns, block.Columns)
}

func TestRowBlockEmpty(t *testing.T) {
	payload, err := EncodeRowBlock(testColumns, nil)
	require.NoError(t, err)
	block, err := DecodeRowBlock(payload, testColumns)
	require.NoError(t, err)
	assert.Empty(t, block.Rows)
}

func TestRowBlockTruncatedIsCorruption(t *testing.T) {
	payload, err := EncodeRowBlock(testColumns, testRows(t))
	require.NoError(t, err)
	_, err = DecodeRowBlock(payload[:len(payload)-3], testColumns)
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestRowBlockTrailingBytesIsCorruption(t *testing.T) {
	payload, err := EncodeRowBlock(testColumns, testRows(t))
	require.NoError(t, err)
	_, err = DecodeRowBlock(append(payload, 0xff), testColumns)
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestRowBlockSchemaMismatchIsCorruption(t *testing.T) {
	// encode against varchar, decode the same cell as int: length
	// check must fail rather than yield a garbage value
	cols := []ColumnSchema{{Name: "v", Type: TypeVarchar}}
	payload, err := EncodeRowBlock(cols, []Row{{"abcde"}})
	require.NoError(t, err)

	_, err = DecodeRowBlock(payload, []ColumnSchema{{Name: "v", Type: TypeInt}})
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestRowBlockNegativeRowCount(t *testing.T) {
	_, err := DecodeRowBlock([]byte{0xff, 0xff, 0xff, 0xff}, testColumns)
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestEncodeRowBlockCellCountMismatch(t *testing.T) {
	_, err := EncodeRowBlock(testColumns, []Row{{int32(1)}})
	assert.Error(t, err)
}

func TestRowsResultClearPagingState(t *testing.T) {
	payload, err := EncodeRowBlock(testColumns, testRows(t))
	require.NoError(t, err)

	res := NewRowsResult(TableName{"ks", "t"}, testColumns, payload, []byte("token"), VariantV4)
	assert.Equal(t, []byte("token"), res.PagingState())

	res.ClearPagingState()
	assert.Empty(t, res.PagingState())
	// payload untouched
	block, err := res.RowBlock()
	require.NoError(t, err)
	assert.Len(t, block.Rows, 3)
}
