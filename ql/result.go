package ql

import (
	"github.com/pkg/errors"
)

// Variant tags the rows-encoding flavor a result was produced for.
// It is fixed per connection at STARTUP and must not change between
// pages of the same logical query.
type Variant uint8

const (
	// VariantV3 is the protocol v3 metadata encoding.
	VariantV3 Variant = iota + 1
	// VariantV4 adds partition-key indices to prepared metadata.
	VariantV4
)

// StatementResult is the closed set of results a statement execution
// can produce. Exactly one concrete type is populated per execution;
// the serialization boundary switches exhaustively over the three
// variants.
type StatementResult interface {
	statementResult()
}

// PreparedResult describes the outcome of preparing a DML statement:
// the schemas of its bind variables and, for SELECT, of the selected
// columns. Immutable.
type PreparedResult struct {
	PreparedID []byte
	TableName  TableName
	BindVars   []ColumnSchema
	Columns    []ColumnSchema
}

func (*PreparedResult) statementResult() {}

// NewPreparedResult extracts the wire-facing schemas from a prepared
// statement. Pure.
func NewPreparedResult(ps *PreparedStatement) *PreparedResult {
	return &PreparedResult{
		PreparedID: ps.ID,
		TableName:  ps.TableName,
		BindVars:   ps.BindVars,
		Columns:    ps.Columns,
	}
}

// SetKeyspaceResult is the outcome of a "USE <keyspace>" statement.
type SetKeyspaceResult struct {
	Keyspace string
}

func (*SetKeyspaceResult) statementResult() {}

// RowsResult carries the rows returned by a DML statement: the opaque
// serialized row payload produced by the execution engine, plus the
// paging state that resumes the query when the result is only
// partially materialized. Immutable except for ClearPagingState.
type RowsResult struct {
	tableName   TableName
	columns     []ColumnSchema
	rowsData    []byte
	pagingState []byte
	variant     Variant
}

func (*RowsResult) statementResult() {}

func NewRowsResult(table TableName, columns []ColumnSchema, rowsData, pagingState []byte, variant Variant) *RowsResult {
	return &RowsResult{
		tableName:   table,
		columns:     columns,
		rowsData:    rowsData,
		pagingState: pagingState,
		variant:     variant,
	}
}

func (r *RowsResult) TableName() TableName    { return r.tableName }
func (r *RowsResult) Columns() []ColumnSchema { return r.columns }
func (r *RowsResult) RowsData() []byte        { return r.rowsData }
func (r *RowsResult) Variant() Variant        { return r.variant }

// PagingState returns the continuation token. Empty means the result
// set is fully materialized. A non-empty token is opaque to this
// layer: it is produced by the execution engine and must be passed
// back verbatim to fetch the next page.
func (r *RowsResult) PagingState() []byte { return r.pagingState }

// ClearPagingState suppresses further pagination for this result. The
// row payload is left untouched.
func (r *RowsResult) ClearPagingState() { r.pagingState = nil }

// RowBlock deserializes the row payload against the result's own
// column schemas. See DecodeRowBlock for the corruption contract.
func (r *RowsResult) RowBlock() (*RowBlock, error) {
	return DecodeRowBlock(r.rowsData, r.columns)
}

// ExecError carries an execution engine failure verbatim: the code and
// message are forwarded to the client unchanged.
type ExecError struct {
	Code    uint32
	Message string
}

func (e *ExecError) Error() string {
	return errors.Errorf("execution failed (code 0x%04x): %s", e.Code, e.Message).Error()
}
