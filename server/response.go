package server

import (
	"github.com/pkg/errors"

	"github.com/lineCode/yugabyte-db/cqlwire"
	"github.com/lineCode/yugabyte-db/ql"
)

// Bodies below this size are never worth compressing.
const compressMinSize = 64

// encodeResponse renders a call's outcome into a complete response
// frame, tagged with the call's stream id so the client can correlate
// it under pipelining regardless of completion order.
func encodeResponse(call *InboundCall, req ParsedRequest, res ql.StatementResult, execErr error, version uint8, codec cqlwire.Codec, supported map[string][]string) ([]byte, error) {
	var (
		op   cqlwire.Opcode
		body []byte
	)
	switch {
	case execErr != nil:
		op = cqlwire.OpError
		code, msg := wireError(execErr)
		w := cqlwire.NewWriter()
		w.WriteInt(int32(code))
		w.WriteString(msg)
		body = w.Bytes()
	default:
		switch req.(type) {
		case *StartupRequest, *RegisterRequest:
			op = cqlwire.OpReady
		case *OptionsRequest:
			op = cqlwire.OpSupported
			w := cqlwire.NewWriter()
			w.WriteStringMultiMap(supported)
			body = w.Bytes()
		default:
			op = cqlwire.OpResult
			var err error
			body, err = encodeResultBody(req, res, version)
			if err != nil {
				return nil, err
			}
		}
	}

	flags := uint8(0)
	if codec != nil && len(body) >= compressMinSize {
		compressed, err := codec.Encode(body)
		switch {
		case err == nil:
			flags |= cqlwire.FlagCompressed
			body = compressed
		case errors.Cause(err) == cqlwire.ErrIncompressible:
			// send uncompressed, the flag is per-frame
		default:
			return nil, errors.Wrap(err, "compress response body")
		}
	}

	hdr := cqlwire.Header{
		Version:  version,
		Response: true,
		Flags:    flags,
		Stream:   call.StreamID(),
		Op:       op,
		Length:   uint32(len(body)),
	}
	out := hdr.AppendTo(make([]byte, 0, cqlwire.HeaderLen+len(body)))
	return append(out, body...), nil
}

// encodeResultBody switches exhaustively over the closed result union.
// A nil result encodes as a void RESULT.
func encodeResultBody(req ParsedRequest, res ql.StatementResult, version uint8) ([]byte, error) {
	w := cqlwire.NewWriter()
	switch r := res.(type) {
	case nil:
		w.WriteInt(cqlwire.ResultKindVoid)
	case *ql.SetKeyspaceResult:
		w.WriteInt(cqlwire.ResultKindSetKeyspace)
		w.WriteString(r.Keyspace)
	case *ql.PreparedResult:
		w.WriteInt(cqlwire.ResultKindPrepared)
		w.WriteShortBytes(r.PreparedID)
		encodePreparedMetadata(w, r.BindVars, version)
		encodeRowsMetadata(w, r.Columns, nil, false)
	case *ql.RowsResult:
		w.WriteInt(cqlwire.ResultKindRows)
		encodeRowsMetadata(w, r.Columns(), r.PagingState(), skipMetadata(req))
		// the row payload travels opaquely; it already carries
		// row count and cells
		w.WriteRaw(r.RowsData())
	default:
		return nil, errors.Errorf("unhandled statement result variant %T", res)
	}
	return w.Bytes(), nil
}

func skipMetadata(req ParsedRequest) bool {
	switch r := req.(type) {
	case *QueryRequest:
		return r.Params.SkipMetadata
	case *ExecuteRequest:
		return r.Params.SkipMetadata
	default:
		return false
	}
}

func globalTableSpec(cols []ql.ColumnSchema) bool {
	if len(cols) == 0 {
		return false
	}
	for _, col := range cols[1:] {
		if col.Keyspace != cols[0].Keyspace || col.Table != cols[0].Table {
			return false
		}
	}
	return true
}

func encodeRowsMetadata(w *cqlwire.Writer, cols []ql.ColumnSchema, pagingState []byte, skipMeta bool) {
	global := globalTableSpec(cols)
	var flags int32
	if global {
		flags |= cqlwire.RowsFlagGlobalTableSpec
	}
	if len(pagingState) > 0 {
		flags |= cqlwire.RowsFlagHasMorePages
	}
	if skipMeta {
		flags |= cqlwire.RowsFlagNoMetadata
	}
	w.WriteInt(flags)
	w.WriteInt(int32(len(cols)))
	if len(pagingState) > 0 {
		w.WriteBytes(pagingState)
	}
	if skipMeta {
		return
	}
	writeColumnSpecs(w, cols, global)
}

// encodePreparedMetadata writes the bind-variable metadata. Protocol
// v4 additionally carries partition-key indices; this layer does not
// learn them from the engine, so it reports none.
func encodePreparedMetadata(w *cqlwire.Writer, bindVars []ql.ColumnSchema, version uint8) {
	global := globalTableSpec(bindVars)
	var flags int32
	if global {
		flags |= cqlwire.RowsFlagGlobalTableSpec
	}
	w.WriteInt(flags)
	w.WriteInt(int32(len(bindVars)))
	if version >= cqlwire.ProtoVersion4 {
		w.WriteInt(0)
	}
	writeColumnSpecs(w, bindVars, global)
}

func writeColumnSpecs(w *cqlwire.Writer, cols []ql.ColumnSchema, global bool) {
	if global && len(cols) > 0 {
		w.WriteString(cols[0].Keyspace)
		w.WriteString(cols[0].Table)
	}
	for _, col := range cols {
		if !global {
			w.WriteString(col.Keyspace)
			w.WriteString(col.Table)
		}
		w.WriteString(col.Name)
		w.WriteShort(uint16(col.Type))
	}
}
