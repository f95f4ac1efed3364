package server

import (
	"github.com/lineCode/yugabyte-db/cqlwire"
)

// ParsedRequest is the typed form of a request frame body.
type ParsedRequest interface {
	requestOpcode() cqlwire.Opcode
}

type StartupRequest struct {
	Options map[string]string
}

type OptionsRequest struct{}

type QueryRequest struct {
	Query  string
	Params QueryParams
}

type PrepareRequest struct {
	Query string
}

type ExecuteRequest struct {
	PreparedID []byte
	Params     QueryParams
}

type RegisterRequest struct {
	Events []string
}

func (*StartupRequest) requestOpcode() cqlwire.Opcode  { return cqlwire.OpStartup }
func (*OptionsRequest) requestOpcode() cqlwire.Opcode  { return cqlwire.OpOptions }
func (*QueryRequest) requestOpcode() cqlwire.Opcode    { return cqlwire.OpQuery }
func (*PrepareRequest) requestOpcode() cqlwire.Opcode  { return cqlwire.OpPrepare }
func (*ExecuteRequest) requestOpcode() cqlwire.Opcode  { return cqlwire.OpExecute }
func (*RegisterRequest) requestOpcode() cqlwire.Opcode { return cqlwire.OpRegister }

// QueryParams are the common QUERY/EXECUTE parameters.
type QueryParams struct {
	Consistency  uint16
	Values       [][]byte
	SkipMetadata bool
	PageSize     int32
	PagingState  []byte
}

func parseQueryParams(r *cqlwire.Reader) QueryParams {
	var p QueryParams
	p.Consistency = r.ReadShort()
	flags := r.ReadUint8()
	if flags&cqlwire.QueryFlagValues != 0 {
		n := r.ReadShort()
		p.Values = make([][]byte, 0, n)
		for i := uint16(0); i < n; i++ {
			p.Values = append(p.Values, r.ReadBytes())
		}
	}
	p.SkipMetadata = flags&cqlwire.QueryFlagSkipMetadata != 0
	if flags&cqlwire.QueryFlagPageSize != 0 {
		p.PageSize = r.ReadInt()
	}
	if flags&cqlwire.QueryFlagWithPagingState != 0 {
		p.PagingState = r.ReadBytes()
	}
	if flags&cqlwire.QueryFlagSerialCons != 0 {
		r.ReadShort() // serial consistency, not used by this layer
	}
	if flags&cqlwire.QueryFlagDefaultTS != 0 {
		r.ReadLong() // default timestamp, forwarded nowhere yet
	}
	return p
}

// parseRequest decodes a frame body into its typed request. Decode
// failures are call-scoped: the client gets an ERROR response, the
// connection survives.
func parseRequest(h cqlwire.Header, body []byte) (ParsedRequest, error) {
	r := cqlwire.NewReader(body)
	var req ParsedRequest
	switch h.Op {
	case cqlwire.OpStartup:
		req = &StartupRequest{Options: r.ReadStringMap()}
	case cqlwire.OpOptions:
		req = &OptionsRequest{}
	case cqlwire.OpQuery:
		query := r.ReadLongString()
		req = &QueryRequest{Query: query, Params: parseQueryParams(r)}
	case cqlwire.OpPrepare:
		req = &PrepareRequest{Query: r.ReadLongString()}
	case cqlwire.OpExecute:
		id := r.ReadShortBytes()
		req = &ExecuteRequest{PreparedID: id, Params: parseQueryParams(r)}
	case cqlwire.OpRegister:
		req = &RegisterRequest{Events: r.ReadStringList()}
	default:
		return nil, newCallError(cqlwire.ErrCodeProtocolError, "unexpected request opcode 0x%02x", uint8(h.Op))
	}
	if err := r.Err(); err != nil {
		return nil, newCallError(cqlwire.ErrCodeProtocolError, "cannot decode %s body: %s", h.Op, err)
	}
	return req, nil
}
