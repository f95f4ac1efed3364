package server

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lineCode/yugabyte-db/cqlwire"
	"github.com/lineCode/yugabyte-db/ql"
)

// Connection-fatal error classes. Everything else is call-scoped and
// becomes an ERROR response on the offending stream only.
var (
	// ErrProtocol marks violations after which the byte stream cannot
	// be trusted: malformed headers, version changes mid-connection,
	// stream id reuse, frames before STARTUP.
	ErrProtocol = errors.New("protocol violation")

	// ErrResourceExhausted marks configured limit overruns that
	// protect the process from unbounded memory growth.
	ErrResourceExhausted = errors.New("resource limit exceeded")
)

// connectionFatal reports whether err is a deliberate teardown cause,
// as opposed to an I/O failure of the underlying socket.
func connectionFatal(err error) bool {
	switch errors.Cause(err) {
	case ErrProtocol, ErrResourceExhausted, cqlwire.ErrDirection:
		return true
	}
	return false
}

func fatalKind(err error) string {
	switch errors.Cause(err) {
	case ErrProtocol, cqlwire.ErrDirection:
		return "protocol"
	case ErrResourceExhausted:
		return "resource_exhausted"
	default:
		return "io"
	}
}

// callError is a call-scoped failure with a fixed wire code.
type callError struct {
	code cqlwire.ErrorCode
	msg  string
}

func (e *callError) Error() string {
	return fmt.Sprintf("0x%04x: %s", uint32(e.code), e.msg)
}

func newCallError(code cqlwire.ErrorCode, format string, args ...interface{}) *callError {
	return &callError{code: code, msg: fmt.Sprintf(format, args...)}
}

func errDeadlineExceeded() *callError {
	return newCallError(cqlwire.ErrCodeReadTimeout, "statement did not complete before its deadline")
}

// wireError maps an execution outcome onto the ERROR body. Engine
// error codes and messages pass through verbatim; corruption and other
// internal failures surface as server errors, distinct from
// client-caused codes.
func wireError(err error) (cqlwire.ErrorCode, string) {
	switch e := errors.Cause(err).(type) {
	case *callError:
		return e.code, e.msg
	case *ql.ExecError:
		return cqlwire.ErrorCode(e.Code), e.Message
	}
	return cqlwire.ErrCodeServerError, err.Error()
}

func isCorruption(err error) bool {
	return errors.Cause(err) == ql.ErrCorruption
}
