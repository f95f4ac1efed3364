package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/lineCode/yugabyte-db/cqlwire"
	"github.com/lineCode/yugabyte-db/ql"
)

// CallState is the lifecycle position of an inbound call.
//
//	Received → Parsing → Executing → {Suspended ⇄ Executing} → Responding → Done
//
// Errored absorbs from every non-terminal state.
type CallState int32

const (
	CallReceived CallState = iota
	CallParsing
	CallExecuting
	CallSuspended
	CallResponding
	CallDone
	CallErrored
)

func (s CallState) String() string {
	switch s {
	case CallReceived:
		return "received"
	case CallParsing:
		return "parsing"
	case CallExecuting:
		return "executing"
	case CallSuspended:
		return "suspended"
	case CallResponding:
		return "responding"
	case CallDone:
		return "done"
	case CallErrored:
		return "errored"
	default:
		return "invalid"
	}
}

// requestCell wraps the request interface so atomic.Value always
// stores one concrete type.
type requestCell struct {
	req ParsedRequest
}

// publishOnce is the cross-goroutine handoff for the parsed request:
// the parsing goroutine publishes exactly once, after which the value
// is immutable and any completion goroutine may consume it. This
// replaces ad hoc sharing of the request pointer; see the race test.
type publishOnce struct {
	v atomic.Value
}

func (p *publishOnce) publish(req ParsedRequest) {
	if !p.v.CompareAndSwap(nil, requestCell{req: req}) {
		panic("inbound call: request published twice")
	}
}

func (p *publishOnce) consume() (ParsedRequest, bool) {
	cell, ok := p.v.Load().(requestCell)
	if !ok {
		return nil, false
	}
	return cell.req, true
}

// InboundCall is one request/response cycle: it owns the raw request
// payload, the produced result or error, and the continuation while
// suspended. It references its connection's session during execution
// but never outlives the connection.
type InboundCall struct {
	hdr      cqlwire.Header
	body     []byte
	received time.Time
	deadline time.Time
	variant  ql.Variant

	request publishOnce

	mu        sync.Mutex
	state     CallState
	cont      *ql.Deferred
	result    ql.StatementResult
	execErr   error
	responded bool
}

func newInboundCall(hdr cqlwire.Header, body []byte, now, deadline time.Time, variant ql.Variant) *InboundCall {
	return &InboundCall{hdr: hdr, body: body, received: now, deadline: deadline, variant: variant, state: CallReceived}
}

// StreamID is the demultiplexing id the response must carry.
func (c *InboundCall) StreamID() int16 { return c.hdr.Stream }

func (c *InboundCall) Deadline() time.Time { return c.deadline }

func (c *InboundCall) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Request returns the published parsed request, if parsing succeeded.
// Safe from any goroutine.
func (c *InboundCall) Request() (ParsedRequest, bool) {
	return c.request.consume()
}

// Parse decodes the frame body and publishes the typed request.
func (c *InboundCall) Parse() (ParsedRequest, error) {
	c.mu.Lock()
	if c.state != CallReceived {
		state := c.state
		c.mu.Unlock()
		return nil, errors.Errorf("cannot parse call in state %s", state)
	}
	c.state = CallParsing
	c.mu.Unlock()

	req, err := parseRequest(c.hdr, c.body)
	if err != nil {
		return nil, err
	}
	c.request.publish(req)
	return req, nil
}

// beginExecution moves the call into Executing after the first
// deadline check. Returns false if the deadline already passed (the
// timeout error is recorded) or the call was aborted meanwhile.
func (c *InboundCall) beginExecution(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CallParsing {
		return false
	}
	if now.After(c.deadline) {
		c.state = CallErrored
		c.execErr = errDeadlineExceeded()
		return false
	}
	c.state = CallExecuting
	return true
}

// suspend parks the call on the continuation. At most one continuation
// is outstanding at a time. Returns false if the call was aborted
// concurrently, in which case the continuation is dropped.
func (c *InboundCall) suspend(d *ql.Deferred) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CallExecuting {
		return false
	}
	if c.cont != nil {
		panic("inbound call: second continuation while one is outstanding")
	}
	c.cont = d
	c.state = CallSuspended
	return true
}

// continuation returns the currently outstanding continuation, nil if
// none.
func (c *InboundCall) continuation() *ql.Deferred {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cont
}

// TryResume re-enters a suspended call from its continuation. It may
// be invoked from any goroutine, any number of times: resuming a call
// that already completed is a no-op reporting true, and a continuation
// that is not ready yet reports false without state change. When the
// continuation chains into another suspension the call stays
// Suspended.
func (c *InboundCall) TryResume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case CallDone, CallErrored, CallResponding:
		return true
	case CallSuspended:
	default:
		return false
	}
	res, next, err, ok := c.cont.TryTake()
	if !ok {
		return false
	}
	c.cont = nil
	if next != nil {
		c.cont = next
		return false
	}
	c.result, c.execErr = res, err
	c.state = CallResponding
	return true
}

// complete records a synchronous execution outcome. Returns false if
// the call is no longer Executing (aborted or timed out meanwhile).
func (c *InboundCall) complete(res ql.StatementResult, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CallExecuting {
		return false
	}
	c.result, c.execErr = res, err
	c.state = CallResponding
	return true
}

// fail moves the call into Errored from any non-terminal state,
// recording err as the outcome. Returns false if the call already
// reached a terminal state.
func (c *InboundCall) fail(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case CallDone, CallErrored:
		return false
	}
	c.execErr = err
	c.result = nil
	c.cont = nil
	c.state = CallErrored
	return true
}

// takeResponse claims the right to deliver the response, enforcing
// exactly-once delivery and the final deadline check. ok is false if
// the response was already taken or the call holds no outcome yet.
func (c *InboundCall) takeResponse(now time.Time) (res ql.StatementResult, execErr error, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.responded {
		return nil, nil, false
	}
	switch c.state {
	case CallResponding:
		if now.After(c.deadline) {
			c.result = nil
			c.execErr = errDeadlineExceeded()
			c.state = CallErrored
		} else {
			c.state = CallDone
		}
	case CallErrored:
	default:
		return nil, nil, false
	}
	c.responded = true
	return c.result, c.execErr, true
}
