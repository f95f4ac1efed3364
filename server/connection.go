package server

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/lineCode/yugabyte-db/cqlwire"
	"github.com/lineCode/yugabyte-db/logging"
	"github.com/lineCode/yugabyte-db/ql"
)

// frame is one demultiplexed unit: the raw header bytes (for id
// extraction independent of body decoding) plus the decoded header
// and the body.
type frame struct {
	hdr  cqlwire.Header
	raw  []byte
	body []byte
}

// Connection owns the per-TCP-connection protocol state: the buffered
// byte stream, the negotiated compression scheme, the session, and the
// set of in-flight calls keyed by stream id. One read-loop goroutine
// per connection; call execution happens on pooled worker goroutines.
type Connection struct {
	srv *Server
	nc  net.Conn
	log *logging.Logger

	session   *Session
	suspended *semaphore.Weighted

	// Read-loop state. version is written once, when the first header
	// is parsed; codec and started are written only while STARTUP is
	// handled synchronously on the read loop, before any subsequent
	// frame spawns a worker, so later call goroutines may read them
	// without further synchronization.
	buf     []byte
	version uint8
	codec   cqlwire.Codec
	started bool

	mu       sync.Mutex
	inflight map[int16]*InboundCall
	closed   bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func newConnection(srv *Server, nc net.Conn, log *logging.Logger) *Connection {
	return &Connection{
		srv:       srv,
		nc:        nc,
		log:       log,
		session:   NewSession(srv.prepared),
		suspended: semaphore.NewWeighted(srv.opts.MaxSuspendedPerConn),
		inflight:  make(map[int16]*InboundCall),
	}
}

func (c *Connection) variant() ql.Variant {
	if c.version >= cqlwire.ProtoVersion4 {
		return ql.VariantV4
	}
	return ql.VariantV3
}

func (c *Connection) run(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	defer c.teardown()

	// daemon shutdown must unblock the pending Read
	go func() {
		<-c.ctx.Done()
		c.nc.Close()
	}()

	prom.ConnectionsActive.Inc()
	defer prom.ConnectionsActive.Dec()

	buf := make([]byte, 16<<10)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			prom.BytesRead.Add(float64(n))
			frames, cerr := c.consume(buf[:n])
			for _, f := range frames {
				if derr := c.dispatch(f); derr != nil {
					c.fatal(derr)
					return
				}
			}
			if cerr != nil {
				c.fatal(cerr)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				c.fatal(err)
			}
			return
		}
	}
}

// consume splits newly arrived bytes into complete frames, buffering a
// partial trailing frame for the next call. The buffered-but-
// incomplete size is bounded: a header announcing a body larger than
// the configured ceiling fails before any of the body is retained.
func (c *Connection) consume(data []byte) ([]frame, error) {
	c.buf = append(c.buf, data...)

	var frames []frame
	for {
		if len(c.buf) < cqlwire.HeaderLen {
			return frames, nil
		}
		hdr, err := cqlwire.ParseHeader(c.buf)
		if err != nil {
			// a stream with an unparseable header cannot be
			// resynchronized
			return frames, errors.Wrapf(ErrProtocol, "malformed frame header: %s", err)
		}
		if hdr.Response {
			return frames, errors.Wrap(cqlwire.ErrDirection, "client sent a response frame")
		}
		if c.version == 0 {
			c.version = hdr.Version
		} else if hdr.Version != c.version {
			return frames, errors.Wrapf(ErrProtocol, "protocol version changed from %d to %d mid-connection", c.version, hdr.Version)
		}
		if hdr.Length > c.srv.opts.MaxFrameBytes {
			return frames, errors.Wrapf(ErrResourceExhausted, "frame body of %d bytes exceeds limit %d", hdr.Length, c.srv.opts.MaxFrameBytes)
		}
		total := cqlwire.HeaderLen + int(hdr.Length)
		if len(c.buf) < total {
			return frames, nil
		}
		raw := make([]byte, cqlwire.HeaderLen)
		copy(raw, c.buf[:cqlwire.HeaderLen])
		body := make([]byte, hdr.Length)
		copy(body, c.buf[cqlwire.HeaderLen:total])
		frames = append(frames, frame{hdr: hdr, raw: raw, body: body})
		c.buf = c.buf[total:]
		prom.FramesRead.Inc()
	}
}

// dispatch attaches a call to the frame and routes it. STARTUP and
// OPTIONS are handled synchronously on the read loop (they fix
// connection-level state); everything else runs on a worker. The
// returned error, if any, is connection-fatal.
func (c *Connection) dispatch(f frame) error {
	// the id is read straight from the header bytes so the call can
	// be correlated even if body decoding fails below
	id := cqlwire.StreamID(f.raw)

	now := time.Now()
	call := newInboundCall(f.hdr, f.body, now, now.Add(c.srv.opts.DefaultDeadline), c.variant())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if _, dup := c.inflight[id]; dup {
		c.mu.Unlock()
		return errors.Wrapf(ErrProtocol, "stream id %d reused while still in flight", id)
	}
	if len(c.inflight) >= c.srv.opts.MaxInflightPerConn {
		c.mu.Unlock()
		return errors.Wrapf(ErrResourceExhausted, "%d calls in flight on one connection", len(c.inflight))
	}
	c.inflight[id] = call
	prom.CallsInflight.Inc()
	c.mu.Unlock()

	if f.hdr.Flags&cqlwire.FlagCompressed != 0 {
		if c.codec == nil {
			return errors.Wrap(ErrProtocol, "compressed frame but no codec negotiated")
		}
		body, err := c.codec.Decode(call.body)
		if err != nil {
			// body-scoped: the frame boundary itself was sound
			c.failCall(call, newCallError(cqlwire.ErrCodeProtocolError, "cannot decompress body: %s", err))
			return nil
		}
		call.body = body
	}

	switch f.hdr.Op {
	case cqlwire.OpStartup, cqlwire.OpOptions:
		return c.handleControl(call)
	default:
		if !c.started {
			return errors.Wrapf(ErrProtocol, "%s before STARTUP", f.hdr.Op)
		}
		if err := c.srv.workers.Acquire(c.ctx, 1); err != nil {
			return nil // connection shutting down
		}
		go func() {
			defer c.srv.workers.Release(1)
			c.handleCall(call)
		}()
		return nil
	}
}

// handleControl processes connection negotiation. A failed STARTUP
// responds with a ProtocolError and then kills the connection: no
// further frames are processed.
func (c *Connection) handleControl(call *InboundCall) error {
	req, err := call.Parse()
	if err != nil {
		c.failCall(call, err)
		return nil
	}
	if !call.beginExecution(time.Now()) {
		c.finishCall(call)
		return nil
	}
	switch r := req.(type) {
	case *StartupRequest:
		if c.started {
			return errors.Wrap(ErrProtocol, "duplicate STARTUP")
		}
		codec, err := c.negotiate(r.Options)
		if err != nil {
			c.failCall(call, newCallError(cqlwire.ErrCodeProtocolError, "%s", err))
			return errors.Wrap(ErrProtocol, err.Error())
		}
		c.codec = codec
		c.started = true
		if codec != nil {
			c.log.WithField("codec", codec.Name()).Debug("negotiated compression")
		}
	case *OptionsRequest:
		// SUPPORTED is built in encodeResponse
	}
	call.complete(nil, nil)
	c.finishCall(call)
	return nil
}

// negotiate fixes the compression scheme for the lifetime of the
// connection from the STARTUP options.
func (c *Connection) negotiate(options map[string]string) (cqlwire.Codec, error) {
	name, ok := options["COMPRESSION"]
	if !ok || name == "" {
		return nil, nil
	}
	codec, known := cqlwire.LookupCodec(name)
	if !known || !c.srv.opts.codecAllowed(name) {
		return nil, errors.Errorf("unsupported compression codec %q", name)
	}
	return codec, nil
}

// handleCall drives one non-control call through parse and execution.
func (c *Connection) handleCall(call *InboundCall) {
	req, err := call.Parse()
	if err != nil {
		c.failCall(call, err)
		return
	}
	if !call.beginExecution(time.Now()) {
		c.finishCall(call)
		return
	}

	switch r := req.(type) {
	case *RegisterRequest:
		// event subscription is demultiplexed like any other call;
		// the subscription registry lives with the event push path,
		// not here
		call.complete(nil, nil)
		c.finishCall(call)
	case *PrepareRequest:
		c.handlePrepare(call, r)
	case *QueryRequest:
		c.execute(call, ql.ExecInput{
			Query:       r.Query,
			Values:      r.Params.Values,
			PageSize:    r.Params.PageSize,
			PagingState: r.Params.PagingState,
			Keyspace:    c.session.Keyspace(),
			Variant:     call.variant,
		})
	case *ExecuteRequest:
		if _, ok := c.session.Prepared().GetByID(r.PreparedID); !ok {
			c.failCall(call, newCallError(cqlwire.ErrCodeUnprepared, "unknown prepared statement id"))
			return
		}
		c.execute(call, ql.ExecInput{
			PreparedID:  r.PreparedID,
			Values:      r.Params.Values,
			PageSize:    r.Params.PageSize,
			PagingState: r.Params.PagingState,
			Keyspace:    c.session.Keyspace(),
			Variant:     call.variant,
		})
	default:
		c.failCall(call, newCallError(cqlwire.ErrCodeProtocolError, "unexpected opcode on worker path"))
	}
}

func (c *Connection) handlePrepare(call *InboundCall, req *PrepareRequest) {
	keyspace := c.session.Keyspace()
	if ps, ok := c.session.Prepared().GetByQuery(keyspace, req.Query); ok {
		c.completeExecution(call, ql.NewPreparedResult(ps), nil)
		return
	}
	ps, err := c.srv.exec.Prepare(c.ctx, keyspace, req.Query)
	if err != nil {
		c.completeExecution(call, nil, err)
		return
	}
	c.session.Prepared().Put(ps)
	c.completeExecution(call, ql.NewPreparedResult(ps), nil)
}

// execute hands the request to the execution collaborator. This is the
// sole cooperative-suspension point: a returned Deferred parks the
// call without holding a thread.
func (c *Connection) execute(call *InboundCall, in ql.ExecInput) {
	res, deferred, err := c.srv.exec.Execute(c.ctx, in)
	if deferred != nil {
		if !c.suspended.TryAcquire(1) {
			c.failCall(call, newCallError(cqlwire.ErrCodeOverloaded, "too many suspended calls on this connection"))
			return
		}
		if !call.suspend(deferred) {
			// aborted while the executor was running
			c.suspended.Release(1)
			return
		}
		prom.CallsSuspended.Inc()
		go c.awaitResume(call)
		return
	}
	c.completeExecution(call, res, err)
}

// awaitResume watches a suspended call's continuation, its deadline,
// and connection teardown, re-entering the call via TryResume.
func (c *Connection) awaitResume(call *InboundCall) {
	defer func() {
		c.suspended.Release(1)
		prom.CallsSuspended.Dec()
	}()
	for {
		d := call.continuation()
		if d == nil {
			if call.TryResume() {
				c.finishCall(call)
			}
			return
		}
		timer := time.NewTimer(time.Until(call.Deadline()))
		select {
		case <-d.Done():
			timer.Stop()
			if call.TryResume() {
				c.finishCall(call)
				return
			}
			// continuation chained into another suspension
		case <-timer.C:
			// expiry short-circuits the pending suspension
			if call.fail(errDeadlineExceeded()) {
				c.finishCall(call)
			}
			return
		case <-c.ctx.Done():
			timer.Stop()
			// abandoned calls are destroyed without responding
			call.fail(errors.New("connection closed"))
			return
		}
	}
}

func (c *Connection) completeExecution(call *InboundCall, res ql.StatementResult, err error) {
	call.complete(res, err)
	c.finishCall(call)
}

// failCall records a call-scoped failure and responds with an ERROR
// frame; sibling calls are unaffected.
func (c *Connection) failCall(call *InboundCall, err error) {
	if call.fail(err) {
		c.finishCall(call)
	}
}

// finishCall serializes the call's outcome and writes the response
// frame. Delivery is exactly-once: a concurrent timeout or teardown
// that already claimed the response turns this into a no-op.
func (c *Connection) finishCall(call *InboundCall) {
	res, execErr, ok := call.takeResponse(time.Now())
	if !ok {
		return
	}
	defer c.unregister(call)

	// result side effects and contract checks apply identically to
	// synchronous and resumed completions
	if execErr == nil {
		switch r := res.(type) {
		case *ql.SetKeyspaceResult:
			c.session.SetKeyspace(r.Keyspace)
		case *ql.RowsResult:
			if r.Variant() != call.variant {
				res = nil
				execErr = errors.Errorf("engine produced rows for encoding variant %d, call requires %d", r.Variant(), call.variant)
			}
		}
	}

	if execErr != nil && isCorruption(execErr) {
		c.log.WithField("stream", call.StreamID()).WithError(execErr).Error("row payload corruption")
	}

	req, _ := call.Request() // nil if parsing failed
	out, err := encodeResponse(call, req, res, execErr, c.version, c.codec, c.supportedOptions())
	if err != nil {
		c.log.WithError(err).Error("cannot serialize response")
		code, msg := wireError(newCallError(cqlwire.ErrCodeServerError, "response serialization failed"))
		w := cqlwire.NewWriter()
		w.WriteInt(int32(code))
		w.WriteString(msg)
		hdr := cqlwire.Header{Version: c.version, Response: true, Stream: call.StreamID(), Op: cqlwire.OpError, Length: uint32(len(w.Bytes()))}
		out = append(hdr.AppendTo(nil), w.Bytes()...)
	}

	c.writeMu.Lock()
	_, werr := c.nc.Write(out)
	c.writeMu.Unlock()
	if werr != nil {
		c.log.WithError(werr).Debug("write error")
		c.cancel()
		return
	}
	prom.FramesWritten.Inc()
	prom.BytesWritten.Add(float64(len(out)))
	prom.CallSeconds.WithLabelValues(call.hdr.Op.String()).Observe(time.Since(call.received).Seconds())
}

func (c *Connection) supportedOptions() map[string][]string {
	return map[string][]string{
		"CQL_VERSION": {"3.0.0"},
		"COMPRESSION": c.srv.opts.Compression,
	}
}

func (c *Connection) unregister(call *InboundCall) {
	c.mu.Lock()
	if _, ok := c.inflight[call.StreamID()]; ok {
		delete(c.inflight, call.StreamID())
		prom.CallsInflight.Dec()
	}
	c.mu.Unlock()
}

// fatal records the reason a connection dies. Responses of
// already-completed sibling calls have been written at this point;
// the offending and all still-outstanding calls die with the
// connection. Deliberate teardown causes are loud; I/O failures of
// the socket itself (peer went away, daemon shutdown) are routine.
func (c *Connection) fatal(err error) {
	prom.ConnFatalErrors.WithLabelValues(fatalKind(err)).Inc()
	if connectionFatal(err) {
		c.log.WithError(err).Error("closing connection")
	} else {
		c.log.WithError(err).Debug("connection read failed")
	}
}

// teardown releases the connection exactly once: cancels outstanding
// calls, closes the session, closes the socket.
func (c *Connection) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	outstanding := make([]*InboundCall, 0, len(c.inflight))
	for _, call := range c.inflight {
		outstanding = append(outstanding, call)
	}
	c.inflight = make(map[int16]*InboundCall)
	prom.CallsInflight.Sub(float64(len(outstanding)))
	c.mu.Unlock()

	c.cancel()
	for _, call := range outstanding {
		call.fail(errors.New("connection torn down"))
	}
	c.session.Close()
	if err := c.nc.Close(); err != nil {
		c.log.WithError(err).Debug("close error")
	}
}
