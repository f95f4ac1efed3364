package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineCode/yugabyte-db/cqlwire"
	"github.com/lineCode/yugabyte-db/ql"
)

func queryFrameParts(t *testing.T, stream int16, query string) (cqlwire.Header, []byte) {
	t.Helper()
	w := cqlwire.NewWriter()
	w.WriteLongString(query)
	w.WriteShort(1) // consistency ONE
	w.WriteUint8(0)
	body := w.Bytes()
	hdr := cqlwire.Header{
		Version: cqlwire.ProtoVersion4,
		Stream:  stream,
		Op:      cqlwire.OpQuery,
		Length:  uint32(len(body)),
	}
	return hdr, body
}

func newTestCall(t *testing.T, deadline time.Time) *InboundCall {
	t.Helper()
	hdr, body := queryFrameParts(t, 1, "SELECT * FROM ks.t")
	return newInboundCall(hdr, body, time.Now(), deadline, ql.VariantV4)
}

func TestCallLifecycle(t *testing.T) {
	call := newTestCall(t, time.Now().Add(time.Minute))
	assert.Equal(t, CallReceived, call.State())

	req, err := call.Parse()
	require.NoError(t, err)
	q, ok := req.(*QueryRequest)
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM ks.t", q.Query)
	assert.Equal(t, CallParsing, call.State())

	require.True(t, call.beginExecution(time.Now()))
	assert.Equal(t, CallExecuting, call.State())

	res := &ql.SetKeyspaceResult{Keyspace: "ks"}
	require.True(t, call.complete(res, nil))
	assert.Equal(t, CallResponding, call.State())

	got, execErr, ok := call.takeResponse(time.Now())
	require.True(t, ok)
	require.NoError(t, execErr)
	assert.Equal(t, res, got)
	assert.Equal(t, CallDone, call.State())

	_, _, ok = call.takeResponse(time.Now())
	assert.False(t, ok, "response must be delivered exactly once")
}

func TestParseRejectsSecondAttempt(t *testing.T) {
	call := newTestCall(t, time.Now().Add(time.Minute))
	_, err := call.Parse()
	require.NoError(t, err)
	_, err = call.Parse()
	assert.Error(t, err)
}

func TestBeginExecutionPastDeadline(t *testing.T) {
	call := newTestCall(t, time.Now().Add(-time.Second))
	_, err := call.Parse()
	require.NoError(t, err)

	assert.False(t, call.beginExecution(time.Now()))
	assert.Equal(t, CallErrored, call.State())

	_, execErr, ok := call.takeResponse(time.Now())
	require.True(t, ok)
	ce, isCallErr := execErr.(*callError)
	require.True(t, isCallErr)
	assert.Equal(t, cqlwire.ErrCodeReadTimeout, ce.code)
}

func TestDeadlineOverridesLateResult(t *testing.T) {
	call := newTestCall(t, time.Now().Add(10*time.Millisecond))
	_, err := call.Parse()
	require.NoError(t, err)
	require.True(t, call.beginExecution(time.Now()))
	require.True(t, call.complete(&ql.SetKeyspaceResult{Keyspace: "ks"}, nil))

	res, execErr, ok := call.takeResponse(time.Now().Add(time.Second))
	require.True(t, ok)
	assert.Nil(t, res)
	ce, isCallErr := execErr.(*callError)
	require.True(t, isCallErr)
	assert.Equal(t, cqlwire.ErrCodeReadTimeout, ce.code)
	assert.Equal(t, CallErrored, call.State())
}

func TestTryResumeIdempotent(t *testing.T) {
	call := newTestCall(t, time.Now().Add(time.Minute))
	_, err := call.Parse()
	require.NoError(t, err)
	require.True(t, call.beginExecution(time.Now()))

	d := ql.NewDeferred()
	require.True(t, call.suspend(d))
	assert.Equal(t, CallSuspended, call.State())

	// not ready yet
	assert.False(t, call.TryResume())
	assert.Equal(t, CallSuspended, call.State())

	res := &ql.SetKeyspaceResult{Keyspace: "ks"}
	d.Complete(res, nil, nil)

	assert.True(t, call.TryResume())
	assert.Equal(t, CallResponding, call.State())

	// resuming an already-resumed call is a harmless no-op
	assert.True(t, call.TryResume())
	assert.True(t, call.TryResume())

	got, execErr, ok := call.takeResponse(time.Now())
	require.True(t, ok)
	require.NoError(t, execErr)
	assert.Equal(t, res, got)

	_, _, ok = call.takeResponse(time.Now())
	assert.False(t, ok)
}

func TestResumeChainsToNextContinuation(t *testing.T) {
	call := newTestCall(t, time.Now().Add(time.Minute))
	_, err := call.Parse()
	require.NoError(t, err)
	require.True(t, call.beginExecution(time.Now()))

	d1 := ql.NewDeferred()
	require.True(t, call.suspend(d1))

	d2 := ql.NewDeferred()
	d1.Complete(nil, d2, nil)

	assert.False(t, call.TryResume(), "chained continuation keeps the call suspended")
	assert.Equal(t, CallSuspended, call.State())
	assert.Equal(t, d2, call.continuation())

	d2.Complete(&ql.SetKeyspaceResult{Keyspace: "ks"}, nil, nil)
	assert.True(t, call.TryResume())
	assert.Equal(t, CallResponding, call.State())
}

func TestFailIsTerminal(t *testing.T) {
	call := newTestCall(t, time.Now().Add(time.Minute))
	_, err := call.Parse()
	require.NoError(t, err)
	require.True(t, call.beginExecution(time.Now()))

	require.True(t, call.fail(newCallError(cqlwire.ErrCodeServerError, "boom")))
	assert.Equal(t, CallErrored, call.State())

	assert.False(t, call.fail(newCallError(cqlwire.ErrCodeServerError, "again")))
	assert.False(t, call.complete(nil, nil))
	assert.False(t, call.suspend(ql.NewDeferred()))

	_, execErr, ok := call.takeResponse(time.Now())
	require.True(t, ok)
	assert.EqualError(t, execErr, newCallError(cqlwire.ErrCodeServerError, "boom").Error())
}

func TestPublishOnce(t *testing.T) {
	var p publishOnce

	_, ok := p.consume()
	assert.False(t, ok)

	req := &OptionsRequest{}
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for {
				if got, ok := p.consume(); ok {
					assert.Equal(t, req, got)
					return
				}
			}
		}()
	}
	close(start)
	p.publish(req)
	wg.Wait()

	assert.Panics(t, func() { p.publish(&OptionsRequest{}) })
}

func TestParseTruncatedBody(t *testing.T) {
	hdr, body := queryFrameParts(t, 1, "SELECT * FROM ks.t")
	call := newInboundCall(hdr, body[:3], time.Now(), time.Now().Add(time.Minute), ql.VariantV4)
	_, err := call.Parse()
	require.Error(t, err)
	ce, ok := err.(*callError)
	require.True(t, ok)
	assert.Equal(t, cqlwire.ErrCodeProtocolError, ce.code)
}
