package ql

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ExecInput is everything the execution engine needs to run one
// statement. Exactly one of Query / PreparedID is set.
type ExecInput struct {
	Query      string
	PreparedID []byte

	// Values are the bound values in wire form; decoding them is the
	// engine's business.
	Values [][]byte

	// PageSize <= 0 means the client did not request paging.
	PageSize int32
	// PagingState is the continuation token of a previous page,
	// passed through verbatim. Its structure is owned by the engine.
	PagingState []byte

	// Keyspace is the session keyspace at the time the call began
	// execution.
	Keyspace string

	// Variant is the rows-encoding flavor of the requesting
	// connection. The engine must bind any continuation token it
	// issues to this variant; resuming under a different one is an
	// error.
	Variant Variant
}

// Executor is the execution collaborator: it runs a parsed statement
// against the storage/query engine. Execute returns exactly one of a
// result or a Deferred; returning a Deferred suspends the call until
// the Deferred completes. This is the only suspension point in the
// wire layer.
type Executor interface {
	Prepare(ctx context.Context, keyspace, query string) (*PreparedStatement, error)
	Execute(ctx context.Context, in ExecInput) (StatementResult, *Deferred, error)
}

// Deferred is a first-class continuation: the handle for an execution
// that could not complete on the calling goroutine. The engine
// completes it exactly once, either with a final outcome or with
// another Deferred if the work suspends again.
type Deferred struct {
	done chan struct{}

	mu   sync.Mutex
	res  StatementResult
	next *Deferred
	err  error
}

func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Done is closed once the Deferred has been completed.
func (d *Deferred) Done() <-chan struct{} { return d.done }

// Complete resolves the Deferred. Exactly one of res / next / err may
// be non-nil (all nil is a valid void completion). Completing twice is
// a programming error.
func (d *Deferred) Complete(res StatementResult, next *Deferred, err error) {
	set := 0
	if res != nil {
		set++
	}
	if next != nil {
		set++
	}
	if err != nil {
		set++
	}
	if set > 1 {
		panic(errors.Errorf("ql: Deferred completed with %d of result/next/err set", set))
	}
	d.mu.Lock()
	select {
	case <-d.done:
		d.mu.Unlock()
		panic("ql: Deferred completed twice")
	default:
	}
	d.res, d.next, d.err = res, next, err
	close(d.done)
	d.mu.Unlock()
}

// TryTake returns the completion outcome without blocking. ok is false
// while the Deferred is still pending.
func (d *Deferred) TryTake() (res StatementResult, next *Deferred, err error, ok bool) {
	select {
	case <-d.done:
	default:
		return nil, nil, nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.res, d.next, d.err, true
}
