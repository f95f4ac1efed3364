// Package server implements the client-facing CQL protocol layer: it
// accepts connections, demultiplexes pipelined request frames by
// stream id, drives each call through its state machine, and encodes
// statement results back onto the wire. Statement execution itself is
// delegated to a ql.Executor.
package server

import (
	"context"
	"net"

	"golang.org/x/sync/semaphore"

	"github.com/lineCode/yugabyte-db/logging"
	"github.com/lineCode/yugabyte-db/ql"
)

type Server struct {
	opts     Options
	exec     ql.Executor
	prepared *ql.PreparedCache
	workers  *semaphore.Weighted
}

// New builds a server around an execution engine. Options not set fall
// back to built-in defaults.
func New(opts Options, exec ql.Executor) (*Server, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	prepared, err := ql.NewPreparedCache(opts.PreparedCacheSize)
	if err != nil {
		return nil, err
	}
	return &Server{
		opts:     opts,
		exec:     exec,
		prepared: prepared,
		workers:  semaphore.NewWeighted(opts.MaxWorkers),
	}, nil
}

// Serve accepts connections until the listener fails or ctx is
// canceled. Each connection gets its own read-loop goroutine.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	log := logging.FromCtx(ctx)
	go func() {
		<-ctx.Done()
		log.Debug("context done, closing listener")
		if err := l.Close(); err != nil {
			log.WithError(err).Error("cannot close listener")
		}
	}()
	for {
		nc, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Error("accept error")
			return err
		}
		prom.ConnectionsAccepted.Inc()
		go s.ServeConn(ctx, nc)
	}
}

// ServeConn runs the protocol on one established connection and
// returns when it is torn down. Exposed separately so tests can drive
// an in-memory pipe through the full stack.
func (s *Server) ServeConn(ctx context.Context, nc net.Conn) {
	log := logging.FromCtx(ctx).WithField("peer", nc.RemoteAddr().String())
	log.Debug("connection accepted")
	c := newConnection(s, nc, log)
	c.run(ctx)
	log.Debug("connection closed")
}
