package server

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lineCode/yugabyte-db/cqlwire"
)

// Options are the per-server protocol limits and policies. The zero
// value is usable; unset fields fall back to the defaults below.
type Options struct {
	// MaxFrameBytes bounds a single frame body. A header announcing a
	// larger body kills the connection before any buffering happens.
	MaxFrameBytes uint32

	// MaxInflightPerConn bounds concurrently open calls on one
	// connection.
	MaxInflightPerConn int

	// MaxSuspendedPerConn bounds concurrently suspended calls on one
	// connection. Exceeding it fails the call with an Overloaded
	// error instead of stalling the read loop.
	MaxSuspendedPerConn int64

	// MaxWorkers bounds call-execution goroutines across all
	// connections.
	MaxWorkers int64

	// DefaultDeadline is the per-call execution deadline.
	DefaultDeadline time.Duration

	// Compression lists the codec names offered in SUPPORTED and
	// accepted at STARTUP. Empty means every built-in codec.
	Compression []string

	// PreparedCacheSize is the per-server prepared statement LRU
	// capacity.
	PreparedCacheSize int
}

const (
	defaultMaxFrameBytes       = 16 << 20
	defaultMaxInflightPerConn  = 1024
	defaultMaxSuspendedPerConn = 128
	defaultMaxWorkers          = 4096
	defaultDeadline            = 12 * time.Second
	defaultPreparedCacheSize   = 1024
)

func (o Options) withDefaults() Options {
	if o.MaxFrameBytes == 0 {
		o.MaxFrameBytes = defaultMaxFrameBytes
	}
	if o.MaxInflightPerConn == 0 {
		o.MaxInflightPerConn = defaultMaxInflightPerConn
	}
	if o.MaxSuspendedPerConn == 0 {
		o.MaxSuspendedPerConn = defaultMaxSuspendedPerConn
	}
	if o.MaxWorkers == 0 {
		o.MaxWorkers = defaultMaxWorkers
	}
	if o.DefaultDeadline == 0 {
		o.DefaultDeadline = defaultDeadline
	}
	if len(o.Compression) == 0 {
		o.Compression = cqlwire.CodecNames()
	}
	if o.PreparedCacheSize == 0 {
		o.PreparedCacheSize = defaultPreparedCacheSize
	}
	return o
}

func (o Options) validate() error {
	for _, name := range o.Compression {
		if _, ok := cqlwire.LookupCodec(name); !ok {
			return errors.Errorf("unknown compression codec %q", name)
		}
	}
	return nil
}

func (o Options) codecAllowed(name string) bool {
	for _, n := range o.Compression {
		if n == name {
			return true
		}
	}
	return false
}
