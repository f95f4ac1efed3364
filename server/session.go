package server

import (
	"sync"

	"github.com/lineCode/yugabyte-db/ql"
)

// Session is the per-connection SQL execution context: the active
// keyspace and the handle to the prepared-statement cache. It is owned
// by exactly one connection but shared by all pipelined calls on it,
// so access is synchronized. Only a call executing a keyspace change
// writes; everything else reads.
type Session struct {
	mu       sync.Mutex
	keyspace string
	prepared *ql.PreparedCache
	closed   bool
}

func NewSession(prepared *ql.PreparedCache) *Session {
	return &Session{prepared: prepared}
}

func (s *Session) Keyspace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyspace
}

// SetKeyspace makes ks the active keyspace. The write is visible to
// every call that begins execution afterwards.
func (s *Session) SetKeyspace(ks string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.keyspace = ks
}

func (s *Session) Prepared() *ql.PreparedCache {
	return s.prepared
}

// Close releases the session. Idempotent; the owning connection calls
// it exactly once on teardown, error paths included.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.keyspace = ""
}
