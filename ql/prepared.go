package ql

import (
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// PreparedStatement is the engine's handle for a prepared DML
// statement, identified on the wire by ID ([short bytes]).
type PreparedStatement struct {
	ID       []byte
	Keyspace string
	Query    string

	TableName TableName
	BindVars  []ColumnSchema
	Columns   []ColumnSchema
}

// NewPreparedID allocates a fresh statement id.
func NewPreparedID() []byte {
	u := uuid.New()
	return u[:]
}

// PreparedCache is an LRU cache of prepared statements, indexed both
// by statement id (EXECUTE lookups) and by (keyspace, query) so that
// re-preparing an identical statement returns the cached handle.
type PreparedCache struct {
	byID    *lru.Cache[string, *PreparedStatement]
	byQuery *lru.Cache[string, *PreparedStatement]
}

func NewPreparedCache(size int) (*PreparedCache, error) {
	byID, err := lru.New[string, *PreparedStatement](size)
	if err != nil {
		return nil, errors.Wrap(err, "prepared cache by id")
	}
	byQuery, err := lru.New[string, *PreparedStatement](size)
	if err != nil {
		return nil, errors.Wrap(err, "prepared cache by query")
	}
	return &PreparedCache{byID: byID, byQuery: byQuery}, nil
}

func queryKey(keyspace, query string) string {
	return keyspace + "\x00" + query
}

func (c *PreparedCache) Put(ps *PreparedStatement) {
	c.byID.Add(string(ps.ID), ps)
	c.byQuery.Add(queryKey(ps.Keyspace, ps.Query), ps)
}

func (c *PreparedCache) GetByID(id []byte) (*PreparedStatement, bool) {
	return c.byID.Get(string(id))
}

func (c *PreparedCache) GetByQuery(keyspace, query string) (*PreparedStatement, bool) {
	return c.byQuery.Get(queryKey(keyspace, query))
}

func (c *PreparedCache) Len() int {
	return c.byID.Len()
}
