// Package qltest provides an in-memory ql.Executor with deterministic
// pagination and controllable suspension. It stands in for the
// distributed execution engine in wire-layer tests.
package qltest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/lineCode/yugabyte-db/ql"
)

// Executor understands a toy statement dialect sufficient for the wire
// layer: "USE <keyspace>" and "SELECT * FROM [<keyspace>.]<table>".
// Everything else fails with a syntax error.
type Executor struct {
	// Pending receives the handle for every suspended execution.
	Pending chan *Pending

	mu       sync.Mutex
	tables   map[string]*table
	prepared map[string]*ql.PreparedStatement
	armed    int
}

type table struct {
	name    ql.TableName
	columns []ql.ColumnSchema
	rows    []ql.Row
}

func New() *Executor {
	return &Executor{
		Pending:  make(chan *Pending, 16),
		tables:   make(map[string]*table),
		prepared: make(map[string]*ql.PreparedStatement),
	}
}

func (e *Executor) AddTable(keyspace, name string, columns []ql.ColumnSchema, rows []ql.Row) {
	tn := ql.TableName{Keyspace: keyspace, Table: name}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[tn.String()] = &table{name: tn, columns: columns, rows: rows}
}

// ArmSuspend makes the next n Execute calls suspend. Each suspended
// execution is delivered on Pending for the test to resolve.
func (e *Executor) ArmSuspend(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.armed += n
}

// Pending is a suspended execution awaiting resolution by the test.
type Pending struct {
	e  *Executor
	in ql.ExecInput
	d  *ql.Deferred
}

// Complete runs the suspended statement and resolves the continuation
// with its outcome.
func (p *Pending) Complete() {
	res, err := p.e.run(p.in)
	p.d.Complete(res, nil, err)
}

// Fail resolves the continuation with an engine error.
func (p *Pending) Fail(code uint32, msg string) {
	p.d.Complete(nil, nil, &ql.ExecError{Code: code, Message: msg})
}

// SuspendAgain resolves the continuation with a follow-up suspension
// and returns the new handle.
func (p *Pending) SuspendAgain() *Pending {
	next := ql.NewDeferred()
	p2 := &Pending{e: p.e, in: p.in, d: next}
	p.d.Complete(nil, next, nil)
	return p2
}

func (e *Executor) Prepare(ctx context.Context, keyspace, query string) (*ql.PreparedStatement, error) {
	ps := &ql.PreparedStatement{
		ID:       ql.NewPreparedID(),
		Keyspace: keyspace,
		Query:    query,
	}
	if tn, ok := selectTarget(query, keyspace); ok {
		e.mu.Lock()
		tbl, found := e.tables[tn.String()]
		e.mu.Unlock()
		if !found {
			return nil, &ql.ExecError{Code: 0x2200, Message: fmt.Sprintf("table %s does not exist", tn)}
		}
		ps.TableName = tbl.name
		ps.Columns = tbl.columns
	}
	e.mu.Lock()
	e.prepared[string(ps.ID)] = ps
	e.mu.Unlock()
	return ps, nil
}

func (e *Executor) Execute(ctx context.Context, in ql.ExecInput) (ql.StatementResult, *ql.Deferred, error) {
	e.mu.Lock()
	if e.armed > 0 {
		e.armed--
		e.mu.Unlock()
		d := ql.NewDeferred()
		e.Pending <- &Pending{e: e, in: in, d: d}
		return nil, d, nil
	}
	e.mu.Unlock()

	res, err := e.run(in)
	return res, nil, err
}

func (e *Executor) run(in ql.ExecInput) (ql.StatementResult, error) {
	query := in.Query
	keyspace := in.Keyspace
	if len(in.PreparedID) > 0 {
		e.mu.Lock()
		ps, ok := e.prepared[string(in.PreparedID)]
		e.mu.Unlock()
		if !ok {
			return nil, &ql.ExecError{Code: 0x2500, Message: "unprepared statement id"}
		}
		query = ps.Query
		if ps.Keyspace != "" {
			keyspace = ps.Keyspace
		}
	}

	trimmed := strings.TrimSpace(query)
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.HasPrefix(upper, "USE "):
		ks := strings.TrimSpace(trimmed[len("USE "):])
		ks = strings.Trim(ks, `"`)
		if ks == "" {
			return nil, &ql.ExecError{Code: 0x2000, Message: "USE requires a keyspace name"}
		}
		return &ql.SetKeyspaceResult{Keyspace: ks}, nil
	default:
		tn, ok := selectTarget(trimmed, keyspace)
		if !ok {
			return nil, &ql.ExecError{Code: 0x2000, Message: fmt.Sprintf("cannot parse statement: %s", trimmed)}
		}
		if tn.Keyspace == "" {
			return nil, &ql.ExecError{Code: 0x2200, Message: "no keyspace has been specified"}
		}
		e.mu.Lock()
		tbl, found := e.tables[tn.String()]
		e.mu.Unlock()
		if !found {
			return nil, &ql.ExecError{Code: 0x2200, Message: fmt.Sprintf("table %s does not exist", tn)}
		}
		return e.page(tbl, in)
	}
}

func (e *Executor) page(tbl *table, in ql.ExecInput) (ql.StatementResult, error) {
	offset := 0
	if len(in.PagingState) > 0 {
		var err error
		offset, err = parseToken(in.PagingState, tbl.name, in.Variant)
		if err != nil {
			return nil, &ql.ExecError{Code: 0x2200, Message: err.Error()}
		}
	}
	if offset > len(tbl.rows) {
		offset = len(tbl.rows)
	}

	page := tbl.rows[offset:]
	var token []byte
	if in.PageSize > 0 && len(page) > int(in.PageSize) {
		page = page[:in.PageSize]
		token = makeToken(tbl.name, offset+len(page), in.Variant)
	}

	payload, err := ql.EncodeRowBlock(tbl.columns, page)
	if err != nil {
		return nil, errors.Wrap(err, "encode page")
	}
	return ql.NewRowsResult(tbl.name, tbl.columns, payload, token, in.Variant), nil
}

// The token layout below is private to this engine. The wire layer
// must treat it as opaque bytes.

func makeToken(tn ql.TableName, offset int, v ql.Variant) []byte {
	return []byte(fmt.Sprintf("v1|%s|%d|%d", tn, offset, v))
}

func parseToken(token []byte, tn ql.TableName, v ql.Variant) (int, error) {
	parts := strings.Split(string(token), "|")
	if len(parts) != 4 || parts[0] != "v1" {
		return 0, errors.New("malformed paging state")
	}
	if parts[1] != tn.String() {
		return 0, errors.Errorf("paging state belongs to %s, query targets %s", parts[1], tn)
	}
	offset, err := strconv.Atoi(parts[2])
	if err != nil || offset < 0 {
		return 0, errors.New("malformed paging state offset")
	}
	variant, err := strconv.Atoi(parts[3])
	if err != nil || ql.Variant(variant) != v {
		return 0, errors.New("paging state was issued under a different result encoding")
	}
	return offset, nil
}

func selectTarget(query, keyspace string) (ql.TableName, bool) {
	upper := strings.ToUpper(query)
	const prefix = "SELECT * FROM "
	if !strings.HasPrefix(upper, prefix) {
		return ql.TableName{}, false
	}
	name := strings.TrimSpace(query[len(prefix):])
	if name == "" {
		return ql.TableName{}, false
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return ql.TableName{Keyspace: name[:i], Table: name[i+1:]}, true
	}
	return ql.TableName{Keyspace: keyspace, Table: name}, true
}
