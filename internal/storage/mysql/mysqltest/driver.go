// Package mysqltest provides a scripted database/sql driver for exercising
// MySQL backed code without a server. Each expected statement is queued in
// order; any deviation fails the call that caused it.
package mysqltest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type opType int

const (
	opExec opType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

func (o opType) String() string {
	return [...]string{"exec", "query", "begin", "commit", "rollback"}[o]
}

// Op is one expected driver interaction.
type Op struct {
	typ    opType
	query  string
	result Result
	rows   Rows
	err    error
}

// Result is returned for Exec operations.
type Result struct {
	InsertID int64
	Affected int64
}

func (r Result) LastInsertId() (int64, error) { return r.InsertID, nil }
func (r Result) RowsAffected() (int64, error) { return r.Affected, nil }

// Rows is returned for Query operations.
type Rows struct {
	Columns []string
	Values  [][]driver.Value
}

// Exec expects an ExecContext with the given statement. An empty query matches any statement.
func Exec(query string, result Result) Op { return Op{typ: opExec, query: query, result: result} }

// ExecErr expects an ExecContext that fails with err.
func ExecErr(query string, err error) Op { return Op{typ: opExec, query: query, err: err} }

// Query expects a QueryContext with the given statement.
func Query(query string, rows Rows) Op { return Op{typ: opQuery, query: query, rows: rows} }

// Begin expects a transaction to start.
func Begin() Op { return Op{typ: opBegin} }

// Commit expects the transaction to commit.
func Commit() Op { return Op{typ: opCommit} }

// Rollback expects the transaction to roll back.
func Rollback() Op { return Op{typ: opRollback} }

// Driver replays the scripted operations and records the arguments it saw.
type Driver struct {
	ops  []Op
	idx  atomic.Int32
	mu   sync.Mutex
	args [][]driver.Value
}

var seq atomic.Int32

// Open registers a fresh driver for ops and returns a single-connection pool on it.
func Open(t *testing.T, ops ...Op) (*sql.DB, *Driver) {
	t.Helper()

	drv := &Driver{ops: ops}
	name := fmt.Sprintf("mysqltest-%d", seq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })
	return db, drv
}

// AssertConsumed fails the test if scripted operations remain.
func (d *Driver) AssertConsumed(t *testing.T) {
	t.Helper()
	if got := int(d.idx.Load()); got != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", got, len(d.ops))
	}
}

// Args returns the arguments of the i-th Exec or Query operation.
func (d *Driver) Args(i int) []driver.Value {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.args) {
		return nil
	}
	return d.args[i]
}

func (d *Driver) Open(string) (driver.Conn, error) {
	return &conn{driver: d}, nil
}

func (d *Driver) next(expected opType, query string) (*Op, error) {
	idx := int(d.idx.Load())
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected %s: %s", expected, query)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected %s, got %s", op.typ, expected)
	}
	d.idx.Add(1)
	if op.query != "" && normalize(op.query) != normalize(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalize(op.query), normalize(query))
	}
	return op, nil
}

func (d *Driver) record(args []driver.NamedValue) {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	d.mu.Lock()
	d.args = append(d.args, values)
	d.mu.Unlock()
}

type conn struct {
	driver *Driver
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &tx{driver: c.driver}, nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	c.driver.record(args)
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	c.driver.record(args)
	if op.err != nil {
		return nil, op.err
	}
	return &rows{columns: op.rows.Columns, values: op.rows.Values}, nil
}

func (c *conn) Ping(context.Context) error { return nil }

// CheckNamedValue accepts every argument type so that the caller's values are recorded as-is.
func (c *conn) CheckNamedValue(*driver.NamedValue) error { return nil }

type tx struct {
	driver *Driver
}

func (t *tx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *tx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

type rows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *rows) Columns() []string { return r.columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
