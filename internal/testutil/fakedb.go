// Package testutil provides a minimal dbexec.DB double for service-level
// tests, mirroring the teacher's map-based mock repositories
// (internal/testutils/mocks.go) but at the transaction boundary this module
// adds on top of them: every public mutation opens one pgx.Tx per spec.md
// §5, and the audit.Logger writes through it directly, so tests need a
// pgx.Tx-shaped double even when the surrounding repository is hand-mocked.
package testutil

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ExecCall records one statement sent through FakeDB or a FakeTx it opened.
type ExecCall struct {
	SQL  string
	Args []interface{}
}

// FakeDB is a dbexec.DB double. It never touches a real connection; Exec
// calls are just recorded, Query/QueryRow are unused by the audit/service
// paths exercised here and panic if called, and Begin hands out a FakeTx.
type FakeDB struct {
	Execs    []ExecCall
	BeginErr error
	Txs      []*FakeTx
}

func (f *FakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.Execs = append(f.Execs, ExecCall{SQL: sql, Args: args})
	return pgconn.CommandTag{}, nil
}

func (f *FakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("testutil.FakeDB: Query not supported, stub the Repository instead")
}

func (f *FakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("testutil.FakeDB: QueryRow not supported, stub the Repository instead")
}

func (f *FakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	tx := &FakeTx{db: f}
	f.Txs = append(f.Txs, tx)
	return tx, nil
}

// AllExecs returns every Exec call recorded against the pool directly and
// against every transaction it opened, in the order they were made.
func (f *FakeDB) AllExecs() []ExecCall {
	out := append([]ExecCall{}, f.Execs...)
	for _, tx := range f.Txs {
		out = append(out, tx.Execs...)
	}
	return out
}

// FakeTx is a pgx.Tx double. Embedding the nil pgx.Tx interface satisfies
// the full interface at compile time; only the methods services and
// internal/audit actually call (Exec, Commit, Rollback) are overridden.
type FakeTx struct {
	pgx.Tx
	db         *FakeDB
	Execs      []ExecCall
	Committed  bool
	RolledBack bool
}

func (t *FakeTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	t.Execs = append(t.Execs, ExecCall{SQL: sql, Args: args})
	return pgconn.CommandTag{}, nil
}

func (t *FakeTx) Commit(ctx context.Context) error {
	t.Committed = true
	return nil
}

func (t *FakeTx) Rollback(ctx context.Context) error {
	if !t.Committed {
		t.RolledBack = true
	}
	return nil
}
