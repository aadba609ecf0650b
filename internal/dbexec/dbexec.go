// Package dbexec defines the minimal executor interface every repository in
// this module depends on, satisfied by both *pgxpool.Pool and pgx.Tx. This
// lets a service begin one transaction per public mutation (spec.md §5) and
// pass it down into several repositories — in particular the audit
// repository, which must write in the same transaction as the mutation it
// describes (§8 invariant 2) — while those same repositories also work
// directly against the pool for read-only calls.
package dbexec

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Beginner is the one method every service needs from *pgxpool.Pool to run
// its public mutations inside a single transaction per spec.md §5. Narrowing
// to this interface (rather than depending on *pgxpool.Pool concretely)
// lets service-level tests substitute an in-memory transaction fake.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB is what every service holds: pool-level reads via Execer plus the
// ability to open a transaction for mutations. Satisfied directly by
// *pgxpool.Pool; fakeable in tests without a real Postgres connection.
type DB interface {
	Execer
	Beginner
}
