package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by pools and transactions, so the same
// repository code serves both.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRepos bundles the repositories participating in a lifecycle write. The
// status update and its activity must land together or not at all.
type TxRepos struct {
	Requests   RequestRepository
	Activities ActivityRepository
}

// TxRunner executes a function within a single database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(TxRepos) error) error
}

// Store provides the pgx-backed TxRunner.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn inside a transaction, committing on nil and rolling back on error.
func (s *Store) InTx(ctx context.Context, fn func(TxRepos) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	repos := TxRepos{
		Requests:   NewRequestRepository(tx),
		Activities: NewActivityRepository(tx),
	}
	if err := fn(repos); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
