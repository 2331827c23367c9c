package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

// txKey is the context key for storing transaction.
type txKey struct{}

// dbtx is satisfied by both the pool and an open transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxTxManager manages database transactions.
type PgxTxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a new PgxTxManager.
func NewTxManager(pool *pgxpool.Pool) *PgxTxManager {
	return &PgxTxManager{pool: pool}
}

// RunInTransaction executes fn within a database transaction. Calls made while
// a transaction is already open join it.
func (tm *PgxTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// conn returns the transaction from context if available, otherwise the pool.
func conn(ctx context.Context, pool *pgxpool.Pool) dbtx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// NewPostgresStore wires every repository over one pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Tickets:        NewTicketRepository(pool),
		SLAs:           NewSLARepository(pool),
		Approvals:      NewApprovalRepository(pool),
		Delegations:    NewDelegationRepository(pool),
		DelegationLogs: NewDelegationLogRepository(pool),
		Diversions:     NewDiversionRepository(pool),
		History:        NewTicketHistoryRepository(pool),
		Outbox:         NewOutboxRepository(pool),
		Staff:          NewStaffRepository(pool),
		Departments:    NewDepartmentRepository(pool),
		Tx:             NewTxManager(pool),
		Ping:           pool.Ping,
	}
}
