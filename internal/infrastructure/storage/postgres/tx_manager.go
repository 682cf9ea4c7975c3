package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medstock/internal/core/tx"
	"medstock/pkg/logger"
)

var tracer = otel.Tracer("medstock/tx")

var _ tx.Manager = (*TxManager)(nil)

// DefaultStatementTimeout bounds every consumption transaction unless configured otherwise.
const DefaultStatementTimeout = 5 * time.Second

// DefaultTxOptions returns READ COMMITTED with the default statement timeout.
// Row-level locks taken by the repositories provide the needed serialisation.
func DefaultTxOptions() tx.Options {
	return tx.Options{
		Isolation:        tx.ReadCommitted,
		StatementTimeout: DefaultStatementTimeout,
	}
}

// TxManager runs functions inside pgx transactions carried by context.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool}
}

type txKey struct{}

// Tx wraps pgx.Tx with the options it was opened with.
type Tx struct {
	pgx.Tx
	opts tx.Options
}

// RunInTransaction executes fn within a transaction using DefaultTxOptions.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, DefaultTxOptions(), fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
// A transaction already present in ctx is reused and opts are ignored.
// Errors leaving this method are mapped with MapError.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts tx.Options, fn func(ctx context.Context) error) error {
	if existing := m.GetTx(ctx); existing != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.Isolation)),
			attribute.Int64("tx.statement_timeout_ms", opts.StatementTimeout.Milliseconds()),
		))
	defer span.End()

	if err := m.startNewTransaction(ctx, opts, fn); err != nil {
		span.RecordError(err)
		return MapError(err)
	}
	return nil
}

func (m *TxManager) startNewTransaction(ctx context.Context, opts tx.Options, fn func(ctx context.Context) error) error {
	pgTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   isoLevel(opts.Isolation),
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if opts.StatementTimeout > 0 {
		_, err = pgTx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds()))
		if err != nil {
			_ = pgTx.Rollback(context.Background())
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	txCtx := context.WithValue(ctx, txKey{}, &Tx{Tx: pgTx, opts: opts})

	if err := m.executeWithRollbackProtection(txCtx, pgTx, fn); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// executeWithRollbackProtection runs fn and rolls back on error.
// Rollback uses a background context so it completes after cancellation.
func (m *TxManager) executeWithRollbackProtection(ctx context.Context, pgTx pgx.Tx, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err != nil {
		if rbErr := pgTx.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}
	return nil
}

func isoLevel(iso tx.Isolation) pgx.TxIsoLevel {
	switch iso {
	case tx.Serializable:
		return pgx.Serializable
	case tx.RepeatableRead:
		return pgx.RepeatableRead
	default:
		return pgx.ReadCommitted
	}
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// Querier is satisfied by both pgx.Tx and *pgxpool.Pool, so repositories
// work inside and outside transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// GetQuerier returns the transaction in ctx or the pool.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}

// Ping checks database connectivity.
func (m *TxManager) Ping(ctx context.Context) error {
	return m.pool.Ping(ctx)
}
