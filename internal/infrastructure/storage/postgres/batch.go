package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// BatchExecutor sends several statements to the server in one round-trip
// on the transaction carried by ctx.
type BatchExecutor struct {
	txManager *TxManager
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(txManager *TxManager) *BatchExecutor {
	return &BatchExecutor{txManager: txManager}
}

// BatchQuery represents a query in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// ToBatchQuery renders a squirrel builder into a BatchQuery.
func ToBatchQuery(b squirrel.Sqlizer) (BatchQuery, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return BatchQuery{}, fmt.Errorf("build batch query: %w", err)
	}
	return BatchQuery{SQL: sql, Args: args}, nil
}

// ExecuteBatch executes queries in order. It never opens its own transaction:
// a missing transaction is an error, and a failed statement aborts the caller's tx.
func (e *BatchExecutor) ExecuteBatch(ctx context.Context, queries []BatchQuery) error {
	t := e.txManager.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("ExecuteBatch requires transaction context")
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := t.SendBatch(ctx, batch)
	defer results.Close()

	for i := range queries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch query %d failed: %w", i, err)
		}
	}

	return nil
}
