// Package register_repo provides PostgreSQL implementations for register repositories.
package register_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/core/types"
	"medstock/internal/domain/registers/stock"
	"medstock/internal/infrastructure/storage/postgres"
)

const (
	stockMoveTable   = "stock_move"
	stockLedgerTable = "stock_ledger"
	stockLevelsTable = "stock_levels"
)

var (
	moveColumns   = postgres.ExtractDBColumns[stock.Move]()
	ledgerColumns = postgres.ExtractDBColumns[stock.LedgerEntry]()
	levelColumns  = postgres.ExtractDBColumns[stock.Level]()
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txManager *postgres.TxManager
	batch     *postgres.BatchExecutor
	builder   squirrel.StatementBuilderType
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		batch:     postgres.NewBatchExecutor(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// InsertMovement queues both inserts into one batch on the caller's transaction.
func (r *StockRepo) InsertMovement(ctx context.Context, move *stock.Move, entry *stock.LedgerEntry) error {
	moveQ, err := postgres.ToBatchQuery(r.builder.Insert(stockMoveTable).SetMap(postgres.InsertMap(move, moveColumns)))
	if err != nil {
		return err
	}
	ledgerQ, err := postgres.ToBatchQuery(r.builder.Insert(stockLedgerTable).SetMap(postgres.InsertMap(entry, ledgerColumns)))
	if err != nil {
		return err
	}

	if err := r.batch.ExecuteBatch(ctx, []postgres.BatchQuery{moveQ, ledgerQ}); err != nil {
		return postgres.MapError(fmt.Errorf("insert movement %s: %w", move.ID, err))
	}
	return nil
}

// upsertLevelQuery builds the single-statement level upsert.
// The conflict target matches the partial unique index on un-batched rows.
func (r *StockRepo) upsertLevelQuery(key stock.LevelKey, delta types.Quantity, now time.Time) squirrel.InsertBuilder {
	return r.builder.Insert(stockLevelsTable).
		Columns("id", "tenant_id", "company_id", "product_id", "location_id", "batch_id", "quantity", "reserved", "updated_at").
		Values(id.New(), key.TenantID, key.CompanyID, key.ProductID, key.LocationID, nil, delta, types.Zero(), now).
		Suffix(`ON CONFLICT (tenant_id, company_id, product_id, location_id) WHERE batch_id IS NULL
			DO UPDATE SET quantity = ` + stockLevelsTable + `.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
			RETURNING ` + strings.Join(levelColumns, ", "))
}

// UpsertLevelDelta applies delta atomically. The row lock taken by the upsert
// serialises concurrent consumers of the same product and location.
func (r *StockRepo) UpsertLevelDelta(ctx context.Context, key stock.LevelKey, delta types.Quantity) (*stock.Level, error) {
	sql, args, err := r.upsertLevelQuery(key, delta, time.Now().UTC()).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build level upsert: %w", err)
	}

	var level stock.Level
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &level, sql, args...); err != nil {
		return nil, postgres.MapError(fmt.Errorf("upsert stock level: %w", err))
	}
	return &level, nil
}

func (r *StockRepo) levelQuery(key stock.LevelKey) squirrel.SelectBuilder {
	return r.builder.Select(levelColumns...).
		From(stockLevelsTable).
		Where(squirrel.Eq{
			"tenant_id":   key.TenantID,
			"company_id":  key.CompanyID,
			"product_id":  key.ProductID,
			"location_id": key.LocationID,
			"batch_id":    nil,
		})
}

// GetLevel returns the un-batched level for key.
func (r *StockRepo) GetLevel(ctx context.Context, key stock.LevelKey) (*stock.Level, error) {
	sql, args, err := r.levelQuery(key).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build level query: %w", err)
	}

	var level stock.Level
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &level, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock_level", key.ProductID)
		}
		return nil, postgres.MapError(fmt.Errorf("get stock level: %w", err))
	}
	return &level, nil
}
