// Package catalog_repo provides PostgreSQL implementations for catalog repositories:
// products with their price history, and stock locations.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"medstock/internal/core/apperror"
	"medstock/internal/infrastructure/storage/postgres"
)

// BaseCatalogRepo provides the common read and insert operations for catalog tables.
// Embed it in specific catalog repositories.
type BaseCatalogRepo[T any] struct {
	txManager  *postgres.TxManager
	tableName  string
	selectCols []string
	newFn      func() T
}

// NewBaseCatalogRepo creates a new base catalog repository.
func NewBaseCatalogRepo[T any](
	txManager *postgres.TxManager,
	tableName string,
	selectCols []string,
	newFn func() T,
) *BaseCatalogRepo[T] {
	return &BaseCatalogRepo[T]{
		txManager:  txManager,
		tableName:  tableName,
		selectCols: selectCols,
		newFn:      newFn,
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *BaseCatalogRepo[T]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *BaseCatalogRepo[T]) baseSelect() squirrel.SelectBuilder {
	return r.Builder().Select(r.selectCols...).From(r.tableName)
}

// insertQuery builds an INSERT from the entity's db tags restricted to selectCols.
func (r *BaseCatalogRepo[T]) insertQuery(entity T) (squirrel.InsertBuilder, error) {
	data := postgres.InsertMap(entity, r.selectCols)
	if len(data) == 0 {
		return squirrel.InsertBuilder{}, fmt.Errorf("no db tags found in entity")
	}
	return r.Builder().Insert(r.tableName).SetMap(data), nil
}

// InsertIgnoringConflict inserts entity with ON CONFLICT (conflictCols) DO NOTHING
// and reports whether a row was written.
func (r *BaseCatalogRepo[T]) InsertIgnoringConflict(ctx context.Context, entity T, conflictCols string) (bool, error) {
	q, err := r.insertQuery(entity)
	if err != nil {
		return false, err
	}

	sql, args, err := q.Suffix("ON CONFLICT (" + conflictCols + ") DO NOTHING").ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, postgres.MapError(fmt.Errorf("insert %s: %w", r.tableName, err))
	}
	return tag.RowsAffected() == 1, nil
}

// FindOne returns the first row of q or apperror NotFound.
func (r *BaseCatalogRepo[T]) FindOne(ctx context.Context, q squirrel.SelectBuilder, key any) (T, error) {
	entity := r.newFn()

	sql, args, err := q.Limit(1).ToSql()
	if err != nil {
		return entity, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), entity, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity, apperror.NewNotFound(r.tableName, key)
		}
		return entity, postgres.MapError(fmt.Errorf("find %s: %w", r.tableName, err))
	}

	return entity, nil
}
