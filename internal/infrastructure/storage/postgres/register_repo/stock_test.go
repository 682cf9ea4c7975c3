package register_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medstock/internal/core/id"
	"medstock/internal/core/types"
	"medstock/internal/domain/registers/stock"
)

func TestUpsertLevelQuery(t *testing.T) {
	r := NewStockRepo(nil)
	key := stock.LevelKey{TenantID: id.New(), CompanyID: id.New(), ProductID: id.New(), LocationID: id.New()}

	sql, args, err := r.upsertLevelQuery(key, types.NewQuantity(-5), time.Now()).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO stock_levels")
	assert.Contains(t, sql, "ON CONFLICT (tenant_id, company_id, product_id, location_id) WHERE batch_id IS NULL")
	assert.Contains(t, sql, "quantity = stock_levels.quantity + EXCLUDED.quantity")
	assert.Contains(t, sql, "RETURNING id, tenant_id")
	assert.Contains(t, sql, "$9")
	require.Len(t, args, 9)
	assert.Nil(t, args[5])
	assert.True(t, types.NewQuantity(-5).Equal(args[6].(types.Quantity)))
}

func TestLevelQuery_UnbatchedOnly(t *testing.T) {
	r := NewStockRepo(nil)

	sql, args, err := r.levelQuery(stock.LevelKey{}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM stock_levels")
	assert.Contains(t, sql, "batch_id IS NULL")
	assert.Len(t, args, 4)
}

func TestColumnsFromModels(t *testing.T) {
	assert.Contains(t, moveColumns, "location_from")
	assert.Contains(t, moveColumns, "source_reference")
	assert.Contains(t, ledgerColumns, "metadata")
	assert.Contains(t, ledgerColumns, "from_location_id")
	assert.Contains(t, levelColumns, "reserved")
}
