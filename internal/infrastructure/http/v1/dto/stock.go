package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"medstock/internal/domain/registers/stock"
)

// StockLevelQuery selects the level row to read.
type StockLevelQuery struct {
	ProductID  string `form:"productId" binding:"required"`
	LocationID string `form:"locationId" binding:"required"`
}

// StockLevelResponse represents the on-hand quantity in API responses.
type StockLevelResponse struct {
	ProductID  string          `json:"productId"`
	LocationID string          `json:"locationId"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reserved   decimal.Decimal `json:"reserved"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// FromStockLevel converts a level to the response DTO.
func FromStockLevel(l *stock.Level) StockLevelResponse {
	return StockLevelResponse{
		ProductID:  l.ProductID.String(),
		LocationID: l.LocationID.String(),
		Quantity:   l.Quantity,
		Reserved:   l.Reserved,
		UpdatedAt:  l.UpdatedAt,
	}
}
