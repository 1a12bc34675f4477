package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"marketplace/internal/domain/model"
)

type OrderItemRepository interface {
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	// 同一商品はプラス（単価は最初に追加した時点のまま）
	UpsertByOrderAndProduct(ctx context.Context, orderID int64, productID int64, addQty int64, unitPrice decimal.Decimal) (model.OrderItem, error)
	FindByID(ctx context.Context, itemID int64) (model.OrderItem, error)
	DeleteByID(ctx context.Context, itemID int64) error
	DeleteByOrderID(ctx context.Context, orderID int64) error
}
