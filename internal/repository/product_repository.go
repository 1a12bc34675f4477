package repository

import (
	"context"

	"marketplace/internal/domain/model"
)

// 商品は外部のカタログ管理が作る。ここでは参照だけ。
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)
	ListByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
}
