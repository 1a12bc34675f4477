package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

type DeliverySlotListFilter struct {
	ProducerID *int64
	ProductID  *int64
	From       *time.Time
	To         *time.Time
}

// 配送枠の容量台帳。
type DeliverySlotRepository interface {
	// 商品をpreloadして返す
	FindByID(ctx context.Context, slotID int64) (model.DeliverySlot, error)

	// reserved+qty <= max_capacity かつ date >= today のときだけ加算（1本のUPDATE）。
	// 足りなければErrCapacityExceeded、日付切れはErrSlotExpired。
	Reserve(ctx context.Context, slotID int64, qty int64, today time.Time) (model.DeliverySlot, error)

	// reservedを減らす（0未満にはしない）
	Release(ctx context.Context, slotID int64, qty int64) (model.DeliverySlot, error)

	Create(ctx context.Context, slot model.DeliverySlot) (model.DeliverySlot, error)

	// reserved以上のときだけ変更。下回るならErrCapacityExceeded
	UpdateMaxCapacity(ctx context.Context, slotID int64, maxCapacity int64) (model.DeliverySlot, error)

	// 予約が参照していればErrSlotInUse
	Delete(ctx context.Context, slotID int64) error

	// 予約画面用（期限切れ・満杯を除く）
	ListAvailableByProduct(ctx context.Context, productID int64, today time.Time) ([]model.DeliverySlot, error)

	// 出品者の一覧（過去分も含む）
	List(ctx context.Context, f DeliverySlotListFilter) ([]model.DeliverySlot, error)
}
