package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 配送枠の予約（FRESH商品の注文明細）。
// ReleasedAtは枠へ数量を戻し済みかどうか（台帳側は重複解放を判定しない）。
type Booking struct {
	ID             int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID        int64 `gorm:"not null;index" json:"order_id"`
	DeliverySlotID int64 `gorm:"not null;index" json:"delivery_slot_id"`
	Quantity       int64 `gorm:"not null" json:"quantity"`

	// 予約時点の商品価格。nilの行（移行前のデータ）だけ現在の商品価格で計算する
	Price *decimal.Decimal `gorm:"type:numeric(12,2)" json:"price,omitempty"`

	ReleasedAt *time.Time `gorm:"index" json:"released_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`

	DeliverySlot *DeliverySlot `gorm:"foreignKey:DeliverySlotID" json:"delivery_slot,omitempty"`
}

// 単価（予約時点の価格が無ければ商品価格）
func (b Booking) UnitPrice(productPrice decimal.Decimal) decimal.Decimal {
	if b.Price != nil {
		return *b.Price
	}
	return productPrice
}

func (b Booking) LineTotal() decimal.Decimal {
	price := decimal.Zero
	if b.DeliverySlot != nil && b.DeliverySlot.Product != nil {
		price = b.DeliverySlot.Product.Price
	}
	return b.UnitPrice(price).Mul(decimal.NewFromInt(b.Quantity))
}

func (b Booking) Released() bool {
	return b.ReleasedAt != nil
}
