package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductType string

const (
	ProductTypeFresh     ProductType = "FRESH"
	ProductTypeDried     ProductType = "DRIED"
	ProductTypeSubstrate ProductType = "SUBSTRATE"
	ProductTypeWellness  ProductType = "WELLNESS"
)

// 出品者（producer）が持つ商品。
// FRESHは配送枠（DeliverySlot）経由でのみ販売する。
type Product struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProducerID  int64           `gorm:"not null;index" json:"producer_id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Unit        string          `gorm:"type:varchar(20);not null" json:"unit"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Type        ProductType     `gorm:"type:varchar(20);not null;index" json:"type"`
	IsAvailable bool            `gorm:"not null;default:true" json:"is_available"`

	// nilなら最低1
	MinOrderQuantity *int64 `gorm:"column:min_order_quantity" json:"min_order_quantity,omitempty"`

	// 後払い（請求書）を受け付けるか
	AcceptDeferred bool `gorm:"not null;default:false" json:"accept_deferred"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// 最低注文数量
func (p Product) MinQuantity() int64 {
	if p.MinOrderQuantity == nil || *p.MinOrderQuantity < 1 {
		return 1
	}
	return *p.MinOrderQuantity
}

func (p Product) IsFresh() bool {
	return p.Type == ProductTypeFresh
}

func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeFresh, ProductTypeDried, ProductTypeSubstrate, ProductTypeWellness:
		return true
	}
	return false
}
