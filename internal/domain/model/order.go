package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	// カート扱い。一覧・検索・件数には絶対に出さない。
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// 前進のみ。飛ばし・後戻りは不可。
var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusDraft:     {OrderStatusPending: true},
	OrderStatusPending:   {OrderStatusConfirmed: true, OrderStatusCancelled: true},
	OrderStatusConfirmed: {OrderStatusShipped: true},
	OrderStatusShipped:   {OrderStatusDelivered: true},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	_, ok := validNext[st]
	return st, ok
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// 明細の追加はDRAFTのみ
func (s OrderStatus) AcceptsNewLines() bool {
	return s == OrderStatusDraft
}

// 明細の削除・予約取消はDRAFTかPENDING
func (s OrderStatus) AcceptsLineRemoval() bool {
	return s == OrderStatusDraft || s == OrderStatusPending
}

// 一覧に出してよいステータス（DRAFT以外）
func VisibleOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// 注文（集約ルート）。
// Totalは明細と予約の小計の合計（配送料・手数料は含まない）。
type Order struct {
	ID     int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64           `gorm:"not null;index" json:"user_id"`
	Status OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	Total  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total"`

	// JSON文字列。読むときは必ずParseOrderMetadataを通す。
	Metadata string `gorm:"type:text" json:"-"`

	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;autoUpdateTime;index" json:"updated_at"`
}

func (o Order) Meta() OrderMetadata {
	m, _ := ParseOrderMetadata(o.Metadata)
	return m
}
