package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"marketplace/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

// HoldingOnlyなら未解放の予約を持つDRAFTだけ
type AbandonedDraftFilter struct {
	Before      time.Time
	HoldingOnly bool
	Limit       int
}

type ProducerOrderFilter struct {
	ProducerID int64
	From       *time.Time
	To         *time.Time
}

// チェックアウト時に書き込む項目
type CheckoutUpdate struct {
	Total        decimal.Decimal
	Metadata     string
	CheckedOutAt time.Time
}

// 一覧・検索・件数はDRAFTを必ず除外する。
// FindByID系は内部用でDRAFTも返す。
type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	// 行ロック（同じ注文への更新を直列化）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	// ロック中なら待たずにfalse
	TryLockForSweep(ctx context.Context, orderID int64) (model.Order, bool, error)

	FindDraftByUserID(ctx context.Context, userID int64) (model.Order, error)
	GetOrCreateDraftByUserID(ctx context.Context, userID int64) (model.Order, error)

	UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
	// fromのときだけtoへ
	UpdateStatus(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) error
	// DRAFTのときだけPENDINGへ
	Checkout(ctx context.Context, orderID int64, u CheckoutUpdate) error
	DeleteByID(ctx context.Context, orderID int64) error

	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
	CountByStatus(ctx context.Context, f AdminOrderListFilter) (map[model.OrderStatus]int64, error)

	// 出品者の商品を含む注文（キャンセル除く）
	ListByProducer(ctx context.Context, f ProducerOrderFilter) ([]model.Order, error)
	ContainsProducer(ctx context.Context, orderID int64, producerID int64) (bool, error)

	// updated_atがBeforeより古いDRAFT
	ListAbandonedDrafts(ctx context.Context, f AbandonedDraftFilter) ([]model.Order, error)
}
