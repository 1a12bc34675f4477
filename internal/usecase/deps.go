package usecase

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

// 現在の時間
type Clock interface {
	Now() time.Time
}

// 注文イベントの送信先（Kafka等）。失敗しても業務処理は戻さない。
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, orderID int64, payload any) error
}

// 複数インスタンス間の排他。取れなければok=false。
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// 配送先フォームの検証。問題なければnil（項目名→理由）。
type CheckoutValidator interface {
	ValidateDeliveryAddress(addr model.DeliveryAddress) map[string]string
}

const (
	EventOrderCheckedOut     = "order.checked_out"
	EventOrderStatusChanged  = "order.status_changed"
	EventOrderCancelled      = "order.cancelled"
	EventDeliverySlotChanged = "delivery_slot.capacity_changed"
)

type OrderCheckedOutPayload struct {
	OrderID       int64               `json:"order_id"`
	UserID        int64               `json:"user_id"`
	DeliveryType  model.DeliveryType  `json:"delivery_type"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	GrandTotal    string              `json:"grand_total"`
}

type OrderStatusChangedPayload struct {
	OrderID     int64             `json:"order_id"`
	From        model.OrderStatus `json:"from"`
	To          model.OrderStatus `json:"to"`
	ActorUserID int64             `json:"actor_user_id"`
}

// 認証済みの呼び出し元（JWTのクレーム）
type Actor struct {
	UserID     int64
	Role       model.Role
	ProducerID *int64
}

func (a Actor) IsAdmin() bool    { return a.Role == model.RoleAdmin }
func (a Actor) IsProducer() bool { return a.Role == model.RoleProducer }

// 出品者として扱うID（producer_idクレームが無ければuser_id）
func (a Actor) ProducerKey() int64 {
	if a.ProducerID != nil && *a.ProducerID > 0 {
		return *a.ProducerID
	}
	return a.UserID
}
