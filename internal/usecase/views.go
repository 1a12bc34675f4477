package usecase

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	lineKindItem    = "item"
	lineKindBooking = "booking"
)

type LineView struct {
	ID             int64           `json:"id"`
	Kind           string          `json:"kind"`
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Unit           string          `json:"unit,omitempty"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
	DeliverySlotID *int64          `json:"delivery_slot_id,omitempty"`
	DeliveryDate   string          `json:"delivery_date,omitempty"`
}

// 注文（カート含む）の表示。
// Breakdown（手数料・出品者受取額）は出品者・管理者向けのときだけ入れる。
type OrderView struct {
	ID            int64                      `json:"id"`
	UserID        int64                      `json:"user_id"`
	Status        model.OrderStatus          `json:"status"`
	PaymentStatus model.PaymentState         `json:"payment_status,omitempty"`
	DeliveryType  model.DeliveryType         `json:"delivery_type"`
	DeliveryInfo  *model.DeliveryAddress     `json:"delivery_info,omitempty"`
	PaymentMethod model.PaymentMethod        `json:"payment_method,omitempty"`
	Items         []LineView                 `json:"items"`
	Totals        model.ClientTotals         `json:"totals"`
	Breakdown     *model.CommissionBreakdown `json:"breakdown,omitempty"`
	CheckedOutAt  *time.Time                 `json:"checked_out_at,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
}

type OrderListView struct {
	Items []OrderView `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// 注文の明細と予約、明細の商品
type orderLines struct {
	items    []model.OrderItem
	bookings []model.Booking
	products map[int64]model.Product
}

func loadOrderLines(ctx context.Context, r repo.TxRepos, orderID int64) (orderLines, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return orderLines{}, internalError(err)
	}
	bookings, err := r.Bookings().ListByOrderID(ctx, orderID)
	if err != nil {
		return orderLines{}, internalError(err)
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := r.Products().ListByIDs(ctx, ids)
	if err != nil {
		return orderLines{}, internalError(err)
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	return orderLines{items: items, bookings: bookings, products: byID}, nil
}

func (l orderLines) empty() bool {
	return len(l.items) == 0 && len(l.bookings) == 0
}

func (l orderLines) subtotal() decimal.Decimal {
	return model.Subtotal(l.items, l.bookings)
}

// 明細・予約の商品（予約は枠の商品）
func (l orderLines) lineProducts() []model.Product {
	out := make([]model.Product, 0, len(l.items)+len(l.bookings))
	for _, it := range l.items {
		if p, ok := l.products[it.ProductID]; ok {
			out = append(out, p)
		}
	}
	for _, b := range l.bookings {
		if b.DeliverySlot != nil && b.DeliverySlot.Product != nil {
			out = append(out, *b.DeliverySlot.Product)
		}
	}
	return out
}

// 出品者の商品だけに絞る
func (l orderLines) forProducer(producerID int64) orderLines {
	out := orderLines{products: l.products}
	for _, it := range l.items {
		if p, ok := l.products[it.ProductID]; ok && p.ProducerID == producerID {
			out.items = append(out.items, it)
		}
	}
	for _, b := range l.bookings {
		if b.DeliverySlot != nil && b.DeliverySlot.Product != nil && b.DeliverySlot.Product.ProducerID == producerID {
			out.bookings = append(out.bookings, b)
		}
	}
	return out
}

func (l orderLines) views() []LineView {
	out := make([]LineView, 0, len(l.items)+len(l.bookings))
	for _, it := range l.items {
		p := l.products[it.ProductID]
		out = append(out, LineView{
			ID:          it.ID,
			Kind:        lineKindItem,
			ProductID:   it.ProductID,
			ProductName: p.Name,
			Unit:        p.Unit,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal(),
		})
	}
	for _, b := range l.bookings {
		v := LineView{
			ID:        b.ID,
			Kind:      lineKindBooking,
			Quantity:  b.Quantity,
			LineTotal: b.LineTotal(),
		}
		slotID := b.DeliverySlotID
		v.DeliverySlotID = &slotID
		if s := b.DeliverySlot; s != nil {
			v.DeliveryDate = s.Date.Format(dateLayout)
			v.ProductID = s.ProductID
			if s.Product != nil {
				v.ProductName = s.Product.Name
				v.Unit = s.Product.Unit
				v.UnitPrice = b.UnitPrice(s.Product.Price)
			}
		}
		out = append(out, v)
	}
	return out
}

type orderViewOptions struct {
	invoice *model.Invoice
	now     time.Time
	// カートで配送料を試算するとき（空ならmetadataの値）
	deliveryType  model.DeliveryType
	withBreakdown bool
}

func buildOrderView(o model.Order, lines orderLines, opt orderViewOptions) OrderView {
	meta := o.Meta()
	deliveryType := meta.DeliveryType
	if opt.deliveryType != "" {
		deliveryType = opt.deliveryType
	}
	if deliveryType == "" {
		deliveryType = model.DeliveryTypePickup
	}

	breakdown := model.ComputeBreakdown(lines.subtotal(), deliveryType)

	v := OrderView{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		DeliveryType:  deliveryType,
		DeliveryInfo:  meta.DeliveryInfo,
		PaymentMethod: meta.PaymentMethod,
		Items:         lines.views(),
		Totals:        breakdown.ClientView(),
		CheckedOutAt:  o.CheckedOutAt,
		CreatedAt:     o.CreatedAt,
	}
	if o.Status != model.OrderStatusDraft {
		v.PaymentStatus = model.EffectivePaymentState(meta, opt.invoice, opt.now)
	}
	if opt.withBreakdown {
		v.Breakdown = &breakdown
	}
	return v
}

// 請求書があれば読む（無ければnil）
func findInvoice(ctx context.Context, r repo.TxRepos, orderID int64) (*model.Invoice, error) {
	inv, found, err := r.Invoices().FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, internalError(err)
	}
	if !found {
		return nil, nil
	}
	return &inv, nil
}

// 合計を明細と予約から計算し直して保存
func recomputeTotal(ctx context.Context, r repo.TxRepos, orderID int64) (orderLines, error) {
	lines, err := loadOrderLines(ctx, r, orderID)
	if err != nil {
		return orderLines{}, err
	}
	if err := r.Orders().UpdateTotal(ctx, orderID, lines.subtotal()); err != nil {
		return orderLines{}, fromRepoError(err)
	}
	return lines, nil
}
