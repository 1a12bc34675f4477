package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.uber.org/zap"
)

type OrderUsecase struct {
	tx             repo.TransactionManager
	ledger         *CapacityLedger
	sweeper        DraftSweeper
	validator      CheckoutValidator
	events         EventPublisher
	clock          Clock
	invoiceDueDays int
	log            *zap.Logger
}

type OrderUsecaseDeps struct {
	Tx             repo.TransactionManager
	Ledger         *CapacityLedger
	Sweeper        DraftSweeper
	Validator      CheckoutValidator
	Events         EventPublisher
	Clock          Clock
	InvoiceDueDays int
	Log            *zap.Logger
}

func NewOrderUsecase(d OrderUsecaseDeps) *OrderUsecase {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &OrderUsecase{
		tx:             d.Tx,
		ledger:         d.Ledger,
		sweeper:        d.Sweeper,
		validator:      d.Validator,
		events:         d.Events,
		clock:          d.Clock,
		invoiceDueDays: d.InvoiceDueDays,
		log:            d.Log,
	}
}

type CheckoutInput struct {
	DeliveryType     string
	DeliveryInfo     *model.DeliveryAddress
	PaymentMethod    string
	PaymentStatus    string
	PaymentReference string
}

// 入力を型付きのmetadataへ。問題があればValidationFailed。
func (u *OrderUsecase) checkoutMetadata(in CheckoutInput) (model.OrderMetadata, error) {
	fields := map[string]string{}

	deliveryType, ok := model.ParseDeliveryType(in.DeliveryType)
	if !ok {
		fields["deliveryType"] = "must be pickup or delivery"
	}

	var addr *model.DeliveryAddress
	if deliveryType == model.DeliveryTypeDelivery {
		if in.DeliveryInfo == nil || in.DeliveryInfo.IsZero() {
			fields["deliveryInfo"] = "required for delivery"
		} else if u.validator != nil {
			for k, v := range u.validator.ValidateDeliveryAddress(*in.DeliveryInfo) {
				fields["deliveryInfo."+k] = v
			}
		}
		addr = in.DeliveryInfo
	}

	method, ok := model.ParsePaymentMethod(in.PaymentMethod)
	if !ok {
		fields["paymentMethod"] = "must be invoice, card or bank_transfer"
	}
	status, ok := model.ParsePaymentStatus(in.PaymentStatus)
	if !ok {
		fields["paymentStatus"] = "must be pending, paid or failed"
	}

	ref := strings.TrimSpace(in.PaymentReference)
	if len(ref) > 255 {
		fields["paymentReference"] = "too long"
	}

	if len(fields) > 0 {
		return model.OrderMetadata{}, NewValidationError(fields)
	}

	return model.OrderMetadata{
		DeliveryType:     deliveryType,
		DeliveryInfo:     addr,
		PaymentMethod:    method,
		PaymentStatus:    status,
		PaymentReference: ref,
	}, nil
}

// DRAFT→PENDING。合計・metadata・請求書を確定する。
func (u *OrderUsecase) Checkout(ctx context.Context, actor Actor, orderID int64, in CheckoutInput) (OrderView, error) {
	if actor.UserID <= 0 {
		return OrderView{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderView{}, NewKindError(KindBadRequest, "invalid id")
	}

	meta, err := u.checkoutMetadata(in)
	if err != nil {
		return OrderView{}, err
	}

	// 放置分の容量を先に回収しておく
	sweepBestEffort(ctx, u.sweeper, u.log, "checkout")

	var out OrderView
	var breakdown model.CommissionBreakdown
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return fromRepoError(err)
		}
		if o.UserID != actor.UserID {
			return NewKindError(KindNotFound, "not found")
		}
		if !model.CanTransition(o.Status, model.OrderStatusPending) {
			return NewKindError(KindInvalidTransition, "only draft orders can be checked out")
		}

		lines, err := loadOrderLines(ctx, r, o.ID)
		if err != nil {
			return err
		}
		if lines.empty() {
			return NewKindError(KindBadRequest, "order is empty")
		}

		for _, it := range lines.items {
			p, ok := lines.products[it.ProductID]
			if !ok || !sellable(&p) {
				return errProductUnavailable()
			}
		}
		today := u.ledger.Today()
		for _, b := range lines.bookings {
			if b.DeliverySlot == nil || b.DeliverySlot.Expired(today) {
				return NewKindError(KindSlotExpired, "a booked delivery date has passed")
			}
			if !sellable(b.DeliverySlot.Product) {
				return errProductUnavailable()
			}
		}

		if meta.PaymentMethod == model.PaymentMethodInvoice && !acceptsDeferred(lines) {
			return NewValidationError(map[string]string{
				"paymentMethod": "not every product accepts deferred payment",
			})
		}

		now := u.clock.Now()
		breakdown = model.ComputeBreakdown(lines.subtotal(), meta.DeliveryType)

		var inv *model.Invoice
		if meta.PaymentMethod == model.PaymentMethodInvoice {
			due := model.DateOf(now.AddDate(0, 0, u.invoiceDueDays))
			meta.DueDate = &due
			created, err := r.Invoices().Create(ctx, model.Invoice{
				OrderID: o.ID,
				Status:  model.InvoiceStatusPending,
				Amount:  breakdown.GrandTotal,
				DueDate: due,
			})
			if err != nil {
				return internalError(err)
			}
			inv = &created
		}

		raw, err := meta.Encode()
		if err != nil {
			return internalError(err)
		}
		if err := r.Orders().Checkout(ctx, o.ID, repo.CheckoutUpdate{
			Total:        lines.subtotal(),
			Metadata:     raw,
			CheckedOutAt: now,
		}); err != nil {
			return fromRepoError(err)
		}

		if err := writeStatusAudit(ctx, r, actor.UserID, model.AuditActionCheckoutOrder, o.ID, o.Status, model.OrderStatusPending, now); err != nil {
			return err
		}

		o.Status = model.OrderStatusPending
		o.Total = lines.subtotal()
		o.Metadata = raw
		o.CheckedOutAt = &now
		out = buildOrderView(o, lines, orderViewOptions{invoice: inv, now: now})
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}

	u.publish(ctx, EventOrderCheckedOut, orderID, OrderCheckedOutPayload{
		OrderID:       orderID,
		UserID:        actor.UserID,
		DeliveryType:  meta.DeliveryType,
		PaymentMethod: meta.PaymentMethod,
		GrandTotal:    breakdown.GrandTotal.StringFixed(2),
	})
	return out, nil
}

// 顧客によるキャンセル（PENDINGのみ）。予約の容量は同じtxで戻す。
func (u *OrderUsecase) Cancel(ctx context.Context, actor Actor, orderID int64) (OrderView, error) {
	if actor.UserID <= 0 {
		return OrderView{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderView{}, NewKindError(KindBadRequest, "invalid id")
	}

	var out OrderView
	var from model.OrderStatus
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return fromRepoError(err)
		}
		if o.Status == model.OrderStatusDraft || (o.UserID != actor.UserID && !actor.IsAdmin()) {
			return NewKindError(KindNotFound, "not found")
		}
		from = o.Status

		o, lines, err := u.transition(ctx, r, actor, o, model.OrderStatusCancelled)
		if err != nil {
			return err
		}
		inv, err := findInvoice(ctx, r, o.ID)
		if err != nil {
			return err
		}
		out = buildOrderView(o, lines, orderViewOptions{invoice: inv, now: u.clock.Now(), withBreakdown: actor.IsAdmin()})
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}

	u.publish(ctx, EventOrderCancelled, orderID, OrderStatusChangedPayload{
		OrderID: orderID, From: from, To: model.OrderStatusCancelled, ActorUserID: actor.UserID,
	})
	return out, nil
}

// 出品者・管理者によるステータス変更（1段階ずつ前進、PENDINGからはキャンセルも可）。
// 出品者は自分の商品を含む注文だけ。
func (u *OrderUsecase) UpdateStatus(ctx context.Context, actor Actor, orderID int64, status string) (OrderView, error) {
	if actor.UserID <= 0 {
		return OrderView{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	if !actor.IsAdmin() && !actor.IsProducer() {
		return OrderView{}, NewKindError(KindForbidden, "forbidden")
	}
	if orderID <= 0 {
		return OrderView{}, NewKindError(KindBadRequest, "invalid id")
	}
	to, ok := model.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !ok {
		return OrderView{}, NewValidationError(map[string]string{"status": "unknown status"})
	}

	var out OrderView
	var from model.OrderStatus
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return fromRepoError(err)
		}
		// DRAFTは存在しない扱い
		if o.Status == model.OrderStatusDraft {
			return NewKindError(KindNotFound, "not found")
		}
		if actor.IsProducer() {
			owns, err := r.Orders().ContainsProducer(ctx, o.ID, actor.ProducerKey())
			if err != nil {
				return internalError(err)
			}
			if !owns {
				return NewKindError(KindForbidden, "order does not contain your products")
			}
		}
		from = o.Status

		o, lines, err := u.transition(ctx, r, actor, o, to)
		if err != nil {
			return err
		}
		inv, err := findInvoice(ctx, r, o.ID)
		if err != nil {
			return err
		}
		out = buildOrderView(o, lines, orderViewOptions{invoice: inv, now: u.clock.Now(), withBreakdown: true})
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}

	eventType := EventOrderStatusChanged
	if to == model.OrderStatusCancelled {
		eventType = EventOrderCancelled
	}
	u.publish(ctx, eventType, orderID, OrderStatusChangedPayload{
		OrderID: orderID, From: from, To: to, ActorUserID: actor.UserID,
	})
	return out, nil
}

// 遷移表の検査→（キャンセルなら容量を戻す）→更新→監査ログ。
// 呼び出し側で注文行をロック済みであること。
func (u *OrderUsecase) transition(ctx context.Context, r repo.TxRepos, actor Actor, o model.Order, to model.OrderStatus) (model.Order, orderLines, error) {
	if !model.CanTransition(o.Status, to) {
		return model.Order{}, orderLines{}, NewKindError(KindInvalidTransition,
			"cannot change status from "+string(o.Status)+" to "+string(to))
	}

	if to == model.OrderStatusCancelled {
		bookings, err := r.Bookings().ListByOrderID(ctx, o.ID)
		if err != nil {
			return model.Order{}, orderLines{}, internalError(err)
		}
		for _, b := range bookings {
			if _, err := u.ledger.ReleaseBooking(ctx, r, b); err != nil {
				return model.Order{}, orderLines{}, err
			}
		}
	}

	if err := r.Orders().UpdateStatus(ctx, o.ID, o.Status, to); err != nil {
		return model.Order{}, orderLines{}, fromRepoError(err)
	}
	if err := writeStatusAudit(ctx, r, actor.UserID, model.AuditActionUpdateOrderStatus, o.ID, o.Status, to, u.clock.Now()); err != nil {
		return model.Order{}, orderLines{}, err
	}

	lines, err := loadOrderLines(ctx, r, o.ID)
	if err != nil {
		return model.Order{}, orderLines{}, err
	}
	o.Status = to
	return o, lines, nil
}

// 自分の注文一覧（DRAFTは出ない）
func (u *OrderUsecase) ListMine(ctx context.Context, actor Actor, page int, limit int) (OrderListView, error) {
	if actor.UserID <= 0 {
		return OrderListView{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	page, limit = normalizePage(page, limit, 20)

	out := OrderListView{Items: []OrderView{}, Page: page, Limit: limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, actor.UserID, page, limit)
		if err != nil {
			return internalError(err)
		}
		out.Total = total

		now := u.clock.Now()
		for _, o := range orders {
			lines, err := loadOrderLines(ctx, r, o.ID)
			if err != nil {
				return err
			}
			inv, err := findInvoice(ctx, r, o.ID)
			if err != nil {
				return err
			}
			out.Items = append(out.Items, buildOrderView(o, lines, orderViewOptions{invoice: inv, now: now}))
		}
		return nil
	})
	if err != nil {
		return OrderListView{}, err
	}
	return out, nil
}

// 注文詳細。DRAFTと他人の注文はNotFound。
// 管理者と、自分の商品を含む出品者は内訳（手数料）付きで見られる。
func (u *OrderUsecase) Detail(ctx context.Context, actor Actor, orderID int64) (OrderView, error) {
	if actor.UserID <= 0 {
		return OrderView{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderView{}, NewKindError(KindBadRequest, "invalid id")
	}

	var out OrderView
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, withBreakdown, err := u.findVisible(ctx, r, actor, orderID)
		if err != nil {
			return err
		}
		lines, err := loadOrderLines(ctx, r, o.ID)
		if err != nil {
			return err
		}
		inv, err := findInvoice(ctx, r, o.ID)
		if err != nil {
			return err
		}
		out = buildOrderView(o, lines, orderViewOptions{invoice: inv, now: u.clock.Now(), withBreakdown: withBreakdown})
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}
	return out, nil
}

type InvoiceView struct {
	OrderID          int64                  `json:"order_id"`
	InvoiceID        *int64                 `json:"invoice_id,omitempty"`
	Status           model.PaymentState     `json:"status"`
	DueDate          string                 `json:"due_date,omitempty"`
	IssuedAt         *time.Time             `json:"issued_at,omitempty"`
	PaymentReference string                 `json:"payment_reference,omitempty"`
	DeliveryType     model.DeliveryType     `json:"delivery_type"`
	DeliveryInfo     *model.DeliveryAddress `json:"delivery_info,omitempty"`
	Items            []LineView             `json:"items"`
	Totals           model.ClientTotals     `json:"totals"`
}

// 請求書の表示（請求書払いの注文のみ）
func (u *OrderUsecase) Invoice(ctx context.Context, actor Actor, orderID int64) (InvoiceView, error) {
	if actor.UserID <= 0 {
		return InvoiceView{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return InvoiceView{}, NewKindError(KindBadRequest, "invalid id")
	}

	var out InvoiceView
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, _, err := u.findVisible(ctx, r, actor, orderID)
		if err != nil {
			return err
		}
		inv, err := findInvoice(ctx, r, o.ID)
		if err != nil {
			return err
		}
		meta := o.Meta()
		if inv == nil && meta.PaymentMethod != model.PaymentMethodInvoice {
			return NewKindError(KindNotFound, "order has no invoice")
		}

		lines, err := loadOrderLines(ctx, r, o.ID)
		if err != nil {
			return err
		}
		now := u.clock.Now()
		view := buildOrderView(o, lines, orderViewOptions{invoice: inv, now: now})

		out = InvoiceView{
			OrderID:          o.ID,
			Status:           view.PaymentStatus,
			IssuedAt:         o.CheckedOutAt,
			PaymentReference: meta.PaymentReference,
			DeliveryType:     view.DeliveryType,
			DeliveryInfo:     view.DeliveryInfo,
			Items:            view.Items,
			Totals:           view.Totals,
		}
		if inv != nil {
			id := inv.ID
			out.InvoiceID = &id
			out.DueDate = inv.DueDate.Format(dateLayout)
		} else if meta.DueDate != nil {
			out.DueDate = meta.DueDate.Format(dateLayout)
		}
		return nil
	})
	if err != nil {
		return InvoiceView{}, err
	}
	return out, nil
}

// 見てよい注文か。戻り値のboolは内訳を出してよいか。
func (u *OrderUsecase) findVisible(ctx context.Context, r repo.TxRepos, actor Actor, orderID int64) (model.Order, bool, error) {
	o, err := r.Orders().FindByID(ctx, orderID)
	if err != nil {
		return model.Order{}, false, fromRepoError(err)
	}
	if o.Status == model.OrderStatusDraft {
		return model.Order{}, false, NewKindError(KindNotFound, "not found")
	}

	switch {
	case actor.IsAdmin():
		return o, true, nil
	case o.UserID == actor.UserID:
		return o, false, nil
	case actor.IsProducer():
		owns, err := r.Orders().ContainsProducer(ctx, o.ID, actor.ProducerKey())
		if err != nil {
			return model.Order{}, false, internalError(err)
		}
		if owns {
			return o, true, nil
		}
	}
	return model.Order{}, false, NewKindError(KindNotFound, "not found")
}

func (u *OrderUsecase) publish(ctx context.Context, eventType string, orderID int64, payload any) {
	if u.events == nil {
		return
	}
	if err := u.events.Publish(ctx, eventType, orderID, payload); err != nil {
		u.log.Warn("publish order event failed",
			zap.String("event_type", eventType),
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
	}
}

// 出品停止・削除済みの商品は確定できない
func sellable(p *model.Product) bool {
	return p != nil && p.IsAvailable && !p.DeletedAt.Valid
}

func errProductUnavailable() error {
	return NewKindError(KindProductUnavailable, "a product in the order is no longer available")
}

func writeStatusAudit(ctx context.Context, r repo.TxRepos, actorID int64, action model.AuditAction, orderID int64, from, to model.OrderStatus, now time.Time) error {
	before, _ := json.Marshal(map[string]string{"status": string(from)})
	after, _ := json.Marshal(map[string]string{"status": string(to)})
	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: model.AuditResourceOrder,
		ResourceID:   orderID,
		BeforeJSON:   string(before),
		AfterJSON:    string(after),
		CreatedAt:    now,
	}); err != nil {
		return internalError(err)
	}
	return nil
}
