package usecase

import (
	"context"
	"errors"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

// カート（DRAFT注文）の明細と配送枠予約。
// 変更はすべて注文行をロックしてから1トランザクションで行う。
type CartUsecase struct {
	tx     repo.TransactionManager
	ledger *CapacityLedger
	clock  Clock
}

func NewCartUsecase(tx repo.TransactionManager, ledger *CapacityLedger, clock Clock) *CartUsecase {
	return &CartUsecase{tx: tx, ledger: ledger, clock: clock}
}

type AddItemInput struct {
	ProductID int64
	Quantity  int64
}

type AddBookingInput struct {
	DeliverySlotID int64
	Quantity       int64
}

type PaymentMethodOption struct {
	Method  model.PaymentMethod `json:"method"`
	Allowed bool                `json:"allowed"`
	Reason  string              `json:"reason,omitempty"`
}

// DRAFTを取得し、無ければ作る
func (u *CartUsecase) Current(ctx context.Context, actor Actor, deliveryType string) (OrderView, error) {
	if actor.UserID <= 0 {
		return OrderView{}, NewKindError(KindUnauthorized, "unauthorized")
	}

	preview := model.DeliveryType("")
	if deliveryType != "" {
		t, ok := model.ParseDeliveryType(deliveryType)
		if !ok {
			return OrderView{}, NewKindError(KindBadRequest, "invalid delivery_type")
		}
		preview = t
	}

	var out OrderView
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		draft, err := r.Orders().GetOrCreateDraftByUserID(ctx, actor.UserID)
		if err != nil {
			return internalError(err)
		}
		lines, err := loadOrderLines(ctx, r, draft.ID)
		if err != nil {
			return err
		}
		out = buildOrderView(draft, lines, orderViewOptions{now: u.clock.Now(), deliveryType: preview})
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}
	return out, nil
}

// 通常商品（FRESH以外）を追加。同一商品は数量加算、単価は最初の追加時点。
func (u *CartUsecase) AddItem(ctx context.Context, actor Actor, in AddItemInput) (OrderView, error) {
	if actor.UserID <= 0 {
		return OrderView{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	if in.ProductID <= 0 {
		return OrderView{}, NewKindError(KindBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 {
		return OrderView{}, NewKindError(KindBadRequest, "invalid quantity")
	}

	return u.mutateDraft(ctx, actor, func(r repo.TxRepos, draft model.Order) error {
		p, err := r.Products().FindByID(ctx, in.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewKindError(KindProductUnavailable, "product is not available")
		}
		if err != nil {
			return internalError(err)
		}
		if !p.IsAvailable {
			return NewKindError(KindProductUnavailable, "product is not available")
		}
		if p.IsFresh() {
			return NewKindError(KindProductUnavailable, "fresh products must be booked on a delivery slot")
		}

		if in.Quantity < p.MinQuantity() {
			return minimumQuantityError(p)
		}

		if _, err := r.OrderItems().UpsertByOrderAndProduct(ctx, draft.ID, p.ID, in.Quantity, p.Price); err != nil {
			return internalError(err)
		}
		return nil
	})
}

// 配送枠を予約して明細にする。容量の判定は台帳の1本のUPDATE。
func (u *CartUsecase) AddBooking(ctx context.Context, actor Actor, in AddBookingInput) (OrderView, error) {
	if actor.UserID <= 0 {
		return OrderView{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	if in.DeliverySlotID <= 0 {
		return OrderView{}, NewKindError(KindBadRequest, "invalid delivery_slot_id")
	}
	if in.Quantity < 1 {
		return OrderView{}, NewKindError(KindBadRequest, "invalid quantity")
	}
	return u.mutateDraft(ctx, actor, func(r repo.TxRepos, draft model.Order) error {
		slot, err := r.Slots().FindByID(ctx, in.DeliverySlotID)
		if err != nil {
			return fromRepoError(err)
		}
		if slot.Product == nil || !slot.Product.IsAvailable {
			return NewKindError(KindProductUnavailable, "product is not available")
		}
		if in.Quantity < slot.Product.MinQuantity() {
			return minimumQuantityError(*slot.Product)
		}

		res, err := u.ledger.Reserve(ctx, r.Slots(), slot.ID, in.Quantity)
		if err != nil {
			return err
		}

		// 単価は予約時点の商品価格で固定（明細のUnitPriceと同じ）
		price := slot.Product.Price
		if _, err := r.Bookings().Create(ctx, model.Booking{
			OrderID:        draft.ID,
			DeliverySlotID: res.SlotID,
			Quantity:       res.Quantity,
			Price:          &price,
		}); err != nil {
			return internalError(err)
		}
		return nil
	})
}

// 明細の削除（DRAFTかPENDING）。最後の1行を消しても注文は残す。
func (u *CartUsecase) RemoveItem(ctx context.Context, actor Actor, itemID int64) (OrderView, error) {
	if actor.UserID <= 0 {
		return OrderView{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	if itemID <= 0 {
		return OrderView{}, NewKindError(KindBadRequest, "invalid id")
	}

	var out OrderView
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		item, err := r.OrderItems().FindByID(ctx, itemID)
		if err != nil {
			return fromRepoError(err)
		}
		o, err := u.lockOwnedForRemoval(ctx, r, actor, item.OrderID)
		if err != nil {
			return err
		}

		if err := r.OrderItems().DeleteByID(ctx, item.ID); err != nil {
			return fromRepoError(err)
		}

		out, err = u.afterMutation(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderView{}, err
	}
	return out, nil
}

// 予約の取消。容量を戻してから行を消す（DRAFTかPENDING）。
func (u *CartUsecase) CancelBooking(ctx context.Context, actor Actor, bookingID int64) (OrderView, error) {
	if actor.UserID <= 0 {
		return OrderView{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	if bookingID <= 0 {
		return OrderView{}, NewKindError(KindBadRequest, "invalid id")
	}

	var out OrderView
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		b, err := r.Bookings().FindByID(ctx, bookingID)
		if err != nil {
			return fromRepoError(err)
		}
		o, err := u.lockOwnedForRemoval(ctx, r, actor, b.OrderID)
		if err != nil {
			return err
		}

		// ロック後に読み直す（解放済みの判定を確定させる）
		b, err = r.Bookings().FindByID(ctx, bookingID)
		if err != nil {
			return fromRepoError(err)
		}
		if _, err := u.ledger.ReleaseBooking(ctx, r, b); err != nil {
			return err
		}
		if err := r.Bookings().DeleteByID(ctx, b.ID); err != nil {
			return fromRepoError(err)
		}

		out, err = u.afterMutation(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderView{}, err
	}
	return out, nil
}

// 後払いは全商品が受け付けるときだけ
func (u *CartUsecase) PaymentMethods(ctx context.Context, actor Actor) ([]PaymentMethodOption, error) {
	if actor.UserID <= 0 {
		return nil, NewKindError(KindUnauthorized, "unauthorized")
	}

	var out []PaymentMethodOption
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		draft, err := r.Orders().GetOrCreateDraftByUserID(ctx, actor.UserID)
		if err != nil {
			return internalError(err)
		}
		lines, err := loadOrderLines(ctx, r, draft.ID)
		if err != nil {
			return err
		}
		out = paymentOptions(lines)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func paymentOptions(lines orderLines) []PaymentMethodOption {
	deferred := PaymentMethodOption{Method: model.PaymentMethodInvoice, Allowed: true}
	if lines.empty() {
		deferred.Allowed = false
		deferred.Reason = "cart is empty"
	} else if !acceptsDeferred(lines) {
		deferred.Allowed = false
		deferred.Reason = "not every product accepts deferred payment"
	}
	return []PaymentMethodOption{
		deferred,
		{Method: model.PaymentMethodCard, Allowed: true},
		{Method: model.PaymentMethodBankTransfer, Allowed: true},
	}
}

func acceptsDeferred(lines orderLines) bool {
	products := lines.lineProducts()
	if len(products) == 0 {
		return false
	}
	for _, p := range products {
		if !p.AcceptDeferred {
			return false
		}
	}
	return true
}

// DRAFTを取得・ロックしてfnを実行し、合計を更新して表示を返す
func (u *CartUsecase) mutateDraft(ctx context.Context, actor Actor, fn func(r repo.TxRepos, draft model.Order) error) (OrderView, error) {
	var out OrderView
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		draft, err := r.Orders().GetOrCreateDraftByUserID(ctx, actor.UserID)
		if err != nil {
			return internalError(err)
		}
		draft, err = r.Orders().FindByIDForUpdate(ctx, draft.ID)
		if err != nil {
			return fromRepoError(err)
		}
		if !draft.Status.AcceptsNewLines() {
			return NewKindError(KindInvalidTransition, "order no longer accepts new lines")
		}

		if err := fn(r, draft); err != nil {
			return err
		}

		out, err = u.afterMutation(ctx, r, draft)
		return err
	})
	if err != nil {
		return OrderView{}, err
	}
	return out, nil
}

// 他人の注文は存在しない扱い
func (u *CartUsecase) lockOwnedForRemoval(ctx context.Context, r repo.TxRepos, actor Actor, orderID int64) (model.Order, error) {
	o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return model.Order{}, fromRepoError(err)
	}
	if o.UserID != actor.UserID {
		return model.Order{}, NewKindError(KindNotFound, "not found")
	}
	if !o.Status.AcceptsLineRemoval() {
		return model.Order{}, NewKindError(KindInvalidTransition, "lines can only be removed from draft or pending orders")
	}
	return o, nil
}

func (u *CartUsecase) afterMutation(ctx context.Context, r repo.TxRepos, o model.Order) (OrderView, error) {
	lines, err := recomputeTotal(ctx, r, o.ID)
	if err != nil {
		return OrderView{}, err
	}
	inv, err := findInvoice(ctx, r, o.ID)
	if err != nil {
		return OrderView{}, err
	}
	// 請求書払いの注文は請求額も合わせる
	if inv != nil {
		amount := model.ComputeBreakdown(lines.subtotal(), o.Meta().DeliveryType).GrandTotal
		if !amount.Equal(inv.Amount) {
			if err := r.Invoices().UpdateAmount(ctx, inv.ID, amount); err != nil {
				return OrderView{}, fromRepoError(err)
			}
			inv.Amount = amount
		}
	}
	o.Total = lines.subtotal()
	return buildOrderView(o, lines, orderViewOptions{invoice: inv, now: u.clock.Now()}), nil
}

func minimumQuantityError(p model.Product) error {
	return NewKindError(KindMinimumQuantityNotMet,
		"minimum order quantity for "+p.Name+" is "+formatQty(p.MinQuantity())+" "+p.Unit)
}
