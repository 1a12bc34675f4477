package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.uber.org/zap"
)

// 配送枠の参照と、出品者による枠の管理
type DeliverySlotUsecase struct {
	tx      repo.TransactionManager
	ledger  *CapacityLedger
	sweeper DraftSweeper
	events  EventPublisher
	clock   Clock
	log     *zap.Logger
}

func NewDeliverySlotUsecase(tx repo.TransactionManager, ledger *CapacityLedger, sweeper DraftSweeper, events EventPublisher, clock Clock, log *zap.Logger) *DeliverySlotUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &DeliverySlotUsecase{tx: tx, ledger: ledger, sweeper: sweeper, events: events, clock: clock, log: log}
}

type CreateSlotInput struct {
	ProductID   int64
	Date        time.Time
	MaxCapacity int64
}

type SlotOverviewFilter struct {
	ProductID *int64
	From      *time.Time
	To        *time.Time
}

type SlotOverview struct {
	Slots         []SlotView `json:"slots"`
	TotalCapacity int64      `json:"total_capacity"`
	TotalReserved int64      `json:"total_reserved"`
	AlmostFull    int        `json:"almost_full"`
}

// 予約画面用（期限切れ・満杯は出さない）
func (u *DeliverySlotUsecase) ListAvailable(ctx context.Context, productID int64) ([]SlotView, error) {
	if productID <= 0 {
		return nil, NewKindError(KindBadRequest, "invalid product_id")
	}

	today := u.ledger.Today()
	out := []SlotView{}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		slots, err := r.Slots().ListAvailableByProduct(ctx, productID, today)
		if err != nil {
			return internalError(err)
		}
		for _, s := range slots {
			out = append(out, toSlotView(s, today))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// 出品者の枠一覧（過去分も含む）。開く前に放置分を回収する。
func (u *DeliverySlotUsecase) Overview(ctx context.Context, actor Actor, f SlotOverviewFilter) (SlotOverview, error) {
	if err := requireProducer(actor); err != nil {
		return SlotOverview{}, err
	}

	sweepBestEffort(ctx, u.sweeper, u.log, "slot_overview")

	filter := repo.DeliverySlotListFilter{ProductID: f.ProductID, From: f.From, To: f.To}
	if !actor.IsAdmin() {
		pid := actor.ProducerKey()
		filter.ProducerID = &pid
	}

	today := u.ledger.Today()
	out := SlotOverview{Slots: []SlotView{}}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		slots, err := r.Slots().List(ctx, filter)
		if err != nil {
			return internalError(err)
		}
		for _, s := range slots {
			v := toSlotView(s, today)
			out.Slots = append(out.Slots, v)
			out.TotalCapacity += s.MaxCapacity
			out.TotalReserved += s.Reserved
			if v.AlmostFull {
				out.AlmostFull++
			}
		}
		return nil
	})
	if err != nil {
		return SlotOverview{}, err
	}
	return out, nil
}

// FRESH商品にだけ作れる。過去日付は不可。
func (u *DeliverySlotUsecase) Create(ctx context.Context, actor Actor, in CreateSlotInput) (SlotView, error) {
	if err := requireProducer(actor); err != nil {
		return SlotView{}, err
	}

	fields := map[string]string{}
	if in.ProductID <= 0 {
		fields["product_id"] = "required"
	}
	if in.MaxCapacity < 1 {
		fields["max_capacity"] = "must be at least 1"
	}
	today := u.ledger.Today()
	if in.Date.IsZero() {
		fields["date"] = "required"
	} else if model.DateOf(in.Date).Before(today) {
		fields["date"] = "must not be in the past"
	}
	if len(fields) > 0 {
		return SlotView{}, NewValidationError(fields)
	}

	var out SlotView
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, in.ProductID)
		if err != nil {
			return fromRepoError(err)
		}
		if !actor.IsAdmin() && p.ProducerID != actor.ProducerKey() {
			return NewKindError(KindForbidden, "product belongs to another producer")
		}
		if !p.IsFresh() {
			return NewValidationError(map[string]string{"product_id": "delivery slots are only for fresh products"})
		}

		s, err := r.Slots().Create(ctx, model.DeliverySlot{
			ProductID:   p.ID,
			Date:        in.Date,
			MaxCapacity: in.MaxCapacity,
		})
		if err != nil {
			return fromRepoError(err)
		}
		out = toSlotView(s, today)
		return nil
	})
	if err != nil {
		return SlotView{}, err
	}
	return out, nil
}

// 容量の変更。予約済み数は下回れない。
func (u *DeliverySlotUsecase) UpdateCapacity(ctx context.Context, actor Actor, slotID int64, maxCapacity int64) (SlotView, error) {
	if err := requireProducer(actor); err != nil {
		return SlotView{}, err
	}
	if slotID <= 0 {
		return SlotView{}, NewKindError(KindBadRequest, "invalid id")
	}
	if maxCapacity < 0 {
		return SlotView{}, NewValidationError(map[string]string{"max_capacity": "must not be negative"})
	}

	today := u.ledger.Today()
	var out SlotView
	var before model.DeliverySlot
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		s, err := u.findOwned(ctx, r, actor, slotID)
		if err != nil {
			return err
		}
		before = s

		updated, err := r.Slots().UpdateMaxCapacity(ctx, slotID, maxCapacity)
		if errors.Is(err, repo.ErrCapacityExceeded) {
			return NewKindError(KindCapacityExceeded, "capacity cannot go below reserved quantity")
		}
		if err != nil {
			return fromRepoError(err)
		}

		beforeJSON, _ := json.Marshal(map[string]int64{"max_capacity": before.MaxCapacity, "reserved": before.Reserved})
		afterJSON, _ := json.Marshal(map[string]int64{"max_capacity": updated.MaxCapacity, "reserved": updated.Reserved})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actor.UserID,
			Action:       model.AuditActionUpdateSlotCapacity,
			ResourceType: model.AuditResourceDeliverySlot,
			ResourceID:   slotID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return internalError(err)
		}

		out = toSlotView(updated, today)
		return nil
	})
	if err != nil {
		return SlotView{}, err
	}

	if u.events != nil {
		if err := u.events.Publish(ctx, EventDeliverySlotChanged, slotID, out); err != nil {
			u.log.Warn("publish slot event failed", zap.Int64("slot_id", slotID), zap.Error(err))
		}
	}
	return out, nil
}

// 予約が参照している枠は消せない
func (u *DeliverySlotUsecase) Delete(ctx context.Context, actor Actor, slotID int64) error {
	if err := requireProducer(actor); err != nil {
		return err
	}
	if slotID <= 0 {
		return NewKindError(KindBadRequest, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := u.findOwned(ctx, r, actor, slotID); err != nil {
			return err
		}
		n, err := r.Bookings().CountBySlotID(ctx, slotID)
		if err != nil {
			return internalError(err)
		}
		if n > 0 {
			return NewKindError(KindConflict, "delivery slot has "+formatQty(n)+" booking(s)")
		}
		return fromRepoError(r.Slots().Delete(ctx, slotID))
	})
}

// 手動の回収（POST /delivery-slots/cleanup, /bookings/cleanup）
func (u *DeliverySlotUsecase) Cleanup(ctx context.Context) (SweepResult, error) {
	if u.sweeper == nil {
		return SweepResult{}, nil
	}
	// 失敗はログだけ。途中までの結果を返す。
	res, err := u.sweeper.Sweep(ctx)
	if err != nil {
		u.log.Warn("manual sweep failed", zap.Error(err))
	}
	return res, nil
}

func (u *DeliverySlotUsecase) findOwned(ctx context.Context, r repo.TxRepos, actor Actor, slotID int64) (model.DeliverySlot, error) {
	s, err := r.Slots().FindByID(ctx, slotID)
	if err != nil {
		return model.DeliverySlot{}, fromRepoError(err)
	}
	if actor.IsAdmin() {
		return s, nil
	}
	if s.Product == nil || s.Product.ProducerID != actor.ProducerKey() {
		return model.DeliverySlot{}, NewKindError(KindForbidden, "delivery slot belongs to another producer")
	}
	return s, nil
}

func requireProducer(actor Actor) error {
	if actor.UserID <= 0 {
		return NewKindError(KindUnauthorized, "unauthorized")
	}
	if !actor.IsProducer() && !actor.IsAdmin() {
		return NewKindError(KindForbidden, "forbidden")
	}
	return nil
}
