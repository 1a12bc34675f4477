package usecase

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

// 配送枠の容量台帳。
// 判定と加算はrepositoryの1本のUPDATEで行う。ここは「今日」の決定と解放済みの管理だけ。
type CapacityLedger struct {
	clock Clock
	loc   *time.Location
}

func NewCapacityLedger(clock Clock, loc *time.Location) *CapacityLedger {
	if loc == nil {
		loc = time.UTC
	}
	return &CapacityLedger{clock: clock, loc: loc}
}

// 予約できた数量と、更新後の枠
type Reservation struct {
	SlotID   int64
	Quantity int64
	Slot     model.DeliverySlot
}

// 市場のタイムゾーンでの今日
func (l *CapacityLedger) Today() time.Time {
	return model.Today(l.clock.Now(), l.loc)
}

func (l *CapacityLedger) Reserve(ctx context.Context, slots repo.DeliverySlotRepository, slotID int64, qty int64) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, NewKindError(KindBadRequest, "invalid quantity")
	}
	s, err := slots.Reserve(ctx, slotID, qty, l.Today())
	if err != nil {
		return Reservation{}, fromRepoError(err)
	}
	return Reservation{SlotID: slotID, Quantity: qty, Slot: s}, nil
}

// 予約の数量を枠へ戻して解放済みにする。解放済みなら何もしない。
// 戻した数量を返す。
func (l *CapacityLedger) ReleaseBooking(ctx context.Context, r repo.TxRepos, b model.Booking) (int64, error) {
	if b.Released() {
		return 0, nil
	}
	if _, err := r.Slots().Release(ctx, b.DeliverySlotID, b.Quantity); err != nil {
		return 0, fromRepoError(err)
	}
	if err := r.Bookings().MarkReleased(ctx, b.ID, l.clock.Now()); err != nil {
		return 0, fromRepoError(err)
	}
	return b.Quantity, nil
}

// 表示用の枠
type SlotView struct {
	ID            int64   `json:"id"`
	ProductID     int64   `json:"product_id"`
	ProductName   string  `json:"product_name,omitempty"`
	Date          string  `json:"date"`
	MaxCapacity   int64   `json:"max_capacity"`
	Reserved      int64   `json:"reserved"`
	Remaining     int64   `json:"remaining"`
	OccupancyRate float64 `json:"occupancy_rate"`
	AlmostFull    bool    `json:"almost_full"`
	Available     bool    `json:"available"`
	Expired       bool    `json:"expired"`
}

func toSlotView(s model.DeliverySlot, today time.Time) SlotView {
	v := SlotView{
		ID:            s.ID,
		ProductID:     s.ProductID,
		Date:          s.Date.Format(dateLayout),
		MaxCapacity:   s.MaxCapacity,
		Reserved:      s.Reserved,
		Remaining:     s.Remaining(),
		OccupancyRate: s.OccupancyRate(),
		AlmostFull:    s.AlmostFull(),
		Available:     s.Available(today),
		Expired:       s.Expired(today),
	}
	if s.Product != nil {
		v.ProductName = s.Product.Name
	}
	return v
}

const dateLayout = "2006-01-02"
