package model

import "time"

// 占有率がこれを超えたら「残りわずか」表示
const AlmostFullThreshold = 0.8

// 商品×日付の配送枠。
// 0 <= Reserved <= MaxCapacity を常に守る（更新はBooking作成/解放のみ）。
type DeliverySlot struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID   int64     `gorm:"not null;index;uniqueIndex:idx_delivery_slots_product_date" json:"product_id"`
	Date        time.Time `gorm:"type:date;not null;index;uniqueIndex:idx_delivery_slots_product_date" json:"date"`
	MaxCapacity int64     `gorm:"not null;check:max_capacity >= 0" json:"max_capacity"`
	Reserved    int64     `gorm:"not null;default:0;check:reserved >= 0" json:"reserved"`

	// reserve/releaseと同じUPDATEで更新する
	IsAvailable bool `gorm:"not null;default:true" json:"is_available"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (s DeliverySlot) Remaining() int64 {
	if s.Reserved >= s.MaxCapacity {
		return 0
	}
	return s.MaxCapacity - s.Reserved
}

// 表示用。正しさには使わない。
func (s DeliverySlot) OccupancyRate() float64 {
	if s.MaxCapacity <= 0 {
		return 0
	}
	return float64(s.Reserved) / float64(s.MaxCapacity)
}

func (s DeliverySlot) AlmostFull() bool {
	return s.OccupancyRate() > AlmostFullThreshold
}

// todayより前の日付なら期限切れ
func (s DeliverySlot) Expired(today time.Time) bool {
	return DateOf(s.Date).Before(DateOf(today))
}

func (s DeliverySlot) Available(today time.Time) bool {
	return s.IsAvailable && s.Reserved < s.MaxCapacity && !s.Expired(today)
}

// 日付だけ残す（UTCの0時）。
// DBのdate型と比較できる形にそろえる。
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// 市場のタイムゾーンでの「今日」
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	return DateOf(now)
}
