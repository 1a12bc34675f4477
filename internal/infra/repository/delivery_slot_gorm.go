package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type DeliverySlotGormRepository struct {
	db *gorm.DB
}

func NewDeliverySlotGormRepository(db *gorm.DB) *DeliverySlotGormRepository {
	return &DeliverySlotGormRepository{db: db}
}

func (r *DeliverySlotGormRepository) FindByID(ctx context.Context, slotID int64) (model.DeliverySlot, error) {
	var s model.DeliverySlot
	err := r.db.WithContext(ctx).Preload("Product").Where("id = ?", slotID).First(&s).Error
	if isNotFound(err) {
		return model.DeliverySlot{}, repo.ErrNotFound
	}
	if err != nil {
		return model.DeliverySlot{}, err
	}
	return s, nil
}

// 枠が足りて、日付が今日以降のときだけ加算する。
// 読んでから書くと同時予約で超過するので、判定と加算は1本のUPDATEで行う。
func (r *DeliverySlotGormRepository) Reserve(ctx context.Context, slotID int64, qty int64, today time.Time) (model.DeliverySlot, error) {
	if qty <= 0 {
		return model.DeliverySlot{}, errors.New("invalid quantity")
	}

	res := r.db.WithContext(ctx).
		Model(&model.DeliverySlot{}).
		Where("id = ? AND reserved + ? <= max_capacity AND date >= ?", slotID, qty, model.DateOf(today).Format(dateLayout)).
		Updates(map[string]interface{}{
			"reserved":     gorm.Expr("reserved + ?", qty),
			"is_available": gorm.Expr("reserved + ? < max_capacity", qty),
		})
	if res.Error != nil {
		return model.DeliverySlot{}, res.Error
	}

	if res.RowsAffected == 0 {
		// 失敗理由の判定だけに読む（reservedは変えていない）
		s, err := r.FindByID(ctx, slotID)
		if err != nil {
			return model.DeliverySlot{}, err
		}
		if s.Expired(today) {
			return s, repo.ErrSlotExpired
		}
		return s, repo.ErrCapacityExceeded
	}

	return r.FindByID(ctx, slotID)
}

// 解放（0未満にはしない）
func (r *DeliverySlotGormRepository) Release(ctx context.Context, slotID int64, qty int64) (model.DeliverySlot, error) {
	if qty <= 0 {
		return r.FindByID(ctx, slotID)
	}

	res := r.db.WithContext(ctx).
		Model(&model.DeliverySlot{}).
		Where("id = ?", slotID).
		Updates(map[string]interface{}{
			"reserved":     gorm.Expr("GREATEST(reserved - ?, 0)", qty),
			"is_available": gorm.Expr("GREATEST(reserved - ?, 0) < max_capacity", qty),
		})
	if res.Error != nil {
		return model.DeliverySlot{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.DeliverySlot{}, repo.ErrNotFound
	}
	return r.FindByID(ctx, slotID)
}

func (r *DeliverySlotGormRepository) Create(ctx context.Context, slot model.DeliverySlot) (model.DeliverySlot, error) {
	slot.Date = model.DateOf(slot.Date)
	slot.IsAvailable = slot.Reserved < slot.MaxCapacity
	if err := r.db.WithContext(ctx).Omit("Product").Create(&slot).Error; err != nil {
		if isUniqueViolation(err) {
			return model.DeliverySlot{}, repo.ErrDuplicate
		}
		return model.DeliverySlot{}, err
	}
	return r.FindByID(ctx, slot.ID)
}

// 予約済み数を下回る容量には変更しない
func (r *DeliverySlotGormRepository) UpdateMaxCapacity(ctx context.Context, slotID int64, maxCapacity int64) (model.DeliverySlot, error) {
	res := r.db.WithContext(ctx).
		Model(&model.DeliverySlot{}).
		Where("id = ? AND reserved <= ?", slotID, maxCapacity).
		Updates(map[string]interface{}{
			"max_capacity": maxCapacity,
			"is_available": gorm.Expr("reserved < ?", maxCapacity),
		})
	if res.Error != nil {
		return model.DeliverySlot{}, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, slotID); err != nil {
			return model.DeliverySlot{}, err
		}
		return model.DeliverySlot{}, repo.ErrCapacityExceeded
	}
	return r.FindByID(ctx, slotID)
}

// 予約が参照している枠は消さない
func (r *DeliverySlotGormRepository) Delete(ctx context.Context, slotID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Booking{}).Where("delivery_slot_id = ?", slotID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return repo.ErrSlotInUse
		}

		res := tx.Delete(&model.DeliverySlot{}, slotID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}

// 予約画面用。期限切れと満杯は出さない。
func (r *DeliverySlotGormRepository) ListAvailableByProduct(ctx context.Context, productID int64, today time.Time) ([]model.DeliverySlot, error) {
	var slots []model.DeliverySlot
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("product_id = ? AND date >= ? AND reserved < max_capacity AND is_available = ?",
			productID, model.DateOf(today).Format(dateLayout), true).
		Order("date asc").
		Find(&slots).Error
	if err != nil {
		return []model.DeliverySlot{}, err
	}
	return slots, nil
}

// 過去分も含めて返す（集計用に履歴を残す）
func (r *DeliverySlotGormRepository) List(ctx context.Context, f repo.DeliverySlotListFilter) ([]model.DeliverySlot, error) {
	q := r.db.WithContext(ctx).
		Model(&model.DeliverySlot{}).
		Select("delivery_slots.*").
		Preload("Product")

	if f.ProducerID != nil {
		q = q.Joins("JOIN products ON products.id = delivery_slots.product_id").
			Where("products.producer_id = ?", *f.ProducerID)
	}
	if f.ProductID != nil {
		q = q.Where("delivery_slots.product_id = ?", *f.ProductID)
	}
	if f.From != nil {
		q = q.Where("delivery_slots.date >= ?", model.DateOf(*f.From).Format(dateLayout))
	}
	if f.To != nil {
		q = q.Where("delivery_slots.date <= ?", model.DateOf(*f.To).Format(dateLayout))
	}

	var slots []model.DeliverySlot
	if err := q.Order("delivery_slots.date asc").Order("delivery_slots.id asc").Find(&slots).Error; err != nil {
		return []model.DeliverySlot{}, err
	}
	return slots, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
