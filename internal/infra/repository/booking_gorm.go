package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type BookingGormRepository struct {
	db *gorm.DB
}

func NewBookingGormRepository(db *gorm.DB) *BookingGormRepository {
	return &BookingGormRepository{db: db}
}

// 論理削除された商品も予約行からは読めるようにする
func withDeletedProducts(db *gorm.DB) *gorm.DB {
	return db.Unscoped()
}

func (r *BookingGormRepository) Create(ctx context.Context, b model.Booking) (model.Booking, error) {
	if err := r.db.WithContext(ctx).Omit("DeliverySlot").Create(&b).Error; err != nil {
		return model.Booking{}, err
	}
	return r.FindByID(ctx, b.ID)
}

func (r *BookingGormRepository) FindByID(ctx context.Context, bookingID int64) (model.Booking, error) {
	var b model.Booking
	err := r.db.WithContext(ctx).
		Preload("DeliverySlot.Product", withDeletedProducts).
		Where("id = ?", bookingID).
		First(&b).Error
	if isNotFound(err) {
		return model.Booking{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (r *BookingGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.Booking, error) {
	var items []model.Booking
	err := r.db.WithContext(ctx).
		Preload("DeliverySlot.Product", withDeletedProducts).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return []model.Booking{}, err
	}
	return items, nil
}

// 解放済みに印を付ける（二重解放防止）
func (r *BookingGormRepository) MarkReleased(ctx context.Context, bookingID int64, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("id = ? AND released_at IS NULL", bookingID).
		Update("released_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *BookingGormRepository) DeleteByID(ctx context.Context, bookingID int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Booking{}, bookingID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *BookingGormRepository) ListDraftOnExpiredSlots(ctx context.Context, today time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 100
	}

	var items []model.Booking
	err := r.db.WithContext(ctx).
		Select("bookings.*").
		Joins("JOIN delivery_slots ON delivery_slots.id = bookings.delivery_slot_id").
		Joins("JOIN orders ON orders.id = bookings.order_id").
		Where("orders.status = ? AND delivery_slots.date < ?", model.OrderStatusDraft, model.DateOf(today).Format(dateLayout)).
		Preload("DeliverySlot.Product", withDeletedProducts).
		Order("bookings.order_id asc").
		Order("bookings.id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return []model.Booking{}, err
	}
	return items, nil
}

func (r *BookingGormRepository) CountBySlotID(ctx context.Context, slotID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Booking{}).Where("delivery_slot_id = ?", slotID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
