package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

type BookingRepository interface {
	Create(ctx context.Context, b model.Booking) (model.Booking, error)

	// DeliverySlot.Productをpreloadして返す
	FindByID(ctx context.Context, bookingID int64) (model.Booking, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]model.Booking, error)

	MarkReleased(ctx context.Context, bookingID int64, at time.Time) error
	DeleteByID(ctx context.Context, bookingID int64) error

	// DRAFT注文に残っている、日付切れの枠への予約
	ListDraftOnExpiredSlots(ctx context.Context, today time.Time, limit int) ([]model.Booking, error)

	CountBySlotID(ctx context.Context, slotID int64) (int64, error)
}
