package repository

import (
	"context"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InvoiceGormRepository struct {
	db *gorm.DB
}

func NewInvoiceGormRepository(db *gorm.DB) *InvoiceGormRepository {
	return &InvoiceGormRepository{db: db}
}

func (r *InvoiceGormRepository) Create(ctx context.Context, inv model.Invoice) (model.Invoice, error) {
	inv.DueDate = model.DateOf(inv.DueDate)
	if err := r.db.WithContext(ctx).Create(&inv).Error; err != nil {
		if isUniqueViolation(err) {
			return model.Invoice{}, repo.ErrDuplicate
		}
		return model.Invoice{}, err
	}
	return inv, nil
}

// 請求書は請求書払いの注文にしかない
func (r *InvoiceGormRepository) FindByOrderID(ctx context.Context, orderID int64) (model.Invoice, bool, error) {
	var inv model.Invoice
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&inv).Error
	if isNotFound(err) {
		return model.Invoice{}, false, nil
	}
	if err != nil {
		return model.Invoice{}, false, err
	}
	return inv, true, nil
}

func (r *InvoiceGormRepository) UpdateAmount(ctx context.Context, invoiceID int64, amount decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&model.Invoice{}).
		Where("id = ?", invoiceID).
		Update("amount", amount)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
