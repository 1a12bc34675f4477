package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

// DRAFTは一覧・件数に出さない。一覧系のクエリは必ずこれを通す。
func visibleOrders(db *gorm.DB) *gorm.DB {
	return db.Where("orders.status <> ?", model.OrderStatusDraft)
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error
	if isNotFound(err) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&o).Error
	if isNotFound(err) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// 掃除用。ユーザー操作中の注文は飛ばす。
func (r *OrderGormRepository) TryLockForSweep(ctx context.Context, orderID int64) (model.Order, bool, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("id = ? AND status = ?", orderID, model.OrderStatusDraft).
		First(&o).Error
	if isNotFound(err) {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, err
	}
	return o, true, nil
}

func (r *OrderGormRepository) FindDraftByUserID(ctx context.Context, userID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.OrderStatusDraft).
		Order("id desc").
		First(&o).Error
	if isNotFound(err) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// ユーザーのDRAFTを取得し、無ければ作成（1ユーザー1件は部分ユニークインデックスで保証）
func (r *OrderGormRepository) GetOrCreateDraftByUserID(ctx context.Context, userID int64) (model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, model.OrderStatusDraft).
			Order("id desc").
			First(&order).Error

		if findErr == nil {
			return nil
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		now := time.Now()
		draft := model.Order{
			UserID:    userID,
			Status:    model.OrderStatusDraft,
			Total:     decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		}

		// 同時作成で負けた側は相手のDRAFTを使う。
		// 失敗した文でtxが壊れないよう、作成はセーブポイント内で行う。
		if err := tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(&draft).Error
		}); err != nil {
			if !isUniqueViolation(err) {
				return err
			}
			retryErr := tx.
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND status = ?", userID, model.OrderStatusDraft).
				Order("id desc").
				First(&order).Error
			if retryErr == nil {
				return nil
			}
			return err
		}

		order = draft
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}
	return order, nil
}

// 合計の更新（updated_atも進むので放置判定がリセットされる）
func (r *OrderGormRepository) UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("total", total)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *OrderGormRepository) UpdateStatus(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrStatusChanged
	}
	return nil
}

func (r *OrderGormRepository) Checkout(ctx context.Context, orderID int64, u repo.CheckoutUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderStatusDraft).
		Updates(map[string]interface{}{
			"status":         model.OrderStatusPending,
			"total":          u.Total,
			"metadata":       u.Metadata,
			"checked_out_at": u.CheckedOutAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrStatusChanged
	}
	return nil
}

func (r *OrderGormRepository) DeleteByID(ctx context.Context, orderID int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Order{}, orderID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := r.db.WithContext(ctx).Model(&model.Order{}).Scopes(visibleOrders).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset := (page - 1) * limit
	if err := q.Order("id desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, err
	}
	return items, total, nil
}

func (r *OrderGormRepository) adminQuery(ctx context.Context, f repo.AdminOrderListFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&model.Order{}).Scopes(visibleOrders)

	//status 絞り込み
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	//user_id 絞り込み
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	//期間絞り込み
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	return q
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	q := r.adminQuery(ctx, f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset := (f.Page - 1) * f.Limit
	if err := q.Order("id desc").Limit(f.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}

func (r *OrderGormRepository) CountByStatus(ctx context.Context, f repo.AdminOrderListFilter) (map[model.OrderStatus]int64, error) {
	type row struct {
		Status model.OrderStatus
		Count  int64
	}

	var rows []row
	if err := r.adminQuery(ctx, f).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[model.OrderStatus]int64, len(rows))
	for _, rw := range rows {
		out[rw.Status] = rw.Count
	}
	return out, nil
}

const producerLinesSQL = `EXISTS (SELECT 1 FROM order_items oi JOIN products p ON p.id = oi.product_id
	WHERE oi.order_id = orders.id AND p.producer_id = ?)
OR EXISTS (SELECT 1 FROM bookings b JOIN delivery_slots s ON s.id = b.delivery_slot_id JOIN products p ON p.id = s.product_id
	WHERE b.order_id = orders.id AND p.producer_id = ?)`

func (r *OrderGormRepository) ListByProducer(ctx context.Context, f repo.ProducerOrderFilter) ([]model.Order, error) {
	q := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Scopes(visibleOrders).
		Where("orders.status <> ?", model.OrderStatusCancelled).
		Where(producerLinesSQL, f.ProducerID, f.ProducerID)

	if f.From != nil {
		q = q.Where("checked_out_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("checked_out_at <= ?", *f.To)
	}

	var items []model.Order
	if err := q.Order("id asc").Find(&items).Error; err != nil {
		return []model.Order{}, err
	}
	return items, nil
}

func (r *OrderGormRepository) ContainsProducer(ctx context.Context, orderID int64, producerID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("orders.id = ?", orderID).
		Where(producerLinesSQL, producerID, producerID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *OrderGormRepository) ListAbandonedDrafts(ctx context.Context, f repo.AbandonedDraftFilter) ([]model.Order, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.OrderStatusDraft, f.Before)
	if f.HoldingOnly {
		q = q.Where("EXISTS (SELECT 1 FROM bookings b WHERE b.order_id = orders.id AND b.released_at IS NULL)")
	}

	var items []model.Order
	err := q.Order("updated_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, err
	}
	return items, nil
}
