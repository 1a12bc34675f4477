package usecase

import (
	"context"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

type AdminOrderUsecase struct {
	tx    repo.TransactionManager
	clock Clock
}

func NewAdminOrderUsecase(tx repo.TransactionManager, clock Clock) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, clock: clock}
}

type OrderStatsView struct {
	ByStatus map[model.OrderStatus]int64 `json:"by_status"`
	Total    int64                       `json:"total"`
}

func validateAdminFilter(f *repo.AdminOrderListFilter) error {
	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	if f.Status == "" {
		return nil
	}
	// DRAFTを指定しても一覧のスコープで空になる
	if _, ok := model.ParseOrderStatus(f.Status); !ok {
		return NewKindError(KindBadRequest, "invalid status")
	}
	return nil
}

// 注文一覧（DRAFTは出ない）。内訳付き。
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListView, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return OrderListView{}, NewKindError(KindBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListView{}, NewKindError(KindBadRequest, "invalid limit")
	}
	if err := validateAdminFilter(&f); err != nil {
		return OrderListView{}, err
	}

	out := OrderListView{Items: []OrderView{}, Page: f.Page, Limit: f.Limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
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
			out.Items = append(out.Items, buildOrderView(o, lines, orderViewOptions{
				invoice:       inv,
				now:           now,
				withBreakdown: true,
			}))
		}
		return nil
	})

	if err != nil {
		return OrderListView{}, err
	}
	return out, nil
}

// ステータス別の件数（DRAFTは数えない）
func (u *AdminOrderUsecase) Stats(ctx context.Context, f repo.AdminOrderListFilter) (OrderStatsView, error) {
	if err := validateAdminFilter(&f); err != nil {
		return OrderStatsView{}, err
	}

	out := OrderStatsView{ByStatus: map[model.OrderStatus]int64{}}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		counts, err := r.Orders().CountByStatus(ctx, f)
		if err != nil {
			return internalError(err)
		}
		for _, st := range model.VisibleOrderStatuses() {
			out.ByStatus[st] = counts[st]
			out.Total += counts[st]
		}
		return nil
	})
	if err != nil {
		return OrderStatsView{}, err
	}
	return out, nil
}

// 監査ログの絞り込み。Actionは空なら全件。
type AuditLogQuery struct {
	Action      string
	ActorUserID *int64
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// 注文の監査ログ（新しい順）
func (u *AdminOrderUsecase) AuditLogs(ctx context.Context, orderID int64, q AuditLogQuery) ([]model.AuditLog, error) {
	if orderID <= 0 {
		return nil, NewKindError(KindBadRequest, "invalid id")
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, NewKindError(KindBadRequest, "to must not be before from")
	}

	f := repo.AuditLogFilter{
		ResourceType: model.AuditResourceOrder,
		ResourceID:   orderID,
		ActorUserID:  q.ActorUserID,
		From:         q.From,
		To:           q.To,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}
	if q.Action != "" {
		a, ok := model.ParseAuditAction(q.Action)
		if !ok {
			return nil, NewKindError(KindBadRequest, "invalid action")
		}
		f.Action = &a
	}

	var out []model.AuditLog
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		logs, err := r.AuditLogs().ListByResource(ctx, f)
		if err != nil {
			return internalError(err)
		}
		out = logs
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.AuditLog{}
	}
	return out, nil
}
