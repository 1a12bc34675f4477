package usecase

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// 出品者の売上（自分の商品の明細だけを集計）
type ProducerRevenueUsecase struct {
	tx    repo.TransactionManager
	clock Clock
}

func NewProducerRevenueUsecase(tx repo.TransactionManager, clock Clock) *ProducerRevenueUsecase {
	return &ProducerRevenueUsecase{tx: tx, clock: clock}
}

type RevenueRow struct {
	OrderID       int64              `json:"order_id"`
	Status        model.OrderStatus  `json:"status"`
	PaymentStatus model.PaymentState `json:"payment_status"`
	CheckedOutAt  *time.Time         `json:"checked_out_at,omitempty"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	Commission    decimal.Decimal    `json:"commission"`
	ProducerNet   decimal.Decimal    `json:"producer_net"`
}

type RevenueReport struct {
	ProducerID  int64           `json:"producer_id"`
	Orders      []RevenueRow    `json:"orders"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Commission  decimal.Decimal `json:"commission"`
	ProducerNet decimal.Decimal `json:"producer_net"`
}

// CSVの1行
type revenueCSVRow struct {
	OrderID       int64  `csv:"order_id"`
	CheckedOutAt  string `csv:"checked_out_at"`
	Status        string `csv:"status"`
	PaymentStatus string `csv:"payment_status"`
	Subtotal      string `csv:"subtotal"`
	Commission    string `csv:"commission"`
	ProducerNet   string `csv:"producer_net"`
}

func (u *ProducerRevenueUsecase) Report(ctx context.Context, actor Actor, from, to *time.Time) (RevenueReport, error) {
	if actor.UserID <= 0 {
		return RevenueReport{}, NewKindError(KindUnauthorized, "unauthorized")
	}
	if !actor.IsProducer() && !actor.IsAdmin() {
		return RevenueReport{}, NewKindError(KindForbidden, "forbidden")
	}
	if from != nil && to != nil && to.Before(*from) {
		return RevenueReport{}, NewKindError(KindBadRequest, "to must not be before from")
	}

	producerID := actor.ProducerKey()
	out := RevenueReport{
		ProducerID:  producerID,
		Orders:      []RevenueRow{},
		Subtotal:    decimal.Zero,
		Commission:  decimal.Zero,
		ProducerNet: decimal.Zero,
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, err := r.Orders().ListByProducer(ctx, repo.ProducerOrderFilter{
			ProducerID: producerID,
			From:       from,
			To:         to,
		})
		if err != nil {
			return internalError(err)
		}

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

			// 配送料は出品者の売上に含めない
			b := model.ComputeBreakdown(lines.forProducer(producerID).subtotal(), model.DeliveryTypePickup)
			out.Orders = append(out.Orders, RevenueRow{
				OrderID:       o.ID,
				Status:        o.Status,
				PaymentStatus: model.EffectivePaymentState(o.Meta(), inv, now),
				CheckedOutAt:  o.CheckedOutAt,
				Subtotal:      b.Subtotal,
				Commission:    b.Commission,
				ProducerNet:   b.ProducerNet,
			})
			out.Subtotal = out.Subtotal.Add(b.Subtotal)
			out.Commission = out.Commission.Add(b.Commission)
			out.ProducerNet = out.ProducerNet.Add(b.ProducerNet)
		}
		return nil
	})
	if err != nil {
		return RevenueReport{}, err
	}
	return out, nil
}

// 会計ソフト取り込み用
func (rep RevenueReport) CSV() ([]byte, error) {
	rows := make([]revenueCSVRow, 0, len(rep.Orders))
	for _, o := range rep.Orders {
		row := revenueCSVRow{
			OrderID:       o.OrderID,
			Status:        string(o.Status),
			PaymentStatus: string(o.PaymentStatus),
			Subtotal:      o.Subtotal.StringFixed(2),
			Commission:    o.Commission.StringFixed(2),
			ProducerNet:   o.ProducerNet.StringFixed(2),
		}
		if o.CheckedOutAt != nil {
			row.CheckedOutAt = o.CheckedOutAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return gocsv.MarshalBytes(&rows)
}
