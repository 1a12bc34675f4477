package repository

import (
	"context"

	"marketplace/internal/domain/model"

	"github.com/shopspring/decimal"
)

type InvoiceRepository interface {
	Create(ctx context.Context, inv model.Invoice) (model.Invoice, error)
	FindByOrderID(ctx context.Context, orderID int64) (model.Invoice, bool, error)

	// チェックアウト後に明細が減ったときの請求額の更新
	UpdateAmount(ctx context.Context, invoiceID int64, amount decimal.Decimal) error
}
