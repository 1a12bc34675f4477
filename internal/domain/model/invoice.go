package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// 後払い（invoice）注文の請求書。注文と1:1。
// PDF生成や入金消込は外部。ここでは作成と参照だけ。
type Invoice struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64           `gorm:"not null;uniqueIndex" json:"order_id"`
	Status    InvoiceStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	DueDate   time.Time       `gorm:"type:date;not null" json:"due_date"`
	CreatedAt time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 期日を過ぎた未払いはOVERDUE扱い
func (i Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.Status == InvoiceStatusPending && DateOf(now).After(DateOf(i.DueDate)) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// 支払い状況（配送ステータスとは独立）
type PaymentState string

const (
	PaymentStatePending        PaymentState = "PENDING"
	PaymentStatePaid           PaymentState = "PAID"
	PaymentStateFailed         PaymentState = "FAILED"
	PaymentStateInvoicePending PaymentState = "INVOICE_PENDING"
	PaymentStateInvoicePaid    PaymentState = "INVOICE_PAID"
	PaymentStateInvoiceOverdue PaymentState = "INVOICE_OVERDUE"
)

// 請求書があれば請求書を優先、無ければmetadataの支払い状況。
func EffectivePaymentState(meta OrderMetadata, inv *Invoice, now time.Time) PaymentState {
	if inv != nil {
		switch inv.EffectiveStatus(now) {
		case InvoiceStatusPaid:
			return PaymentStateInvoicePaid
		case InvoiceStatusOverdue:
			return PaymentStateInvoiceOverdue
		default:
			return PaymentStateInvoicePending
		}
	}

	switch meta.PaymentStatus {
	case PaymentStatusPaid:
		return PaymentStatePaid
	case PaymentStatusFailed:
		return PaymentStateFailed
	}
	if meta.PaymentMethod == PaymentMethodInvoice {
		if meta.DueDate != nil && DateOf(now).After(DateOf(*meta.DueDate)) {
			return PaymentStateInvoiceOverdue
		}
		return PaymentStateInvoicePending
	}
	return PaymentStatePending
}
