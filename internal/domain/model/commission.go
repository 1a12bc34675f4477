package model

import "github.com/shopspring/decimal"

var (
	// 配送（delivery）のときだけ加算
	DeliveryFee = decimal.RequireFromString("15.00")

	// プラットフォーム手数料率。小計から差し引く（顧客には上乗せしない）
	CommissionRate = decimal.RequireFromString("0.05")
)

// 小計から計算する内訳。永続化しない。
// GrandTotalだけが顧客に請求される金額。
type CommissionBreakdown struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Commission  decimal.Decimal `json:"commission"`
	ProducerNet decimal.Decimal `json:"producer_net"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
}

// 顧客向け（手数料は出さない）
type ClientTotals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
}

func DeliveryFeeFor(t DeliveryType) decimal.Decimal {
	if t == DeliveryTypeDelivery {
		return DeliveryFee
	}
	return decimal.Zero
}

func Commission(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(CommissionRate).Round(2)
}

// checkout・注文詳細・請求書・売上の全画面でこれを使う
func ComputeBreakdown(subtotal decimal.Decimal, t DeliveryType) CommissionBreakdown {
	fee := DeliveryFeeFor(t)
	commission := Commission(subtotal)
	return CommissionBreakdown{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Commission:  commission,
		ProducerNet: subtotal.Sub(commission),
		GrandTotal:  subtotal.Add(fee),
	}
}

func (b CommissionBreakdown) ClientView() ClientTotals {
	return ClientTotals{
		Subtotal:    b.Subtotal,
		DeliveryFee: b.DeliveryFee,
		GrandTotal:  b.GrandTotal,
	}
}

// 明細と予約の小計。
// 予約の商品価格はDeliverySlot.Productから取る（preload前提）。
func Subtotal(items []OrderItem, bookings []Booking) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	for _, b := range bookings {
		total = total.Add(b.LineTotal())
	}
	return total
}
