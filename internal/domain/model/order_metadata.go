package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// 書き込み時のスキーマバージョン
const MetadataVersion = 2

type DeliveryType string

const (
	DeliveryTypePickup   DeliveryType = "pickup"
	DeliveryTypeDelivery DeliveryType = "delivery"
)

type PaymentMethod string

const (
	PaymentMethodInvoice      PaymentMethod = "invoice"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// 配送先（deliveryのときは全項目必須）
type DeliveryAddress struct {
	FullName      string `json:"fullName" validate:"required"`
	StreetAddress string `json:"streetAddress" validate:"required"`
	PostalCode    string `json:"postalCode" validate:"required,len=4,numeric"`
	City          string `json:"city" validate:"required"`
	Phone         string `json:"phone" validate:"required,phone"`
}

func (a DeliveryAddress) IsZero() bool {
	return a == DeliveryAddress{}
}

// orders.metadataの中身。
type OrderMetadata struct {
	Version          int              `json:"v"`
	DeliveryType     DeliveryType     `json:"deliveryType"`
	DeliveryInfo     *DeliveryAddress `json:"deliveryInfo,omitempty"`
	PaymentMethod    PaymentMethod    `json:"paymentMethod,omitempty"`
	PaymentStatus    PaymentStatus    `json:"paymentStatus,omitempty"`
	PaymentReference string           `json:"paymentReference,omitempty"`
	DueDate          *time.Time       `json:"dueDate,omitempty"`
}

// 常に最新バージョンで書く
func (m OrderMetadata) Encode() (string, error) {
	m.Version = MetadataVersion
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// 過去の形（フラット / deliveryInfo入れ子 / v2）をすべて受ける。
// 壊れている・空のときはゼロ値とfalse。エラーにはしない。
func ParseOrderMetadata(raw string) (OrderMetadata, bool) {
	fields, ok := decodeMetadataObject(raw)
	if !ok {
		return OrderMetadata{}, false
	}

	// deliveryInfoが文字列で保存されていた時期がある
	switch v := fields["deliveryInfo"].(type) {
	case nil, map[string]interface{}:
	case string:
		if inner, ok := decodeMetadataObject(v); ok {
			fields["deliveryInfo"] = inner
		} else {
			delete(fields, "deliveryInfo")
		}
	default:
		delete(fields, "deliveryInfo")
	}

	var lm legacyMetadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &lm,
	})
	if err != nil {
		return OrderMetadata{}, false
	}
	if err := dec.Decode(fields); err != nil {
		return OrderMetadata{}, false
	}

	return lm.toMetadata(), true
}

func decodeMetadataObject(raw string) (map[string]interface{}, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, false
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err == nil {
		return fields, fields != nil
	}

	// 二重エンコード（"{\"deliveryType\":...}"）
	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(inner), &fields); err != nil {
		return nil, false
	}
	return fields, fields != nil
}

type legacyAddress struct {
	FullName      string `mapstructure:"fullName"`
	Name          string `mapstructure:"name"`
	StreetAddress string `mapstructure:"streetAddress"`
	Address       string `mapstructure:"address"`
	PostalCode    string `mapstructure:"postalCode"`
	ZipCode       string `mapstructure:"zipCode"`
	City          string `mapstructure:"city"`
	Phone         string `mapstructure:"phone"`
	PhoneNumber   string `mapstructure:"phoneNumber"`
}

type legacyMetadata struct {
	Version          int            `mapstructure:"v"`
	DeliveryType     string         `mapstructure:"deliveryType"`
	DeliveryInfo     *legacyAddress `mapstructure:"deliveryInfo"`
	PaymentMethod    string         `mapstructure:"paymentMethod"`
	PaymentStatus    string         `mapstructure:"paymentStatus"`
	PaymentReference string         `mapstructure:"paymentReference"`
	DueDate          interface{}    `mapstructure:"dueDate"`

	Flat legacyAddress `mapstructure:",squash"`
}

func (lm legacyMetadata) toMetadata() OrderMetadata {
	out := OrderMetadata{
		Version:          lm.Version,
		DeliveryType:     normalizeDeliveryType(lm.DeliveryType),
		PaymentMethod:    normalizePaymentMethod(lm.PaymentMethod),
		PaymentStatus:    normalizePaymentStatus(lm.PaymentStatus),
		PaymentReference: strings.TrimSpace(lm.PaymentReference),
		DueDate:          parseLooseTime(lm.DueDate),
	}

	// 入れ子を優先し、欠けた項目はフラットで埋める
	addr := lm.Flat.address()
	if lm.DeliveryInfo != nil {
		addr = lm.DeliveryInfo.address().fillFrom(addr)
	}
	if !addr.IsZero() {
		out.DeliveryInfo = &addr
	}

	if out.DeliveryType == "" {
		if out.DeliveryInfo != nil {
			out.DeliveryType = DeliveryTypeDelivery
		} else {
			out.DeliveryType = DeliveryTypePickup
		}
	}
	return out
}

func (a legacyAddress) address() DeliveryAddress {
	return DeliveryAddress{
		FullName:      firstNonEmpty(a.FullName, a.Name),
		StreetAddress: firstNonEmpty(a.StreetAddress, a.Address),
		PostalCode:    firstNonEmpty(a.PostalCode, a.ZipCode),
		City:          strings.TrimSpace(a.City),
		Phone:         firstNonEmpty(a.Phone, a.PhoneNumber),
	}
}

func (a DeliveryAddress) fillFrom(b DeliveryAddress) DeliveryAddress {
	a.FullName = firstNonEmpty(a.FullName, b.FullName)
	a.StreetAddress = firstNonEmpty(a.StreetAddress, b.StreetAddress)
	a.PostalCode = firstNonEmpty(a.PostalCode, b.PostalCode)
	a.City = firstNonEmpty(a.City, b.City)
	a.Phone = firstNonEmpty(a.Phone, b.Phone)
	return a
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func normalizeDeliveryType(s string) DeliveryType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "delivery", "home_delivery", "home-delivery":
		return DeliveryTypeDelivery
	case "pickup", "pick-up", "pick_up":
		return DeliveryTypePickup
	}
	return ""
}

func normalizePaymentMethod(s string) PaymentMethod {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "invoice":
		return PaymentMethodInvoice
	case "card":
		return PaymentMethodCard
	case "bank_transfer", "bank-transfer", "banktransfer":
		return PaymentMethodBankTransfer
	}
	return ""
}

func normalizePaymentStatus(s string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return PaymentStatusPending
	case "paid":
		return PaymentStatusPaid
	case "failed":
		return PaymentStatusFailed
	}
	return ""
}

// 文字列（各種日付形式）・unix秒・unixミリ秒を受ける
func parseLooseTime(v interface{}) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		tm, err := dateparse.ParseAny(s)
		if err != nil {
			return nil
		}
		return &tm
	case float64, int, int64:
		n, err := cast.ToInt64E(t)
		if err != nil || n <= 0 {
			return nil
		}
		var tm time.Time
		if n > 1e12 {
			tm = time.UnixMilli(n).UTC()
		} else {
			tm = time.Unix(n, 0).UTC()
		}
		return &tm
	default:
		tm, err := cast.ToTimeE(t)
		if err != nil {
			return nil
		}
		return &tm
	}
}

// 決済方法の文字列を検証付きで変換
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	m := normalizePaymentMethod(s)
	return m, m != ""
}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	if strings.TrimSpace(s) == "" {
		return PaymentStatusPending, true
	}
	st := normalizePaymentStatus(s)
	return st, st != ""
}

func ParseDeliveryType(s string) (DeliveryType, bool) {
	t := normalizeDeliveryType(s)
	return t, t != ""
}
