package model

import (
	"strings"
	"time"
)

// チェックアウト、注文ステータス更新など。
type AuditAction string

const (
	//DRAFTからPENDINGへ確定した操作。
	AuditActionCheckoutOrder AuditAction = "CHECKOUT_ORDER"
	//注文ステータスを更新した操作。
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	//放置されたDRAFTの予約を解放した操作。
	AuditActionSweepDraft AuditAction = "SWEEP_DRAFT"
	//配送枠の容量を変更した操作。
	AuditActionUpdateSlotCapacity AuditAction = "UPDATE_SLOT_CAPACITY"
)

// 大文字小文字は区別しない
func ParseAuditAction(s string) (AuditAction, bool) {
	a := AuditAction(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case AuditActionCheckoutOrder, AuditActionUpdateOrderStatus, AuditActionSweepDraft, AuditActionUpdateSlotCapacity:
		return a, true
	}
	return "", false
}

// 何に対する操作か
type AuditResourceType string

const (
	//注文に対する操作。
	AuditResourceOrder AuditResourceType = "order"

	//配送枠に対する操作。
	AuditResourceDeliverySlot AuditResourceType = "delivery_slot"
)

// 監査ログ。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	//IDは監査ログの主キー
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したユーザーのID。スイーパーなどシステム操作は0。
	ActorUserID int64 `gorm:"not null;index" json:"actor_user_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	ResourceID int64 `gorm:"not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`

	//JSON文字列で保存する。
	AfterJSON string `gorm:"type:text" json:"after_json"`

	//作成時刻
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
