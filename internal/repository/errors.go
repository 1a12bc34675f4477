package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// 条件付きUPDATEで枠が足りなかった
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// 枠の日付が今日より前
	ErrSlotExpired = errors.New("slot expired")

	// 予約が残っている枠は消せない
	ErrSlotInUse = errors.New("slot in use")

	// 期待したステータスではなかった（競合で先に変わった）
	ErrStatusChanged = errors.New("status changed")

	// 一意制約違反（同じ商品・同じ日付の枠など）
	ErrDuplicate = errors.New("duplicate")
)
