package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

// 1つの対象（注文・配送枠）の履歴の検索条件。ポインタはnilなら条件なし。
type AuditLogFilter struct {
	ResourceType model.AuditResourceType
	ResourceID   int64

	Action      *model.AuditAction
	ActorUserID *int64
	From        *time.Time
	To          *time.Time

	Limit  int
	Offset int
}

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error

	// 新しい順
	ListByResource(ctx context.Context, f AuditLogFilter) ([]model.AuditLog, error)
}
