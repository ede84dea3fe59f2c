package repository

import (
	"context"
	"time"

	"authservice/internal/domain/model"
)

//監査ログの絞り込み条件。
type AuditLogFilter struct {
	ActorAccountID *string
	ResourceID     *string
	Action         *model.AuditAction
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}

const (
	DefaultAuditLogLimit = 50
	MaxAuditLogLimit     = 200
)

// limit/offset を範囲内に収める
func (f AuditLogFilter) Normalize() AuditLogFilter {
	if f.Limit <= 0 || f.Limit > MaxAuditLogLimit {
		f.Limit = DefaultAuditLogLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// 監査ログの保存・一覧取得の約束。
type AuditLogRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error

	//新しい順で返す
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
