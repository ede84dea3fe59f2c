package repository

import (
	"context"

	"authservice/internal/domain/model"
	repo "authservice/internal/repository"

	"gorm.io/gorm"
)

type auditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) repo.AuditLogRepository {
	return &auditLogGormRepository{db: db}
}

func (r *auditLogGormRepository) Create(ctx context.Context, log *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *auditLogGormRepository) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	filter = filter.Normalize()
	q := r.db.WithContext(ctx).Model(&model.AuditLog{})

	if filter.ActorAccountID != nil {
		q = q.Where("actor_account_id = ?", *filter.ActorAccountID)
	}
	if filter.ResourceID != nil {
		q = q.Where("resource_id = ?", *filter.ResourceID)
	}
	if filter.Action != nil {
		q = q.Where("action = ?", *filter.Action)
	}
	if filter.CreatedFrom != nil {
		q = q.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		q = q.Where("created_at <= ?", *filter.CreatedTo)
	}

	//新しい順
	var logs []model.AuditLog
	if err := q.Order("id DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
