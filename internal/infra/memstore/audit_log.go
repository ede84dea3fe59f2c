package memstore

import (
	"context"

	"authservice/internal/domain/model"
	"authservice/internal/repository"
)

type auditLogRepo struct {
	s      *Store
	locked bool
}

func (r *auditLogRepo) Create(ctx context.Context, log *model.AuditLog) error {
	defer r.s.lock(r.locked)()

	log.ID = int64(len(r.s.audits) + 1)
	r.s.audits = append(r.s.audits, *log)
	return nil
}

func (r *auditLogRepo) List(ctx context.Context, filter repository.AuditLogFilter) ([]model.AuditLog, error) {
	defer r.s.lock(r.locked)()
	filter = filter.Normalize()

	var out []model.AuditLog
	for i := len(r.s.audits) - 1; i >= 0; i-- {
		l := r.s.audits[i]
		if filter.ActorAccountID != nil && l.ActorAccountID != *filter.ActorAccountID {
			continue
		}
		if filter.ResourceID != nil && l.ResourceID != *filter.ResourceID {
			continue
		}
		if filter.Action != nil && l.Action != *filter.Action {
			continue
		}
		if filter.CreatedFrom != nil && l.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && l.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		out = append(out, l)
	}

	if filter.Offset >= len(out) {
		return []model.AuditLog{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
