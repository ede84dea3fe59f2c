package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"authservice/internal/domain/model"
	"authservice/internal/repository"
)

type accountRepo struct {
	s      *Store
	locked bool
}

func (r *accountRepo) Create(ctx context.Context, account *model.Account) error {
	defer r.s.lock(r.locked)()

	for _, a := range r.s.accounts {
		if a.DeletedAt == nil && a.Email == account.Email {
			return repository.ErrEmailTaken
		}
	}
	r.s.accounts[account.ID] = cloneAccount(*account)
	return nil
}

func (r *accountRepo) FindByID(ctx context.Context, accountID string) (*model.Account, error) {
	defer r.s.lock(r.locked)()

	a, ok := r.s.accounts[accountID]
	if !ok || a.DeletedAt != nil {
		return nil, repository.ErrAccountNotFound
	}
	out := cloneAccount(a)
	return &out, nil
}

func (r *accountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	defer r.s.lock(r.locked)()

	for _, a := range r.s.accounts {
		if a.DeletedAt == nil && a.Email == email {
			out := cloneAccount(a)
			return &out, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

// DB実装の UPDATE ... CASE と同じ遷移をロック内で行う
func (r *accountRepo) RegisterFailedLogin(ctx context.Context, accountID string, threshold int, lockUntil time.Time, now time.Time) (repository.LockoutState, error) {
	defer r.s.lock(r.locked)()

	a, ok := r.s.accounts[accountID]
	if !ok || a.DeletedAt != nil {
		return repository.LockoutState{}, repository.ErrAccountNotFound
	}
	a.FailedLoginAttempts++
	if a.FailedLoginAttempts >= threshold {
		until := lockUntil
		a.LockedUntil = &until
	}
	a.Timestamps.UpdatedAt = now
	r.s.accounts[accountID] = a

	return repository.LockoutState{
		FailedAttempts: a.FailedLoginAttempts,
		LockedUntil:    copyTime(a.LockedUntil),
	}, nil
}

func (r *accountRepo) RecordSuccessfulLogin(ctx context.Context, accountID string, at time.Time) error {
	defer r.s.lock(r.locked)()

	a, ok := r.s.accounts[accountID]
	if !ok || a.DeletedAt != nil {
		return repository.ErrAccountNotFound
	}
	if a.IsLockedAt(at) {
		return repository.ErrAccountLocked
	}
	a.FailedLoginAttempts = 0
	a.LockedUntil = nil
	a.LastLoginAt = copyTime(&at)
	a.Timestamps.UpdatedAt = at
	r.s.accounts[accountID] = a
	return nil
}

func (r *accountRepo) ResetLockout(ctx context.Context, accountID string, now time.Time) error {
	return r.update(accountID, func(a *model.Account) {
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
		a.Timestamps.UpdatedAt = now
	})
}

func (r *accountRepo) UpdateStatus(ctx context.Context, accountID string, status model.AccountStatus, now time.Time) error {
	return r.update(accountID, func(a *model.Account) {
		a.Status = status
		a.Timestamps.UpdatedAt = now
	})
}

func (r *accountRepo) SoftDelete(ctx context.Context, accountID string, now time.Time) error {
	return r.update(accountID, func(a *model.Account) {
		a.DeletedAt = copyTime(&now)
		a.Timestamps.UpdatedAt = now
	})
}

func (r *accountRepo) UpdateProfile(ctx context.Context, accountID string, update repository.AccountProfileUpdate, now time.Time) error {
	return r.update(accountID, func(a *model.Account) {
		if update.Name != nil {
			a.Name = *update.Name
		}
		if update.Surname != nil {
			a.Surname = *update.Surname
		}
		if update.Phone != nil {
			a.Phone = *update.Phone
		}
		if update.Address != nil {
			a.Address = *update.Address
		}
		if update.FleetType != nil {
			a.FleetType = *update.FleetType
		}
		if update.ZoneID != nil {
			if *update.ZoneID == "" {
				a.ZoneID = nil
			} else {
				z := *update.ZoneID
				a.ZoneID = &z
			}
		}
		a.Timestamps.UpdatedAt = now
	})
}

func (r *accountRepo) List(ctx context.Context, filter repository.AccountFilter) ([]model.Account, error) {
	defer r.s.lock(r.locked)()
	filter = filter.Normalize()
	term := strings.ToLower(filter.Term)

	var out []model.Account
	for _, a := range r.s.accounts {
		if a.DeletedAt != nil {
			continue
		}
		if filter.Role != nil && a.Role != *filter.Role {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.ZoneID != nil && (a.ZoneID == nil || *a.ZoneID != *filter.ZoneID) {
			continue
		}
		if filter.FleetType != nil && a.FleetType != *filter.FleetType {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(a.Name), term) && !strings.Contains(strings.ToLower(a.Surname), term) {
			continue
		}
		out = append(out, cloneAccount(a))
	}

	// DB実装と同じ created_at, id の順
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].Timestamps.CreatedAt, out[j].Timestamps.CreatedAt
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset >= len(out) {
		return []model.Account{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *accountRepo) CountByRole(ctx context.Context) (map[model.Role]int64, error) {
	defer r.s.lock(r.locked)()

	out := map[model.Role]int64{}
	for _, a := range r.s.accounts {
		if a.DeletedAt == nil {
			out[a.Role]++
		}
	}
	return out, nil
}

func (r *accountRepo) update(accountID string, fn func(a *model.Account)) error {
	defer r.s.lock(r.locked)()

	a, ok := r.s.accounts[accountID]
	if !ok || a.DeletedAt != nil {
		return repository.ErrAccountNotFound
	}
	fn(&a)
	r.s.accounts[accountID] = a
	return nil
}

func cloneAccount(a model.Account) model.Account {
	a.LockedUntil = copyTime(a.LockedUntil)
	a.LastLoginAt = copyTime(a.LastLoginAt)
	a.DeletedAt = copyTime(a.DeletedAt)
	if a.ZoneID != nil {
		z := *a.ZoneID
		a.ZoneID = &z
	}
	return a
}
