package memstore

import (
	"context"
	"time"

	"authservice/internal/domain/model"
	"authservice/internal/repository"
)

type refreshTokenRepo struct {
	s      *Store
	locked bool
}

func (r *refreshTokenRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	defer r.s.lock(r.locked)()

	if err := r.s.failTokenCreate; err != nil {
		r.s.failTokenCreate = nil
		return err
	}
	r.s.tokens[token.ID] = cloneToken(*token)
	return nil
}

func (r *refreshTokenRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	defer r.s.lock(r.locked)()
	return r.findByHash(tokenHash)
}

// tx がストア全体をロックしているので行ロックは不要
func (r *refreshTokenRepo) FindByTokenHashForUpdate(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	defer r.s.lock(r.locked)()
	return r.findByHash(tokenHash)
}

func (r *refreshTokenRepo) findByHash(tokenHash string) (*model.RefreshToken, error) {
	for _, t := range r.s.tokens {
		if t.TokenHash == tokenHash {
			out := cloneToken(t)
			return &out, nil
		}
	}
	return nil, repository.ErrRefreshTokenNotFound
}

func (r *refreshTokenRepo) Revoke(ctx context.Context, tokenID string, revokedAt time.Time, replacedByID *string) error {
	defer r.s.lock(r.locked)()

	t, ok := r.s.tokens[tokenID]
	if !ok || t.Revoked {
		return repository.ErrRefreshTokenNotFound
	}
	t.Revoked = true
	t.RevokedAt = copyTime(&revokedAt)
	if replacedByID != nil {
		id := *replacedByID
		t.ReplacedByID = &id
	}
	t.Timestamps.UpdatedAt = revokedAt
	r.s.tokens[tokenID] = t
	return nil
}

func (r *refreshTokenRepo) RevokeAllByAccountID(ctx context.Context, accountID string, revokedAt time.Time) (int64, error) {
	defer r.s.lock(r.locked)()

	var n int64
	for id, t := range r.s.tokens {
		if t.AccountID != accountID || t.Revoked {
			continue
		}
		t.Revoked = true
		t.RevokedAt = copyTime(&revokedAt)
		t.Timestamps.UpdatedAt = revokedAt
		r.s.tokens[id] = t
		n++
	}
	return n, nil
}

func (r *refreshTokenRepo) CountActiveByAccountID(ctx context.Context, accountID string, now time.Time) (int64, error) {
	defer r.s.lock(r.locked)()

	var n int64
	for _, t := range r.s.tokens {
		if t.AccountID == accountID && !t.Revoked && t.DeletedAt == nil && t.ExpiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

func (r *refreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.s.lock(r.locked)()

	var n int64
	for id, t := range r.s.tokens {
		if t.ExpiresAt.Before(now) {
			delete(r.s.tokens, id)
			n++
		}
	}
	return n, nil
}

func cloneToken(t model.RefreshToken) model.RefreshToken {
	t.RevokedAt = copyTime(t.RevokedAt)
	t.DeletedAt = copyTime(t.DeletedAt)
	if t.ReplacedByID != nil {
		id := *t.ReplacedByID
		t.ReplacedByID = &id
	}
	return t
}
