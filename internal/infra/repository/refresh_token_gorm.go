package repository

import (
	"context"
	"errors"
	"time"

	"authservice/internal/domain/model"
	repo "authservice/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type refreshTokenGormRepository struct {
	db *gorm.DB //DB接続（GORM）
}

// GORM実装
func NewRefreshTokenRepository(db *gorm.DB) repo.RefreshTokenRepository {
	return &refreshTokenGormRepository{db: db}
}

// リフレッシュトークンを保存。
func (r *refreshTokenGormRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	//タイムアウトやキャンセルをDB処理に伝える
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return err
	}
	return nil
}

// token_hashで1件検索します。
func (r *refreshTokenGormRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	return r.findByTokenHash(r.db.WithContext(ctx), tokenHash)
}

// SELECT ... FOR UPDATE（トランザクション内で使う）
func (r *refreshTokenGormRepository) FindByTokenHashForUpdate(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	return r.findByTokenHash(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), tokenHash)
}

func (r *refreshTokenGormRepository) findByTokenHash(q *gorm.DB, tokenHash string) (*model.RefreshToken, error) {
	var token model.RefreshToken

	err := q.Where("token_hash = ?", tokenHash).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrRefreshTokenNotFound
		}
		return nil, err
	}

	return &token, nil
}

// revoked=true にして無効。すでに失効済みなら0件
func (r *refreshTokenGormRepository) Revoke(ctx context.Context, tokenID string, revokedAt time.Time, replacedByID *string) error {
	values := map[string]any{
		"revoked":    true,
		"revoked_at": revokedAt,
		"updated_at": revokedAt,
	}
	if replacedByID != nil {
		values["replaced_by_id"] = *replacedByID
	}

	result := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("id = ? AND revoked = ?", tokenID, false).
		Updates(values)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repo.ErrRefreshTokenNotFound
	}

	return nil
}

// 指定アカウントの未失効トークンをまとめて失効。
func (r *refreshTokenGormRepository) RevokeAllByAccountID(ctx context.Context, accountID string, revokedAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("account_id = ? AND revoked = ?", accountID, false).
		Updates(map[string]any{
			"revoked":    true,
			"revoked_at": revokedAt,
			"updated_at": revokedAt,
		})

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// 有効なセッション数
func (r *refreshTokenGormRepository) CountActiveByAccountID(ctx context.Context, accountID string, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("account_id = ? AND revoked = ? AND expires_at > ? AND deleted_at IS NULL", accountID, false, now).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}

// 期限切れの行を物理削除。
func (r *refreshTokenGormRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&model.RefreshToken{})

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
