package repository

import (
	"context"
	"errors"
	"time"

	"authservice/internal/domain/model"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// リフレッシュトークンの保存・取得・失効・削除
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	// 失効済み・期限切れ・論理削除済みでも行があれば返す（判定は呼び出し側）
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	// トランザクション内で行ロックを取って取得
	FindByTokenHashForUpdate(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	// 未失効の行だけを失効させる。0件なら ErrRefreshTokenNotFound
	Revoke(ctx context.Context, tokenID string, revokedAt time.Time, replacedByID *string) error
	RevokeAllByAccountID(ctx context.Context, accountID string, revokedAt time.Time) (int64, error)
	// 未失効・未期限切れ・未削除の件数（有効なセッション数）
	CountActiveByAccountID(ctx context.Context, accountID string, now time.Time) (int64, error)
	// expires_at < now の行を物理削除
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
