package auth

import (
	"context"
	"strings"
)

// ログアウト。同じトークンで2回呼んでも成功（未知のトークンは ErrInvalidToken）
func (u *AuthUsecase) Logout(ctx context.Context, refreshToken string) error {
	plain := strings.TrimSpace(refreshToken)
	if plain == "" {
		return ErrInvalidToken
	}
	return u.ledger.Revoke(context.WithoutCancel(ctx), plain, u.clock.Now())
}
