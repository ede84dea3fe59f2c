package auth

import (
	"context"
	"errors"
	"strings"

	"authservice/internal/repository"

	"go.uber.org/zap"
)

type RefreshInput struct {
	RefreshToken string
	IP           string
	UserAgent    string
}

// リフレッシュトークンを後継に交換し、アクセストークンを再発行する
func (u *AuthUsecase) Refresh(ctx context.Context, in RefreshInput) (TokenPair, error) {
	plain := strings.TrimSpace(in.RefreshToken)
	if plain == "" {
		return TokenPair{}, ErrInvalidToken
	}

	now := u.clock.Now()
	writeCtx := context.WithoutCancel(ctx)

	current, err := u.ledger.Validate(ctx, plain, now)
	if err != nil {
		//ローテーション済みが来たら replay → 全失効
		if errors.Is(err, ErrInvalidToken) {
			u.ledger.RevokeFamilyOnReuse(writeCtx, plain, now)
		}
		return TokenPair{}, err
	}

	account, err := u.accounts.FindByID(ctx, current.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			u.logger.Info("refresh rejected", zap.String("reason", "account_missing"), zap.String("account_id", current.AccountID))
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, internalError("find account", err)
	}

	// ログイン後に停止・ロック・削除されたアカウントには発行しない
	if !u.lockout.IsAuthenticatable(account, now) {
		u.logger.Info("refresh rejected", zap.String("reason", "account_not_authenticatable"), zap.String("account_id", account.ID))
		return TokenPair{}, ErrInvalidToken
	}

	access, expiresAt, err := u.issuer.Issue(account, now)
	if err != nil {
		return TokenPair{}, internalError("sign access token", err)
	}

	next, err := u.ledger.Rotate(writeCtx, plain, in.IP, in.UserAgent, now)
	if err != nil {
		return TokenPair{}, err
	}

	return newTokenPair(access, expiresAt, next.Plain, now), nil
}
