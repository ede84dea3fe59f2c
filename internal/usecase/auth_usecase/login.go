package auth

import (
	"context"
	"errors"

	"authservice/internal/domain/model"
	"authservice/internal/repository"

	"go.uber.org/zap"
)

// handlerからusecaseに渡す入力
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// ログイン。失敗理由（メール不明・ロック中・停止中・パスワード違い）は外に出さない
func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	if err := u.validator.ValidateLogin(ctx, in); err != nil {
		return AuthResult{}, err
	}

	now := u.clock.Now()

	account, err := u.accounts.FindByEmail(ctx, model.NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			// 存在しない場合も同じくらい時間をかける
			_ = u.verifier.Verify(in.Password, u.dummyHash)
			u.logger.Info("login rejected", zap.String("reason", "unknown_account"))
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, internalError("find account", err)
	}

	// ロック中・停止中は失敗回数を増やさない
	if !u.lockout.IsAuthenticatable(account, now) {
		reason := "inactive"
		if account.IsLockedAt(now) {
			reason = "locked"
		}
		u.logger.Info("login rejected", zap.String("reason", reason), zap.String("account_id", account.ID))
		return AuthResult{}, ErrInvalidCredentials
	}

	// ここから先の書き込みはクライアント切断で中断させない
	writeCtx := context.WithoutCancel(ctx)

	if !u.verifier.Verify(in.Password, account.PasswordHash) {
		state, err := u.lockout.RecordFailure(writeCtx, u.accounts, account.ID, now)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return AuthResult{}, ErrInvalidCredentials
			}
			return AuthResult{}, internalError("record failed login", err)
		}
		if u.lockout.IsLockedState(state, now) {
			u.logger.Warn("account locked",
				zap.String("account_id", account.ID),
				zap.Int("failed_attempts", state.FailedAttempts),
				zap.Timep("locked_until", state.LockedUntil),
			)
		} else {
			u.logger.Info("login rejected",
				zap.String("reason", "bad_password"),
				zap.String("account_id", account.ID),
				zap.Int("failed_attempts", state.FailedAttempts),
			)
		}
		return AuthResult{}, ErrInvalidCredentials
	}

	if err := u.lockout.RecordSuccess(writeCtx, u.accounts, account.ID, now); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) || errors.Is(err, repository.ErrAccountLocked) {
			u.logger.Info("login rejected", zap.String("reason", "locked_concurrently"), zap.String("account_id", account.ID))
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, internalError("record login", err)
	}
	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now

	res, err := u.issueSession(writeCtx, account, in.IP, in.UserAgent, now)
	if err != nil {
		return AuthResult{}, err
	}

	u.logger.Info("login succeeded", zap.String("account_id", account.ID))
	return res, nil
}
