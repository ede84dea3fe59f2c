package auth

import (
	"context"
	"time"

	"authservice/internal/domain/model"
	"authservice/internal/repository"
)

// 連続失敗でロックする状態遷移
//
//	Unlocked(n<threshold) --失敗--> Unlocked(n+1) or Locked(until=now+cooldown)
//	Locked --now>=until--> 認証可（カウンタは成功時に0へ）
//	どの状態でも成功 --> Unlocked(0)
type LockoutPolicy struct {
	threshold int
	cooldown  time.Duration
}

func NewLockoutPolicy(threshold int, cooldown time.Duration) LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultLockoutCooldown
	}
	return LockoutPolicy{threshold: threshold, cooldown: cooldown}
}

func (p LockoutPolicy) Threshold() int {
	return p.threshold
}

func (p LockoutPolicy) Cooldown() time.Duration {
	return p.cooldown
}

// ACTIVE かつ 未削除 かつ ロック期限を過ぎている
func (p LockoutPolicy) IsAuthenticatable(a *model.Account, now time.Time) bool {
	if a == nil {
		return false
	}
	if a.Status != model.AccountStatusActive {
		return false
	}
	if a.IsDeleted() {
		return false
	}
	return !a.IsLockedAt(now)
}

// 失敗を1回記録する。加算はDB側で1文で行う（同時失敗で取りこぼさない）
func (p LockoutPolicy) RecordFailure(ctx context.Context, accounts repository.AccountRepository, accountID string, now time.Time) (repository.LockoutState, error) {
	return accounts.RegisterFailedLogin(ctx, accountID, p.threshold, now.Add(p.cooldown), now)
}

// ログイン成功
func (p LockoutPolicy) RecordSuccess(ctx context.Context, accounts repository.AccountRepository, accountID string, now time.Time) error {
	return accounts.RecordSuccessfulLogin(ctx, accountID, now)
}

// 管理者による解除
func (p LockoutPolicy) Reset(ctx context.Context, accounts repository.AccountRepository, accountID string, now time.Time) error {
	return accounts.ResetLockout(ctx, accountID, now)
}

// 今回の失敗でロックに入ったか
func (p LockoutPolicy) IsLockedState(s repository.LockoutState, now time.Time) bool {
	return s.FailedAttempts >= p.threshold && s.LockedUntil != nil && now.Before(*s.LockedUntil)
}
