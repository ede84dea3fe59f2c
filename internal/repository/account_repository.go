package repository

import (
	"context"
	"errors"
	"time"

	"authservice/internal/domain/model"
)

var (
	// アカウントが見つからない（論理削除済みも含む）
	ErrAccountNotFound = errors.New("account not found")
	// email の一意制約違反
	ErrEmailTaken = errors.New("email already registered")
	// 成功の記録時点でロック中だった（並行した失敗でロックされた）
	ErrAccountLocked = errors.New("account locked")
)

// 失敗回数を加算した直後の状態
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// アカウント一覧の絞り込み。nil の条件は無視する
type AccountFilter struct {
	Role      *model.Role
	Status    *model.AccountStatus
	ZoneID    *string
	FleetType *model.FleetType
	// 名前か姓の部分一致（大文字小文字を区別しない）
	Term   string
	Limit  int
	Offset int
}

const (
	DefaultAccountListLimit = 50
	MaxAccountListLimit     = 200
)

func (f AccountFilter) Normalize() AccountFilter {
	if f.Limit <= 0 || f.Limit > MaxAccountListLimit {
		f.Limit = DefaultAccountListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// プロフィールの部分更新。nil の項目は変更しない
type AccountProfileUpdate struct {
	Name      *string
	Surname   *string
	Phone     *string
	Address   *string
	FleetType *model.FleetType
	ZoneID    *string
}

func (u AccountProfileUpdate) IsEmpty() bool {
	return u.Name == nil && u.Surname == nil && u.Phone == nil &&
		u.Address == nil && u.FleetType == nil && u.ZoneID == nil
}

// アカウントの保存・取得・更新の約束。検索は論理削除済みを含まない
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	FindByID(ctx context.Context, accountID string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	// failed_login_attempts をDB側で原子的に+1し、閾値に達したら locked_until を設定する
	RegisterFailedLogin(ctx context.Context, accountID string, threshold int, lockUntil time.Time, now time.Time) (LockoutState, error)
	// ログイン成功: 失敗回数0・last_login_at 更新。at 時点でロック中なら ErrAccountLocked
	RecordSuccessfulLogin(ctx context.Context, accountID string, at time.Time) error
	// 管理者によるロック解除
	ResetLockout(ctx context.Context, accountID string, now time.Time) error
	UpdateStatus(ctx context.Context, accountID string, status model.AccountStatus, now time.Time) error
	SoftDelete(ctx context.Context, accountID string, now time.Time) error
	UpdateProfile(ctx context.Context, accountID string, update AccountProfileUpdate, now time.Time) error

	// 作成日時の古い順
	List(ctx context.Context, filter AccountFilter) ([]model.Account, error)
	// ロールごとの件数。0件のロールはキーなし
	CountByRole(ctx context.Context) (map[model.Role]int64, error)
}
