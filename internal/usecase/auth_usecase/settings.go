package auth

import (
	"time"

	"github.com/google/uuid"
)

// 起動時に一度だけ組み立てる設定値。以後は変更しない
// （アクセストークンの鍵と有効期限は JWTIssuer 側が持つ）
type Settings struct {
	RefreshTTL       time.Duration
	LockoutThreshold int
	LockoutCooldown  time.Duration
}

const (
	DefaultAccessTTL        = 15 * time.Minute
	DefaultRefreshTTL       = 7 * 24 * time.Hour
	DefaultLockoutThreshold = 5
	DefaultLockoutCooldown  = time.Hour
)

// 0値の項目にデフォルトを入れる
func (s Settings) withDefaults() Settings {
	if s.RefreshTTL <= 0 {
		s.RefreshTTL = DefaultRefreshTTL
	}
	if s.LockoutThreshold <= 0 {
		s.LockoutThreshold = DefaultLockoutThreshold
	}
	if s.LockoutCooldown <= 0 {
		s.LockoutCooldown = DefaultLockoutCooldown
	}
	return s
}

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
