package model

import "time"

// 永続化されるリフレッシュトークン。平文は保存せず sha256 のみ
type RefreshToken struct {
	ID           string     `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID    string     `json:"accountId" gorm:"type:uuid;not null;index"`
	TokenHash    string     `json:"-" gorm:"not null;uniqueIndex"`
	ExpiresAt    time.Time  `json:"expiresAt" gorm:"not null;index"`
	Revoked      bool       `json:"revoked" gorm:"not null;default:false"`
	RevokedAt    *time.Time `json:"revokedAt"`
	ReplacedByID *string    `json:"replacedById,omitempty" gorm:"type:uuid"`
	IPAddress    string     `json:"ipAddress,omitempty" gorm:"size:45"`
	UserAgent    string     `json:"userAgent,omitempty" gorm:"size:255"`
	DeletedAt    *time.Time `json:"-" gorm:"index"`
	Timestamps   Timestamp  `json:"timestamps" gorm:"embedded"`
}

func (t *RefreshToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *RefreshToken) IsDeleted() bool {
	return t.DeletedAt != nil
}

// 有効条件: 未失効 かつ 期限内 かつ 未削除
func (t *RefreshToken) IsValidAt(now time.Time) bool {
	return !t.Revoked && !t.IsExpiredAt(now) && !t.IsDeleted()
}
