package model

import (
	"strings"
	"time"
)

type AccountStatus string

const (
	AccountStatusActive              AccountStatus = "ACTIVE"
	AccountStatusInactive            AccountStatus = "INACTIVE"
	AccountStatusBlocked             AccountStatus = "BLOCKED"
	AccountStatusPendingVerification AccountStatus = "PENDING_VERIFICATION"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusBlocked, AccountStatusPendingVerification:
		return true
	default:
		return false
	}
}

type FleetType string

const (
	FleetMotorizado      FleetType = "MOTORIZADO"
	FleetVehiculoLiviano FleetType = "VEHICULO_LIVIANO"
	FleetCamion          FleetType = "CAMION"
	FleetNone            FleetType = "NONE"
)

// 文字列からフリート種別へ。空文字は NONE
func ParseFleetType(s string) (FleetType, bool) {
	f := FleetType(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case "":
		return FleetNone, true
	case FleetMotorizado, FleetVehiculoLiviano, FleetCamion, FleetNone:
		return f, true
	default:
		return "", false
	}
}

func (f FleetType) CanDeliver() bool {
	return f != "" && f != FleetNone
}

// 認証対象のアカウント。物理削除はしない（DeletedAt で論理削除）
type Account struct {
	ID                  string        `json:"id" gorm:"type:uuid;primaryKey"`
	Email               string        `json:"email" gorm:"size:100;not null;uniqueIndex:idx_accounts_email_live,where:deleted_at IS NULL"`
	PasswordHash        string        `json:"-" gorm:"column:password_hash;not null"`
	Name                string        `json:"name" gorm:"size:100;not null"`
	Surname             string        `json:"surname" gorm:"size:100;not null"`
	Phone               string        `json:"phone,omitempty" gorm:"size:20"`
	Address             string        `json:"address,omitempty" gorm:"size:255"`
	Role                Role          `json:"role" gorm:"type:varchar(20);not null;index"`
	Status              AccountStatus `json:"status" gorm:"type:varchar(30);not null;default:'ACTIVE';index"`
	FleetType           FleetType     `json:"fleetType" gorm:"type:varchar(30);not null;default:'NONE'"`
	ZoneID              *string       `json:"zoneId,omitempty" gorm:"size:50"`
	FailedLoginAttempts int           `json:"-" gorm:"not null;default:0"`
	LockedUntil         *time.Time    `json:"-"`
	LastLoginAt         *time.Time    `json:"lastLoginAt,omitempty"`
	DeletedAt           *time.Time    `json:"-" gorm:"index"`
	Timestamps          Timestamp     `json:"timestamps" gorm:"embedded"`
}

func (a *Account) IsDeleted() bool {
	return a.DeletedAt != nil
}

// now 時点でロック中か
func (a *Account) IsLockedAt(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

func (a *Account) FullName() string {
	return strings.TrimSpace(a.Name + " " + a.Surname)
}

// メールは小文字・前後空白なしで保存/検索する
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
