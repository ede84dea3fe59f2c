package model

import "time"

// 管理者がアカウントに対して行った操作
type AuditAction string

const (
	AuditActionUnlockAccount       AuditAction = "UNLOCK_ACCOUNT"
	AuditActionUpdateAccount       AuditAction = "UPDATE_ACCOUNT"
	AuditActionUpdateAccountStatus AuditAction = "UPDATE_ACCOUNT_STATUS"
	AuditActionDeleteAccount       AuditAction = "DELETE_ACCOUNT"
	AuditActionRevokeSessions      AuditAction = "REVOKE_SESSIONS"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionUnlockAccount, AuditActionUpdateAccount, AuditActionUpdateAccountStatus,
		AuditActionDeleteAccount, AuditActionRevokeSessions:
		return true
	}
	return false
}

// 何に対する操作か（今はアカウントのみ）
type AuditResourceType string

const AuditResourceAccount AuditResourceType = "account"

// 監査ログ（管理者操作ログ）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作した管理者のアカウントID
	ActorAccountID string `gorm:"type:varchar(36);not null;index" json:"actorAccountId"`

	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null" json:"resourceType"`
	ResourceID   string            `gorm:"type:varchar(36);not null;index" json:"resourceId"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before,omitempty"`
	AfterJSON  string `gorm:"type:text" json:"after,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
}
