package model

import "time"

// 作成・更新時刻（各更新パスが自分で UpdatedAt を打つ）
type Timestamp struct {
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}
