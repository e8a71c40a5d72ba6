package models

import "time"

type CallbackAuditModel struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	Provider    string    `gorm:"not null;index"`
	PayloadHash string    `gorm:"not null;index"`
	Result      string    `gorm:"not null"`
	Error       string
	ReceivedAt  time.Time `gorm:"not null;index"`
}

func (CallbackAuditModel) TableName() string {
	return "callback_audit"
}
