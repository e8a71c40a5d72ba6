package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionModel struct {
	ID                   string          `gorm:"primaryKey;type:uuid"`
	UserID               string          `gorm:"index;not null"`
	Direction            string          `gorm:"not null;index:idx_direction_status_created"`
	Status               string          `gorm:"not null;index:idx_direction_status_created"`
	UserResponseStatus   string          `gorm:"not null;default:PENDING"`
	Amount               decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency             string          `gorm:"size:8;not null"`
	MethodID             string
	SubMethod            string
	Provider             string `gorm:"index:idx_provider_handle;index:idx_provider_label"`
	PaymentTransactionID string `gorm:"index:idx_provider_handle"`
	CorrelationLabel     string `gorm:"uniqueIndex;index:idx_provider_label"`
	Requisite            string
	FailureReason        string
	Version              int64     `gorm:"not null"`
	CreatedAt            time.Time `gorm:"index:idx_direction_status_created"`
	UpdatedAt            time.Time
}

func (TransactionModel) TableName() string {
	return "ledger_transactions"
}
