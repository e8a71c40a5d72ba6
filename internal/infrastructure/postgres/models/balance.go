package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceModel is one (user, currency, kind) row. The check constraint backs up the
// never-negative rule enforced by the ledger.
type BalanceModel struct {
	ID        uint            `gorm:"primaryKey"`
	UserID    string          `gorm:"not null;uniqueIndex:idx_balance_key"`
	Currency  string          `gorm:"size:8;not null;uniqueIndex:idx_balance_key"`
	Kind      string          `gorm:"size:16;not null;uniqueIndex:idx_balance_key"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0;check:amount >= 0"`
	Version   int64           `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (BalanceModel) TableName() string {
	return "ledger_balances"
}
