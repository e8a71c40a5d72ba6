package models

import "github.com/shopspring/decimal"

type PaymentMethodModel struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	Provider   string `gorm:"not null"`
	SubMethod  string
	Direction  string
	MinAmount  decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0"`
	MaxAmount  decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0"`
	Enabled    bool            `gorm:"not null;default:false"`
	AutoPayout bool            `gorm:"not null;default:false"`
}

func (PaymentMethodModel) TableName() string {
	return "payment_methods"
}
