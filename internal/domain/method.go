package domain

import "github.com/shopspring/decimal"

// AmountScale is the number of fractional digits the ledger keeps for every currency.
const AmountScale int32 = 2

// CheckScale rejects amounts finer than AmountScale; they would be rounded differently
// by each gateway and drift from the stored balance.
func CheckScale(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return NewError(KindInvalidRequest, "amount has too many decimal places",
			"amount", amount.String(), "max_places", AmountScale)
	}
	return nil
}

// PaymentMethod is a gateway instrument offered to users.
// Provider is free text and resolved through the provider registry.
type PaymentMethod struct {
	ID         string
	Name       string
	Provider   string
	SubMethod  string
	Direction  Direction
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	Enabled    bool
	AutoPayout bool
}

// ValidateAmount checks enablement, direction and limits. A zero MaxAmount means unlimited.
func (m *PaymentMethod) ValidateAmount(direction Direction, amount decimal.Decimal) error {
	if !m.Enabled {
		return NewError(KindMethodDisabled, "payment method is disabled", "method_id", m.ID)
	}
	if m.Direction != "" && m.Direction != direction {
		return NewError(KindMethodNotFound, "payment method does not support direction",
			"method_id", m.ID, "direction", direction)
	}
	if !amount.IsPositive() {
		return NewError(KindInvalidRequest, "amount must be positive", "amount", amount.String())
	}
	if err := CheckScale(amount); err != nil {
		return err
	}
	if amount.LessThan(m.MinAmount) {
		return NewError(KindAmountOutOfLimits, "amount below method minimum",
			"amount", amount.String(), "min", m.MinAmount.String())
	}
	if m.MaxAmount.IsPositive() && amount.GreaterThan(m.MaxAmount) {
		return NewError(KindAmountOutOfLimits, "amount above method maximum",
			"amount", amount.String(), "max", m.MaxAmount.String())
	}
	return nil
}
