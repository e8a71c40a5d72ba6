package domain_test

import (
	"testing"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmount(t *testing.T) {
	m := &domain.PaymentMethod{
		ID:        "card",
		Direction: domain.DirectionPayin,
		MinAmount: decimal.NewFromInt(100),
		MaxAmount: decimal.NewFromInt(1000),
		Enabled:   true,
	}
	cases := []struct {
		amount string
		want   error
	}{
		{"100", nil},
		{"100.5", nil},
		{"100.50", nil},
		{"100.500", nil},
		{"100.005", domain.ErrInvalidRequest},
		{"999.999", domain.ErrInvalidRequest},
		{"0", domain.ErrInvalidRequest},
		{"99.99", domain.ErrAmountOutOfLimits},
		{"1000.01", domain.ErrAmountOutOfLimits},
	}
	for _, c := range cases {
		t.Run(c.amount, func(t *testing.T) {
			err := m.ValidateAmount(domain.DirectionPayin, decimal.RequireFromString(c.amount))
			if c.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, c.want)
		})
	}
}

func TestValidateAmount_MethodState(t *testing.T) {
	m := &domain.PaymentMethod{ID: "card", Direction: domain.DirectionPayin}
	assert.ErrorIs(t, m.ValidateAmount(domain.DirectionPayin, decimal.NewFromInt(10)), domain.ErrMethodDisabled)

	m.Enabled = true
	assert.ErrorIs(t, m.ValidateAmount(domain.DirectionPayout, decimal.NewFromInt(10)), domain.ErrMethodNotFound)
}
