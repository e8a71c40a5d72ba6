package providers

import (
	"strings"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatAmount renders amount with exactly two decimals, e.g. "500.00".
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// ToMinorUnits converts to kopecks/cents. Sub-cent precision is a request error.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, domain.NewError(domain.KindInvalidRequest, "amount has more than two decimals", "amount", amount.String())
	}
	return minor.IntPart(), nil
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// ParseAmount parses a gateway amount string, accepting a comma decimal separator.
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."))
	if err != nil {
		return decimal.Zero, domain.WrapError(domain.KindInvalidRequest, "malformed amount", err, "amount", raw)
	}
	return d, nil
}

// CurrencySet is the closed list of currencies a gateway accepts.
type CurrencySet map[string]struct{}

func NewCurrencySet(codes ...string) CurrencySet {
	s := make(CurrencySet, len(codes))
	for _, c := range codes {
		s[strings.ToUpper(c)] = struct{}{}
	}
	return s
}

// Require returns the upper-cased code or UnsupportedCurrency.
func (s CurrencySet) Require(provider, currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := s[c]; !ok {
		return "", domain.NewError(domain.KindUnsupportedCurrency, "currency not supported by provider",
			"provider", provider, "currency", currency)
	}
	return c, nil
}
