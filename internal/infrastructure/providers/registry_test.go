package providers_test

import (
	"testing"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/domain/mocks"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adapterNamed(name string) *mocks.ProviderAdapter {
	a := new(mocks.ProviderAdapter)
	a.On("Name").Return(name).Maybe()
	return a
}

func newRegistry(t *testing.T) *providers.Registry {
	t.Helper()
	r, err := providers.NewRegistry(
		providers.Entry{Name: "formkassa", Adapter: adapterNamed("formkassa"), Aliases: []string{"kassa", "fk"}},
		providers.Entry{Name: "cryptoinvoice", Adapter: adapterNamed("cryptoinvoice"), Aliases: []string{"crypto", "usdt"}},
		providers.Entry{Name: "sbpqr", Adapter: adapterNamed("sbpqr"), Aliases: []string{"sbp", "fast payments"}},
		providers.Entry{Name: "hmacpay", Adapter: adapterNamed("hmacpay"), Aliases: []string{"hmac", "card gateway"}},
	)
	require.NoError(t, err)
	return r
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "formkassa", providers.Normalize(" Form-Kassa "))
	assert.Equal(t, "formkassa", providers.Normalize("form_kassa"))
	assert.Equal(t, "formkassa", providers.Normalize("FORM.KASSA"))
}

func TestResolve(t *testing.T) {
	r := newRegistry(t)
	tests := []struct {
		raw  string
		want string
	}{
		{"FormKassa", "formkassa"},
		{"Free kassa (cards)", "formkassa"},
		{"USDT TRC-20", "cryptoinvoice"},
		{"SBP QR", "sbpqr"},
		{"Fast-Payments", "sbpqr"},
		{"Card_Gateway", "hmacpay"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			a, err := r.Resolve(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Name())
		})
	}
}

func TestResolve_LongestAliasWins(t *testing.T) {
	r, err := providers.NewRegistry(
		providers.Entry{Name: "sbp", Adapter: adapterNamed("sbp")},
		providers.Entry{Name: "sbpqr", Adapter: adapterNamed("sbpqr")},
	)
	require.NoError(t, err)

	a, err := r.Resolve("SBP-QR")
	require.NoError(t, err)
	assert.Equal(t, "sbpqr", a.Name())

	a, err = r.Resolve("sbp")
	require.NoError(t, err)
	assert.Equal(t, "sbp", a.Name())
}

func TestResolve_Unsupported(t *testing.T) {
	r := newRegistry(t)
	for _, raw := range []string{"paypal", "", "   "} {
		_, err := r.Resolve(raw)
		assert.ErrorIs(t, err, domain.ErrUnsupportedProvider, raw)
	}
}

func TestAdapterExactLookup(t *testing.T) {
	r := newRegistry(t)
	a, err := r.Adapter("hmacpay")
	require.NoError(t, err)
	assert.Equal(t, "hmacpay", a.Name())

	_, err = r.Adapter("hmac")
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
	assert.Equal(t, []string{"cryptoinvoice", "formkassa", "hmacpay", "sbpqr"}, r.Names())
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := providers.NewRegistry(
		providers.Entry{Name: "a", Adapter: adapterNamed("a")},
		providers.Entry{Name: "A", Adapter: adapterNamed("a")},
	)
	assert.Error(t, err)
}

func TestMoneyHelpers(t *testing.T) {
	minor, err := providers.ToMinorUnits(decimal.RequireFromString("12.34"))
	require.NoError(t, err)
	assert.Equal(t, int64(1234), minor)
	assert.Equal(t, "12.34", providers.FromMinorUnits(1234).String())
	assert.Equal(t, "7.00", providers.FormatAmount(decimal.NewFromInt(7)))

	d, err := providers.ParseAmount("10,50")
	require.NoError(t, err)
	assert.Equal(t, "10.5", d.String())

	_, err = providers.ParseAmount("ten")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestCanonicalFields(t *testing.T) {
	got := providers.CanonicalFields(map[string]string{"b": "2", "a": "1", "sign": "x"}, "sign")
	assert.Equal(t, "a=1&b=2", got)
}
