package formkassa

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/domain/mocks"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAdapter(r domain.TransactionReconciler) *Adapter {
	return New(domain.ProviderSettings{
		BaseURL:    "https://pay.formkassa.test",
		ShopID:     "1001",
		PublicKey:  "secret1",
		PrivateKey: "secret2",
	}, r, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreatePayinOrder(t *testing.T) {
	a := newAdapter(nil)
	tx := &domain.Transaction{ID: "tx-1", Amount: decimal.NewFromInt(500), Currency: "rub", CorrelationLabel: "lbl"}

	order, err := a.CreatePayinOrder(context.Background(), tx)
	require.NoError(t, err)

	u, err := url.Parse(order.PaymentURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "1001", q.Get("m"))
	assert.Equal(t, "500.00", q.Get("oa"))
	assert.Equal(t, "RUB", q.Get("currency"))
	assert.Equal(t, "tx-1", q.Get("o"))
	assert.Equal(t, providers.MD5Hex("1001", "500.00", "secret1", "RUB", "tx-1"), q.Get("s"))
}

func TestCreatePayinOrder_UnsupportedCurrency(t *testing.T) {
	a := newAdapter(nil)
	_, err := a.CreatePayinOrder(context.Background(), &domain.Transaction{ID: "tx", Amount: decimal.NewFromInt(1), Currency: "BTC"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)
}

func TestCreatePayoutProcessIsManual(t *testing.T) {
	a := newAdapter(nil)
	res, err := a.CreatePayoutProcess(context.Background(), &domain.Transaction{ID: "tx", Amount: decimal.NewFromInt(1), Currency: "RUB"})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutManual, res.Status)
}

func callbackForm(sign string) url.Values {
	return url.Values{
		"MERCHANT_ID":       {"1001"},
		"AMOUNT":            {"500.00"},
		"MERCHANT_ORDER_ID": {"tx-1"},
		"intid":             {"777"},
		"SIGN":              {sign},
	}
}

func TestHandleCallback_ValidSignature(t *testing.T) {
	r := new(mocks.TransactionReconciler)
	a := newAdapter(r)
	form := callbackForm(providers.MD5Hex("1001", "500.00", "secret2", "tx-1"))

	var captured domain.Callback
	r.On("Reconcile", mock.Anything, mock.AnythingOfType("domain.Callback")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(domain.Callback) }).
		Return(&domain.CallbackAck{Status: domain.AckApplied}, nil).Once()

	reply, err := a.HandleCallback(context.Background(), domain.CallbackRequest{Form: form})
	require.NoError(t, err)
	assert.Equal(t, "YES", string(reply.Body))

	assert.Equal(t, "tx-1", captured.Lookup.ID)
	assert.True(t, captured.Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, domain.OutcomeSuccess, captured.Outcome)
	assert.Equal(t, "777", captured.ExternalRef)
	assert.NoError(t, captured.Verify(&domain.Transaction{ID: "tx-1"}))
	r.AssertExpectations(t)
}

func TestHandleCallback_ForgedSignatureFailsVerify(t *testing.T) {
	r := new(mocks.TransactionReconciler)
	a := newAdapter(r)
	form := callbackForm(providers.MD5Hex("1001", "500.00", "wrong", "tx-1"))

	var captured domain.Callback
	r.On("Reconcile", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(domain.Callback) }).
		Return(nil, domain.NewError(domain.KindSecurityViolation, "bad sign")).Once()

	reply, err := a.HandleCallback(context.Background(), domain.CallbackRequest{Form: form})
	assert.Nil(t, reply)
	assert.ErrorIs(t, err, domain.ErrSecurityViolation)
	assert.ErrorIs(t, captured.Verify(&domain.Transaction{ID: "tx-1"}), domain.ErrSecurityViolation)
}

func TestHandleCallback_MissingFields(t *testing.T) {
	a := newAdapter(new(mocks.TransactionReconciler))
	_, err := a.HandleCallback(context.Background(), domain.CallbackRequest{Form: url.Values{"AMOUNT": {"1"}}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
