package sbpqr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/domain/mocks"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const secret = "qr-secret"

func newAdapter(baseURL string, r domain.TransactionReconciler, client *http.Client) *Adapter {
	return New(domain.ProviderSettings{
		BaseURL:    baseURL,
		APIKey:     "token",
		ShopID:     "shop-5",
		PrivateKey: secret,
	}, r, client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreatePayinOrder_SendsKopecksAndSign(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/qr/create", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var fields map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))
		assert.Equal(t, "50050", fields["amount"])
		assert.Equal(t, "lbl-1", fields["label"])
		want := providers.HMACSHA512Hex(secret, []byte(providers.CanonicalFields(fields, "sign")))
		assert.Equal(t, want, fields["sign"])

		_, _ = w.Write([]byte(`{"qr_id":"qr-9","payload":"https://qr.nspk.test/AD10","status":"created"}`))
	}))
	defer server.Close()

	r := new(mocks.TransactionReconciler)
	r.On("AttachProviderHandle", mock.Anything, "tx-1", "qr-9").Return(nil).Once()

	order, err := newAdapter(server.URL, r, server.Client()).CreatePayinOrder(context.Background(), &domain.Transaction{
		ID: "tx-1", Amount: decimal.RequireFromString("500.50"), Currency: "RUB", CorrelationLabel: "lbl-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://qr.nspk.test/AD10", order.PaymentURL)
	assert.Equal(t, "qr-9", order.Handle)
	r.AssertExpectations(t)
}

func TestCreatePayinOrder_RejectsSubKopeckAndForeignCurrency(t *testing.T) {
	a := newAdapter("http://unused", nil, nil)
	_, err := a.CreatePayinOrder(context.Background(), &domain.Transaction{ID: "tx", Amount: decimal.RequireFromString("1.005"), Currency: "RUB"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = a.CreatePayinOrder(context.Background(), &domain.Transaction{ID: "tx", Amount: decimal.NewFromInt(1), Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)
}

func signedBody(t *testing.T, status string, amount int64, key string) []byte {
	t.Helper()
	fields := map[string]string{
		"qr_id":  "qr-9",
		"label":  "lbl-1",
		"status": status,
		"amount": fmt.Sprint(amount),
	}
	sign := providers.HMACSHA512Hex(key, []byte(providers.CanonicalFields(fields)))
	// amount goes over the wire as a JSON number
	return []byte(fmt.Sprintf(`{"qr_id":"qr-9","label":"lbl-1","status":%q,"amount":%d,"sign":%q}`, status, amount, sign))
}

func TestCreatePayoutProcess(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		attachErr error
		want      domain.PayoutStatus
	}{
		{"submitted", `{"payout_id":"po-1","status":"processing"}`, nil, domain.PayoutSubmitted},
		{"paid", `{"payout_id":"po-1","status":"PAID"}`, nil, domain.PayoutCompleted},
		{"attach fails after acceptance", `{"payout_id":"po-1","status":"processing"}`, fmt.Errorf("db connection reset"), domain.PayoutSubmitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/payouts/create", r.URL.Path)
				var fields map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))
				assert.Equal(t, "30000", fields["amount"])
				assert.Equal(t, "+79990001122", fields["phone"])
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			r := new(mocks.TransactionReconciler)
			r.On("AttachProviderHandle", mock.Anything, "tx-2", "po-1").Return(tt.attachErr).Once()

			res, err := newAdapter(server.URL, r, server.Client()).CreatePayoutProcess(context.Background(), &domain.Transaction{
				ID: "tx-2", Amount: decimal.NewFromInt(300), Currency: "RUB", Requisite: "+79990001122", CorrelationLabel: "lbl-2",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, "po-1", res.Handle)
			r.AssertExpectations(t)
		})
	}
}

func TestHandleCallback(t *testing.T) {
	tests := []struct {
		name    string
		body    []byte
		outcome domain.CallbackOutcome
		secure  bool
	}{
		{"paid", signedBody(t, "paid", 50050, secret), domain.OutcomeSuccess, true},
		{"expired", signedBody(t, "expired", 50050, secret), domain.OutcomeFailed, true},
		{"processing", signedBody(t, "processing", 50050, secret), domain.OutcomePending, true},
		{"forged", signedBody(t, "paid", 50050, "other"), domain.OutcomeSuccess, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := new(mocks.TransactionReconciler)
			var captured domain.Callback
			r.On("Reconcile", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { captured = args.Get(1).(domain.Callback) }).
				Return(&domain.CallbackAck{Status: domain.AckApplied}, nil)

			reply, err := newAdapter("http://unused", r, nil).HandleCallback(context.Background(), domain.CallbackRequest{Body: tt.body})
			require.NoError(t, err)
			assert.JSONEq(t, `{"result":"ok"}`, string(reply.Body))

			assert.Equal(t, "lbl-1", captured.Lookup.Label)
			assert.Equal(t, "500.5", captured.Amount.String())
			assert.Equal(t, tt.outcome, captured.Outcome)

			verr := captured.Verify(&domain.Transaction{ID: "tx-1", PaymentTransactionID: "qr-9"})
			if tt.secure {
				assert.NoError(t, verr)
			} else {
				assert.ErrorIs(t, verr, domain.ErrSecurityViolation)
			}
		})
	}
}

func TestHandleCallback_HandleBelongsToOtherTransaction(t *testing.T) {
	r := new(mocks.TransactionReconciler)
	var captured domain.Callback
	r.On("Reconcile", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(domain.Callback) }).
		Return(&domain.CallbackAck{Status: domain.AckApplied}, nil)

	_, err := newAdapter("http://unused", r, nil).HandleCallback(context.Background(), domain.CallbackRequest{
		Body: signedBody(t, "paid", 100, secret),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, captured.Verify(&domain.Transaction{ID: "tx-1", PaymentTransactionID: "qr-other"}), domain.ErrSecurityViolation)
}

func TestHandleCallback_MalformedAmount(t *testing.T) {
	_, err := newAdapter("http://unused", new(mocks.TransactionReconciler), nil).HandleCallback(context.Background(), domain.CallbackRequest{
		Body: []byte(`{"qr_id":"qr-9","amount":"12.5","sign":"x"}`),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
