package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LavaJover/shvark-ledger-service/internal/delivery/http/dto/ledger/response"
	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/usecase/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Payin(ctx context.Context, in settlement.PayinInput) (*settlement.PayinResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*settlement.PayinResult)
	return res, args.Error(1)
}

func (m *mockService) Payout(ctx context.Context, in settlement.PayoutInput) (*settlement.PayoutResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*settlement.PayoutResult)
	return res, args.Error(1)
}

func (m *mockService) RejectPayout(ctx context.Context, txID, reason string) (*domain.Transaction, error) {
	args := m.Called(ctx, txID, reason)
	tx, _ := args.Get(0).(*domain.Transaction)
	return tx, args.Error(1)
}

func (m *mockService) CompletePayout(ctx context.Context, txID, externalRef string) (*domain.Transaction, error) {
	args := m.Called(ctx, txID, externalRef)
	tx, _ := args.Get(0).(*domain.Transaction)
	return tx, args.Error(1)
}

func (m *mockService) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	args := m.Called(ctx, id)
	tx, _ := args.Get(0).(*domain.Transaction)
	return tx, args.Error(1)
}

func (m *mockService) SetUserResponse(ctx context.Context, id string, status domain.UserResponseStatus) (*domain.Transaction, error) {
	args := m.Called(ctx, id, status)
	tx, _ := args.Get(0).(*domain.Transaction)
	return tx, args.Error(1)
}

func (m *mockService) HandleWebhook(ctx context.Context, provider string, req domain.CallbackRequest) (*domain.CallbackReply, error) {
	args := m.Called(ctx, provider, req)
	reply, _ := args.Get(0).(*domain.CallbackReply)
	return reply, args.Error(1)
}

func newTestRouter(svc *mockService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(NewLedgerHandler(svc, logger), nil, nil, logger)
}

func sampleTx() *domain.Transaction {
	return &domain.Transaction{
		ID:        "tx-1",
		UserID:    "user-1",
		Direction: domain.DirectionPayin,
		Status:    domain.StatusPending,
		Amount:    decimal.RequireFromString("100"),
		Currency:  "RUB",
		Provider:  "formkassa",
	}
}

func do(h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPayin(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Payin", mock.Anything, mock.MatchedBy(func(in settlement.PayinInput) bool {
			return in.UserID == "user-1" && in.MethodID == "card" && in.Amount.Equal(decimal.NewFromInt(100))
		})).Return(&settlement.PayinResult{Transaction: sampleTx(), PaymentURL: "https://pay.example/1"}, nil).Once()

		rr := do(newTestRouter(svc), http.MethodPost, "/api/v1/payins", "application/json",
			`{"user_id":"user-1","amount":"100","method_id":"card"}`)

		require.Equal(t, http.StatusCreated, rr.Code)
		var body response.PayinResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, "https://pay.example/1", body.PaymentURL)
		assert.Equal(t, "100.00", body.Transaction.Amount)
		svc.AssertExpectations(t)
	})

	t.Run("Bad amount", func(t *testing.T) {
		svc := new(mockService)
		rr := do(newTestRouter(svc), http.MethodPost, "/api/v1/payins", "application/json",
			`{"user_id":"user-1","amount":"ten","method_id":"card"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "Payin", mock.Anything, mock.Anything)
	})

	t.Run("Domain error", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Payin", mock.Anything, mock.Anything).
			Return(nil, domain.NewError(domain.KindAmountOutOfLimits, "amount below method minimum", "min", "500")).Once()
		rr := do(newTestRouter(svc), http.MethodPost, "/api/v1/payins", "application/json",
			`{"user_id":"user-1","amount":"100","method_id":"card"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		var body response.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "amount below method minimum", body.Error)
		assert.Equal(t, string(domain.KindAmountOutOfLimits), body.Kind)
	})
}

func TestPayout_TransientHidesCause(t *testing.T) {
	svc := new(mockService)
	svc.On("Payout", mock.Anything, mock.Anything).Return(nil,
		domain.WrapError(domain.KindTransient, "service temporarily unavailable", errors.New("dial tcp 10.0.0.1: refused"))).Once()

	rr := do(newTestRouter(svc), http.MethodPost, "/api/v1/payouts", "application/json",
		`{"user_id":"user-1","amount":"300","method_id":"sbp","requisite":"+7999"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "service temporarily unavailable")
	assert.NotContains(t, rr.Body.String(), "10.0.0.1")
}

func TestPayoutCommands(t *testing.T) {
	svc := new(mockService)
	failed := sampleTx()
	failed.Direction = domain.DirectionPayout
	failed.Status = domain.StatusFailed
	svc.On("RejectPayout", mock.Anything, "tx-1", "").Return(failed, nil).Once()
	svc.On("CompletePayout", mock.Anything, "tx-2", "bank-ref").
		Return(nil, domain.NewError(domain.KindAlreadyProcessed, "transaction already in terminal state")).Once()

	router := newTestRouter(svc)
	rr := do(router, http.MethodPost, "/api/v1/payouts/tx-1/reject", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"FAILED"`)

	rr = do(router, http.MethodPost, "/api/v1/payouts/tx-2/complete", "application/json", `{"external_ref":"bank-ref"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	svc.AssertExpectations(t)
}

func TestGetTransaction_NotFound(t *testing.T) {
	svc := new(mockService)
	svc.On("GetTransaction", mock.Anything, "nope").
		Return(nil, domain.NewError(domain.KindTransactionNotFound, "transaction not found")).Once()

	rr := do(newTestRouter(svc), http.MethodGet, "/api/v1/transactions/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSetUserResponse_UpperCasesStatus(t *testing.T) {
	svc := new(mockService)
	svc.On("SetUserResponse", mock.Anything, "tx-1", domain.UserResponseApproved).Return(sampleTx(), nil).Once()

	rr := do(newTestRouter(svc), http.MethodPost, "/api/v1/transactions/tx-1/user-response", "application/json",
		`{"status":"approved"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestWebhook(t *testing.T) {
	t.Run("Form body is parsed and reply written verbatim", func(t *testing.T) {
		svc := new(mockService)
		svc.On("HandleWebhook", mock.Anything, "formkassa", mock.MatchedBy(func(req domain.CallbackRequest) bool {
			return req.Form.Get("MERCHANT_ORDER_ID") == "tx-1" &&
				req.Form.Get("SIGN") == "abc" &&
				string(req.Body) == "MERCHANT_ORDER_ID=tx-1&SIGN=abc" &&
				req.RemoteIP != ""
		})).Return(&domain.CallbackReply{StatusCode: http.StatusOK, ContentType: "text/plain", Body: []byte("YES")}, nil).Once()

		rr := do(newTestRouter(svc), http.MethodPost, "/webhooks/formkassa",
			"application/x-www-form-urlencoded", "MERCHANT_ORDER_ID=tx-1&SIGN=abc")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "YES", rr.Body.String())
		assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
		svc.AssertExpectations(t)
	})

	t.Run("JSON body is passed raw", func(t *testing.T) {
		svc := new(mockService)
		svc.On("HandleWebhook", mock.Anything, "hmacpay", mock.MatchedBy(func(req domain.CallbackRequest) bool {
			return len(req.Form) == 0 && string(req.Body) == `{"id":"p1"}` && req.Header.Get("X-Signature") == "sig"
		})).Return(&domain.CallbackReply{StatusCode: http.StatusOK, ContentType: "application/json", Body: []byte(`{"status":"ok"}`)}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/webhooks/hmacpay", strings.NewReader(`{"id":"p1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Signature", "sig")
		rr := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	})

	t.Run("Security violation is forbidden without detail", func(t *testing.T) {
		svc := new(mockService)
		svc.On("HandleWebhook", mock.Anything, "shoplink", mock.Anything).
			Return(nil, domain.NewError(domain.KindSecurityViolation, "signature mismatch", "expected", "deadbeef")).Once()

		rr := do(newTestRouter(svc), http.MethodPost, "/webhooks/shoplink", "application/x-www-form-urlencoded", "sign=x")
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.NotContains(t, rr.Body.String(), "deadbeef")
		assert.NotContains(t, rr.Body.String(), "signature mismatch")
	})

	t.Run("Unknown provider", func(t *testing.T) {
		svc := new(mockService)
		svc.On("HandleWebhook", mock.Anything, "nope", mock.Anything).
			Return(nil, domain.NewError(domain.KindUnsupportedProvider, "unsupported provider")).Once()

		rr := do(newTestRouter(svc), http.MethodPost, "/webhooks/nope", "", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Body over limit", func(t *testing.T) {
		svc := new(mockService)
		big := strings.Repeat("a", maxWebhookBody+1)
		rr := do(newTestRouter(svc), http.MethodPost, "/webhooks/formkassa", "application/json", big)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		svc.AssertNotCalled(t, "HandleWebhook", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHealth(t *testing.T) {
	rr := do(newTestRouter(new(mockService)), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestErrorResponse_ForeignError(t *testing.T) {
	status, body := errorResponse(errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", body.Error)
}
