// Package hmacpay integrates a JSON API where every request and webhook body is signed with
// HMAC-SHA256 over "<body>.<unix timestamp>" sent in X-Signature and X-Timestamp.
package hmacpay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers"
)

const (
	Name = "hmacpay"

	headerSignature = "X-Signature"
	headerTimestamp = "X-Timestamp"
	headerAPIKey    = "X-Api-Key"

	defaultMaxAge = 5 * time.Minute
)

var currencies = providers.NewCurrencySet("RUB", "USD", "EUR", "KZT", "UZS")

type Adapter struct {
	settings   domain.ProviderSettings
	reconciler domain.TransactionReconciler
	client     *http.Client
	logger     *slog.Logger
	maxAge     time.Duration
	now        func() time.Time
}

func New(settings domain.ProviderSettings, reconciler domain.TransactionReconciler, client *http.Client, logger *slog.Logger) *Adapter {
	if client == nil {
		client = providers.NewHTTPClient(settings.RequestTimeout)
	}
	return &Adapter{
		settings:   settings,
		reconciler: reconciler,
		client:     client,
		logger:     logger.With("provider", Name),
		maxAge:     defaultMaxAge,
		now:        time.Now,
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) sign(body []byte, ts string) string {
	msg := make([]byte, 0, len(body)+1+len(ts))
	msg = append(msg, body...)
	msg = append(msg, '.')
	msg = append(msg, ts...)
	return providers.HMACSHA256Hex(a.settings.PrivateKey, msg)
}

func (a *Adapter) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", Name, err)
	}
	ts := strconv.FormatInt(a.now().Unix(), 10)
	headers := map[string]string{
		headerAPIKey:    a.settings.APIKey,
		headerTimestamp: ts,
		headerSignature: a.sign(body, ts),
	}
	return providers.PostJSON(ctx, a.client, Name, providers.JoinURL(a.settings.BaseURL, path), body, headers, out)
}

type paymentRequest struct {
	MerchantID  string `json:"merchant_id"`
	OrderID     string `json:"order_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Method      string `json:"method,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
	SuccessURL  string `json:"success_url,omitempty"`
	FailURL     string `json:"fail_url,omitempty"`
}

type paymentResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	PaymentURL string `json:"payment_url"`
}

func (a *Adapter) CreatePayinOrder(ctx context.Context, tx *domain.Transaction) (*domain.PayinOrder, error) {
	currency, err := currencies.Require(Name, tx.Currency)
	if err != nil {
		return nil, err
	}
	var resp paymentResponse
	err = a.post(ctx, "/api/v1/payments", paymentRequest{
		MerchantID:  a.settings.ShopID,
		OrderID:     tx.ID,
		Amount:      providers.FormatAmount(tx.Amount),
		Currency:    currency,
		Method:      tx.SubMethod,
		CallbackURL: a.settings.CallbackURL,
		SuccessURL:  a.settings.SuccessURL,
		FailURL:     a.settings.FailURL,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.PaymentURL == "" {
		return nil, fmt.Errorf("%s: payment response without id or url", Name)
	}
	if err := a.reconciler.AttachProviderHandle(ctx, tx.ID, resp.ID); err != nil {
		return nil, fmt.Errorf("%s: attach payment handle: %w", Name, err)
	}
	return &domain.PayinOrder{PaymentURL: resp.PaymentURL, Handle: resp.ID}, nil
}

type payoutRequest struct {
	MerchantID  string `json:"merchant_id"`
	OrderID     string `json:"order_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Requisite   string `json:"requisite"`
	Method      string `json:"method,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type payoutResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreatePayoutProcess submits a withdrawal. Only reached when payout automation is enabled.
func (a *Adapter) CreatePayoutProcess(ctx context.Context, tx *domain.Transaction) (*domain.PayoutResult, error) {
	currency, err := currencies.Require(Name, tx.Currency)
	if err != nil {
		return nil, err
	}
	if tx.Requisite == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "payout requisite is required", "provider", Name)
	}
	var resp payoutResponse
	err = a.post(ctx, "/api/v1/payouts", payoutRequest{
		MerchantID:  a.settings.ShopID,
		OrderID:     tx.ID,
		Amount:      providers.FormatAmount(tx.Amount),
		Currency:    currency,
		Requisite:   tx.Requisite,
		Method:      tx.SubMethod,
		CallbackURL: a.settings.CallbackURL,
	}, &resp)
	if err != nil {
		return nil, err
	}
	status := strings.ToLower(resp.Status)
	if status == "failed" || status == "rejected" {
		return nil, fmt.Errorf("%s: payout %s rejected synchronously", Name, resp.ID)
	}

	// From here the gateway holds the payout: the debit must stay until a callback settles it.
	if resp.ID == "" {
		a.logger.Error("payout accepted without id, callback will match by order id", "transaction_id", tx.ID)
		return &domain.PayoutResult{Status: domain.PayoutSubmitted}, nil
	}
	if err := a.reconciler.AttachProviderHandle(ctx, tx.ID, resp.ID); err != nil {
		a.logger.Error("failed to attach payout handle, callback will match by order id",
			"transaction_id", tx.ID, "handle", resp.ID, "error", err)
	}

	switch status {
	case "succeeded", "completed":
		return &domain.PayoutResult{Status: domain.PayoutCompleted, Handle: resp.ID}, nil
	default:
		return &domain.PayoutResult{Status: domain.PayoutSubmitted, Handle: resp.ID}, nil
	}
}

type webhook struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Reason   string `json:"reason"`
}

func outcomeOf(status string) domain.CallbackOutcome {
	switch strings.ToLower(status) {
	case "succeeded", "completed", "paid":
		return domain.OutcomeSuccess
	case "failed", "declined", "expired", "rejected", "canceled":
		return domain.OutcomeFailed
	default:
		return domain.OutcomePending
	}
}

func (a *Adapter) verifySignature(body []byte, ts, sig string) error {
	if ts == "" || sig == "" {
		return domain.NewError(domain.KindSecurityViolation, "missing signature headers", "provider", Name)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return domain.NewError(domain.KindSecurityViolation, "invalid signature timestamp", "provider", Name)
	}
	age := a.now().Sub(time.Unix(unix, 0))
	if a.maxAge > 0 && (age > a.maxAge || age < -a.maxAge) {
		return domain.NewError(domain.KindSecurityViolation, "signature expired", "provider", Name, "age", age.String())
	}
	if !providers.SignaturesEqual(a.sign(body, ts), sig) {
		return domain.NewError(domain.KindSecurityViolation, "invalid signature", "provider", Name)
	}
	return nil
}

func (a *Adapter) HandleCallback(ctx context.Context, req domain.CallbackRequest) (*domain.CallbackReply, error) {
	var hook webhook
	if err := json.Unmarshal(req.Body, &hook); err != nil {
		return nil, domain.WrapError(domain.KindInvalidRequest, "malformed webhook body", err, "provider", Name)
	}
	if hook.OrderID == "" && hook.ID == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "webhook does not reference a payment", "provider", Name)
	}
	amount, err := providers.ParseAmount(hook.Amount)
	if err != nil {
		return nil, err
	}
	currency, err := currencies.Require(Name, hook.Currency)
	if err != nil {
		return nil, err
	}

	ts := req.Header.Get(headerTimestamp)
	sig := req.Header.Get(headerSignature)
	body := req.Body
	cb := domain.Callback{
		Provider: Name,
		Lookup:   domain.TransactionLookup{ID: hook.OrderID, Provider: Name, Handle: hook.ID},
		Verify: func(tx *domain.Transaction) error {
			if err := a.verifySignature(body, ts, sig); err != nil {
				return err
			}
			if hook.Type != "" && !strings.EqualFold(hook.Type, string(tx.Direction)) {
				return domain.NewError(domain.KindSecurityViolation, "webhook type does not match transaction direction",
					"provider", Name, "transaction_id", tx.ID)
			}
			return nil
		},
		Amount:      amount,
		Currency:    currency,
		Outcome:     outcomeOf(hook.Status),
		ExternalRef: hook.ID,
		Reason:      hook.Reason,
	}
	if _, err := a.reconciler.Reconcile(ctx, cb); err != nil {
		return nil, err
	}
	return providers.JSONReply(http.StatusOK, map[string]string{"status": "ok"}), nil
}
