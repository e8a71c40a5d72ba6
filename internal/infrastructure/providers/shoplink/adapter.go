// Package shoplink integrates a hosted checkout addressed by a SHA-256 signed link.
package shoplink

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers"
)

const Name = "shoplink"

var currencies = providers.NewCurrencySet("RUB", "UAH", "USD", "EUR")

type Adapter struct {
	settings   domain.ProviderSettings
	reconciler domain.TransactionReconciler
	logger     *slog.Logger
}

func New(settings domain.ProviderSettings, reconciler domain.TransactionReconciler, logger *slog.Logger) *Adapter {
	return &Adapter{settings: settings, reconciler: reconciler, logger: logger.With("provider", Name)}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) CreatePayinOrder(ctx context.Context, tx *domain.Transaction) (*domain.PayinOrder, error) {
	currency, err := currencies.Require(Name, tx.Currency)
	if err != nil {
		return nil, err
	}
	amount := providers.FormatAmount(tx.Amount)

	form := url.Values{}
	form.Set("merchant_id", a.settings.ShopID)
	form.Set("amount", amount)
	form.Set("currency", currency)
	form.Set("order_id", tx.ID)
	form.Set("sign", providers.SHA256Hex(a.settings.ShopID, amount, currency, a.settings.PublicKey, tx.ID))
	form.Set("desc", "Deposit "+tx.CorrelationLabel)
	if tx.SubMethod != "" {
		form.Set("method", tx.SubMethod)
	}
	if a.settings.SuccessURL != "" {
		form.Set("success_url", a.settings.SuccessURL)
	}
	if a.settings.FailURL != "" {
		form.Set("fail_url", a.settings.FailURL)
	}

	return &domain.PayinOrder{PaymentURL: providers.JoinURL(a.settings.BaseURL, "/merchant/pay") + "?" + form.Encode()}, nil
}

func (a *Adapter) CreatePayoutProcess(ctx context.Context, tx *domain.Transaction) (*domain.PayoutResult, error) {
	if _, err := currencies.Require(Name, tx.Currency); err != nil {
		return nil, err
	}
	return &domain.PayoutResult{Status: domain.PayoutManual, Message: "manual settlement required"}, nil
}

func (a *Adapter) HandleCallback(ctx context.Context, req domain.CallbackRequest) (*domain.CallbackReply, error) {
	f := req.Form
	merchantID := f.Get("merchant_id")
	orderID := f.Get("order_id")
	rawAmount := f.Get("amount")
	rawCurrency := f.Get("currency")
	rawStatus := f.Get("status")
	sign := f.Get("sign")
	if orderID == "" || rawAmount == "" || rawCurrency == "" || rawStatus == "" || sign == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "callback is missing required fields", "provider", Name)
	}
	amount, err := providers.ParseAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	currency, err := currencies.Require(Name, rawCurrency)
	if err != nil {
		return nil, err
	}

	outcome := domain.OutcomeSuccess
	switch strings.ToLower(rawStatus) {
	case "success", "paid":
	case "expired", "canceled", "failed":
		outcome = domain.OutcomeFailed
	default:
		outcome = domain.OutcomePending
	}

	cb := domain.Callback{
		Provider: Name,
		Lookup:   domain.TransactionLookup{ID: orderID, Provider: Name},
		Verify: func(*domain.Transaction) error {
			expected := callbackSign(merchantID, rawAmount, rawCurrency, rawStatus, a.settings.PrivateKey, orderID)
			if merchantID != a.settings.ShopID || !providers.SignaturesEqual(expected, sign) {
				return domain.NewError(domain.KindSecurityViolation, "callback signature mismatch", "provider", Name)
			}
			return nil
		},
		Amount:      amount,
		Currency:    currency,
		Outcome:     outcome,
		ExternalRef: f.Get("invoice_id"),
		Reason:      rawStatus,
	}
	if _, err := a.reconciler.Reconcile(ctx, cb); err != nil {
		return nil, err
	}
	return providers.TextReply(http.StatusOK, "OK"), nil
}

// callbackSign covers the status so a signed delivery for one outcome cannot be replayed as another.
func callbackSign(merchantID, amount, currency, status, secret, orderID string) string {
	return providers.SHA256Hex(merchantID, amount, currency, status, secret, orderID)
}
