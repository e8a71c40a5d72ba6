// Package formkassa integrates a redirect-style cashier: the payin is a signed query string,
// confirmation arrives as a form POST signed with the second secret word.
package formkassa

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers"
)

const Name = "formkassa"

// ackBody is the literal reply the cashier expects; anything else triggers redelivery.
const ackBody = "YES"

var currencies = providers.NewCurrencySet("RUB", "USD", "EUR", "UAH", "KZT")

type Adapter struct {
	settings   domain.ProviderSettings
	reconciler domain.TransactionReconciler
	logger     *slog.Logger
}

func New(settings domain.ProviderSettings, reconciler domain.TransactionReconciler, logger *slog.Logger) *Adapter {
	return &Adapter{
		settings:   settings,
		reconciler: reconciler,
		logger:     logger.With("provider", Name),
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) paymentSign(amount, currency, orderID string) string {
	return providers.MD5Hex(a.settings.ShopID, amount, a.settings.PublicKey, currency, orderID)
}

func (a *Adapter) callbackSign(amount, orderID string) string {
	return providers.MD5Hex(a.settings.ShopID, amount, a.settings.PrivateKey, orderID)
}

// CreatePayinOrder builds the cashier redirect. No network call is made; the cashier's own
// id arrives with the callback.
func (a *Adapter) CreatePayinOrder(ctx context.Context, tx *domain.Transaction) (*domain.PayinOrder, error) {
	currency, err := currencies.Require(Name, tx.Currency)
	if err != nil {
		return nil, err
	}
	amount := providers.FormatAmount(tx.Amount)

	q := url.Values{}
	q.Set("m", a.settings.ShopID)
	q.Set("oa", amount)
	q.Set("currency", currency)
	q.Set("o", tx.ID)
	q.Set("s", a.paymentSign(amount, currency, tx.ID))
	q.Set("us_label", tx.CorrelationLabel)
	if tx.SubMethod != "" {
		q.Set("i", tx.SubMethod)
	}

	u := a.settings.BaseURL + "/?" + q.Encode()
	a.logger.Info("payin redirect built", "transaction_id", tx.ID, "amount", amount, "currency", currency)
	return &domain.PayinOrder{PaymentURL: u}, nil
}

// CreatePayoutProcess: the cashier has no withdrawal API, an operator settles it.
func (a *Adapter) CreatePayoutProcess(ctx context.Context, tx *domain.Transaction) (*domain.PayoutResult, error) {
	if _, err := currencies.Require(Name, tx.Currency); err != nil {
		return nil, err
	}
	return &domain.PayoutResult{Status: domain.PayoutManual, Message: "manual settlement required"}, nil
}

func (a *Adapter) HandleCallback(ctx context.Context, req domain.CallbackRequest) (*domain.CallbackReply, error) {
	form := req.Form
	if len(form) == 0 {
		form = req.Query
	}
	shopID := form.Get("MERCHANT_ID")
	rawAmount := form.Get("AMOUNT")
	orderID := form.Get("MERCHANT_ORDER_ID")
	sign := form.Get("SIGN")
	intID := form.Get("intid")

	if orderID == "" || rawAmount == "" || sign == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "callback is missing required fields", "provider", Name)
	}
	amount, err := providers.ParseAmount(rawAmount)
	if err != nil {
		return nil, err
	}

	cb := domain.Callback{
		Provider: Name,
		Lookup:   domain.TransactionLookup{ID: orderID, Provider: Name},
		Verify: func(tx *domain.Transaction) error {
			if shopID != a.settings.ShopID {
				return domain.NewError(domain.KindSecurityViolation, "merchant id mismatch", "provider", Name)
			}
			// the sign covers the amount exactly as sent
			if !providers.SignaturesEqual(a.callbackSign(rawAmount, orderID), sign) {
				return domain.NewError(domain.KindSecurityViolation, "callback signature mismatch", "provider", Name)
			}
			return nil
		},
		Amount:      amount,
		Outcome:     domain.OutcomeSuccess,
		ExternalRef: intID,
	}

	if _, err := a.reconciler.Reconcile(ctx, cb); err != nil {
		return nil, err
	}
	return providers.TextReply(http.StatusOK, ackBody), nil
}
