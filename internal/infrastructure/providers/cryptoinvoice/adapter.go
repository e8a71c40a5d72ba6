// Package cryptoinvoice integrates an invoice API for crypto payments. Invoices are created
// with a bearer API key; postbacks carry an HS256 JWT signed with the shop secret.
package cryptoinvoice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers"
	"github.com/golang-jwt/jwt/v5"
)

const Name = "cryptoinvoice"

var currencies = providers.NewCurrencySet("USD", "EUR", "RUB", "GBP", "UAH", "KZT")

type Adapter struct {
	settings   domain.ProviderSettings
	reconciler domain.TransactionReconciler
	client     *http.Client
	logger     *slog.Logger
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
	}
}

func (a *Adapter) Name() string { return Name }

type createInvoiceRequest struct {
	ShopID   string      `json:"shop_id"`
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
	OrderID  string      `json:"order_id"`
}

type createInvoiceResponse struct {
	Status string `json:"status"`
	Result struct {
		UUID string `json:"uuid"`
		Link string `json:"link"`
	} `json:"result"`
}

func (a *Adapter) CreatePayinOrder(ctx context.Context, tx *domain.Transaction) (*domain.PayinOrder, error) {
	currency, err := currencies.Require(Name, tx.Currency)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(createInvoiceRequest{
		ShopID:   a.settings.ShopID,
		Amount:   json.Number(providers.FormatAmount(tx.Amount)),
		Currency: currency,
		OrderID:  tx.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: encode invoice: %w", Name, err)
	}

	var resp createInvoiceResponse
	err = providers.PostJSON(ctx, a.client, Name, providers.JoinURL(a.settings.BaseURL, "/v2/invoice/create"), payload,
		map[string]string{"Authorization": "Token " + a.settings.APIKey}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" || resp.Result.UUID == "" || resp.Result.Link == "" {
		return nil, fmt.Errorf("%s: invoice not created, status %q", Name, resp.Status)
	}

	if err := a.reconciler.AttachProviderHandle(ctx, tx.ID, resp.Result.UUID); err != nil {
		return nil, fmt.Errorf("%s: attach invoice handle: %w", Name, err)
	}
	a.logger.Info("invoice created", "transaction_id", tx.ID, "invoice_id", resp.Result.UUID)
	return &domain.PayinOrder{PaymentURL: resp.Result.Link, Handle: resp.Result.UUID}, nil
}

func (a *Adapter) CreatePayoutProcess(ctx context.Context, tx *domain.Transaction) (*domain.PayoutResult, error) {
	if _, err := currencies.Require(Name, tx.Currency); err != nil {
		return nil, err
	}
	return &domain.PayoutResult{Status: domain.PayoutManual, Message: "crypto withdrawals are settled by an operator"}, nil
}

func outcomeOf(status string) domain.CallbackOutcome {
	switch strings.ToLower(status) {
	case "success", "paid", "overpaid":
		return domain.OutcomeSuccess
	case "fail", "failed", "canceled", "cancelled", "expired":
		return domain.OutcomeFailed
	default:
		return domain.OutcomePending
	}
}

// postbackClaims is the signed body of a postback. Form fields outside the token are not trusted.
type postbackClaims struct {
	InvoiceID string      `json:"id"`
	OrderID   string      `json:"order_id"`
	Status    string      `json:"status"`
	Amount    json.Number `json:"amount"`
	Currency  string      `json:"currency"`
	jwt.RegisteredClaims
}

// parseToken verifies the postback JWT and returns its claims; exp is mandatory.
func (a *Adapter) parseToken(raw string) (*postbackClaims, error) {
	claims := &postbackClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.settings.PrivateKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, domain.WrapError(domain.KindSecurityViolation, "postback token invalid", err, "provider", Name)
	}
	if claims.InvoiceID == "" {
		return nil, domain.NewError(domain.KindSecurityViolation, "postback token names no invoice", "provider", Name)
	}
	return claims, nil
}

func (a *Adapter) HandleCallback(ctx context.Context, req domain.CallbackRequest) (*domain.CallbackReply, error) {
	form := req.Form
	token := form.Get("token")
	if token == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "postback is missing token", "provider", Name)
	}

	claims, tokenErr := a.parseToken(token)
	if tokenErr != nil {
		// The lookup may use the unsigned fields; Verify still fails, so nothing is applied.
		lookup := domain.TransactionLookup{ID: form.Get("order_id"), Provider: Name, Handle: form.Get("invoice_id")}
		if lookup.Empty() {
			return nil, domain.NewError(domain.KindInvalidRequest, "postback does not identify an invoice", "provider", Name)
		}
		a.logger.Warn("postback token rejected", "invoice_id", lookup.Handle, "error", tokenErr)
		cb := domain.Callback{
			Provider: Name,
			Lookup:   lookup,
			Verify:   func(*domain.Transaction) error { return tokenErr },
			Outcome:  domain.OutcomePending,
		}
		if _, err := a.reconciler.Reconcile(ctx, cb); err != nil {
			return nil, err
		}
		return providers.JSONReply(http.StatusOK, map[string]string{"message": "ok"}), nil
	}

	cb := domain.Callback{
		Provider: Name,
		Lookup:   domain.TransactionLookup{ID: claims.OrderID, Provider: Name, Handle: claims.InvoiceID},
		Verify: func(tx *domain.Transaction) error {
			if claims.OrderID != "" && claims.OrderID != tx.ID {
				return domain.NewError(domain.KindSecurityViolation, "postback token issued for another order",
					"provider", Name, "transaction_id", tx.ID)
			}
			if tx.PaymentTransactionID != "" && tx.PaymentTransactionID != claims.InvoiceID {
				return domain.NewError(domain.KindSecurityViolation, "invoice does not belong to transaction",
					"provider", Name, "transaction_id", tx.ID)
			}
			return nil
		},
		Outcome:     outcomeOf(claims.Status),
		ExternalRef: claims.InvoiceID,
		Reason:      claims.Status,
	}
	if raw := claims.Amount.String(); raw != "" {
		amount, err := providers.ParseAmount(raw)
		if err != nil {
			return nil, err
		}
		cb.Amount = amount
	}
	if claims.Currency != "" {
		currency, err := currencies.Require(Name, claims.Currency)
		if err != nil {
			return nil, err
		}
		cb.Currency = currency
	}

	if _, err := a.reconciler.Reconcile(ctx, cb); err != nil {
		return nil, err
	}
	return providers.JSONReply(http.StatusOK, map[string]string{"message": "ok"}), nil
}
