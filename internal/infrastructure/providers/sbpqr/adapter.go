// Package sbpqr integrates a fast-payments QR acquirer. Amounts travel as integer kopecks and
// every message carries a "sign" field: HMAC-SHA512 over the remaining fields sorted by key.
package sbpqr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers"
)

const (
	Name      = "sbpqr"
	signField = "sign"
)

// fast payments settle in roubles only
var currencies = providers.NewCurrencySet("RUB")

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
	return &Adapter{settings: settings, reconciler: reconciler, client: client, logger: logger.With("provider", Name)}
}

func (a *Adapter) Name() string { return Name }

// signFields computes the sign over a flat message.
func (a *Adapter) signFields(fields map[string]string) string {
	return providers.HMACSHA512Hex(a.settings.PrivateKey, []byte(providers.CanonicalFields(fields, signField)))
}

// request signs a flat field map, sends it as JSON and decodes the reply.
func (a *Adapter) request(ctx context.Context, path string, fields map[string]string, out any) error {
	fields[signField] = a.signFields(fields)
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", Name, err)
	}
	return providers.PostJSON(ctx, a.client, Name, providers.JoinURL(a.settings.BaseURL, path), body,
		map[string]string{"Authorization": "Bearer " + a.settings.APIKey}, out)
}

type qrResponse struct {
	QRID    string `json:"qr_id"`
	Payload string `json:"payload"`
	Status  string `json:"status"`
}

func (a *Adapter) CreatePayinOrder(ctx context.Context, tx *domain.Transaction) (*domain.PayinOrder, error) {
	if _, err := currencies.Require(Name, tx.Currency); err != nil {
		return nil, err
	}
	kopecks, err := providers.ToMinorUnits(tx.Amount)
	if err != nil {
		return nil, err
	}

	var resp qrResponse
	err = a.request(ctx, "/qr/create", map[string]string{
		"shop_id":      a.settings.ShopID,
		"order_id":     tx.ID,
		"amount":       strconv.FormatInt(kopecks, 10),
		"label":        tx.CorrelationLabel,
		"callback_url": a.settings.CallbackURL,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.QRID == "" || resp.Payload == "" {
		return nil, fmt.Errorf("%s: qr response without id or payload", Name)
	}
	if err := a.reconciler.AttachProviderHandle(ctx, tx.ID, resp.QRID); err != nil {
		return nil, fmt.Errorf("%s: attach qr handle: %w", Name, err)
	}
	a.logger.Info("qr issued", "transaction_id", tx.ID, "qr_id", resp.QRID)
	return &domain.PayinOrder{PaymentURL: resp.Payload, Handle: resp.QRID}, nil
}

type payoutResponse struct {
	PayoutID string `json:"payout_id"`
	Status   string `json:"status"`
}

// CreatePayoutProcess sends a transfer by phone number; SubMethod carries the recipient bank id.
func (a *Adapter) CreatePayoutProcess(ctx context.Context, tx *domain.Transaction) (*domain.PayoutResult, error) {
	if _, err := currencies.Require(Name, tx.Currency); err != nil {
		return nil, err
	}
	if tx.Requisite == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "recipient phone is required", "provider", Name)
	}
	kopecks, err := providers.ToMinorUnits(tx.Amount)
	if err != nil {
		return nil, err
	}

	var resp payoutResponse
	err = a.request(ctx, "/payouts/create", map[string]string{
		"shop_id":      a.settings.ShopID,
		"order_id":     tx.ID,
		"amount":       strconv.FormatInt(kopecks, 10),
		"phone":        tx.Requisite,
		"bank_id":      tx.SubMethod,
		"label":        tx.CorrelationLabel,
		"callback_url": a.settings.CallbackURL,
	}, &resp)
	if err != nil {
		return nil, err
	}
	// The gateway holds the payout now; never fail it from here, the callback matches by label.
	if resp.PayoutID == "" {
		a.logger.Error("payout accepted without id, callback will match by label", "transaction_id", tx.ID)
		return &domain.PayoutResult{Status: domain.PayoutSubmitted}, nil
	}
	if err := a.reconciler.AttachProviderHandle(ctx, tx.ID, resp.PayoutID); err != nil {
		a.logger.Error("failed to attach payout handle, callback will match by label",
			"transaction_id", tx.ID, "handle", resp.PayoutID, "error", err)
	}
	if strings.EqualFold(resp.Status, "paid") {
		return &domain.PayoutResult{Status: domain.PayoutCompleted, Handle: resp.PayoutID}, nil
	}
	return &domain.PayoutResult{Status: domain.PayoutSubmitted, Handle: resp.PayoutID}, nil
}

// flatten decodes a JSON object keeping numbers in their wire spelling, so the sign is
// recomputed over exactly what was sent.
func flatten(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = x
		case json.Number:
			out[k] = x.String()
		case bool:
			out[k] = strconv.FormatBool(x)
		default:
			return nil, fmt.Errorf("field %q is not scalar", k)
		}
	}
	return out, nil
}

func outcomeOf(status string) domain.CallbackOutcome {
	switch strings.ToLower(status) {
	case "paid", "success":
		return domain.OutcomeSuccess
	case "expired", "rejected", "canceled", "failed":
		return domain.OutcomeFailed
	default:
		return domain.OutcomePending
	}
}

func (a *Adapter) HandleCallback(ctx context.Context, req domain.CallbackRequest) (*domain.CallbackReply, error) {
	fields, err := flatten(req.Body)
	if err != nil {
		return nil, domain.WrapError(domain.KindInvalidRequest, "malformed callback body", err, "provider", Name)
	}

	handle := fields["qr_id"]
	if handle == "" {
		handle = fields["payout_id"]
	}
	label := fields["label"]
	if handle == "" && label == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "callback has neither handle nor label", "provider", Name)
	}
	kopecks, err := strconv.ParseInt(fields["amount"], 10, 64)
	if err != nil {
		return nil, domain.WrapError(domain.KindInvalidRequest, "amount must be integer kopecks", err, "provider", Name)
	}

	sign := fields[signField]
	cb := domain.Callback{
		Provider: Name,
		// the pre-shared label identifies the transaction; the handle is a fallback
		Lookup: domain.TransactionLookup{Provider: Name, Label: label, Handle: handle},
		Verify: func(tx *domain.Transaction) error {
			if sign == "" || !providers.SignaturesEqual(a.signFields(fields), sign) {
				return domain.NewError(domain.KindSecurityViolation, "callback sign mismatch", "provider", Name)
			}
			if handle != "" && tx.PaymentTransactionID != "" && tx.PaymentTransactionID != handle {
				return domain.NewError(domain.KindSecurityViolation, "handle does not belong to transaction",
					"provider", Name, "transaction_id", tx.ID)
			}
			return nil
		},
		Amount:      providers.FromMinorUnits(kopecks),
		Currency:    "RUB",
		Outcome:     outcomeOf(fields["status"]),
		ExternalRef: handle,
		Reason:      fields["status"],
	}
	if _, err := a.reconciler.Reconcile(ctx, cb); err != nil {
		return nil, err
	}
	return providers.JSONReply(http.StatusOK, map[string]string{"result": "ok"}), nil
}
