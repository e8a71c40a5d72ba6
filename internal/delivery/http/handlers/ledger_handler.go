package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/LavaJover/shvark-ledger-service/internal/delivery/http/dto/ledger/request"
	"github.com/LavaJover/shvark-ledger-service/internal/delivery/http/dto/ledger/response"
	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/usecase/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxWebhookBody = 1 << 20

// LedgerService is the settlement facade the HTTP surface drives.
type LedgerService interface {
	Payin(ctx context.Context, in settlement.PayinInput) (*settlement.PayinResult, error)
	Payout(ctx context.Context, in settlement.PayoutInput) (*settlement.PayoutResult, error)
	RejectPayout(ctx context.Context, txID, reason string) (*domain.Transaction, error)
	CompletePayout(ctx context.Context, txID, externalRef string) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	SetUserResponse(ctx context.Context, id string, status domain.UserResponseStatus) (*domain.Transaction, error)
	HandleWebhook(ctx context.Context, provider string, req domain.CallbackRequest) (*domain.CallbackReply, error)
}

type LedgerHandler struct {
	service LedgerService
	logger  *slog.Logger
}

func NewLedgerHandler(service LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{service: service, logger: logger.With("component", "http")}
}

func (h *LedgerHandler) Payin(w http.ResponseWriter, r *http.Request) {
	var req request.PayinRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := h.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	res, err := h.service.Payin(r.Context(), settlement.PayinInput{
		UserID:   req.UserID,
		Amount:   amount,
		MethodID: req.MethodID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response.PayinResponse{
		Success:     true,
		Transaction: response.FromTransaction(res.Transaction),
		PaymentURL:  res.PaymentURL,
	})
}

func (h *LedgerHandler) Payout(w http.ResponseWriter, r *http.Request) {
	var req request.PayoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := h.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	res, err := h.service.Payout(r.Context(), settlement.PayoutInput{
		UserID:    req.UserID,
		Amount:    amount,
		MethodID:  req.MethodID,
		Requisite: req.Requisite,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response.PayoutResponse{
		Success:     true,
		Transaction: response.FromTransaction(res.Transaction),
		State:       string(res.State),
	})
}

func (h *LedgerHandler) RejectPayout(w http.ResponseWriter, r *http.Request) {
	var req request.RejectPayoutRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	tx, err := h.service.RejectPayout(r.Context(), chi.URLParam(r, "id"), req.Reason)
	h.writeTransaction(w, r, tx, err)
}

func (h *LedgerHandler) CompletePayout(w http.ResponseWriter, r *http.Request) {
	var req request.CompletePayoutRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	tx, err := h.service.CompletePayout(r.Context(), chi.URLParam(r, "id"), req.ExternalRef)
	h.writeTransaction(w, r, tx, err)
}

func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	h.writeTransaction(w, r, tx, err)
}

func (h *LedgerHandler) SetUserResponse(w http.ResponseWriter, r *http.Request) {
	var req request.UserResponseRequest
	if !h.decode(w, r, &req) {
		return
	}
	status := domain.UserResponseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	tx, err := h.service.SetUserResponse(r.Context(), chi.URLParam(r, "id"), status)
	h.writeTransaction(w, r, tx, err)
}

// Webhook hands the raw delivery to the gateway adapter and writes back the gateway's
// expected acknowledgement. Any error reply makes the gateway redeliver.
func (h *LedgerHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, response.ErrorResponse{Error: "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, response.ErrorResponse{Error: "failed to read body"})
		return
	}

	req := domain.CallbackRequest{
		Header:   r.Header.Clone(),
		Query:    r.URL.Query(),
		Form:     url.Values{},
		Body:     body,
		RemoteIP: remoteIP(r),
	}
	if isForm(r.Header.Get("Content-Type")) {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response.ErrorResponse{Error: "malformed form body"})
			return
		}
		req.Form = form
	}

	reply, err := h.service.HandleWebhook(r.Context(), provider, req)
	if err != nil {
		h.writeError(w, r, err, "provider", provider)
		return
	}
	contentType := reply.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	status := reply.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(reply.Body)
}

func (h *LedgerHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *LedgerHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, response.ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func (h *LedgerHandler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, response.ErrorResponse{Error: "invalid request body"})
	return false
}

func (h *LedgerHandler) parseAmount(w http.ResponseWriter, raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response.ErrorResponse{Error: "invalid amount", Kind: string(domain.KindInvalidRequest)})
		return decimal.Zero, false
	}
	return amount, true
}

func (h *LedgerHandler) writeTransaction(w http.ResponseWriter, r *http.Request, tx *domain.Transaction, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response.TransactionEnvelope{Success: true, Transaction: response.FromTransaction(tx)})
}

func (h *LedgerHandler) writeError(w http.ResponseWriter, r *http.Request, err error, attrs ...any) {
	status, body := errorResponse(err)
	attrs = append(attrs, "path", r.URL.Path, "status", status, "error", err)
	switch {
	case status >= 500:
		h.logger.Error("request failed", attrs...)
	case status == http.StatusForbidden:
		h.logger.Warn("request rejected", attrs...)
	default:
		h.logger.Info("request refused", attrs...)
	}
	writeJSON(w, status, body)
}

// errorResponse maps an error to a status and a message safe to show callers.
func errorResponse(err error) (int, response.ErrorResponse) {
	var le *domain.LedgerError
	if !errors.As(err, &le) {
		return http.StatusInternalServerError, response.ErrorResponse{Error: "internal error"}
	}
	body := response.ErrorResponse{Error: le.Message, Kind: string(le.Kind)}
	switch le.Kind {
	case domain.KindSecurityViolation:
		return http.StatusForbidden, response.ErrorResponse{Error: "forbidden", Kind: string(le.Kind)}
	case domain.KindTransient:
		return http.StatusServiceUnavailable, body
	case domain.KindTransactionNotFound, domain.KindMethodNotFound, domain.KindUnsupportedProvider:
		return http.StatusNotFound, body
	case domain.KindAlreadyProcessed, domain.KindInvalidTransition:
		return http.StatusConflict, body
	case domain.KindInvalidRequest:
		return http.StatusBadRequest, body
	default:
		return http.StatusUnprocessableEntity, body
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isForm(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
