package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/usecase/balance"
	"github.com/LavaJover/shvark-ledger-service/internal/usecase/transaction"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const unavailableMessage = "service temporarily unavailable"

type Config struct {
	DefaultCurrency   string
	AutoPayoutEnabled bool
	GatewayTimeout    time.Duration
}

// ProviderResolver is satisfied by providers.Registry.
type ProviderResolver interface {
	Resolve(raw string) (domain.ProviderAdapter, error)
	Adapter(name string) (domain.ProviderAdapter, error)
}

// Service is the ledger facade used by the command API and webhook routes.
type Service struct {
	methods  domain.MethodRepository
	ledger   *balance.Ledger
	manager  *transaction.Manager
	resolver ProviderResolver
	audit    domain.CallbackAuditLog
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	methods domain.MethodRepository,
	ledger *balance.Ledger,
	manager *transaction.Manager,
	resolver ProviderResolver,
	audit domain.CallbackAuditLog,
	cfg Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		methods:  methods,
		ledger:   ledger,
		manager:  manager,
		resolver: resolver,
		audit:    audit,
		cfg:      cfg,
		logger:   logger.With("component", "settlement"),
		now:      time.Now,
	}
}

type PayinInput struct {
	UserID   string
	Amount   decimal.Decimal
	MethodID string
}

type PayinResult struct {
	Transaction *domain.Transaction
	PaymentURL  string
}

type PayoutInput struct {
	UserID    string
	Amount    decimal.Decimal
	MethodID  string
	Requisite string
}

type PayoutState string

const (
	// PayoutAwaitingGateway: submitted (or outcome unknown after a timeout); a callback settles it.
	PayoutAwaitingGateway PayoutState = "AWAITING_GATEWAY"
	// PayoutAwaitingOperator: funds reserved, an operator completes or rejects.
	PayoutAwaitingOperator PayoutState = "AWAITING_OPERATOR"
	PayoutSettled          PayoutState = "SETTLED"
)

type PayoutResult struct {
	Transaction *domain.Transaction
	State       PayoutState
}

func (s *Service) loadMethod(ctx context.Context, id string, direction domain.Direction, amount decimal.Decimal) (*domain.PaymentMethod, domain.ProviderAdapter, error) {
	method, err := s.methods.GetMethod(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := method.ValidateAmount(direction, amount); err != nil {
		return nil, nil, err
	}
	adapter, err := s.resolver.Resolve(method.Provider)
	if err != nil {
		return nil, nil, err
	}
	return method, adapter, nil
}

// settlementCurrency is the currency of the user's main balance, or the configured default.
func (s *Service) settlementCurrency(ctx context.Context, userID string) (string, error) {
	b, ok, err := s.ledger.MainBalance(ctx, userID)
	if err != nil {
		return "", err
	}
	if ok && b.Key.Currency != "" {
		return b.Key.Currency, nil
	}
	return strings.ToUpper(s.cfg.DefaultCurrency), nil
}

func (s *Service) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.GatewayTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.GatewayTimeout)
}

// Payin creates a PENDING deposit and asks the gateway for a payment target. It never
// touches a balance; the credit happens on the confirmed callback.
func (s *Service) Payin(ctx context.Context, in PayinInput) (*PayinResult, error) {
	method, adapter, err := s.loadMethod(ctx, in.MethodID, domain.DirectionPayin, in.Amount)
	if err != nil {
		return nil, err
	}
	currency, err := s.settlementCurrency(ctx, in.UserID)
	if err != nil {
		return nil, transient(err)
	}

	tx, err := s.manager.CreateTransaction(ctx, transaction.CreateInput{
		UserID:    in.UserID,
		Direction: domain.DirectionPayin,
		Amount:    in.Amount,
		Currency:  currency,
		MethodID:  method.ID,
		SubMethod: method.SubMethod,
		Provider:  adapter.Name(),
	})
	if err != nil {
		return nil, err
	}

	gctx, cancel := s.gatewayContext(ctx)
	order, err := adapter.CreatePayinOrder(gctx, tx)
	cancel()
	if err != nil {
		if isTimeout(err) {
			s.logger.Warn("payin order timed out, leaving pending",
				"transaction_id", tx.ID, "provider", adapter.Name(), "error", err)
			return nil, transient(err)
		}
		s.logger.Error("payin order failed",
			"transaction_id", tx.ID, "provider", adapter.Name(), "error", err)
		if _, ferr := s.manager.FailTransaction(ctx, tx.ID, "gateway order failed: "+err.Error()); ferr != nil {
			s.logger.Error("failed to mark payin failed", "transaction_id", tx.ID, "error", ferr)
		}
		if domain.IsDomainError(err) {
			return nil, err
		}
		return nil, transient(err)
	}

	if order.Handle != "" {
		tx.PaymentTransactionID = order.Handle
	}
	return &PayinResult{Transaction: tx, PaymentURL: order.PaymentURL}, nil
}

// Payout reserves the funds immediately and, when automation is enabled for the method and
// globally, submits the transfer to the gateway.
func (s *Service) Payout(ctx context.Context, in PayoutInput) (*PayoutResult, error) {
	method, adapter, err := s.loadMethod(ctx, in.MethodID, domain.DirectionPayout, in.Amount)
	if err != nil {
		return nil, err
	}
	currency, err := s.settlementCurrency(ctx, in.UserID)
	if err != nil {
		return nil, transient(err)
	}
	key := domain.BalanceKey{UserID: in.UserID, Currency: currency, Kind: domain.BalanceMain}
	if _, err := s.ledger.CheckSufficient(ctx, key, in.Amount); err != nil {
		return nil, err
	}

	tx, err := s.manager.CreatePayoutWithDebit(ctx, transaction.CreateInput{
		UserID:    in.UserID,
		Amount:    in.Amount,
		Currency:  currency,
		MethodID:  method.ID,
		SubMethod: method.SubMethod,
		Provider:  adapter.Name(),
		Requisite: in.Requisite,
	})
	if err != nil {
		if domain.IsDomainError(err) {
			return nil, err
		}
		return nil, transient(err)
	}

	if !(method.AutoPayout && s.cfg.AutoPayoutEnabled) {
		s.logger.Info("payout awaiting operator", "transaction_id", tx.ID, "provider", adapter.Name())
		return &PayoutResult{Transaction: tx, State: PayoutAwaitingOperator}, nil
	}

	gctx, cancel := s.gatewayContext(ctx)
	res, err := adapter.CreatePayoutProcess(gctx, tx)
	cancel()
	if err != nil {
		if isTimeout(err) {
			s.logger.Warn("payout submission timed out, leaving pending",
				"transaction_id", tx.ID, "provider", adapter.Name(), "error", err)
			return &PayoutResult{Transaction: tx, State: PayoutAwaitingGateway}, nil
		}
		return nil, s.refundAfterFailure(ctx, tx, adapter.Name(), err)
	}

	switch res.Status {
	case domain.PayoutCompleted:
		done, err := s.manager.CompletePayout(ctx, tx.ID, res.Handle)
		if err != nil {
			// the gateway has moved the money; a retry or callback must finish it, never refund
			s.logger.Error("failed to record synchronous payout completion",
				"transaction_id", tx.ID, "handle", res.Handle, "error", err)
			return nil, transient(err)
		}
		return &PayoutResult{Transaction: done, State: PayoutSettled}, nil
	case domain.PayoutManual:
		return &PayoutResult{Transaction: tx, State: PayoutAwaitingOperator}, nil
	default:
		if res.Handle != "" {
			tx.PaymentTransactionID = res.Handle
		}
		return &PayoutResult{Transaction: tx, State: PayoutAwaitingGateway}, nil
	}
}

// refundAfterFailure reverts the debit of a payout whose submission failed. The user gets
// the generic notification; the technical error stays in the log and the failure reason.
func (s *Service) refundAfterFailure(ctx context.Context, tx *domain.Transaction, provider string, cause error) error {
	s.logger.Error("payout submission failed, refunding",
		"transaction_id", tx.ID, "provider", provider, "amount", tx.Amount.String(), "error", cause)

	if _, err := s.manager.FailTransaction(ctx, tx.ID, "payout submission failed: "+cause.Error()); err != nil {
		s.logger.Error("refund after payout failure did not commit; operator action required",
			"transaction_id", tx.ID, "error", err)
		return transient(cause)
	}
	if domain.IsDomainError(cause) {
		return cause
	}
	return transient(cause)
}

// RejectPayout is the operator's decline: FAILED with a refund.
func (s *Service) RejectPayout(ctx context.Context, txID, reason string) (*domain.Transaction, error) {
	if err := s.requirePayout(ctx, txID); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "rejected by operator"
	}
	return s.manager.FailTransaction(ctx, txID, reason)
}

// CompletePayout is the operator's confirmation that the transfer happened.
func (s *Service) CompletePayout(ctx context.Context, txID, externalRef string) (*domain.Transaction, error) {
	if err := s.requirePayout(ctx, txID); err != nil {
		return nil, err
	}
	return s.manager.CompletePayout(ctx, txID, externalRef)
}

func (s *Service) requirePayout(ctx context.Context, txID string) error {
	tx, err := s.manager.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Direction != domain.DirectionPayout {
		return domain.NewError(domain.KindInvalidRequest, "transaction is not a payout", "transaction_id", txID)
	}
	return nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.manager.GetTransaction(ctx, id)
}

func (s *Service) SetUserResponse(ctx context.Context, id string, status domain.UserResponseStatus) (*domain.Transaction, error) {
	return s.manager.SetUserResponse(ctx, id, status)
}

// HandleWebhook routes a raw delivery to the named gateway adapter and records it in the audit log.
func (s *Service) HandleWebhook(ctx context.Context, provider string, req domain.CallbackRequest) (*domain.CallbackReply, error) {
	adapter, err := s.resolver.Adapter(provider)
	if err != nil {
		return nil, err
	}
	reply, err := adapter.HandleCallback(ctx, req)
	s.recordDelivery(ctx, adapter.Name(), req, err)
	if err != nil {
		if domain.KindOf(err) == "" {
			return nil, transient(err)
		}
		return nil, err
	}
	return reply, nil
}

func (s *Service) recordDelivery(ctx context.Context, provider string, req domain.CallbackRequest, herr error) {
	if s.audit == nil {
		return
	}
	entry := domain.CallbackAuditEntry{
		ID:          uuid.New().String(),
		Provider:    provider,
		PayloadHash: payloadHash(req),
		Result:      "ok",
		ReceivedAt:  s.now().UTC(),
	}
	if herr != nil {
		entry.Result = strings.ToLower(string(domain.KindOf(herr)))
		if entry.Result == "" {
			entry.Result = "error"
		}
		entry.Error = herr.Error()
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("failed to record callback audit entry", "provider", provider, "error", err)
	}
}

func payloadHash(req domain.CallbackRequest) string {
	h := sha256.New()
	h.Write(req.Body)
	if len(req.Body) == 0 {
		h.Write([]byte(req.Form.Encode()))
		h.Write([]byte(req.Query.Encode()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func transient(err error) error {
	return domain.WrapError(domain.KindTransient, unavailableMessage, err)
}

// isTimeout reports whether a gateway call ran out of time; the outcome at the gateway is unknown.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
