package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/usecase/balance"
	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
	"github.com/shopspring/decimal"
)

// Recorder observes lifecycle events (metrics).
type Recorder interface {
	RecordTransition(direction domain.Direction, status domain.TransactionStatus)
	RecordCallback(provider string, result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(domain.Direction, domain.TransactionStatus) {}
func (nopRecorder) RecordCallback(string, string)                             {}

// Messages shown to users. Technical detail goes to logs only.
const (
	PayoutFailedUserMessage   = "Withdrawal could not be completed. The funds have been returned to your balance."
	DepositFailedUserMessage  = "Deposit was not confirmed by the payment provider."
	payinExpiredFailureReason = "payin expired without gateway confirmation"
)

type CreateInput struct {
	UserID    string
	Direction domain.Direction
	Amount    decimal.Decimal
	Currency  string
	MethodID  string
	SubMethod string
	Provider  string
	Requisite string
}

// Manager owns the transaction state machine. Every status write happens inside a
// LedgerStore unit together with the balance effect it implies.
type Manager struct {
	store    domain.LedgerStore
	ledger   *balance.Ledger
	notifier domain.Notifier
	events   domain.TransactionEventSink
	recorder Recorder
	logger   *slog.Logger
	newLabel func() string
	now      func() time.Time
}

func NewManager(
	store domain.LedgerStore,
	ledger *balance.Ledger,
	notifier domain.Notifier,
	events domain.TransactionEventSink,
	recorder Recorder,
	logger *slog.Logger,
) (*Manager, error) {
	label, err := nanoid.Standard(16)
	if err != nil {
		return nil, fmt.Errorf("init correlation label generator: %w", err)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Manager{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		events:   events,
		recorder: recorder,
		logger:   logger.With("component", "transaction_manager"),
		newLabel: label,
		now:      time.Now,
	}, nil
}

// ValidateNotProcessed is the idempotency guard.
func ValidateNotProcessed(tx *domain.Transaction) error {
	if tx.Status.IsTerminal() {
		return domain.NewError(domain.KindAlreadyProcessed, "transaction already processed",
			"transaction_id", tx.ID, "status", tx.Status)
	}
	return nil
}

func (m *Manager) newTransaction(in CreateInput) (*domain.Transaction, error) {
	if in.UserID == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "user id is required")
	}
	if !in.Amount.IsPositive() {
		return nil, domain.NewError(domain.KindInvalidRequest, "amount must be positive", "amount", in.Amount.String())
	}
	if in.Currency == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "currency is required")
	}
	now := m.now().UTC()
	tx := &domain.Transaction{
		ID:                 uuid.New().String(),
		UserID:             in.UserID,
		Direction:          in.Direction,
		Status:             domain.StatusCreated,
		UserResponseStatus: domain.UserResponsePending,
		Amount:             in.Amount,
		Currency:           strings.ToUpper(in.Currency),
		MethodID:           in.MethodID,
		SubMethod:          in.SubMethod,
		Provider:           in.Provider,
		CorrelationLabel:   m.newLabel(),
		Requisite:          in.Requisite,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := tx.Transition(domain.StatusPending, now); err != nil {
		return nil, err
	}
	return tx, nil
}

// CreateTransaction persists a PENDING payin. Payouts must go through CreatePayoutWithDebit
// since a payout row always carries its debit.
func (m *Manager) CreateTransaction(ctx context.Context, in CreateInput) (*domain.Transaction, error) {
	if in.Direction != domain.DirectionPayin {
		return nil, domain.NewError(domain.KindInvalidRequest, "payouts are created together with their debit",
			"direction", in.Direction)
	}
	tx, err := m.newTransaction(in)
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	m.logger.Info("transaction created",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"direction", tx.Direction,
		"amount", tx.Amount.String(),
		"currency", tx.Currency,
		"provider", tx.Provider,
	)
	m.committed(ctx, tx)
	return tx, nil
}

// CreatePayoutWithDebit inserts a PENDING payout and debits the main balance in one unit.
// On InsufficientBalance nothing is persisted.
func (m *Manager) CreatePayoutWithDebit(ctx context.Context, in CreateInput) (*domain.Transaction, error) {
	in.Direction = domain.DirectionPayout
	tx, err := m.newTransaction(in)
	if err != nil {
		return nil, err
	}
	err = m.store.CreateAtomically(ctx, tx, func(ctx context.Context, unit domain.LedgerUnit) error {
		_, err := m.ledger.Debit(unit, tx.BalanceKey(), tx.Amount, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("payout created with debit",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"amount", tx.Amount.String(),
		"currency", tx.Currency,
		"provider", tx.Provider,
	)
	m.committed(ctx, tx)
	return tx, nil
}

func (m *Manager) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return m.store.GetTransaction(ctx, id)
}

// committed runs the post-commit side effects for a status change.
func (m *Manager) committed(ctx context.Context, tx *domain.Transaction) {
	m.recorder.RecordTransition(tx.Direction, tx.Status)
	if m.events != nil {
		m.events.TransactionChanged(ctx, tx.Clone())
	}
}
