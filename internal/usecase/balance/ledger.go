package balance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

// MutationRecorder observes successful balance mutations (metrics).
type MutationRecorder interface {
	RecordBalanceMutation(op string, currency string, amount decimal.Decimal)
}

// Ledger is the only writer of balance values. Every mutation goes through a LedgerUnit so
// it commits together with the causing transaction's status write.
type Ledger struct {
	reader   domain.BalanceReader
	recorder MutationRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewLedger(reader domain.BalanceReader, recorder MutationRecorder, logger *slog.Logger) *Ledger {
	return &Ledger{
		reader:   reader,
		recorder: recorder,
		logger:   logger.With("component", "balance_ledger"),
		now:      time.Now,
	}
}

// Credit increases the balance by amount inside unit.
func (l *Ledger) Credit(unit domain.LedgerUnit, key domain.BalanceKey, amount decimal.Decimal, cause *domain.Transaction) (*domain.Balance, error) {
	if !amount.IsPositive() {
		return nil, domain.NewError(domain.KindInvalidRequest, "credit amount must be positive", "amount", amount.String())
	}
	if err := domain.CheckScale(amount); err != nil {
		return nil, err
	}
	b, err := unit.LockBalance(key)
	if err != nil {
		return nil, fmt.Errorf("lock balance %s: %w", key, err)
	}

	before := b.Amount
	b.Amount = b.Amount.Add(amount)
	b.UpdatedAt = l.now()
	if err := unit.SaveBalance(b); err != nil {
		return nil, fmt.Errorf("save balance %s: %w", key, err)
	}

	l.logger.Info("balance credited",
		"balance", key.String(),
		"transaction_id", cause.ID,
		"amount", amount.String(),
		"before", before.String(),
		"after", b.Amount.String(),
	)
	l.record("credit", key.Currency, amount)
	return b, nil
}

// Debit decreases the balance by amount, failing with InsufficientBalance before any write.
func (l *Ledger) Debit(unit domain.LedgerUnit, key domain.BalanceKey, amount decimal.Decimal, cause *domain.Transaction) (*domain.Balance, error) {
	if !amount.IsPositive() {
		return nil, domain.NewError(domain.KindInvalidRequest, "debit amount must be positive", "amount", amount.String())
	}
	if err := domain.CheckScale(amount); err != nil {
		return nil, err
	}
	b, err := unit.LockBalance(key)
	if err != nil {
		return nil, fmt.Errorf("lock balance %s: %w", key, err)
	}

	if b.Amount.LessThan(amount) {
		return nil, domain.NewError(domain.KindInsufficientBalance, "balance too low",
			"balance", b.Amount.String(), "amount", amount.String(), "currency", key.Currency)
	}

	before := b.Amount
	b.Amount = b.Amount.Sub(amount)
	b.UpdatedAt = l.now()
	if err := unit.SaveBalance(b); err != nil {
		return nil, fmt.Errorf("save balance %s: %w", key, err)
	}

	l.logger.Info("balance debited",
		"balance", key.String(),
		"transaction_id", cause.ID,
		"amount", amount.String(),
		"before", before.String(),
		"after", b.Amount.String(),
	)
	l.record("debit", key.Currency, amount)
	return b, nil
}

// CheckSufficient is a read-only guard; the snapshot may be stale by the time a debit runs,
// which is why Debit re-checks under lock.
func (l *Ledger) CheckSufficient(ctx context.Context, key domain.BalanceKey, amount decimal.Decimal) (*domain.Balance, error) {
	b, err := l.reader.GetBalance(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get balance %s: %w", key, err)
	}
	if b.Amount.LessThan(amount) {
		return b, domain.NewError(domain.KindInsufficientBalance, "balance too low",
			"balance", b.Amount.String(), "amount", amount.String(), "currency", key.Currency)
	}
	return b, nil
}

// MainBalance returns the user's main balance used to pick the settlement currency.
// ok is false when the user has no main balance yet.
func (l *Ledger) MainBalance(ctx context.Context, userID string) (*domain.Balance, bool, error) {
	balances, err := l.reader.ListBalances(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("list balances for user %s: %w", userID, err)
	}
	var picked *domain.Balance
	for _, b := range balances {
		if b.Key.Kind != domain.BalanceMain {
			continue
		}
		// prefer the richest main balance if several currencies exist
		if picked == nil || b.Amount.GreaterThan(picked.Amount) {
			picked = b
		}
	}
	return picked, picked != nil, nil
}

func (l *Ledger) record(op, currency string, amount decimal.Decimal) {
	if l.recorder != nil {
		l.recorder.RecordBalanceMutation(op, currency, amount)
	}
}
