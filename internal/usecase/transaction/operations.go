package transaction

import (
	"context"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

// afterCommit collects side effects that must only run once the unit has committed.
type afterCommit []func(ctx context.Context)

func (a *afterCommit) add(f func(ctx context.Context)) { *a = append(*a, f) }

func (a afterCommit) run(ctx context.Context) {
	for _, f := range a {
		f(ctx)
	}
}

// mutate runs fn inside the transaction's unit and then fires the collected side effects.
func (m *Manager) mutate(ctx context.Context, txID string, fn func(unit domain.LedgerUnit, fx *afterCommit) error) (*domain.Transaction, error) {
	var (
		fx     afterCommit
		result *domain.Transaction
	)
	err := m.store.Atomically(ctx, txID, func(ctx context.Context, unit domain.LedgerUnit) error {
		// optimistic stores may run the unit more than once
		fx = nil
		if err := fn(unit, &fx); err != nil {
			return err
		}
		result = unit.Transaction()
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.run(ctx)
	return result.Clone(), nil
}

// CompletePayin credits the main balance and marks the payin COMPLETED.
func (m *Manager) CompletePayin(ctx context.Context, txID string, amount decimal.Decimal, externalRef string) (*domain.Transaction, error) {
	return m.mutate(ctx, txID, func(unit domain.LedgerUnit, fx *afterCommit) error {
		return m.completePayinIn(unit, amount, externalRef, fx)
	})
}

// CompletePayout marks a payout COMPLETED. The balance was debited at creation.
func (m *Manager) CompletePayout(ctx context.Context, txID string, externalRef string) (*domain.Transaction, error) {
	return m.mutate(ctx, txID, func(unit domain.LedgerUnit, fx *afterCommit) error {
		return m.completePayoutIn(unit, externalRef, fx)
	})
}

// FailTransaction marks the transaction FAILED; a payout is refunded in the same unit.
func (m *Manager) FailTransaction(ctx context.Context, txID string, reason string) (*domain.Transaction, error) {
	return m.mutate(ctx, txID, func(unit domain.LedgerUnit, fx *afterCommit) error {
		return m.failIn(unit, reason, fx)
	})
}

// AttachProviderHandle stores the gateway's own id for later callback matching.
func (m *Manager) AttachProviderHandle(ctx context.Context, txID, handle string) error {
	if handle == "" {
		return nil
	}
	_, err := m.mutate(ctx, txID, func(unit domain.LedgerUnit, _ *afterCommit) error {
		tx := unit.Transaction()
		if tx.PaymentTransactionID == handle {
			return nil
		}
		if tx.PaymentTransactionID != "" {
			return domain.NewError(domain.KindInvalidRequest, "provider handle already attached",
				"transaction_id", tx.ID, "handle", tx.PaymentTransactionID)
		}
		tx.PaymentTransactionID = handle
		tx.UpdatedAt = m.now().UTC()
		return unit.SaveTransaction(tx)
	})
	if err != nil {
		return err
	}
	m.logger.Debug("provider handle attached", "transaction_id", txID, "handle", handle)
	return nil
}

// SetUserResponse records the user's acknowledgement. It never touches Status.
func (m *Manager) SetUserResponse(ctx context.Context, txID string, status domain.UserResponseStatus) (*domain.Transaction, error) {
	if !status.Valid() {
		return nil, domain.NewError(domain.KindInvalidRequest, "unknown user response status", "status", status)
	}
	return m.mutate(ctx, txID, func(unit domain.LedgerUnit, _ *afterCommit) error {
		tx := unit.Transaction()
		tx.UserResponseStatus = status
		tx.UpdatedAt = m.now().UTC()
		return unit.SaveTransaction(tx)
	})
}

func (m *Manager) completePayinIn(unit domain.LedgerUnit, amount decimal.Decimal, externalRef string, fx *afterCommit) error {
	tx := unit.Transaction()
	if err := ValidateNotProcessed(tx); err != nil {
		return err
	}
	if tx.Direction != domain.DirectionPayin {
		return domain.NewError(domain.KindInvalidRequest, "not a payin", "transaction_id", tx.ID)
	}
	if !amount.Equal(tx.Amount) {
		return domain.NewError(domain.KindAmountMismatch, "confirmed amount differs from transaction amount",
			"transaction_id", tx.ID, "expected", tx.Amount.String(), "got", amount.String())
	}
	if _, err := m.ledger.Credit(unit, tx.BalanceKey(), tx.Amount, tx); err != nil {
		return err
	}
	if err := tx.Transition(domain.StatusCompleted, m.now().UTC()); err != nil {
		return err
	}
	if tx.PaymentTransactionID == "" {
		tx.PaymentTransactionID = externalRef
	}
	if err := unit.SaveTransaction(tx); err != nil {
		return err
	}

	done := tx.Clone()
	fx.add(func(ctx context.Context) {
		m.logger.Info("payin completed", "transaction_id", done.ID, "amount", done.Amount.String(), "currency", done.Currency)
		m.committed(ctx, done)
		if m.notifier != nil {
			m.notifier.NotifyDepositSuccess(ctx, done)
		}
	})
	return nil
}

func (m *Manager) completePayoutIn(unit domain.LedgerUnit, externalRef string, fx *afterCommit) error {
	tx := unit.Transaction()
	if err := ValidateNotProcessed(tx); err != nil {
		return err
	}
	if tx.Direction != domain.DirectionPayout {
		return domain.NewError(domain.KindInvalidRequest, "not a payout", "transaction_id", tx.ID)
	}
	if err := tx.Transition(domain.StatusCompleted, m.now().UTC()); err != nil {
		return err
	}
	if externalRef != "" && tx.PaymentTransactionID == "" {
		tx.PaymentTransactionID = externalRef
	}
	if err := unit.SaveTransaction(tx); err != nil {
		return err
	}

	done := tx.Clone()
	fx.add(func(ctx context.Context) {
		m.logger.Info("payout completed", "transaction_id", done.ID, "external_ref", externalRef)
		m.committed(ctx, done)
	})
	return nil
}

func (m *Manager) failIn(unit domain.LedgerUnit, reason string, fx *afterCommit) error {
	tx := unit.Transaction()
	if err := ValidateNotProcessed(tx); err != nil {
		return err
	}
	refunded := false
	if tx.Direction == domain.DirectionPayout && tx.Status == domain.StatusPending {
		if _, err := m.ledger.Credit(unit, tx.BalanceKey(), tx.Amount, tx); err != nil {
			return err
		}
		refunded = true
	}
	if err := tx.Transition(domain.StatusFailed, m.now().UTC()); err != nil {
		return err
	}
	tx.FailureReason = reason
	if err := unit.SaveTransaction(tx); err != nil {
		return err
	}

	failed := tx.Clone()
	fx.add(func(ctx context.Context) {
		m.logger.Info("transaction failed",
			"transaction_id", failed.ID,
			"direction", failed.Direction,
			"reason", reason,
			"refunded", refunded,
		)
		m.committed(ctx, failed)
		if m.notifier == nil {
			return
		}
		if failed.Direction == domain.DirectionPayout {
			m.notifier.NotifyPayoutFailure(ctx, failed, PayoutFailedUserMessage)
		} else {
			m.notifier.NotifyDepositFailure(ctx, failed, DepositFailedUserMessage)
		}
	})
	return nil
}
