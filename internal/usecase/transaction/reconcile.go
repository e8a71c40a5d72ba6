package transaction

import (
	"context"
	"errors"
	"strings"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
)

var _ domain.TransactionReconciler = (*Manager)(nil)

// Reconcile applies a parsed gateway callback:
//  1. resolve the transaction from the lookup
//  2. idempotency guard (terminal means AlreadyProcessed ack, no effect)
//  3. authenticity proof
//  4. amount and currency check
//  5. branch on the declared outcome
//
// Steps 2-5 run in one unit so concurrent deliveries for the same transaction serialize.
func (m *Manager) Reconcile(ctx context.Context, cb domain.Callback) (*domain.CallbackAck, error) {
	if cb.Lookup.Empty() {
		return nil, domain.NewError(domain.KindInvalidRequest, "callback does not identify a transaction", "provider", cb.Provider)
	}
	if cb.Lookup.Provider == "" {
		cb.Lookup.Provider = cb.Provider
	}
	found, err := m.store.FindTransaction(ctx, cb.Lookup)
	if err != nil {
		m.recorder.RecordCallback(cb.Provider, "not_found")
		return nil, err
	}

	var (
		ack *domain.CallbackAck
		fx  afterCommit
	)
	err = m.store.Atomically(ctx, found.ID, func(ctx context.Context, unit domain.LedgerUnit) error {
		fx = nil
		tx := unit.Transaction()

		if err := ValidateNotProcessed(tx); err != nil {
			ack = &domain.CallbackAck{Status: domain.AckAlreadyProcessed, Transaction: tx.Clone()}
			ack.ManualReview = lateSuccess(cb, tx) && m.verify(cb, tx) == nil
			return nil
		}
		if err := m.verify(cb, tx); err != nil {
			return err
		}
		if cb.Outcome == domain.OutcomePending && cb.Amount.IsZero() {
			ack = &domain.CallbackAck{Status: domain.AckPending, Transaction: tx.Clone()}
			return nil
		}
		if !cb.Amount.Equal(tx.Amount) {
			return domain.NewError(domain.KindAmountMismatch, "callback amount differs from transaction amount",
				"transaction_id", tx.ID, "expected", tx.Amount.String(), "got", cb.Amount.String())
		}
		if cb.Currency != "" && !strings.EqualFold(cb.Currency, tx.Currency) {
			return domain.NewError(domain.KindCurrencyMismatch, "callback currency differs from transaction currency",
				"transaction_id", tx.ID, "expected", tx.Currency, "got", cb.Currency)
		}

		switch cb.Outcome {
		case domain.OutcomeSuccess:
			var err error
			if tx.Direction == domain.DirectionPayin {
				err = m.completePayinIn(unit, cb.Amount, cb.ExternalRef, &fx)
			} else {
				err = m.completePayoutIn(unit, cb.ExternalRef, &fx)
			}
			if err != nil {
				return err
			}
		case domain.OutcomeFailed:
			reason := cb.Reason
			if reason == "" {
				reason = "declined by " + cb.Provider
			}
			if err := m.failIn(unit, reason, &fx); err != nil {
				return err
			}
		case domain.OutcomePending:
			ack = &domain.CallbackAck{Status: domain.AckPending, Transaction: tx.Clone()}
			return nil
		default:
			return domain.NewError(domain.KindInvalidRequest, "unknown callback outcome", "outcome", cb.Outcome)
		}
		ack = &domain.CallbackAck{Status: domain.AckApplied, Transaction: unit.Transaction()}
		return nil
	})
	if err != nil {
		m.recordCallbackError(cb, found.ID, err)
		return nil, err
	}

	fx.run(ctx)
	if ack.Status == domain.AckApplied {
		ack.Transaction = ack.Transaction.Clone()
	}
	if ack.ManualReview {
		m.recorder.RecordCallback(cb.Provider, "manual_review")
		m.logger.Error("gateway reports success for a failed payin, manual review required",
			"provider", cb.Provider,
			"transaction_id", found.ID,
			"user_id", ack.Transaction.UserID,
			"amount", cb.Amount.String(),
			"currency", cb.Currency,
			"external_ref", cb.ExternalRef,
			"failure_reason", ack.Transaction.FailureReason,
		)
		return ack, nil
	}
	m.recorder.RecordCallback(cb.Provider, strings.ToLower(string(ack.Status)))
	m.logger.Info("callback reconciled",
		"provider", cb.Provider,
		"transaction_id", found.ID,
		"outcome", cb.Outcome,
		"ack", ack.Status,
	)
	return ack, nil
}

// lateSuccess reports a success delivery for a payin that already failed, usually by expiry.
func lateSuccess(cb domain.Callback, tx *domain.Transaction) bool {
	return cb.Outcome == domain.OutcomeSuccess &&
		tx.Direction == domain.DirectionPayin &&
		tx.Status == domain.StatusFailed
}

func (m *Manager) verify(cb domain.Callback, tx *domain.Transaction) error {
	if cb.Verify == nil {
		return domain.NewError(domain.KindSecurityViolation, "callback carries no authenticity proof",
			"provider", cb.Provider, "transaction_id", tx.ID)
	}
	if err := cb.Verify(tx); err != nil {
		if domain.KindOf(err) == domain.KindSecurityViolation {
			return err
		}
		return domain.WrapError(domain.KindSecurityViolation, "callback authenticity check failed", err,
			"provider", cb.Provider, "transaction_id", tx.ID)
	}
	return nil
}

func (m *Manager) recordCallbackError(cb domain.Callback, txID string, err error) {
	kind := domain.KindOf(err)
	result := strings.ToLower(string(kind))
	if result == "" {
		result = "error"
	}
	m.recorder.RecordCallback(cb.Provider, result)
	switch {
	case errors.Is(err, domain.ErrSecurityViolation):
		m.logger.Warn("callback rejected: authenticity proof invalid",
			"provider", cb.Provider, "transaction_id", txID, "error", err)
	case domain.IsDomainError(err):
		m.logger.Warn("callback rejected", "provider", cb.Provider, "transaction_id", txID, "kind", kind, "error", err)
	default:
		m.logger.Error("callback processing failed", "provider", cb.Provider, "transaction_id", txID, "error", err)
	}
}
