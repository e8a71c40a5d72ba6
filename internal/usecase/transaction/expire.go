package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
)

const expireBatchSize = 100

// ExpireStalePayins fails PENDING payins created more than olderThan ago. Payouts hold a
// debit and are left for a callback or an operator.
func (m *Manager) ExpireStalePayins(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.now().UTC().Add(-olderThan)
	stale, err := m.store.ListStalePending(ctx, domain.DirectionPayin, cutoff, expireBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale payins: %w", err)
	}

	expired := 0
	for _, tx := range stale {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		_, err := m.FailTransaction(ctx, tx.ID, payinExpiredFailureReason)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, domain.ErrAlreadyProcessed):
			// a late callback won the race
		default:
			m.logger.Error("failed to expire payin", "transaction_id", tx.ID, "error", err)
		}
	}
	if expired > 0 {
		m.logger.Info("stale payins expired", "count", expired, "cutoff", cutoff)
	}
	return expired, nil
}
