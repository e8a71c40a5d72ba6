package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingTx(id string) *domain.Transaction {
	return &domain.Transaction{
		ID:                   id,
		UserID:               "user-1",
		Direction:            domain.DirectionPayin,
		Status:               domain.StatusPending,
		Amount:               decimal.NewFromInt(500),
		Currency:             "RUB",
		Provider:             "formkassa",
		PaymentTransactionID: "ext-" + id,
		CorrelationLabel:     "label-" + id,
		CreatedAt:            time.Now().UTC(),
	}
}

func TestStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := pendingTx("a")
	require.NoError(t, s.CreateTransaction(ctx, tx))
	assert.Equal(t, int64(1), tx.Version)

	err := s.CreateTransaction(ctx, pendingTx("a"))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	got, err := s.FindTransaction(ctx, domain.TransactionLookup{Provider: "formkassa", Handle: "ext-a"})
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	got, err = s.FindTransaction(ctx, domain.TransactionLookup{Label: "label-a"})
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = s.FindTransaction(ctx, domain.TransactionLookup{Provider: "sbpqr", Handle: "ext-a"})
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = s.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestStore_AtomicallyRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := pendingTx("a")
	require.NoError(t, s.CreateTransaction(ctx, tx))
	key := tx.BalanceKey()

	boom := errors.New("boom")
	err := s.Atomically(ctx, "a", func(ctx context.Context, unit domain.LedgerUnit) error {
		cur := unit.Transaction()
		cur.Status = domain.StatusCompleted
		require.NoError(t, unit.SaveTransaction(cur))

		b, err := unit.LockBalance(key)
		require.NoError(t, err)
		b.Amount = decimal.NewFromInt(500)
		require.NoError(t, unit.SaveBalance(b))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetTransaction(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version)

	b, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.Amount.IsZero())
}

func TestStore_AtomicallyCommitsAndBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.CreateTransaction(ctx, pendingTx("a")))

	err := s.Atomically(ctx, "a", func(ctx context.Context, unit domain.LedgerUnit) error {
		cur := unit.Transaction()
		cur.Status = domain.StatusCompleted
		return unit.SaveTransaction(cur)
	})
	require.NoError(t, err)

	got, err := s.GetTransaction(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestStore_SaveBalanceRejectsNegative(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := pendingTx("a")
	require.NoError(t, s.CreateTransaction(ctx, tx))

	err := s.Atomically(ctx, "a", func(ctx context.Context, unit domain.LedgerUnit) error {
		b, err := unit.LockBalance(tx.BalanceKey())
		if err != nil {
			return err
		}
		b.Amount = decimal.NewFromInt(-1)
		return unit.SaveBalance(b)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestStore_CreateAtomicallyDiscardsRowOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := pendingTx("a")

	err := s.CreateAtomically(ctx, tx, func(ctx context.Context, unit domain.LedgerUnit) error {
		return domain.NewError(domain.KindInsufficientBalance, "too low")
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = s.GetTransaction(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestStore_SerializesUnitsPerTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := pendingTx("a")
	require.NoError(t, s.CreateTransaction(ctx, tx))
	key := tx.BalanceKey()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := s.Atomically(ctx, "a", func(ctx context.Context, unit domain.LedgerUnit) error {
				b, err := unit.LockBalance(key)
				if err != nil {
					return err
				}
				b.Amount = b.Amount.Add(decimal.NewFromInt(1))
				return unit.SaveBalance(b)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	b, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "50", b.Amount.String())
}

func TestStore_LockHonoursContext(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.CreateTransaction(context.Background(), pendingTx("a")))

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Atomically(context.Background(), "a", func(ctx context.Context, unit domain.LedgerUnit) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Atomically(ctx, "a", func(ctx context.Context, unit domain.LedgerUnit) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestStore_ListStalePending(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	old := pendingTx("old")
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	fresh := pendingTx("fresh")
	payout := pendingTx("payout")
	payout.Direction = domain.DirectionPayout
	payout.CreatedAt = time.Now().Add(-2 * time.Hour)
	for _, tx := range []*domain.Transaction{old, fresh, payout} {
		require.NoError(t, s.CreateTransaction(ctx, tx))
	}

	stale, err := s.ListStalePending(ctx, domain.DirectionPayin, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)
}
