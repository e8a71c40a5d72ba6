package balance_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/memory"
	"github.com/LavaJover/shvark-ledger-service/internal/usecase/balance"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMutation struct {
	op       string
	currency string
	amount   decimal.Decimal
}

type fakeRecorder struct {
	calls []recordedMutation
}

func (f *fakeRecorder) RecordBalanceMutation(op, currency string, amount decimal.Decimal) {
	f.calls = append(f.calls, recordedMutation{op, currency, amount})
}

func newFixture(t *testing.T) (*memory.Store, *balance.Ledger, *fakeRecorder, *domain.Transaction) {
	t.Helper()
	store := memory.NewStore()
	rec := &fakeRecorder{}
	ledger := balance.NewLedger(store, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tx := &domain.Transaction{
		ID:        "tx-1",
		UserID:    "user-1",
		Direction: domain.DirectionPayout,
		Status:    domain.StatusPending,
		Amount:    decimal.NewFromInt(300),
		Currency:  "RUB",
	}
	require.NoError(t, store.CreateTransaction(context.Background(), tx))
	return store, ledger, rec, tx
}

func TestLedger_CreditAndDebit(t *testing.T) {
	ctx := context.Background()
	store, ledger, rec, tx := newFixture(t)
	key := tx.BalanceKey()

	err := store.Atomically(ctx, tx.ID, func(ctx context.Context, unit domain.LedgerUnit) error {
		b, err := ledger.Credit(unit, key, decimal.NewFromInt(1000), tx)
		require.NoError(t, err)
		assert.True(t, b.Amount.Equal(decimal.NewFromInt(1000)))

		b, err = ledger.Debit(unit, key, decimal.NewFromInt(300), tx)
		require.NoError(t, err)
		assert.True(t, b.Amount.Equal(decimal.NewFromInt(700)))
		return nil
	})
	require.NoError(t, err)

	got, err := store.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "700", got.Amount.String())
	require.Len(t, rec.calls, 2)
	assert.Equal(t, "credit", rec.calls[0].op)
	assert.Equal(t, "debit", rec.calls[1].op)
	assert.Equal(t, "RUB", rec.calls[1].currency)
}

func TestLedger_DebitInsufficientLeavesBalance(t *testing.T) {
	ctx := context.Background()
	store, ledger, rec, tx := newFixture(t)
	key := tx.BalanceKey()
	store.SeedBalance(key, decimal.NewFromInt(200))

	err := store.Atomically(ctx, tx.ID, func(ctx context.Context, unit domain.LedgerUnit) error {
		_, err := ledger.Debit(unit, key, decimal.NewFromInt(300), tx)
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	got, err := store.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "200", got.Amount.String())
	assert.Empty(t, rec.calls)
}

func TestLedger_RejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	store, ledger, _, tx := newFixture(t)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5), decimal.RequireFromString("100.005")} {
		err := store.Atomically(ctx, tx.ID, func(ctx context.Context, unit domain.LedgerUnit) error {
			_, err := ledger.Credit(unit, tx.BalanceKey(), amount, tx)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)

		err = store.Atomically(ctx, tx.ID, func(ctx context.Context, unit domain.LedgerUnit) error {
			_, err := ledger.Debit(unit, tx.BalanceKey(), amount, tx)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	}
}

func TestLedger_NeverNegativeAcrossDebitSequence(t *testing.T) {
	ctx := context.Background()
	store, ledger, _, tx := newFixture(t)
	key := tx.BalanceKey()
	store.SeedBalance(key, decimal.NewFromInt(100))

	debits := []int64{30, 50, 40, 20, 10, 1}
	for _, d := range debits {
		_ = store.Atomically(ctx, tx.ID, func(ctx context.Context, unit domain.LedgerUnit) error {
			_, err := ledger.Debit(unit, key, decimal.NewFromInt(d), tx)
			return err
		})
		got, err := store.GetBalance(ctx, key)
		require.NoError(t, err)
		assert.False(t, got.Amount.IsNegative(), "balance went negative after debit %d", d)
	}

	got, err := store.GetBalance(ctx, key)
	require.NoError(t, err)
	// 30 + 50 + 20 = 100; the 40, 10 and 1 debits are refused
	assert.Equal(t, "0", got.Amount.String())
}

func TestLedger_CheckSufficient(t *testing.T) {
	ctx := context.Background()
	store, ledger, _, tx := newFixture(t)
	key := tx.BalanceKey()
	store.SeedBalance(key, decimal.NewFromInt(500))

	b, err := ledger.CheckSufficient(ctx, key, decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.Equal(t, "500", b.Amount.String())

	b, err = ledger.CheckSufficient(ctx, key, decimal.NewFromInt(501))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.NotNil(t, b)
	assert.Equal(t, "500", b.Amount.String())
}

func TestLedger_MainBalance(t *testing.T) {
	ctx := context.Background()
	store, ledger, _, _ := newFixture(t)

	_, ok, err := ledger.MainBalance(ctx, "user-2")
	require.NoError(t, err)
	assert.False(t, ok)

	store.SeedBalance(domain.BalanceKey{UserID: "user-2", Currency: "USD", Kind: domain.BalanceMain}, decimal.NewFromInt(5))
	store.SeedBalance(domain.BalanceKey{UserID: "user-2", Currency: "RUB", Kind: domain.BalanceMain}, decimal.NewFromInt(900))
	store.SeedBalance(domain.BalanceKey{UserID: "user-2", Currency: "EUR", Kind: domain.BalanceBonus}, decimal.NewFromInt(10000))

	b, ok, err := ledger.MainBalance(ctx, "user-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "RUB", b.Key.Currency)
}
