package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BalanceKind string

const (
	BalanceMain  BalanceKind = "main"
	BalanceBonus BalanceKind = "bonus"
)

// BalanceKey identifies one balance row: one per (user, currency, kind).
type BalanceKey struct {
	UserID   string
	Currency string
	Kind     BalanceKind
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.UserID, k.Currency, k.Kind)
}

type Balance struct {
	Key       BalanceKey
	Amount    decimal.Decimal
	Version   int64
	UpdatedAt time.Time
}

func (b *Balance) Clone() *Balance {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// BalanceReader exposes read-only balance snapshots outside an atomic unit.
type BalanceReader interface {
	GetBalance(ctx context.Context, key BalanceKey) (*Balance, error)
	ListBalances(ctx context.Context, userID string) ([]*Balance, error)
}
