package domain

import (
	"context"
	"time"
)

// LedgerStore is the transactional store behind the ledger. Implementations must make
// Atomically and CreateAtomically linearizable per transaction id: the unit sees the latest
// committed row, and its writes commit together or not at all.
type LedgerStore interface {
	BalanceReader

	// CreateTransaction inserts a new row outside of any balance effect.
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	FindTransaction(ctx context.Context, lookup TransactionLookup) (*Transaction, error)
	// ListStalePending returns PENDING rows of the direction created before the cutoff.
	ListStalePending(ctx context.Context, direction Direction, before time.Time, limit int) ([]*Transaction, error)

	// Atomically locks the transaction row, runs fn, and commits every write made through
	// the unit. Any error from fn rolls the unit back and is returned unchanged.
	Atomically(ctx context.Context, txID string, fn func(ctx context.Context, unit LedgerUnit) error) error
	// CreateAtomically inserts tx and runs fn in the same unit.
	CreateAtomically(ctx context.Context, tx *Transaction, fn func(ctx context.Context, unit LedgerUnit) error) error
}

// LedgerUnit is one atomic read-modify-write scope.
type LedgerUnit interface {
	// Transaction is the locked row. Mutate it and call SaveTransaction.
	Transaction() *Transaction
	SaveTransaction(tx *Transaction) error
	// LockBalance returns the balance row for update, creating a zero row lazily.
	LockBalance(key BalanceKey) (*Balance, error)
	SaveBalance(b *Balance) error
}

// MethodRepository loads payment methods configured for the site.
type MethodRepository interface {
	GetMethod(ctx context.Context, id string) (*PaymentMethod, error)
}

// CallbackAuditEntry records one webhook delivery regardless of outcome.
type CallbackAuditEntry struct {
	ID          string
	Provider    string
	PayloadHash string
	Result      string
	Error       string
	ReceivedAt  time.Time
}

type CallbackAuditLog interface {
	Record(ctx context.Context, entry CallbackAuditEntry) error
}
