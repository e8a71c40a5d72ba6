package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Store is a process-local LedgerStore. Row locks are keyed mutexes held for the duration of
// a unit; writes are staged on copies and published on commit.
type Store struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction
	balances     map[domain.BalanceKey]*domain.Balance
	locks        *keyedLock
	now          func() time.Time
}

func NewStore() *Store {
	return &Store{
		transactions: make(map[string]*domain.Transaction),
		balances:     make(map[domain.BalanceKey]*domain.Balance),
		locks:        newKeyedLock(),
		now:          time.Now,
	}
}

var _ domain.LedgerStore = (*Store)(nil)

func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	unlock, err := s.locks.Lock(ctx, txLockKey(tx.ID))
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[tx.ID]; exists {
		return domain.NewError(domain.KindInvalidRequest, "transaction already exists", "transaction_id", tx.ID)
	}
	c := tx.Clone()
	c.Version = 1
	s.transactions[tx.ID] = c
	tx.Version = c.Version
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, domain.NewError(domain.KindTransactionNotFound, "transaction not found", "transaction_id", id)
	}
	return tx.Clone(), nil
}

func (s *Store) FindTransaction(ctx context.Context, lookup domain.TransactionLookup) (*domain.Transaction, error) {
	if lookup.ID != "" {
		return s.GetTransaction(ctx, lookup.ID)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.transactions {
		if lookup.Provider != "" && tx.Provider != lookup.Provider {
			continue
		}
		if lookup.Handle != "" && tx.PaymentTransactionID == lookup.Handle {
			return tx.Clone(), nil
		}
		if lookup.Label != "" && tx.CorrelationLabel == lookup.Label {
			return tx.Clone(), nil
		}
	}
	return nil, domain.NewError(domain.KindTransactionNotFound, "transaction not found",
		"provider", lookup.Provider, "handle", lookup.Handle, "label", lookup.Label)
}

func (s *Store) ListStalePending(ctx context.Context, direction domain.Direction, before time.Time, limit int) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.Direction == direction && tx.Status == domain.StatusPending && tx.CreatedAt.Before(before) {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.balances[key]; ok {
		return b.Clone(), nil
	}
	return &domain.Balance{Key: key, Amount: decimal.Zero}, nil
}

func (s *Store) ListBalances(ctx context.Context, userID string) ([]*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Balance
	for k, b := range s.balances {
		if k.UserID == userID {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

// SeedBalance overwrites a balance without a transaction or ledger entry. Test fixtures only.
func (s *Store) SeedBalance(key domain.BalanceKey, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[key] = &domain.Balance{Key: key, Amount: amount, Version: 1, UpdatedAt: s.now()}
}

func (s *Store) Atomically(ctx context.Context, txID string, fn func(ctx context.Context, unit domain.LedgerUnit) error) error {
	unlock, err := s.locks.Lock(ctx, txLockKey(txID))
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	return s.run(ctx, current, false, fn)
}

func (s *Store) CreateAtomically(ctx context.Context, tx *domain.Transaction, fn func(ctx context.Context, unit domain.LedgerUnit) error) error {
	unlock, err := s.locks.Lock(ctx, txLockKey(tx.ID))
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	_, exists := s.transactions[tx.ID]
	s.mu.RUnlock()
	if exists {
		return domain.NewError(domain.KindInvalidRequest, "transaction already exists", "transaction_id", tx.ID)
	}
	if err := s.run(ctx, tx.Clone(), true, fn); err != nil {
		return err
	}
	tx.Version = 1
	return nil
}

func (s *Store) run(ctx context.Context, tx *domain.Transaction, insert bool, fn func(ctx context.Context, unit domain.LedgerUnit) error) error {
	u := &unit{
		store:    s,
		ctx:      ctx,
		tx:       tx,
		txDirty:  insert,
		balances: make(map[domain.BalanceKey]*domain.Balance),
	}
	defer u.releaseBalances()

	if err := fn(ctx, u); err != nil {
		return err
	}
	u.commit(insert)
	return nil
}

type unit struct {
	store    *Store
	ctx      context.Context
	tx       *domain.Transaction
	txDirty  bool
	balances map[domain.BalanceKey]*domain.Balance
	dirty    map[domain.BalanceKey]bool
	unlocks  []func()
}

func (u *unit) Transaction() *domain.Transaction { return u.tx }

func (u *unit) SaveTransaction(tx *domain.Transaction) error {
	if tx.ID != u.tx.ID {
		return domain.NewError(domain.KindInvalidRequest, "unit bound to another transaction",
			"unit_transaction_id", u.tx.ID, "transaction_id", tx.ID)
	}
	u.tx = tx
	u.txDirty = true
	return nil
}

func (u *unit) LockBalance(key domain.BalanceKey) (*domain.Balance, error) {
	if b, ok := u.balances[key]; ok {
		return b, nil
	}
	unlock, err := u.store.locks.Lock(u.ctx, balanceLockKey(key))
	if err != nil {
		return nil, err
	}
	u.unlocks = append(u.unlocks, unlock)

	b, err := u.store.GetBalance(u.ctx, key)
	if err != nil {
		return nil, err
	}
	u.balances[key] = b
	return b, nil
}

func (u *unit) SaveBalance(b *domain.Balance) error {
	if _, ok := u.balances[b.Key]; !ok {
		return domain.NewError(domain.KindInvalidRequest, "balance not locked in unit", "balance", b.Key.String())
	}
	if b.Amount.IsNegative() {
		return domain.NewError(domain.KindInsufficientBalance, "balance would go negative", "balance", b.Key.String())
	}
	u.balances[b.Key] = b
	if u.dirty == nil {
		u.dirty = make(map[domain.BalanceKey]bool)
	}
	u.dirty[b.Key] = true
	return nil
}

func (u *unit) commit(insert bool) {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.txDirty {
		c := u.tx.Clone()
		if insert {
			c.Version = 1
		} else {
			c.Version++
		}
		s.transactions[c.ID] = c
		u.tx.Version = c.Version
	}
	for key := range u.dirty {
		c := u.balances[key].Clone()
		c.Version++
		s.balances[key] = c
	}
}

func (u *unit) releaseBalances() {
	for i := len(u.unlocks) - 1; i >= 0; i-- {
		u.unlocks[i]()
	}
}

func txLockKey(id string) string { return "tx:" + id }

func balanceLockKey(k domain.BalanceKey) string { return "balance:" + k.String() }
