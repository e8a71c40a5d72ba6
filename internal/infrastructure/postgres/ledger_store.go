package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/postgres/mappers"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/postgres/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore runs every unit inside one database transaction. The transaction row is
// locked with SELECT ... FOR UPDATE before fn runs; balance rows are locked on first use.
type LedgerStore struct {
	DB  *gorm.DB
	now func() time.Time
}

var _ domain.LedgerStore = (*LedgerStore)(nil)

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{DB: db, now: time.Now}
}

func (s *LedgerStore) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	model := mappers.ToGORMTransaction(tx)
	model.Version = 1
	if err := s.DB.WithContext(ctx).Create(model).Error; err != nil {
		return createError(err, tx.ID)
	}
	tx.Version = 1
	return nil
}

func (s *LedgerStore) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var model models.TransactionModel
	if err := s.DB.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFoundError(err, "transaction_id", id)
	}
	return mappers.ToDomainTransaction(&model), nil
}

func (s *LedgerStore) FindTransaction(ctx context.Context, lookup domain.TransactionLookup) (*domain.Transaction, error) {
	if lookup.ID != "" {
		return s.GetTransaction(ctx, lookup.ID)
	}
	if lookup.Empty() {
		return nil, domain.NewError(domain.KindTransactionNotFound, "empty transaction lookup")
	}

	q := s.DB.WithContext(ctx).Model(&models.TransactionModel{})
	if lookup.Provider != "" {
		q = q.Where("provider = ?", lookup.Provider)
	}
	switch {
	case lookup.Handle != "" && lookup.Label != "":
		q = q.Where("payment_transaction_id = ? OR correlation_label = ?", lookup.Handle, lookup.Label)
	case lookup.Handle != "":
		q = q.Where("payment_transaction_id = ?", lookup.Handle)
	default:
		q = q.Where("correlation_label = ?", lookup.Label)
	}

	var model models.TransactionModel
	if err := q.Order("created_at").First(&model).Error; err != nil {
		return nil, notFoundError(err, "provider", lookup.Provider, "handle", lookup.Handle, "label", lookup.Label)
	}
	return mappers.ToDomainTransaction(&model), nil
}

func (s *LedgerStore) ListStalePending(ctx context.Context, direction domain.Direction, before time.Time, limit int) ([]*domain.Transaction, error) {
	var rows []models.TransactionModel
	q := s.DB.WithContext(ctx).
		Where("direction = ? AND status = ? AND created_at < ?", string(direction), string(domain.StatusPending), before).
		Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, mappers.ToDomainTransaction(&rows[i]))
	}
	return out, nil
}

func (s *LedgerStore) GetBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error) {
	var model models.BalanceModel
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND currency = ? AND kind = ?", key.UserID, key.Currency, string(key.Kind)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.Balance{Key: key, Amount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance %s: %w", key, err)
	}
	return mappers.ToDomainBalance(&model), nil
}

func (s *LedgerStore) ListBalances(ctx context.Context, userID string) ([]*domain.Balance, error) {
	var rows []models.BalanceModel
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("currency, kind").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	out := make([]*domain.Balance, 0, len(rows))
	for i := range rows {
		out = append(out, mappers.ToDomainBalance(&rows[i]))
	}
	return out, nil
}

func (s *LedgerStore) Atomically(ctx context.Context, txID string, fn func(ctx context.Context, unit domain.LedgerUnit) error) error {
	return s.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var model models.TransactionModel
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", txID).Error; err != nil {
			return notFoundError(err, "transaction_id", txID)
		}
		u := newUnit(db, mappers.ToDomainTransaction(&model), s.now)
		if err := fn(ctx, u); err != nil {
			return err
		}
		return u.flush(false)
	})
}

func (s *LedgerStore) CreateAtomically(ctx context.Context, tx *domain.Transaction, fn func(ctx context.Context, unit domain.LedgerUnit) error) error {
	return s.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		u := newUnit(db, tx.Clone(), s.now)
		u.txDirty = true
		if err := fn(ctx, u); err != nil {
			return err
		}
		if err := u.flush(true); err != nil {
			return err
		}
		tx.Version = 1
		return nil
	})
}

type unit struct {
	db       *gorm.DB
	tx       *domain.Transaction
	txDirty  bool
	balances map[domain.BalanceKey]*domain.Balance
	dirty    map[domain.BalanceKey]bool
	now      func() time.Time
}

func newUnit(db *gorm.DB, tx *domain.Transaction, now func() time.Time) *unit {
	return &unit{
		db:       db,
		tx:       tx,
		balances: make(map[domain.BalanceKey]*domain.Balance),
		dirty:    make(map[domain.BalanceKey]bool),
		now:      now,
	}
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
	seed := models.BalanceModel{
		UserID:    key.UserID,
		Currency:  key.Currency,
		Kind:      string(key.Kind),
		Amount:    decimal.Zero,
		UpdatedAt: u.now(),
	}
	if err := u.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("ensure balance %s: %w", key, err)
	}

	var model models.BalanceModel
	err := u.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND currency = ? AND kind = ?", key.UserID, key.Currency, string(key.Kind)).
		First(&model).Error
	if err != nil {
		return nil, fmt.Errorf("lock balance %s: %w", key, err)
	}
	b := mappers.ToDomainBalance(&model)
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
	u.dirty[b.Key] = true
	return nil
}

func (u *unit) flush(insert bool) error {
	if u.txDirty {
		if err := u.flushTransaction(insert); err != nil {
			return err
		}
	}
	for key := range u.dirty {
		b := u.balances[key]
		res := u.db.Model(&models.BalanceModel{}).
			Where("user_id = ? AND currency = ? AND kind = ?", key.UserID, key.Currency, string(key.Kind)).
			Updates(map[string]any{
				"amount":     b.Amount,
				"version":    gorm.Expr("version + 1"),
				"updated_at": u.now(),
			})
		if res.Error != nil {
			return fmt.Errorf("save balance %s: %w", key, res.Error)
		}
	}
	return nil
}

func (u *unit) flushTransaction(insert bool) error {
	if insert {
		model := mappers.ToGORMTransaction(u.tx)
		model.Version = 1
		if err := u.db.Create(model).Error; err != nil {
			return createError(err, u.tx.ID)
		}
		u.tx.Version = 1
		return nil
	}

	model := mappers.ToGORMTransaction(u.tx)
	res := u.db.Model(&models.TransactionModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version).
		Updates(map[string]any{
			"status":                 model.Status,
			"user_response_status":   model.UserResponseStatus,
			"payment_transaction_id": model.PaymentTransactionID,
			"failure_reason":         model.FailureReason,
			"requisite":              model.Requisite,
			"version":                model.Version + 1,
			"updated_at":             model.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("save transaction %s: %w", model.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewError(domain.KindTransient, "transaction changed concurrently", "transaction_id", model.ID)
	}
	u.tx.Version = model.Version + 1
	return nil
}

func createError(err error, txID string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.NewError(domain.KindInvalidRequest, "transaction already exists", "transaction_id", txID)
	}
	return fmt.Errorf("create transaction %s: %w", txID, err)
}

func notFoundError(err error, fields ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewError(domain.KindTransactionNotFound, "transaction not found", fields...)
	}
	return fmt.Errorf("load transaction: %w", err)
}
