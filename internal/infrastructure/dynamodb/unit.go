package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type lockedBalance struct {
	balance     *domain.Balance
	baseVersion int64
	exists      bool
}

type unit struct {
	store       *Store
	ctx         context.Context
	tx          *domain.Transaction
	baseVersion int64
	txDirty     bool
	balances    map[domain.BalanceKey]*lockedBalance
	dirty       map[domain.BalanceKey]bool
}

func (s *Store) newUnit(ctx context.Context, tx *domain.Transaction, baseVersion int64) *unit {
	return &unit{
		store:       s,
		ctx:         ctx,
		tx:          tx,
		baseVersion: baseVersion,
		balances:    make(map[domain.BalanceKey]*lockedBalance),
		dirty:       make(map[domain.BalanceKey]bool),
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

// LockBalance reads the row; the version condition at commit stands in for the lock.
func (u *unit) LockBalance(key domain.BalanceKey) (*domain.Balance, error) {
	if lb, ok := u.balances[key]; ok {
		return lb.balance, nil
	}
	b, exists, err := u.store.readBalance(u.ctx, key)
	if err != nil {
		return nil, err
	}
	u.balances[key] = &lockedBalance{balance: b, baseVersion: b.Version, exists: exists}
	return b, nil
}

func (u *unit) SaveBalance(b *domain.Balance) error {
	lb, ok := u.balances[b.Key]
	if !ok {
		return domain.NewError(domain.KindInvalidRequest, "balance not locked in unit", "balance", b.Key.String())
	}
	if b.Amount.IsNegative() {
		return domain.NewError(domain.KindInsufficientBalance, "balance would go negative", "balance", b.Key.String())
	}
	lb.balance = b
	u.dirty[b.Key] = true
	return nil
}

func (u *unit) commit(ctx context.Context, insert bool) error {
	s := u.store
	var items []types.TransactWriteItem

	nextVersion := u.baseVersion + 1
	if u.txDirty {
		next := u.tx.Clone()
		next.Version = nextVersion
		av, err := attributevalue.MarshalMap(toTransactionItem(next))
		if err != nil {
			return fmt.Errorf("failed to marshal transaction: %w", err)
		}
		put := &types.Put{TableName: aws.String(s.TransactionsTable), Item: av}
		if insert {
			put.ConditionExpression = aws.String("attribute_not_exists(id)")
		} else {
			put.ConditionExpression = aws.String("version = :v")
			put.ExpressionAttributeValues = map[string]types.AttributeValue{":v": versionValue(u.baseVersion)}
		}
		items = append(items, types.TransactWriteItem{Put: put})
	} else if len(u.dirty) > 0 {
		items = append(items, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(s.TransactionsTable),
			Key:                       transactionKey(u.tx.ID),
			ConditionExpression:       aws.String("version = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":v": versionValue(u.baseVersion)},
		}})
	}

	keys := make([]domain.BalanceKey, 0, len(u.dirty))
	for k := range u.dirty {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	now := s.now()
	for _, k := range keys {
		lb := u.balances[k]
		next := lb.balance.Clone()
		next.Version = lb.baseVersion + 1
		next.UpdatedAt = now
		av, err := attributevalue.MarshalMap(toBalanceItem(next))
		if err != nil {
			return fmt.Errorf("failed to marshal balance: %w", err)
		}
		put := &types.Put{TableName: aws.String(s.BalancesTable), Item: av}
		if lb.exists {
			put.ConditionExpression = aws.String("version = :v")
			put.ExpressionAttributeValues = map[string]types.AttributeValue{":v": versionValue(lb.baseVersion)}
		} else {
			put.ConditionExpression = aws.String("attribute_not_exists(user_id)")
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}

	if len(items) == 0 {
		return nil
	}

	if _, err := s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			if insert && conditionFailed(canceled, 0) {
				return domain.NewError(domain.KindInvalidRequest, "transaction already exists", "transaction_id", u.tx.ID)
			}
			return fmt.Errorf("commit transaction %s: %w", u.tx.ID, domain.ErrStoreConflict)
		}
		return fmt.Errorf("failed to execute ledger transaction: %w", err)
	}

	if u.txDirty {
		u.tx.Version = nextVersion
	}
	for _, k := range keys {
		u.balances[k].balance.Version = u.balances[k].baseVersion + 1
	}
	return nil
}

func conditionFailed(e *types.TransactionCanceledException, idx int) bool {
	if idx >= len(e.CancellationReasons) {
		return false
	}
	return aws.ToString(e.CancellationReasons[idx].Code) == "ConditionalCheckFailed"
}
