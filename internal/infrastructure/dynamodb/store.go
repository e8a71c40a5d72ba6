package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// DynamoDBAPI is the subset of *dynamodb.Client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

const (
	LabelIndex  = "correlation_label-index"
	HandleIndex = "payment_transaction_id-index"

	defaultMaxAttempts = 5
	retryBackoff       = 20 * time.Millisecond
)

// Store is an optimistic LedgerStore: a unit reads without locks and commits all of its
// writes in one TransactWriteItems guarded by version conditions. Lost races rerun the unit.
type Store struct {
	Client            DynamoDBAPI
	TransactionsTable string
	BalancesTable     string
	MaxAttempts       int
	now               func() time.Time
}

var _ domain.LedgerStore = (*Store)(nil)

func New(client DynamoDBAPI, transactionsTable, balancesTable string) *Store {
	return &Store{
		Client:            client,
		TransactionsTable: transactionsTable,
		BalancesTable:     balancesTable,
		MaxAttempts:       defaultMaxAttempts,
		now:               time.Now,
	}
}

func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	item := toTransactionItem(tx)
	item.Version = 1
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}
	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.TransactionsTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return domain.NewError(domain.KindInvalidRequest, "transaction already exists", "transaction_id", tx.ID)
		}
		return fmt.Errorf("failed to put transaction: %w", err)
	}
	tx.Version = 1
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	out, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.TransactionsTable),
		Key:            transactionKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if out.Item == nil {
		return nil, domain.NewError(domain.KindTransactionNotFound, "transaction not found", "transaction_id", id)
	}
	var item transactionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return item.toDomain()
}

func (s *Store) FindTransaction(ctx context.Context, lookup domain.TransactionLookup) (*domain.Transaction, error) {
	if lookup.ID != "" {
		return s.GetTransaction(ctx, lookup.ID)
	}
	if lookup.Handle != "" {
		tx, err := s.findByIndex(ctx, HandleIndex, "payment_transaction_id", lookup.Handle, lookup.Provider)
		if err == nil || !errors.Is(err, domain.ErrTransactionNotFound) {
			return tx, err
		}
	}
	if lookup.Label != "" {
		return s.findByIndex(ctx, LabelIndex, "correlation_label", lookup.Label, lookup.Provider)
	}
	return nil, domain.NewError(domain.KindTransactionNotFound, "transaction not found",
		"provider", lookup.Provider, "handle", lookup.Handle, "label", lookup.Label)
}

// findByIndex queries a GSI and re-reads the match consistently.
func (s *Store) findByIndex(ctx context.Context, index, attr, value, provider string) (*domain.Transaction, error) {
	out, err := s.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.TransactionsTable),
		IndexName:                aws.String(index),
		KeyConditionExpression:   aws.String("#k = :v"),
		ExpressionAttributeNames: map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", index, err)
	}
	for _, raw := range out.Items {
		var item transactionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
		}
		if provider != "" && item.Provider != provider {
			continue
		}
		return s.GetTransaction(ctx, item.ID)
	}
	return nil, domain.NewError(domain.KindTransactionNotFound, "transaction not found",
		"provider", provider, attr, value)
}

func (s *Store) ListStalePending(ctx context.Context, direction domain.Direction, before time.Time, limit int) ([]*domain.Transaction, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.TransactionsTable),
		FilterExpression: aws.String("#dir = :dir AND #st = :st AND #cu < :before"),
		ExpressionAttributeNames: map[string]string{
			"#dir": "direction",
			"#st":  "status",
			"#cu":  "created_unix",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dir":    &types.AttributeValueMemberS{Value: string(direction)},
			":st":     &types.AttributeValueMemberS{Value: string(domain.StatusPending)},
			":before": &types.AttributeValueMemberN{Value: strconv.FormatInt(before.UnixNano(), 10)},
		},
	}

	var out []*domain.Transaction
	for {
		page, err := s.Client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transactions: %w", err)
		}
		var items []transactionItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transactions: %w", err)
		}
		for _, it := range items {
			tx, err := it.toDomain()
			if err != nil {
				return nil, err
			}
			out = append(out, tx)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error) {
	b, _, err := s.readBalance(ctx, key)
	return b, err
}

// readBalance returns the balance and whether its item exists; missing rows read as zero.
func (s *Store) readBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, bool, error) {
	out, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.BalancesTable),
		Key:            balanceKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get balance: %w", err)
	}
	if out.Item == nil {
		return &domain.Balance{Key: key, Amount: decimal.Zero}, false, nil
	}
	var item balanceItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal balance: %w", err)
	}
	b, err := item.toDomain()
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) ListBalances(ctx context.Context, userID string) ([]*domain.Balance, error) {
	out, err := s.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.BalancesTable),
		KeyConditionExpression: aws.String("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	var items []balanceItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal balances: %w", err)
	}
	balances := make([]*domain.Balance, 0, len(items))
	for _, it := range items {
		b, err := it.toDomain()
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, nil
}

func (s *Store) Atomically(ctx context.Context, txID string, fn func(ctx context.Context, unit domain.LedgerUnit) error) error {
	return s.retry(ctx, txID, func() error {
		current, err := s.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}
		u := s.newUnit(ctx, current, current.Version)
		if err := fn(ctx, u); err != nil {
			return err
		}
		return u.commit(ctx, false)
	})
}

func (s *Store) CreateAtomically(ctx context.Context, tx *domain.Transaction, fn func(ctx context.Context, unit domain.LedgerUnit) error) error {
	return s.retry(ctx, tx.ID, func() error {
		u := s.newUnit(ctx, tx.Clone(), 0)
		u.txDirty = true
		if err := fn(ctx, u); err != nil {
			return err
		}
		if err := u.commit(ctx, true); err != nil {
			return err
		}
		tx.Version = 1
		return nil
	})
}

func (s *Store) retry(ctx context.Context, txID string, attempt func() error) error {
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	for i := 1; ; i++ {
		err := attempt()
		if !errors.Is(err, domain.ErrStoreConflict) {
			return err
		}
		if i >= maxAttempts {
			return domain.WrapError(domain.KindTransient, "too many concurrent updates", err,
				"transaction_id", txID, "attempts", i)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i) * retryBackoff):
		}
	}
}

func transactionKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func balanceKey(key domain.BalanceKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":     &types.AttributeValueMemberS{Value: key.UserID},
		"balance_key": &types.AttributeValueMemberS{Value: sortKey(key)},
	}
}

func versionValue(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}
