package dynamodb

import (
	"fmt"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

type transactionItem struct {
	ID                   string    `dynamodbav:"id"`
	UserID               string    `dynamodbav:"user_id"`
	Direction            string    `dynamodbav:"direction"`
	Status               string    `dynamodbav:"status"`
	UserResponseStatus   string    `dynamodbav:"user_response_status"`
	Amount               string    `dynamodbav:"amount"`
	Currency             string    `dynamodbav:"currency"`
	MethodID             string    `dynamodbav:"method_id,omitempty"`
	SubMethod            string    `dynamodbav:"sub_method,omitempty"`
	Provider             string    `dynamodbav:"provider,omitempty"`
	PaymentTransactionID string    `dynamodbav:"payment_transaction_id,omitempty"`
	CorrelationLabel     string    `dynamodbav:"correlation_label,omitempty"`
	Requisite            string    `dynamodbav:"requisite,omitempty"`
	FailureReason        string    `dynamodbav:"failure_reason,omitempty"`
	Version              int64     `dynamodbav:"version"`
	CreatedAt            time.Time `dynamodbav:"created_at"`
	CreatedUnix          int64     `dynamodbav:"created_unix"`
	UpdatedAt            time.Time `dynamodbav:"updated_at"`
}

func toTransactionItem(tx *domain.Transaction) transactionItem {
	return transactionItem{
		ID:                   tx.ID,
		UserID:               tx.UserID,
		Direction:            string(tx.Direction),
		Status:               string(tx.Status),
		UserResponseStatus:   string(tx.UserResponseStatus),
		Amount:               tx.Amount.String(),
		Currency:             tx.Currency,
		MethodID:             tx.MethodID,
		SubMethod:            tx.SubMethod,
		Provider:             tx.Provider,
		PaymentTransactionID: tx.PaymentTransactionID,
		CorrelationLabel:     tx.CorrelationLabel,
		Requisite:            tx.Requisite,
		FailureReason:        tx.FailureReason,
		Version:              tx.Version,
		CreatedAt:            tx.CreatedAt,
		CreatedUnix:          tx.CreatedAt.UnixNano(),
		UpdatedAt:            tx.UpdatedAt,
	}
}

func (it transactionItem) toDomain() (*domain.Transaction, error) {
	amount, err := decimal.NewFromString(it.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s amount %q: %w", it.ID, it.Amount, err)
	}
	return &domain.Transaction{
		ID:                   it.ID,
		UserID:               it.UserID,
		Direction:            domain.Direction(it.Direction),
		Status:               domain.TransactionStatus(it.Status),
		UserResponseStatus:   domain.UserResponseStatus(it.UserResponseStatus),
		Amount:               amount,
		Currency:             it.Currency,
		MethodID:             it.MethodID,
		SubMethod:            it.SubMethod,
		Provider:             it.Provider,
		PaymentTransactionID: it.PaymentTransactionID,
		CorrelationLabel:     it.CorrelationLabel,
		Requisite:            it.Requisite,
		FailureReason:        it.FailureReason,
		Version:              it.Version,
		CreatedAt:            it.CreatedAt,
		UpdatedAt:            it.UpdatedAt,
	}, nil
}

// balanceItem is keyed by user_id (partition) and balance_key (sort, CURRENCY#kind).
type balanceItem struct {
	UserID     string    `dynamodbav:"user_id"`
	BalanceKey string    `dynamodbav:"balance_key"`
	Currency   string    `dynamodbav:"currency"`
	Kind       string    `dynamodbav:"kind"`
	Amount     string    `dynamodbav:"amount"`
	Version    int64     `dynamodbav:"version"`
	UpdatedAt  time.Time `dynamodbav:"updated_at"`
}

func sortKey(key domain.BalanceKey) string {
	return key.Currency + "#" + string(key.Kind)
}

func toBalanceItem(b *domain.Balance) balanceItem {
	return balanceItem{
		UserID:     b.Key.UserID,
		BalanceKey: sortKey(b.Key),
		Currency:   b.Key.Currency,
		Kind:       string(b.Key.Kind),
		Amount:     b.Amount.String(),
		Version:    b.Version,
		UpdatedAt:  b.UpdatedAt,
	}
}

func (it balanceItem) toDomain() (*domain.Balance, error) {
	amount, err := decimal.NewFromString(it.Amount)
	if err != nil {
		return nil, fmt.Errorf("balance %s/%s amount %q: %w", it.UserID, it.BalanceKey, it.Amount, err)
	}
	return &domain.Balance{
		Key:       domain.BalanceKey{UserID: it.UserID, Currency: it.Currency, Kind: domain.BalanceKind(it.Kind)},
		Amount:    amount,
		Version:   it.Version,
		UpdatedAt: it.UpdatedAt,
	}, nil
}
