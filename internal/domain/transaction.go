package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionPayin  Direction = "PAYIN"
	DirectionPayout Direction = "PAYOUT"
)

type TransactionStatus string

const (
	StatusCreated   TransactionStatus = "CREATED"
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

// IsTerminal reports whether no further status change or ledger effect is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var allowedTransitions = map[TransactionStatus][]TransactionStatus{
	StatusCreated: {StatusPending, StatusFailed},
	StatusPending: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to TransactionStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UserResponseStatus tracks user acknowledgement; it is independent of settlement status.
type UserResponseStatus string

const (
	UserResponsePending  UserResponseStatus = "PENDING"
	UserResponseApproved UserResponseStatus = "APPROVED"
	UserResponseRejected UserResponseStatus = "REJECTED"
)

func (s UserResponseStatus) Valid() bool {
	switch s {
	case UserResponsePending, UserResponseApproved, UserResponseRejected:
		return true
	}
	return false
}

// Transaction is one attempted money movement. Rows are never deleted.
type Transaction struct {
	ID                   string
	UserID               string
	Direction            Direction
	Status               TransactionStatus
	UserResponseStatus   UserResponseStatus
	Amount               decimal.Decimal
	Currency             string
	MethodID             string
	SubMethod            string
	Provider             string
	PaymentTransactionID string
	CorrelationLabel     string
	Requisite            string
	FailureReason        string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Transition moves the transaction along the lifecycle or returns InvalidTransition.
func (t *Transaction) Transition(to TransactionStatus, now time.Time) error {
	if t.Status.IsTerminal() {
		return NewError(KindAlreadyProcessed, "transaction already in terminal state",
			"transaction_id", t.ID, "status", t.Status)
	}
	if !CanTransition(t.Status, to) {
		return NewError(KindInvalidTransition, "transition not allowed",
			"transaction_id", t.ID, "from", t.Status, "to", to)
	}
	t.Status = to
	t.UpdatedAt = now
	return nil
}

// BalanceKey returns the main balance the transaction settles against.
func (t *Transaction) BalanceKey() BalanceKey {
	return BalanceKey{UserID: t.UserID, Currency: t.Currency, Kind: BalanceMain}
}

// Clone returns a copy safe to mutate independently.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// TransactionLookup identifies the ledger transaction a callback refers to.
// ID wins when set; otherwise Provider+Handle or Label is used.
type TransactionLookup struct {
	ID       string
	Provider string
	Handle   string
	Label    string
}

func (l TransactionLookup) Empty() bool {
	return l.ID == "" && l.Handle == "" && l.Label == ""
}
