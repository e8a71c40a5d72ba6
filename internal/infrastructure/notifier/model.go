package notifier

import (
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
)

const (
	EventDepositSucceeded = "deposit_succeeded"
	EventDepositFailed    = "deposit_failed"
	EventPayoutFailed     = "payout_failed"
)

// Notification is the JSON body delivered to users' notification channels.
type Notification struct {
	Event         string    `json:"event"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id"`
	Direction     string    `json:"direction"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Provider      string    `json:"provider"`
	Message       string    `json:"message,omitempty"`
	SentAt        time.Time `json:"sent_at"`
}

func newNotification(event string, tx *domain.Transaction, message string, now time.Time) Notification {
	return Notification{
		Event:         event,
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		Direction:     string(tx.Direction),
		Status:        string(tx.Status),
		Amount:        tx.Amount.StringFixed(2),
		Currency:      tx.Currency,
		Provider:      tx.Provider,
		Message:       message,
		SentAt:        now,
	}
}
