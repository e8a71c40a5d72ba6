package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
)

const (
	TopicTransactions  = "ledger-transactions"
	TopicNotifications = "ledger-notifications"

	publishTimeout = 10 * time.Second
)

type TransactionEvent struct {
	TransactionID      string    `json:"transaction_id"`
	UserID             string    `json:"user_id"`
	Direction          string    `json:"direction"`
	Status             string    `json:"status"`
	UserResponseStatus string    `json:"user_response_status"`
	Amount             string    `json:"amount"`
	Currency           string    `json:"currency"`
	Provider           string    `json:"provider"`
	ExternalRef        string    `json:"external_ref,omitempty"`
	FailureReason      string    `json:"failure_reason,omitempty"`
	Version            int64     `json:"version"`
	OccurredAt         time.Time `json:"occurred_at"`
}

func NewTransactionEvent(tx *domain.Transaction) TransactionEvent {
	return TransactionEvent{
		TransactionID:      tx.ID,
		UserID:             tx.UserID,
		Direction:          string(tx.Direction),
		Status:             string(tx.Status),
		UserResponseStatus: string(tx.UserResponseStatus),
		Amount:             tx.Amount.String(),
		Currency:           tx.Currency,
		Provider:           tx.Provider,
		ExternalRef:        tx.PaymentTransactionID,
		FailureReason:      tx.FailureReason,
		Version:            tx.Version,
		OccurredAt:         tx.UpdatedAt,
	}
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// EventSink publishes committed status changes, keyed by transaction id so a
// transaction's events stay ordered within a partition.
type EventSink struct {
	publisher jsonPublisher
	topic     string
	logger    *slog.Logger
}

var _ domain.TransactionEventSink = (*EventSink)(nil)

func NewEventSink(publisher jsonPublisher, topic string, logger *slog.Logger) *EventSink {
	if topic == "" {
		topic = TopicTransactions
	}
	return &EventSink{publisher: publisher, topic: topic, logger: logger.With("component", "event_sink")}
}

func (s *EventSink) TransactionChanged(ctx context.Context, tx *domain.Transaction) {
	event := NewTransactionEvent(tx)
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := s.publisher.PublishJSON(pctx, s.topic, event.TransactionID, event); err != nil {
			s.logger.Error("failed to publish transaction event",
				"transaction_id", event.TransactionID, "status", event.Status, "error", err)
		}
	}()
}
