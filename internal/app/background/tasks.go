package background

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
)

const (
	ActionComplete = "complete"
	ActionReject   = "reject"

	defaultRejectReason = "rejected by operator"

	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

type PayinExpirer interface {
	ExpireStalePayins(ctx context.Context, olderThan time.Duration) (int, error)
}

type PayoutOperator interface {
	CompletePayout(ctx context.Context, txID, externalRef string) (*domain.Transaction, error)
	RejectPayout(ctx context.Context, txID, reason string) (*domain.Transaction, error)
}

// OperatorDecision is a manual payout resolution read from the operator topic.
type OperatorDecision struct {
	Action        string `json:"action"`
	TransactionID string `json:"transaction_id"`
	ExternalRef   string `json:"external_ref"`
	Reason        string `json:"reason"`
}

type Config struct {
	PayinTTL       time.Duration
	ExpiryInterval time.Duration
	OperatorTopic  string
	GroupID        string
	// RetryBackoff is the first delay before a decision that failed transiently is retried.
	RetryBackoff time.Duration
}

type BackgroundTasks struct {
	expirer    PayinExpirer
	operator   PayoutOperator
	subscriber domain.SubscriberPort
	cfg        Config
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewBackgroundTasks wires the periodic jobs. subscriber may be nil, in which case
// operator decisions are only accepted over HTTP.
func NewBackgroundTasks(expirer PayinExpirer, operator PayoutOperator, subscriber domain.SubscriberPort, cfg Config, logger *slog.Logger) *BackgroundTasks {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &BackgroundTasks{
		expirer:    expirer,
		operator:   operator,
		subscriber: subscriber,
		cfg:        cfg,
		logger:     logger.With("component", "background"),
	}
}

func (bt *BackgroundTasks) StartAll(ctx context.Context) error {
	if bt.cfg.ExpiryInterval > 0 && bt.cfg.PayinTTL > 0 {
		bt.wg.Add(1)
		go func() {
			defer bt.wg.Done()
			bt.startPayinExpiry(ctx)
		}()
	}

	if bt.subscriber != nil && bt.cfg.OperatorTopic != "" {
		bt.wg.Add(1)
		go func() {
			defer bt.wg.Done()
			if err := bt.subscriber.Consume(ctx, bt.cfg.OperatorTopic, bt.cfg.GroupID, bt.handleDecision); err != nil {
				bt.logger.Error("operator decision consumer stopped", "topic", bt.cfg.OperatorTopic, "error", err)
			}
		}()
	}
	return nil
}

// Wait blocks until every task has returned after ctx cancellation.
func (bt *BackgroundTasks) Wait() {
	bt.wg.Wait()
}

func (bt *BackgroundTasks) startPayinExpiry(ctx context.Context) {
	ticker := time.NewTicker(bt.cfg.ExpiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bt.expireOnce(ctx)
		}
	}
}

func (bt *BackgroundTasks) expireOnce(ctx context.Context) {
	n, err := bt.expirer.ExpireStalePayins(ctx, bt.cfg.PayinTTL)
	if err != nil && ctx.Err() == nil {
		bt.logger.Error("payin expiry failed", "expired", n, "error", err)
		return
	}
	if n > 0 {
		bt.logger.Info("expired stale payins", "count", n)
	}
}

// handleDecision returns nil once the decision is applied or can never apply, which commits it.
// Store and infrastructure failures are retried in place so later decisions keep their order.
func (bt *BackgroundTasks) handleDecision(ctx context.Context, msg domain.Message) error {
	backoff := bt.cfg.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := bt.applyDecision(ctx, msg)
		if err == nil {
			return nil
		}
		if domain.IsDomainError(err) {
			bt.logger.Warn("operator decision not applied", "key", string(msg.Key), "offset", msg.Offset, "error", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bt.logger.Error("operator decision failed, retrying",
			"key", string(msg.Key), "offset", msg.Offset, "attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func (bt *BackgroundTasks) applyDecision(ctx context.Context, msg domain.Message) error {
	var d OperatorDecision
	if err := json.Unmarshal(msg.Value, &d); err != nil {
		return domain.WrapError(domain.KindInvalidRequest, "malformed operator decision", err)
	}
	if d.TransactionID == "" {
		return domain.NewError(domain.KindInvalidRequest, "decision without transaction_id")
	}

	var (
		tx  *domain.Transaction
		err error
	)
	switch strings.ToLower(d.Action) {
	case ActionComplete:
		tx, err = bt.operator.CompletePayout(ctx, d.TransactionID, d.ExternalRef)
	case ActionReject:
		reason := d.Reason
		if reason == "" {
			reason = defaultRejectReason
		}
		tx, err = bt.operator.RejectPayout(ctx, d.TransactionID, reason)
	default:
		return domain.NewError(domain.KindInvalidRequest, "unknown operator action", "action", d.Action)
	}
	if err != nil {
		return fmt.Errorf("%s payout %s: %w", d.Action, d.TransactionID, err)
	}

	bt.logger.Info("operator decision applied",
		"transaction_id", tx.ID, "action", d.Action, "status", tx.Status)
	return nil
}
