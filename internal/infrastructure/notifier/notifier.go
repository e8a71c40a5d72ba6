package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
)

const deliveryTimeout = 5 * time.Second

type sender interface {
	send(ctx context.Context, n Notification) error
}

// dispatcher turns Notifier calls into async deliveries through a sender.
type dispatcher struct {
	sender sender
	logger *slog.Logger
	now    func() time.Time
}

func (d *dispatcher) dispatch(ctx context.Context, event string, tx *domain.Transaction, message string) {
	n := newNotification(event, tx, message, d.now())
	go func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		if err := d.sender.send(sctx, n); err != nil {
			d.logger.Error("notification delivery failed",
				"event", n.Event, "transaction_id", n.TransactionID, "user_id", n.UserID, "error", err)
			return
		}
		d.logger.Debug("notification delivered", "event", n.Event, "transaction_id", n.TransactionID)
	}()
}

func (d *dispatcher) NotifyDepositSuccess(ctx context.Context, tx *domain.Transaction) {
	d.dispatch(ctx, EventDepositSucceeded, tx, "")
}

func (d *dispatcher) NotifyDepositFailure(ctx context.Context, tx *domain.Transaction, reason string) {
	d.dispatch(ctx, EventDepositFailed, tx, reason)
}

func (d *dispatcher) NotifyPayoutFailure(ctx context.Context, tx *domain.Transaction, userMessage string) {
	d.dispatch(ctx, EventPayoutFailed, tx, userMessage)
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// KafkaNotifier publishes notifications keyed by user id.
type KafkaNotifier struct {
	dispatcher
}

var _ domain.Notifier = (*KafkaNotifier)(nil)

type kafkaSender struct {
	publisher jsonPublisher
	topic     string
}

func (s kafkaSender) send(ctx context.Context, n Notification) error {
	return s.publisher.PublishJSON(ctx, s.topic, n.UserID, n)
}

func NewKafkaNotifier(publisher jsonPublisher, topic string, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{dispatcher{
		sender: kafkaSender{publisher: publisher, topic: topic},
		logger: logger.With("component", "kafka_notifier"),
		now:    time.Now,
	}}
}

// CallbackNotifier POSTs notifications to a fixed URL. With a secret set, the body is
// signed into X-Signature as hex HMAC-SHA256.
type CallbackNotifier struct {
	dispatcher
}

var _ domain.Notifier = (*CallbackNotifier)(nil)

type callbackSender struct {
	url    string
	secret string
	client *http.Client
}

func (s callbackSender) send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		mac := hmac.New(sha256.New, []byte(s.secret))
		mac.Write(body)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send callback: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}

func NewCallbackNotifier(url, secret string, client *http.Client, logger *slog.Logger) *CallbackNotifier {
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	return &CallbackNotifier{dispatcher{
		sender: callbackSender{url: url, secret: secret, client: client},
		logger: logger.With("component", "callback_notifier"),
		now:    time.Now,
	}}
}

// Multi fans every call out to all notifiers.
type Multi []domain.Notifier

var _ domain.Notifier = Multi(nil)

func (m Multi) NotifyDepositSuccess(ctx context.Context, tx *domain.Transaction) {
	for _, n := range m {
		n.NotifyDepositSuccess(ctx, tx)
	}
}

func (m Multi) NotifyDepositFailure(ctx context.Context, tx *domain.Transaction, reason string) {
	for _, n := range m {
		n.NotifyDepositFailure(ctx, tx, reason)
	}
}

func (m Multi) NotifyPayoutFailure(ctx context.Context, tx *domain.Transaction, userMessage string) {
	for _, n := range m {
		n.NotifyPayoutFailure(ctx, tx, userMessage)
	}
}

// Log only writes notifications to the logger; used when no channel is configured.
type Log struct {
	logger *slog.Logger
}

var _ domain.Notifier = (*Log)(nil)

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("component", "log_notifier")}
}

func (l *Log) NotifyDepositSuccess(_ context.Context, tx *domain.Transaction) {
	l.logger.Info("deposit succeeded", "transaction_id", tx.ID, "user_id", tx.UserID)
}

func (l *Log) NotifyDepositFailure(_ context.Context, tx *domain.Transaction, reason string) {
	l.logger.Info("deposit failed", "transaction_id", tx.ID, "user_id", tx.UserID, "reason", reason)
}

func (l *Log) NotifyPayoutFailure(_ context.Context, tx *domain.Transaction, userMessage string) {
	l.logger.Info("payout failed", "transaction_id", tx.ID, "user_id", tx.UserID, "message", userMessage)
}
