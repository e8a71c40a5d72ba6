package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	minRestartBackoff = 500 * time.Millisecond
	maxRestartBackoff = 30 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Subscriber reads with explicit commits: an offset moves only after the handler accepted
// the message, so a crash or handler error redelivers it from the last commit.
type Subscriber struct {
	brokers    []string
	logger     *slog.Logger
	newReader  func(topic, groupID string) messageReader
	minBackoff time.Duration
	maxBackoff time.Duration
}

var _ domain.SubscriberPort = (*Subscriber)(nil)

func NewSubscriber(brokers []string, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		brokers:    brokers,
		logger:     logger.With("component", "kafka_subscriber"),
		minBackoff: minRestartBackoff,
		maxBackoff: maxRestartBackoff,
	}
	s.newReader = func(topic, groupID string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers: s.brokers,
			Topic:   topic,
			GroupID: groupID,
		})
	}
	return s
}

// Consume blocks until ctx is done. Read, handler and commit failures end the current
// reader session; a new one resumes from the committed offset after a backoff.
func (s *Subscriber) Consume(ctx context.Context, topic, groupID string, handle domain.MessageHandler) error {
	backoff := s.minBackoff
	for {
		handled, err := s.session(ctx, topic, groupID, handle)
		if ctx.Err() != nil {
			return nil
		}
		if handled > 0 {
			backoff = s.minBackoff
		}
		s.logger.Error("kafka session ended, restarting",
			"topic", topic, "handled", handled, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

func (s *Subscriber) session(ctx context.Context, topic, groupID string, handle domain.MessageHandler) (int, error) {
	reader := s.newReader(topic, groupID)
	defer reader.Close()

	handled := 0
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			return handled, fmt.Errorf("fetch: %w", err)
		}
		if err := handle(ctx, domain.Message{Key: m.Key, Value: m.Value, Offset: m.Offset}); err != nil {
			return handled, fmt.Errorf("handle offset %d: %w", m.Offset, err)
		}
		if err := reader.CommitMessages(ctx, m); err != nil {
			return handled, fmt.Errorf("commit offset %d: %w", m.Offset, err)
		}
		handled++
	}
}
