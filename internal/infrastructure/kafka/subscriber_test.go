package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// partitionLog is a single partition with a group offset; every reader resumes from it.
type partitionLog struct {
	mu         sync.Mutex
	msgs       []kafka.Message
	committed  int64
	sessions   int
	fetchFails int
}

func (l *partitionLog) committedOffset() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed
}

type logReader struct {
	log  *partitionLog
	next int64
}

func (r *logReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.log.mu.Lock()
	if r.log.fetchFails > 0 {
		r.log.fetchFails--
		r.log.mu.Unlock()
		return kafka.Message{}, errors.New("broker not available")
	}
	if int(r.next) < len(r.log.msgs) {
		m := r.log.msgs[r.next]
		r.next++
		r.log.mu.Unlock()
		return m, nil
	}
	r.log.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *logReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.log.mu.Lock()
	defer r.log.mu.Unlock()
	for _, m := range msgs {
		r.log.committed = m.Offset + 1
	}
	return nil
}

func (r *logReader) Close() error { return nil }

func newTestSubscriber(log *partitionLog) *Subscriber {
	s := NewSubscriber([]string{"localhost:9092"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.minBackoff, s.maxBackoff = time.Millisecond, 5*time.Millisecond
	s.newReader = func(string, string) messageReader {
		log.mu.Lock()
		defer log.mu.Unlock()
		log.sessions++
		return &logReader{log: log, next: log.committed}
	}
	return s
}

func TestConsume_CommitsOnlyHandledMessages(t *testing.T) {
	log := &partitionLog{
		msgs: []kafka.Message{
			{Offset: 0, Value: []byte("a")},
			{Offset: 1, Value: []byte("b")},
			{Offset: 2, Value: []byte("c")},
		},
		fetchFails: 1,
	}
	s := newTestSubscriber(log)

	var (
		mu      sync.Mutex
		seen    []string
		failedB bool
	)
	handle := func(_ context.Context, msg domain.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(msg.Value))
		if string(msg.Value) == "b" && !failedB {
			failedB = true
			assert.Equal(t, int64(1), log.committedOffset(), "offset must not move past an unhandled message")
			return errors.New("store unavailable")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Consume(ctx, "decisions", "ledger", handle) }()

	require.Eventually(t, func() bool { return log.committedOffset() == 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "b", "c"}, seen)
	assert.Equal(t, 3, log.sessions)
}

func TestConsume_StopsOnCancel(t *testing.T) {
	log := &partitionLog{fetchFails: 1 << 20}
	s := newTestSubscriber(log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Consume(ctx, "decisions", "ledger", func(context.Context, domain.Message) error { return nil })
	}()

	require.Eventually(t, func() bool {
		log.mu.Lock()
		defer log.mu.Unlock()
		return log.sessions > 2
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consume did not return after cancel")
	}
}
