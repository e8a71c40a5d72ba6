package domain

import "context"

type Message struct {
	Key    []byte
	Value  []byte
	Offset int64
}

type PublisherPort interface {
	Publish(ctx context.Context, topic string, msgs ...Message) error
}

// MessageHandler processes one message. A nil return commits it; an error leaves it
// uncommitted and the subscriber delivers it again.
type MessageHandler func(ctx context.Context, msg Message) error

// SubscriberPort consumes a topic one message at a time until ctx is done.
type SubscriberPort interface {
	Consume(ctx context.Context, topic, groupID string, handle MessageHandler) error
}
