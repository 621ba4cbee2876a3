// Package notify delivers status-change notifications to actors. Delivery is
// fire-and-forget: a workflow transition never fails because its notification
// could not be sent.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "landregistry/pkg/domain"
)

// Message is one notification to a single recipient.
type Message struct {
	Recipient id.ActorID `json:"recipient"`
	Entity    string     `json:"entity"`
	EntityID  string     `json:"entity_id"`
	Event     string     `json:"event"`
	Detail    string     `json:"detail,omitempty"`
	At        time.Time  `json:"at"`
}

// Sink accepts notifications. Implementations must not return delivery
// failures to the caller.
type Sink interface {
	Publish(ctx context.Context, msg Message)
}

// listPusher is the slice of the Redis client the sink needs. *redis.Client
// satisfies it.
type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// DropCounter records notifications lost after retry.
type DropCounter interface {
	IncNotificationsDropped()
}

// RedisSink pushes notifications onto a per-recipient Redis list that a
// delivery worker or polling client drains. One local retry covers transient
// connection blips; anything past that is dropped and counted.
type RedisSink struct {
	client  listPusher
	logger  *slog.Logger
	metrics DropCounter
}

// Option configures a RedisSink.
type Option func(*RedisSink)

func WithLogger(logger *slog.Logger) Option {
	return func(s *RedisSink) { s.logger = logger }
}

func WithDropCounter(m DropCounter) Option {
	return func(s *RedisSink) { s.metrics = m }
}

// NewRedisSink creates a Redis-backed notification sink.
func NewRedisSink(client listPusher, opts ...Option) *RedisSink {
	s := &RedisSink{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func queueKey(recipient id.ActorID) string {
	return "landregistry:notifications:" + recipient.String()
}

// Publish enqueues the message for its recipient. Never returns an error.
func (s *RedisSink) Publish(ctx context.Context, msg Message) {
	if s == nil || s.client == nil || msg.Recipient.IsNil() {
		return
	}
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		s.drop(ctx, msg, err)
		return
	}

	key := queueKey(msg.Recipient)
	if err := s.client.LPush(ctx, key, body).Err(); err != nil {
		if err = s.client.LPush(ctx, key, body).Err(); err != nil {
			s.drop(ctx, msg, err)
		}
	}
}

func (s *RedisSink) drop(ctx context.Context, msg Message, err error) {
	if s.metrics != nil {
		s.metrics.IncNotificationsDropped()
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "notification dropped",
			"recipient", msg.Recipient.String(),
			"entity", msg.Entity,
			"event", msg.Event,
			"error", err,
		)
	}
}

// Noop discards every notification. Used when Redis is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, Message) {}

// Recorder collects messages in memory for assertions in service tests.
type Recorder struct {
	Messages []Message
}

func (r *Recorder) Publish(_ context.Context, msg Message) {
	r.Messages = append(r.Messages, msg)
}
