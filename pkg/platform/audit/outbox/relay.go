// Package outbox ships audit_outbox rows to Kafka. The relay polls
// unpublished rows, produces them to the audit topic, and marks them
// published in the same transaction scope — at-least-once delivery, with the
// event ID as the Kafka key for downstream deduplication.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer abstracts the Kafka client so the relay can be tested without a
// broker.
type Producer interface {
	ProduceSync(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults
}

// Relay drains the audit outbox into Kafka.
type Relay struct {
	db       *sql.DB
	producer Producer
	topic    string
	logger   *slog.Logger

	batchSize    int
	pollInterval time.Duration
}

// Option configures the Relay.
type Option func(*Relay)

// WithBatchSize bounds how many rows one poll publishes.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithPollInterval sets the idle wait between polls.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// New creates an outbox relay.
func New(db *sql.DB, producer Producer, topic string, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		db:           db,
		producer:     producer,
		topic:        topic,
		logger:       logger,
		batchSize:    100,
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until the context is cancelled. Publish failures are logged and
// retried on the next poll; rows stay unpublished until Kafka accepts them.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := r.publishBatch(ctx); err != nil {
				r.logger.ErrorContext(ctx, "audit outbox publish failed", "error", err)
			} else if n > 0 {
				r.logger.DebugContext(ctx, "audit outbox batch published", "count", n)
			}
		}
	}
}

// publishBatch moves one batch of rows to Kafka. Rows are locked with SKIP
// LOCKED so multiple relay instances never double-publish within a poll.
func (r *Relay) publishBatch(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, payload
		FROM audit_outbox
		WHERE published = FALSE
		ORDER BY occurred_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select outbox batch: %w", err)
	}

	type row struct {
		id      string
		payload []byte
	}
	var batch []row
	for rows.Next() {
		var rec row
		if err := rows.Scan(&rec.id, &rec.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, 0, len(batch))
	ids := make([]string, 0, len(batch))
	for _, rec := range batch {
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   []byte(rec.id),
			Value: rec.payload,
		})
		ids = append(ids, rec.id)
	}

	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return 0, fmt.Errorf("produce audit batch: %w", err)
	}

	for _, rowID := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE audit_outbox SET published = TRUE, published_at = NOW() WHERE id = $1`, rowID); err != nil {
			return 0, fmt.Errorf("mark outbox row published: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox batch: %w", err)
	}
	return len(batch), nil
}
