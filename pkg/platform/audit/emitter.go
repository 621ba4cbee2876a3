package audit

import (
	"context"
	"log/slog"
	"time"
)

// Store persists audit entries. Append-only: there is no update or delete.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// DropCounter records audit entries that could not be persisted so operators
// see the gap even though the transition itself succeeded.
type DropCounter interface {
	IncAuditDropped()
}

// Emitter writes audit entries with best-effort semantics: a failed append is
// logged and counted but never surfaced to the caller, because the state
// transition it describes has already committed.
type Emitter struct {
	store   Store
	logger  *slog.Logger
	metrics DropCounter
}

// Option configures the Emitter.
type Option func(*Emitter)

// WithLogger sets a logger for failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// WithDropCounter sets the metrics collector for dropped entries.
func WithDropCounter(m DropCounter) Option {
	return func(e *Emitter) {
		e.metrics = m
	}
}

// NewEmitter creates a best-effort audit emitter over the given store.
func NewEmitter(store Store, opts ...Option) *Emitter {
	e := &Emitter{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit appends one audit entry. Never returns an error and never blocks the
// transition: persistence failure is an operator concern, not a caller one.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || e.store == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := e.store.Append(ctx, event); err != nil {
		if e.metrics != nil {
			e.metrics.IncAuditDropped()
		}
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "audit append failed",
				"entity_type", event.EntityType,
				"entity_id", event.EntityID,
				"action", event.Action,
				"error", err,
			)
		}
	}
}

// List returns the audit trail for one entity, oldest first.
func (e *Emitter) List(ctx context.Context, entityType EntityType, entityID string) ([]Event, error) {
	return e.store.ListByEntity(ctx, entityType, entityID)
}

// ListRecent returns the most recent events across all entities.
func (e *Emitter) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	return e.store.ListRecent(ctx, limit)
}
