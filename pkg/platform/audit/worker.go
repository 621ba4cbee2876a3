package audit

import (
	"context"
	"log/slog"
)

// Worker drains an inbox of audit events into the store in the background so
// transitions never wait on audit persistence. Enqueue never blocks: when the
// inbox is full the event is dropped and counted, consistent with the
// best-effort contract of the trail.
type Worker struct {
	store   Store
	inbox   chan Event
	logger  *slog.Logger
	metrics DropCounter
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func WithWorkerDropCounter(m DropCounter) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// NewWorker creates a background audit writer with the given inbox capacity.
func NewWorker(store Store, buffer int, opts ...WorkerOption) *Worker {
	if buffer < 1 {
		buffer = 1
	}
	w := &Worker{
		store: store,
		inbox: make(chan Event, buffer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append enqueues the event for background persistence, satisfying Store so
// an Emitter can sit directly on the worker. A full inbox drops the event.
func (w *Worker) Append(_ context.Context, event Event) error {
	select {
	case w.inbox <- event:
	default:
		if w.metrics != nil {
			w.metrics.IncAuditDropped()
		}
		if w.logger != nil {
			w.logger.Error("audit inbox full, event dropped",
				"entity_type", event.EntityType,
				"entity_id", event.EntityID,
				"action", event.Action,
			)
		}
	}
	return nil
}

// ListByEntity reads through to the underlying store.
func (w *Worker) ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Event, error) {
	return w.store.ListByEntity(ctx, entityType, entityID)
}

// ListRecent reads through to the underlying store.
func (w *Worker) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	return w.store.ListRecent(ctx, limit)
}

// Run drains the inbox until the context is cancelled, then flushes whatever
// is already queued before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return ctx.Err()
		case event := <-w.inbox:
			w.append(ctx, event)
		}
	}
}

// flush writes queued events with a detached context; the run context is
// already cancelled by the time it is called.
func (w *Worker) flush() {
	for {
		select {
		case event := <-w.inbox:
			w.append(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event Event) {
	if err := w.store.Append(ctx, event); err != nil {
		if w.metrics != nil {
			w.metrics.IncAuditDropped()
		}
		if w.logger != nil {
			w.logger.Error("audit append failed",
				"entity_type", event.EntityType,
				"entity_id", event.EntityID,
				"action", event.Action,
				"error", err,
			)
		}
	}
}
