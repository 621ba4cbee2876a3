package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landregistry/pkg/platform/audit"
	auditmem "landregistry/pkg/platform/audit/store/memory"
)

func TestWorkerDrainsInbox(t *testing.T) {
	store := auditmem.NewInMemoryStore()
	worker := audit.NewWorker(store, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	emitter := audit.NewEmitter(worker)
	for i := 0; i < 5; i++ {
		emitter.Emit(context.Background(), audit.Event{
			EntityType: audit.EntityProperty,
			EntityID:   "plot-1",
			Action:     audit.ActionApplicationSubmitted,
		})
	}

	require.Eventually(t, func() bool {
		events, err := store.ListByEntity(context.Background(), audit.EntityProperty, "plot-1")
		return err == nil && len(events) == 5
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestWorkerFlushesOnShutdown(t *testing.T) {
	store := auditmem.NewInMemoryStore()
	worker := audit.NewWorker(store, 16)

	// Enqueue before the worker runs, then run with an already-cancelled
	// context: the queued events must still land.
	for i := 0; i < 3; i++ {
		_ = worker.Append(context.Background(), audit.Event{
			EntityType: audit.EntityTransfer,
			EntityID:   "t-1",
			Action:     audit.ActionTransferCompleted,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = worker.Run(ctx)

	events, err := store.ListByEntity(context.Background(), audit.EntityTransfer, "t-1")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

type dropRecorder struct{ dropped int }

func (d *dropRecorder) IncAuditDropped() { d.dropped++ }

func TestWorkerDropsWhenInboxFull(t *testing.T) {
	store := auditmem.NewInMemoryStore()
	drops := &dropRecorder{}
	worker := audit.NewWorker(store, 1, audit.WithWorkerDropCounter(drops))

	// No Run loop: the second append finds the inbox full.
	_ = worker.Append(context.Background(), audit.Event{EntityID: "a"})
	_ = worker.Append(context.Background(), audit.Event{EntityID: "b"})

	assert.Equal(t, 1, drops.dropped)
}
