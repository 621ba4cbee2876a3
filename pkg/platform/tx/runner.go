package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "landregistry/pkg/domain-errors"
)

// Runner provides a transactional boundary for multi-entity mutations.
// Implementations may wrap a database transaction or, in-memory, a coarse
// lock. The dual write on transfer completion runs inside one Runner call so
// partial application is never observed.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// defaultTxTimeout bounds a transaction when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

// MemoryRunner serializes transactions behind a single mutex. Paired with the
// in-memory stores this yields strict serializability: a concurrent observer
// sees either none or all of a transaction's writes.
type MemoryRunner struct {
	mu      sync.Mutex
	timeout time.Duration
}

// NewMemoryRunner creates a coarse-lock transaction runner for in-memory
// stores.
func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

// SQLRunner wraps mutations in a database transaction. The *sql.Tx travels in
// the context so stores invoked inside fn write through it.
type SQLRunner struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLRunner creates a database-backed transaction runner.
func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	return sqlTx.Commit()
}
