package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"landregistry/internal/transfer/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
	txcontext "landregistry/pkg/platform/tx"
)

// Postgres persists transfers. Document decisions and compliance checks are
// stored as JSONB; they are officer-entered records, never queried by field.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const transferColumns = `
	id, property_id, transfer_type, previous_owner, new_owner,
	transfer_value, currency, status,
	document_decisions, compliance_checks,
	initiated_by, initiation_date,
	decided_by, decision_notes, decided_at,
	completed_by, completed_at,
	created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, t *models.Transfer) error {
	decisions, err := json.Marshal(t.DocumentDecisions)
	if err != nil {
		return fmt.Errorf("marshal document decisions: %w", err)
	}
	checks, err := json.Marshal(t.ComplianceChecks)
	if err != nil {
		return fmt.Errorf("marshal compliance checks: %w", err)
	}

	const q = `
		INSERT INTO transfers (
			id, property_id, transfer_type, previous_owner, new_owner,
			transfer_value, currency, status,
			document_decisions, compliance_checks,
			initiated_by, initiation_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = s.execer(ctx).ExecContext(ctx, q,
		t.ID.String(), t.PropertyID.String(), string(t.Type),
		t.PreviousOwner.String(), t.NewOwner.String(),
		t.Value.String(), t.Currency, string(t.Status),
		decisions, checks,
		t.InitiatedBy.String(), t.InitiationDate, t.CreatedAt, t.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, transferID id.TransferID) (*models.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	return scanTransfer(s.execer(ctx).QueryRowContext(ctx, q, transferID.String()))
}

// HasOpenTransfer reports whether the property already has a non-terminal
// transfer.
func (s *Postgres) HasOpenTransfer(ctx context.Context, propertyID id.PropertyID) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM transfers
			WHERE property_id = $1
			  AND status NOT IN ('rejected', 'completed', 'cancelled')
		)`
	var open bool
	if err := s.execer(ctx).QueryRowContext(ctx, q, propertyID.String()).Scan(&open); err != nil {
		return false, fmt.Errorf("check open transfer: %w", err)
	}
	return open, nil
}

// Execute loads the row under FOR UPDATE, runs validate then mutate, and
// writes the result back. Joined to an ambient transaction when one travels
// in the context — the completion dual write relies on that.
func (s *Postgres) Execute(
	ctx context.Context,
	transferID id.TransferID,
	validate func(*models.Transfer) error,
	mutate func(*models.Transfer),
) (*models.Transfer, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, transferID, validate, mutate)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transfer transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	t, err := s.executeLocked(txcontext.WithTx(ctx, sqlTx), transferID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer transaction: %w", err)
	}
	return t, nil
}

func (s *Postgres) executeLocked(
	ctx context.Context,
	transferID id.TransferID,
	validate func(*models.Transfer) error,
	mutate func(*models.Transfer),
) (*models.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1 FOR UPDATE`
	t, err := scanTransfer(s.execer(ctx).QueryRowContext(ctx, q, transferID.String()))
	if err != nil {
		return nil, err
	}

	if validate != nil {
		if err := validate(t); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(t)
	}

	decisions, err := json.Marshal(t.DocumentDecisions)
	if err != nil {
		return nil, fmt.Errorf("marshal document decisions: %w", err)
	}
	checks, err := json.Marshal(t.ComplianceChecks)
	if err != nil {
		return nil, fmt.Errorf("marshal compliance checks: %w", err)
	}

	const update = `
		UPDATE transfers SET
			status = $2, document_decisions = $3, compliance_checks = $4,
			decided_by = $5, decision_notes = $6, decided_at = $7,
			completed_by = $8, completed_at = $9, updated_at = $10
		WHERE id = $1`
	_, err = s.execer(ctx).ExecContext(ctx, update,
		t.ID.String(),
		string(t.Status), decisions, checks,
		nullableActor(t.DecidedBy), t.DecisionNotes, t.DecidedAt,
		nullableActor(t.CompletedBy), t.CompletedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update transfer: %w", err)
	}
	return t, nil
}

func (s *Postgres) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM transfers WHERE property_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, q, propertyID.String())
}

func (s *Postgres) List(ctx context.Context) ([]*models.Transfer, error) {
	q := `SELECT ` + transferColumns + ` FROM transfers ORDER BY created_at DESC`
	rows, err := s.execer(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

func (s *Postgres) list(ctx context.Context, q string, arg any) ([]*models.Transfer, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]*models.Transfer, error) {
	var out []*models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullableActor(actorID id.ActorID) any {
	if actorID.IsNil() {
		return nil
	}
	return actorID.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*models.Transfer, error) {
	var (
		t             models.Transfer
		rawID         string
		rawProperty   string
		rawType       string
		rawPrev       string
		rawNew        string
		rawValue      string
		rawStatus     string
		decisions     []byte
		checks        []byte
		rawInitiator  string
		decidedBy     sql.NullString
		decisionNotes sql.NullString
		decidedAt     sql.NullTime
		completedBy   sql.NullString
		completedAt   sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawProperty, &rawType, &rawPrev, &rawNew,
		&rawValue, &t.Currency, &rawStatus,
		&decisions, &checks,
		&rawInitiator, &t.InitiationDate,
		&decidedBy, &decisionNotes, &decidedAt,
		&completedBy, &completedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transfer: %w", err)
	}

	if t.ID, err = id.ParseTransferID(rawID); err != nil {
		return nil, fmt.Errorf("parse stored transfer id: %w", err)
	}
	if t.PropertyID, err = id.ParsePropertyID(rawProperty); err != nil {
		return nil, fmt.Errorf("parse stored property id: %w", err)
	}
	if t.PreviousOwner, err = id.ParseActorID(rawPrev); err != nil {
		return nil, fmt.Errorf("parse stored previous owner: %w", err)
	}
	if t.NewOwner, err = id.ParseActorID(rawNew); err != nil {
		return nil, fmt.Errorf("parse stored new owner: %w", err)
	}
	if t.InitiatedBy, err = id.ParseActorID(rawInitiator); err != nil {
		return nil, fmt.Errorf("parse stored initiator: %w", err)
	}
	if t.Value, err = decimal.NewFromString(rawValue); err != nil {
		return nil, fmt.Errorf("parse stored transfer value: %w", err)
	}
	t.Type = models.TransferType(rawType)
	t.Status = models.Status(rawStatus)
	if len(decisions) > 0 {
		if err := json.Unmarshal(decisions, &t.DocumentDecisions); err != nil {
			return nil, fmt.Errorf("unmarshal document decisions: %w", err)
		}
	}
	if len(checks) > 0 {
		if err := json.Unmarshal(checks, &t.ComplianceChecks); err != nil {
			return nil, fmt.Errorf("unmarshal compliance checks: %w", err)
		}
	}
	if decidedBy.Valid {
		if t.DecidedBy, err = id.ParseActorID(decidedBy.String); err != nil {
			return nil, fmt.Errorf("parse stored decider: %w", err)
		}
	}
	t.DecisionNotes = decisionNotes.String
	if decidedAt.Valid {
		at := decidedAt.Time.UTC()
		t.DecidedAt = &at
	}
	if completedBy.Valid {
		if t.CompletedBy, err = id.ParseActorID(completedBy.String); err != nil {
			return nil, fmt.Errorf("parse stored completer: %w", err)
		}
	}
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		t.CompletedAt = &at
	}
	t.InitiationDate = t.InitiationDate.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
