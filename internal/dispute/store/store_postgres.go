package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"landregistry/internal/dispute/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
	txcontext "landregistry/pkg/platform/tx"
)

// Postgres persists disputes. The timeline and resolution are stored as JSONB;
// both are append-only officer narratives, never queried by field.
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

const disputeColumns = `
	id, property_id, disputant, dispute_type, title, description,
	status, assigned_to, timeline, resolution,
	created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, d *models.Dispute) error {
	timeline, err := json.Marshal(d.Timeline)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}

	const q = `
		INSERT INTO disputes (
			id, property_id, disputant, dispute_type, title, description,
			status, timeline, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = s.execer(ctx).ExecContext(ctx, q,
		d.ID.String(), d.PropertyID.String(), d.Disputant.String(),
		string(d.Type), d.Title, d.Description,
		string(d.Status), timeline, d.CreatedAt, d.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, disputeID id.DisputeID) (*models.Dispute, error) {
	q := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	return scanDispute(s.execer(ctx).QueryRowContext(ctx, q, disputeID.String()))
}

// Execute loads the row under FOR UPDATE, runs validate then mutate, and
// writes the result back.
func (s *Postgres) Execute(
	ctx context.Context,
	disputeID id.DisputeID,
	validate func(*models.Dispute) error,
	mutate func(*models.Dispute),
) (*models.Dispute, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, disputeID, validate, mutate)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dispute transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	d, err := s.executeLocked(txcontext.WithTx(ctx, sqlTx), disputeID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dispute transaction: %w", err)
	}
	return d, nil
}

func (s *Postgres) executeLocked(
	ctx context.Context,
	disputeID id.DisputeID,
	validate func(*models.Dispute) error,
	mutate func(*models.Dispute),
) (*models.Dispute, error) {
	q := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1 FOR UPDATE`
	d, err := scanDispute(s.execer(ctx).QueryRowContext(ctx, q, disputeID.String()))
	if err != nil {
		return nil, err
	}

	if validate != nil {
		if err := validate(d); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(d)
	}

	timeline, err := json.Marshal(d.Timeline)
	if err != nil {
		return nil, fmt.Errorf("marshal timeline: %w", err)
	}
	var resolution any
	if d.Resolution != nil {
		if resolution, err = json.Marshal(d.Resolution); err != nil {
			return nil, fmt.Errorf("marshal resolution: %w", err)
		}
	}

	const update = `
		UPDATE disputes SET
			status = $2, assigned_to = $3, timeline = $4, resolution = $5,
			updated_at = $6
		WHERE id = $1`
	_, err = s.execer(ctx).ExecContext(ctx, update,
		d.ID.String(),
		string(d.Status), nullableActor(d.AssignedTo), timeline, resolution,
		d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update dispute: %w", err)
	}
	return d, nil
}

func (s *Postgres) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Dispute, error) {
	q := `SELECT ` + disputeColumns + ` FROM disputes WHERE property_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, q, propertyID.String())
}

func (s *Postgres) ListByDisputant(ctx context.Context, disputant id.ActorID) ([]*models.Dispute, error) {
	q := `SELECT ` + disputeColumns + ` FROM disputes WHERE disputant = $1 ORDER BY created_at DESC`
	return s.list(ctx, q, disputant.String())
}

func (s *Postgres) List(ctx context.Context) ([]*models.Dispute, error) {
	q := `SELECT ` + disputeColumns + ` FROM disputes ORDER BY created_at DESC`
	rows, err := s.execer(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

func (s *Postgres) list(ctx context.Context, q string, arg any) ([]*models.Dispute, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]*models.Dispute, error) {
	var out []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
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

func scanDispute(row rowScanner) (*models.Dispute, error) {
	var (
		d            models.Dispute
		rawID        string
		rawProperty  string
		rawDisputant string
		rawType      string
		rawStatus    string
		assignedTo   sql.NullString
		timeline     []byte
		resolution   []byte
	)
	err := row.Scan(
		&rawID, &rawProperty, &rawDisputant, &rawType, &d.Title, &d.Description,
		&rawStatus, &assignedTo, &timeline, &resolution,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan dispute: %w", err)
	}

	if d.ID, err = id.ParseDisputeID(rawID); err != nil {
		return nil, fmt.Errorf("parse stored dispute id: %w", err)
	}
	if d.PropertyID, err = id.ParsePropertyID(rawProperty); err != nil {
		return nil, fmt.Errorf("parse stored property id: %w", err)
	}
	if d.Disputant, err = id.ParseActorID(rawDisputant); err != nil {
		return nil, fmt.Errorf("parse stored disputant: %w", err)
	}
	d.Type = models.DisputeType(rawType)
	d.Status = models.Status(rawStatus)
	if assignedTo.Valid {
		if d.AssignedTo, err = id.ParseActorID(assignedTo.String); err != nil {
			return nil, fmt.Errorf("parse stored assignee: %w", err)
		}
	}
	if len(timeline) > 0 {
		if err := json.Unmarshal(timeline, &d.Timeline); err != nil {
			return nil, fmt.Errorf("unmarshal timeline: %w", err)
		}
	}
	if len(resolution) > 0 {
		d.Resolution = &models.Resolution{}
		if err := json.Unmarshal(resolution, d.Resolution); err != nil {
			return nil, fmt.Errorf("unmarshal resolution: %w", err)
		}
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}
