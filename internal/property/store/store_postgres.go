package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"landregistry/internal/property/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
	txcontext "landregistry/pkg/platform/tx"
)

// Postgres persists property applications. Execute locks the row with
// SELECT ... FOR UPDATE so validate and mutate observe a stable record; when a
// transaction already travels in the context it is joined rather than nested.
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

const propertyColumns = `
	id, plot_number, kebele, sub_city, latitude, longitude,
	area, property_type, owner_id,
	documents_validated, payment_completed, status,
	decided_by, decision_notes, decided_at,
	created_at, updated_at`

// CreateIfPlotAvailable inserts the application. The unique index on
// lower(plot_number) enforces case-insensitive plot uniqueness; a violation
// maps to sentinel.ErrConflict.
func (s *Postgres) CreateIfPlotAvailable(ctx context.Context, app *models.PropertyApplication) error {
	const q = `
		INSERT INTO property_applications (
			id, plot_number, kebele, sub_city, latitude, longitude,
			area, property_type, owner_id,
			documents_validated, payment_completed, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.execer(ctx).ExecContext(ctx, q,
		app.ID.String(), app.PlotNumber,
		app.Location.Kebele, app.Location.SubCity, app.Location.Latitude, app.Location.Longitude,
		app.Area, string(app.PropertyType), app.Owner.String(),
		app.DocumentsValidated, app.PaymentCompleted, string(app.Status),
		app.CreatedAt, app.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert property application: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, propertyID id.PropertyID) (*models.PropertyApplication, error) {
	q := `SELECT ` + propertyColumns + ` FROM property_applications WHERE id = $1`
	return scanApplication(s.execer(ctx).QueryRowContext(ctx, q, propertyID.String()))
}

func (s *Postgres) FindByPlotNumber(ctx context.Context, plotNumber string) (*models.PropertyApplication, error) {
	q := `SELECT ` + propertyColumns + ` FROM property_applications WHERE lower(plot_number) = $1`
	return scanApplication(s.execer(ctx).QueryRowContext(ctx, q, models.NormalizedPlotNumber(plotNumber)))
}

// Execute loads the row under FOR UPDATE, runs validate then mutate, and
// writes the result back. Outside an ambient transaction it opens its own so
// the lock is released on return.
func (s *Postgres) Execute(
	ctx context.Context,
	propertyID id.PropertyID,
	validate func(*models.PropertyApplication) error,
	mutate func(*models.PropertyApplication),
) (*models.PropertyApplication, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, propertyID, validate, mutate)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin property transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	app, err := s.executeLocked(txcontext.WithTx(ctx, sqlTx), propertyID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit property transaction: %w", err)
	}
	return app, nil
}

func (s *Postgres) executeLocked(
	ctx context.Context,
	propertyID id.PropertyID,
	validate func(*models.PropertyApplication) error,
	mutate func(*models.PropertyApplication),
) (*models.PropertyApplication, error) {
	q := `SELECT ` + propertyColumns + ` FROM property_applications WHERE id = $1 FOR UPDATE`
	app, err := scanApplication(s.execer(ctx).QueryRowContext(ctx, q, propertyID.String()))
	if err != nil {
		return nil, err
	}

	if validate != nil {
		if err := validate(app); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(app)
	}

	const update = `
		UPDATE property_applications SET
			owner_id = $2,
			documents_validated = $3, payment_completed = $4, status = $5,
			decided_by = $6, decision_notes = $7, decided_at = $8,
			updated_at = $9
		WHERE id = $1`
	_, err = s.execer(ctx).ExecContext(ctx, update,
		app.ID.String(), app.Owner.String(),
		app.DocumentsValidated, app.PaymentCompleted, string(app.Status),
		nullableActor(app.DecidedBy), app.DecisionNotes, app.DecidedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update property application: %w", err)
	}
	return app, nil
}

func (s *Postgres) ListByOwner(ctx context.Context, owner id.ActorID) ([]*models.PropertyApplication, error) {
	q := `SELECT ` + propertyColumns + ` FROM property_applications WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := s.execer(ctx).QueryContext(ctx, q, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list properties by owner: %w", err)
	}
	defer rows.Close()
	return scanApplications(rows)
}

func (s *Postgres) List(ctx context.Context) ([]*models.PropertyApplication, error) {
	q := `SELECT ` + propertyColumns + ` FROM property_applications ORDER BY created_at DESC`
	rows, err := s.execer(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()
	return scanApplications(rows)
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

func scanApplication(row rowScanner) (*models.PropertyApplication, error) {
	var (
		app           models.PropertyApplication
		rawID         string
		rawOwner      string
		rawType       string
		rawStatus     string
		decidedBy     sql.NullString
		decisionNotes sql.NullString
		decidedAt     sql.NullTime
	)
	err := row.Scan(
		&rawID, &app.PlotNumber,
		&app.Location.Kebele, &app.Location.SubCity, &app.Location.Latitude, &app.Location.Longitude,
		&app.Area, &rawType, &rawOwner,
		&app.DocumentsValidated, &app.PaymentCompleted, &rawStatus,
		&decidedBy, &decisionNotes, &decidedAt,
		&app.CreatedAt, &app.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan property application: %w", err)
	}

	if app.ID, err = id.ParsePropertyID(rawID); err != nil {
		return nil, fmt.Errorf("parse stored property id: %w", err)
	}
	if app.Owner, err = id.ParseActorID(rawOwner); err != nil {
		return nil, fmt.Errorf("parse stored owner id: %w", err)
	}
	app.PropertyType = models.PropertyType(rawType)
	app.Status = models.Status(rawStatus)
	if decidedBy.Valid {
		if app.DecidedBy, err = id.ParseActorID(decidedBy.String); err != nil {
			return nil, fmt.Errorf("parse stored decider id: %w", err)
		}
	}
	app.DecisionNotes = decisionNotes.String
	if decidedAt.Valid {
		t := decidedAt.Time.UTC()
		app.DecidedAt = &t
	}
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	return &app, nil
}

func scanApplications(rows *sql.Rows) ([]*models.PropertyApplication, error) {
	var out []*models.PropertyApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}
