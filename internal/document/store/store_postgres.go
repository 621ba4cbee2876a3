package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"landregistry/internal/document/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
	txcontext "landregistry/pkg/platform/tx"
)

// Postgres persists documents. Execute locks the row with SELECT ... FOR
// UPDATE; an ambient transaction in the context is joined so a review and the
// aggregate recomputation commit together.
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

const documentColumns = `
	id, property_id, document_type, file_name, file_size, mime_type,
	status, notes, reviewed_by, reviewed_at, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, doc *models.Document) error {
	const q = `
		INSERT INTO documents (
			id, property_id, document_type, file_name, file_size, mime_type,
			status, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.execer(ctx).ExecContext(ctx, q,
		doc.ID.String(), doc.PropertyID.String(), string(doc.Type),
		doc.FileName, doc.FileSize, doc.MimeType,
		string(doc.Status), doc.Notes, doc.CreatedAt, doc.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(s.execer(ctx).QueryRowContext(ctx, q, documentID.String()))
}

// Execute loads the row under FOR UPDATE, runs validate then mutate, and
// writes the result back.
func (s *Postgres) Execute(
	ctx context.Context,
	documentID id.DocumentID,
	validate func(*models.Document) error,
	mutate func(*models.Document),
) (*models.Document, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, documentID, validate, mutate)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin document transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	doc, err := s.executeLocked(txcontext.WithTx(ctx, sqlTx), documentID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit document transaction: %w", err)
	}
	return doc, nil
}

func (s *Postgres) executeLocked(
	ctx context.Context,
	documentID id.DocumentID,
	validate func(*models.Document) error,
	mutate func(*models.Document),
) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 FOR UPDATE`
	doc, err := scanDocument(s.execer(ctx).QueryRowContext(ctx, q, documentID.String()))
	if err != nil {
		return nil, err
	}

	if validate != nil {
		if err := validate(doc); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(doc)
	}

	const update = `
		UPDATE documents SET
			file_name = $2, file_size = $3, mime_type = $4,
			status = $5, notes = $6, reviewed_by = $7, reviewed_at = $8,
			updated_at = $9
		WHERE id = $1`
	_, err = s.execer(ctx).ExecContext(ctx, update,
		doc.ID.String(),
		doc.FileName, doc.FileSize, doc.MimeType,
		string(doc.Status), doc.Notes, nullableActor(doc.ReviewedBy), doc.ReviewedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	return doc, nil
}

func (s *Postgres) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE property_id = $1 ORDER BY created_at ASC`
	rows, err := s.execer(ctx).QueryContext(ctx, q, propertyID.String())
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
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

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc        models.Document
		rawID      string
		rawProp    string
		rawType    string
		rawStatus  string
		notes      sql.NullString
		reviewedBy sql.NullString
		reviewedAt sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawProp, &rawType, &doc.FileName, &doc.FileSize, &doc.MimeType,
		&rawStatus, &notes, &reviewedBy, &reviewedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if doc.ID, err = id.ParseDocumentID(rawID); err != nil {
		return nil, fmt.Errorf("parse stored document id: %w", err)
	}
	if doc.PropertyID, err = id.ParsePropertyID(rawProp); err != nil {
		return nil, fmt.Errorf("parse stored property id: %w", err)
	}
	doc.Type = models.DocumentType(rawType)
	doc.Status = models.Status(rawStatus)
	doc.Notes = notes.String
	if reviewedBy.Valid {
		if doc.ReviewedBy, err = id.ParseActorID(reviewedBy.String); err != nil {
			return nil, fmt.Errorf("parse stored reviewer id: %w", err)
		}
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		doc.ReviewedAt = &t
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}
