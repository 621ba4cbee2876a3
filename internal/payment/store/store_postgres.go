package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"landregistry/internal/payment/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
	txcontext "landregistry/pkg/platform/tx"
)

// Postgres persists payments. Amounts are stored as NUMERIC and scanned into
// decimal.Decimal so no binary-float representation ever touches them.
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

const paymentColumns = `
	id, property_id, transfer_id, payer_id, amount, currency,
	payment_type, payment_method, method_details, transaction_id,
	status, verification_status, verification_notes, verified_by, verified_at,
	created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, p *models.Payment) error {
	const q = `
		INSERT INTO payments (
			id, property_id, transfer_id, payer_id, amount, currency,
			payment_type, payment_method, method_details, transaction_id,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.execer(ctx).ExecContext(ctx, q,
		p.ID.String(), nullableProperty(p.PropertyID), nullableTransfer(p.TransferID),
		p.Payer.String(), p.Amount.String(), p.Currency,
		string(p.Type), string(p.Method), nullableJSON(p.MethodDetails), p.TransactionID,
		string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(s.execer(ctx).QueryRowContext(ctx, q, paymentID.String()))
}

// Execute loads the row under FOR UPDATE, runs validate then mutate, and
// writes the result back.
func (s *Postgres) Execute(
	ctx context.Context,
	paymentID id.PaymentID,
	validate func(*models.Payment) error,
	mutate func(*models.Payment),
) (*models.Payment, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, paymentID, validate, mutate)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	p, err := s.executeLocked(txcontext.WithTx(ctx, sqlTx), paymentID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment transaction: %w", err)
	}
	return p, nil
}

func (s *Postgres) executeLocked(
	ctx context.Context,
	paymentID id.PaymentID,
	validate func(*models.Payment) error,
	mutate func(*models.Payment),
) (*models.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	p, err := scanPayment(s.execer(ctx).QueryRowContext(ctx, q, paymentID.String()))
	if err != nil {
		return nil, err
	}

	if validate != nil {
		if err := validate(p); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(p)
	}

	const update = `
		UPDATE payments SET
			transaction_id = $2, status = $3,
			verification_status = $4, verification_notes = $5,
			verified_by = $6, verified_at = $7, updated_at = $8
		WHERE id = $1`
	_, err = s.execer(ctx).ExecContext(ctx, update,
		p.ID.String(),
		p.TransactionID, string(p.Status),
		string(p.VerificationStatus), p.VerificationNotes,
		nullableActor(p.VerifiedBy), p.VerifiedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	return p, nil
}

func (s *Postgres) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE property_id = $1 ORDER BY created_at ASC`
	return s.list(ctx, q, propertyID.String())
}

func (s *Postgres) ListByTransfer(ctx context.Context, transferID id.TransferID) ([]*models.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE transfer_id = $1 ORDER BY created_at ASC`
	return s.list(ctx, q, transferID.String())
}

func (s *Postgres) list(ctx context.Context, q string, arg any) ([]*models.Payment, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullableActor(actorID id.ActorID) any {
	if actorID.IsNil() {
		return nil
	}
	return actorID.String()
}

func nullableProperty(propertyID id.PropertyID) any {
	if propertyID.IsNil() {
		return nil
	}
	return propertyID.String()
}

func nullableTransfer(transferID id.TransferID) any {
	if transferID.IsNil() {
		return nil
	}
	return transferID.String()
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p             models.Payment
		rawID         string
		rawProperty   sql.NullString
		rawTransfer   sql.NullString
		rawPayer      string
		rawAmount     string
		rawType       string
		rawMethod     string
		methodDetails []byte
		transactionID sql.NullString
		rawStatus     string
		rawVerif      sql.NullString
		verifNotes    sql.NullString
		verifiedBy    sql.NullString
		verifiedAt    sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawProperty, &rawTransfer, &rawPayer, &rawAmount, &p.Currency,
		&rawType, &rawMethod, &methodDetails, &transactionID,
		&rawStatus, &rawVerif, &verifNotes, &verifiedBy, &verifiedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	if p.ID, err = id.ParsePaymentID(rawID); err != nil {
		return nil, fmt.Errorf("parse stored payment id: %w", err)
	}
	if rawProperty.Valid {
		if p.PropertyID, err = id.ParsePropertyID(rawProperty.String); err != nil {
			return nil, fmt.Errorf("parse stored property id: %w", err)
		}
	}
	if rawTransfer.Valid {
		if p.TransferID, err = id.ParseTransferID(rawTransfer.String); err != nil {
			return nil, fmt.Errorf("parse stored transfer id: %w", err)
		}
	}
	if p.Payer, err = id.ParseActorID(rawPayer); err != nil {
		return nil, fmt.Errorf("parse stored payer id: %w", err)
	}
	if p.Amount, err = decimal.NewFromString(rawAmount); err != nil {
		return nil, fmt.Errorf("parse stored amount: %w", err)
	}
	p.Type = models.PaymentType(rawType)
	p.Method = models.PaymentMethod(rawMethod)
	p.MethodDetails = methodDetails
	p.TransactionID = transactionID.String
	p.Status = models.Status(rawStatus)
	p.VerificationStatus = models.VerificationStatus(rawVerif.String)
	p.VerificationNotes = verifNotes.String
	if verifiedBy.Valid {
		if p.VerifiedBy, err = id.ParseActorID(verifiedBy.String); err != nil {
			return nil, fmt.Errorf("parse stored verifier id: %w", err)
		}
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		p.VerifiedAt = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
