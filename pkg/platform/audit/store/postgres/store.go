package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "landregistry/pkg/domain"
	audit "landregistry/pkg/platform/audit"
	txcontext "landregistry/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern. Events
// are written to the audit_outbox table and shipped to Kafka by the outbox
// relay; the relay marks rows published. Kafka is the downstream source of
// truth for the audit stream, the table is the durable local trail.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store writing to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event for deserialization by downstream consumers.
type outboxPayload struct {
	ID         string `json:"ID"`
	Category   string `json:"Category"`
	Timestamp  string `json:"Timestamp"`
	EntityType string `json:"EntityType"`
	EntityID   string `json:"EntityID"`
	Action     string `json:"Action"`
	FromStatus string `json:"FromStatus,omitempty"`
	ToStatus   string `json:"ToStatus,omitempty"`
	ActorID    string `json:"ActorID,omitempty"`
	ActorRole  string `json:"ActorRole,omitempty"`
	Notes      string `json:"Notes,omitempty"`
	RequestID  string `json:"RequestID,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := event.Action.Category()

	payload := outboxPayload{
		ID:         eventID.String(),
		Category:   string(category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		EntityType: string(event.EntityType),
		EntityID:   event.EntityID,
		Action:     string(event.Action),
		FromStatus: event.FromStatus,
		ToStatus:   event.ToStatus,
		Notes:      event.Notes,
		RequestID:  event.RequestID,
		ActorRole:  string(event.ActorRole),
	}
	if !event.ActorID.IsNil() {
		payload.ActorID = event.ActorID.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	const q = `
		INSERT INTO audit_outbox (
			id, category, entity_type, entity_id, action,
			from_status, to_status, actor_id, actor_role,
			notes, request_id, occurred_at, payload, published
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, FALSE)`
	_, err = s.execer(ctx).ExecContext(ctx, q,
		eventID, string(category), string(event.EntityType), event.EntityID,
		string(event.Action), event.FromStatus, event.ToStatus,
		nullableActor(event.ActorID), string(event.ActorRole),
		event.Notes, event.RequestID, event.Timestamp, body,
	)
	if err != nil {
		return fmt.Errorf("append audit outbox row: %w", err)
	}
	return nil
}

func nullableActor(actorID id.ActorID) any {
	if actorID.IsNil() {
		return nil
	}
	return actorID.String()
}

// ListByEntity returns the audit trail for one entity, oldest first.
func (s *Store) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Event, error) {
	const q = `
		SELECT entity_type, entity_id, action, from_status, to_status,
		       actor_id, actor_role, notes, request_id, occurred_at
		FROM audit_outbox
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at ASC`
	rows, err := s.execer(ctx).QueryContext(ctx, q, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the most recent N events across all entities.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	const q = `
		SELECT entity_type, entity_id, action, from_status, to_status,
		       actor_id, actor_role, notes, request_id, occurred_at
		FROM audit_outbox
		ORDER BY occurred_at DESC
		LIMIT $1`
	rows, err := s.execer(ctx).QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent audit entries: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			e       audit.Event
			et      string
			action  string
			role    string
			actorID sql.NullString
		)
		if err := rows.Scan(&et, &e.EntityID, &action, &e.FromStatus, &e.ToStatus,
			&actorID, &role, &e.Notes, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.EntityType = audit.EntityType(et)
		e.Action = audit.Action(action)
		e.ActorRole = id.Role(role)
		if actorID.Valid {
			parsed, err := id.ParseActorID(actorID.String)
			if err == nil {
				e.ActorID = parsed
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
