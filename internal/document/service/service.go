// Package service implements the document review sub-workflow. Every review
// decision and the owning application's flag recomputation commit inside one
// transaction, so the aggregate never reflects a partially applied review.
package service

import (
	"context"
	"errors"
	"log/slog"

	"landregistry/internal/authz"
	"landregistry/internal/document/models"
	"landregistry/internal/notify"
	property "landregistry/internal/property/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/platform/tx"
	"landregistry/pkg/requestcontext"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	Execute(
		ctx context.Context,
		documentID id.DocumentID,
		validate func(*models.Document) error,
		mutate func(*models.Document),
	) (*models.Document, error)
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Document, error)
}

// Aggregate is the slice of the property service the sub-workflow depends on.
type Aggregate interface {
	Owner(ctx context.Context, propertyID id.PropertyID) (id.ActorID, error)
	Decided(ctx context.Context, propertyID id.PropertyID) (bool, error)
	Recompute(ctx context.Context, propertyID id.PropertyID) error
}

// Service coordinates document uploads and reviews.
type Service struct {
	store     Store
	aggregate Aggregate
	runner    tx.Runner
	auditor   *audit.Emitter
	notifier  notify.Sink
	logger    *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

func WithNotifier(sink notify.Sink) Option {
	return func(s *Service) { s.notifier = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates the document service.
func New(store Store, aggregate Aggregate, runner tx.Runner, auditor *audit.Emitter, opts ...Option) *Service {
	s := &Service{
		store:     store,
		aggregate: aggregate,
		runner:    runner,
		auditor:   auditor,
		notifier:  notify.Noop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadInput carries the metadata of a new document. The bytes themselves go
// to the blob store out of band, keyed by the returned document id.
type UploadInput struct {
	PropertyID   string `json:"property_id"`
	DocumentType string `json:"document_type"`
	FileName     string `json:"file_name"`
	FileSize     int64  `json:"file_size"`
	MimeType     string `json:"mime_type"`
}

// Upload registers a document under the caller's application.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.Document, error) {
	propertyID, err := id.ParsePropertyID(in.PropertyID)
	if err != nil {
		return nil, err
	}
	docType, err := models.ParseDocumentType(in.DocumentType)
	if err != nil {
		return nil, err
	}

	owner, err := s.aggregate.Owner(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.Owner, owner)
	if err != nil {
		return nil, err
	}

	decided, err := s.aggregate.Decided(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if decided {
		return nil, dErrors.New(dErrors.CodeConflict, "application already decided")
	}

	now := requestcontext.Now(ctx)
	doc, err := models.NewDocument(id.NewDocumentID(), propertyID, docType,
		in.FileName, in.FileSize, in.MimeType, now)
	if err != nil {
		return nil, err
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create document")
		}
		return s.aggregate.Recompute(ctx, propertyID)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityDocument,
		EntityID:   doc.ID.String(),
		Action:     audit.ActionDocumentUploaded,
		ToStatus:   string(doc.Status),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      string(doc.Type),
		RequestID:  requestcontext.RequestID(ctx),
	})

	s.logger.InfoContext(ctx, "document uploaded",
		"document_id", doc.ID.String(), "property_id", propertyID.String(), "type", doc.Type)
	return doc, nil
}

// ReviewInput carries an officer's decision on one document.
type ReviewInput struct {
	Notes string `json:"notes"`
	// ReReview permits overriding a verified or rejected outcome.
	ReReview bool `json:"re_review"`
}

// Verify marks the document verified and recomputes the aggregate flags.
func (s *Service) Verify(ctx context.Context, documentID id.DocumentID, in ReviewInput) (*models.Document, error) {
	return s.review(ctx, documentID, models.StatusVerified, audit.ActionDocumentVerified, in)
}

// Reject marks the document rejected, which forces the aggregate's
// documentsValidated flag down until the document is replaced and re-verified.
func (s *Service) Reject(ctx context.Context, documentID id.DocumentID, in ReviewInput) (*models.Document, error) {
	return s.review(ctx, documentID, models.StatusRejected, audit.ActionDocumentRejected, in)
}

// RequestUpdate sends the document back to its owner for a corrected upload.
func (s *Service) RequestUpdate(ctx context.Context, documentID id.DocumentID, in ReviewInput) (*models.Document, error) {
	return s.review(ctx, documentID, models.StatusNeedsUpdate, audit.ActionDocumentUpdateRequest, in)
}

func (s *Service) review(
	ctx context.Context,
	documentID id.DocumentID,
	to models.Status,
	action audit.Action,
	in ReviewInput,
) (*models.Document, error) {
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	owner, err := s.aggregate.Owner(ctx, doc.PropertyID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.ReviewerNotOwner, owner)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	var updated *models.Document
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		updated, err = s.store.Execute(ctx, documentID,
			func(d *models.Document) error {
				fromStatus = d.Status
				return d.CanReview(in.ReReview)
			},
			func(d *models.Document) {
				d.ApplyReview(to, caller.ActorID, in.Notes, now)
			},
		)
		if err != nil {
			return s.mapStoreErr(err)
		}
		return s.aggregate.Recompute(ctx, updated.PropertyID)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityDocument,
		EntityID:   documentID.String(),
		Action:     action,
		FromStatus: string(fromStatus),
		ToStatus:   string(updated.Status),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      in.Notes,
		RequestID:  requestcontext.RequestID(ctx),
	})
	s.notifier.Publish(ctx, notify.Message{
		Recipient: owner,
		Entity:    string(audit.EntityDocument),
		EntityID:  documentID.String(),
		Event:     string(action),
		Detail:    in.Notes,
		At:        now,
	})

	s.logger.InfoContext(ctx, "document reviewed",
		"document_id", documentID.String(), "to", updated.Status)
	return updated, nil
}

// ResubmitInput carries replacement file metadata.
type ResubmitInput struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

// Resubmit replaces a document the officer sent back (or rejected) and
// returns it to pending.
func (s *Service) Resubmit(ctx context.Context, documentID id.DocumentID, in ResubmitInput) (*models.Document, error) {
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	owner, err := s.aggregate.Owner(ctx, doc.PropertyID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.Owner, owner)
	if err != nil {
		return nil, err
	}

	// Reuse the constructor's metadata validation.
	if _, err := models.NewDocument(doc.ID, doc.PropertyID, doc.Type,
		in.FileName, in.FileSize, in.MimeType, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	var updated *models.Document
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		updated, err = s.store.Execute(ctx, documentID,
			func(d *models.Document) error {
				fromStatus = d.Status
				return d.CanResubmit()
			},
			func(d *models.Document) {
				d.ApplyResubmission(in.FileName, in.FileSize, in.MimeType, now)
			},
		)
		if err != nil {
			return s.mapStoreErr(err)
		}
		return s.aggregate.Recompute(ctx, updated.PropertyID)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityDocument,
		EntityID:   documentID.String(),
		Action:     audit.ActionDocumentUploaded,
		FromStatus: string(fromStatus),
		ToStatus:   string(updated.Status),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		RequestID:  requestcontext.RequestID(ctx),
	})
	return updated, nil
}

// ListByProperty returns the application's documents to its owner or a
// reviewer.
func (s *Service) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Document, error) {
	owner, err := s.aggregate.Owner(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if _, err := authz.Require(ctx, authz.Owner, owner); err != nil {
		if _, err := authz.Require(ctx, authz.Reviewer, id.ActorID{}); err != nil {
			return nil, err
		}
	}
	return s.store.ListByProperty(ctx, propertyID)
}

// ValidationState implements the property service's DocumentState: it re-reads
// the full document set so a concurrent verification never works from a stale
// count. It runs under the application's lock, which is why the property type
// arrives as an argument rather than through a callback to the aggregate.
func (s *Service) ValidationState(ctx context.Context, propertyID id.PropertyID, propertyType property.PropertyType) (validated, hasAny bool, err error) {
	docs, err := s.store.ListByProperty(ctx, propertyID)
	if err != nil {
		return false, false, err
	}
	validated, hasAny = models.ValidationOutcome(propertyType, docs)
	return validated, hasAny, nil
}

func (s *Service) load(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	doc, err := s.store.FindByID(ctx, documentID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return doc, nil
}

func (s *Service) mapStoreErr(err error) error {
	var coded *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "document conflict")
	case errors.As(err, &coded):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "document store failure")
	}
}
