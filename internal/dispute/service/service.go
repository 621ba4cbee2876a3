// Package service implements dispute resolution: filing by citizens, triage
// and resolution by officers, assignment by admins, and withdrawal by the
// disputant. Priority is stamped onto every dispute returned to a caller and
// never persisted.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"landregistry/internal/authz"
	"landregistry/internal/dispute/models"
	"landregistry/internal/notify"
	"landregistry/internal/platform/metrics"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/requestcontext"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, d *models.Dispute) error
	FindByID(ctx context.Context, disputeID id.DisputeID) (*models.Dispute, error)
	Execute(
		ctx context.Context,
		disputeID id.DisputeID,
		validate func(*models.Dispute) error,
		mutate func(*models.Dispute),
	) (*models.Dispute, error)
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Dispute, error)
	ListByDisputant(ctx context.Context, disputant id.ActorID) ([]*models.Dispute, error)
	List(ctx context.Context) ([]*models.Dispute, error)
}

// PropertyRegistry confirms the disputed property exists. Any citizen may
// dispute any registered plot, so only existence is checked.
type PropertyRegistry interface {
	Owner(ctx context.Context, propertyID id.PropertyID) (id.ActorID, error)
}

// Service coordinates dispute transitions.
type Service struct {
	store    Store
	registry PropertyRegistry
	auditor  *audit.Emitter
	notifier notify.Sink
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

func WithNotifier(sink notify.Sink) Option {
	return func(s *Service) { s.notifier = sink }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates the dispute service.
func New(store Store, registry PropertyRegistry, auditor *audit.Emitter, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		auditor:  auditor,
		notifier: notify.Noop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileInput carries a citizen's grievance.
type FileInput struct {
	PropertyID  string `json:"property_id"`
	DisputeType string `json:"dispute_type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// File opens a dispute against a registered property.
func (s *Service) File(ctx context.Context, in FileInput) (*models.Dispute, error) {
	caller, err := authz.Require(ctx, authz.Authenticated, id.ActorID{})
	if err != nil {
		return nil, err
	}

	propertyID, err := id.ParsePropertyID(in.PropertyID)
	if err != nil {
		return nil, err
	}
	disputeType, err := models.ParseDisputeType(in.DisputeType)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.Owner(ctx, propertyID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	d, err := models.NewDispute(id.NewDisputeID(), propertyID, caller.ActorID,
		disputeType, in.Title, in.Description, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, d); err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityDispute,
		EntityID:   d.ID.String(),
		Action:     audit.ActionDisputeFiled,
		ToStatus:   string(d.Status),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      string(d.Type),
		RequestID:  requestcontext.RequestID(ctx),
	})
	if s.metrics != nil {
		s.metrics.DisputesFiled.Inc()
	}

	s.logger.InfoContext(ctx, "dispute filed",
		"dispute_id", d.ID.String(), "property_id", propertyID.String(), "type", d.Type)
	return s.withPriority(ctx, d), nil
}

// UpdateStatusInput names the target status and the mandatory officer notes.
type UpdateStatusInput struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// UpdateStatus moves the dispute through triage. Notes are mandatory so the
// timeline stays self-explanatory.
func (s *Service) UpdateStatus(ctx context.Context, disputeID id.DisputeID, in UpdateStatusInput) (*models.Dispute, error) {
	caller, err := authz.Require(ctx, authz.Reviewer, id.ActorID{})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Notes) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "status notes are required")
	}
	target, err := models.ParseStatus(in.Status)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, disputeID,
		func(d *models.Dispute) error {
			fromStatus = d.Status
			return d.CanUpdateStatus(target)
		},
		func(d *models.Dispute) {
			d.ApplyStatusUpdate(target, in.Notes, caller.Role, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.emit(ctx, disputeID, audit.ActionDisputeUpdated, fromStatus, updated.Status, caller, in.Notes)
	s.notifyDisputant(ctx, updated, audit.ActionDisputeUpdated, in.Notes)
	return s.withPriority(ctx, updated), nil
}

// AssignInput names the officer taking over the case.
type AssignInput struct {
	OfficerID string `json:"officer_id"`
	Notes     string `json:"notes"`
}

// Assign hands the dispute to an officer. Admin-only: officers triage and
// resolve but do not pick their own caseload.
func (s *Service) Assign(ctx context.Context, disputeID id.DisputeID, in AssignInput) (*models.Dispute, error) {
	caller, err := authz.Require(ctx, authz.AdminOnly, id.ActorID{})
	if err != nil {
		return nil, err
	}
	officerID, err := id.ParseActorID(in.OfficerID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, disputeID,
		func(d *models.Dispute) error {
			fromStatus = d.Status
			return d.CanAssign()
		},
		func(d *models.Dispute) {
			d.ApplyAssignment(officerID, in.Notes, caller.Role, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.emit(ctx, disputeID, audit.ActionDisputeAssigned, fromStatus, updated.Status, caller, in.Notes)
	s.notifier.Publish(ctx, notify.Message{
		Recipient: officerID,
		Entity:    string(audit.EntityDispute),
		EntityID:  disputeID.String(),
		Event:     string(audit.ActionDisputeAssigned),
		At:        now,
	})
	return s.withPriority(ctx, updated), nil
}

// ResolveInput carries the mandatory verdict fields.
type ResolveInput struct {
	Decision        string `json:"decision"`
	ResolutionNotes string `json:"resolution_notes"`
	ActionRequired  string `json:"action_required"`
}

// Resolve concludes the dispute with a verdict.
func (s *Service) Resolve(ctx context.Context, disputeID id.DisputeID, in ResolveInput) (*models.Dispute, error) {
	caller, err := authz.Require(ctx, authz.Reviewer, id.ActorID{})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Decision) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "decision is required")
	}
	if strings.TrimSpace(in.ResolutionNotes) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resolution notes are required")
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, disputeID,
		func(d *models.Dispute) error {
			fromStatus = d.Status
			return d.CanResolve()
		},
		func(d *models.Dispute) {
			d.ApplyResolution(models.Resolution{
				Decision:        in.Decision,
				ResolutionNotes: in.ResolutionNotes,
				ActionRequired:  in.ActionRequired,
				ResolvedBy:      caller.ActorID,
			}, caller.Role, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.emit(ctx, disputeID, audit.ActionDisputeResolved, fromStatus, updated.Status, caller, in.ResolutionNotes)
	s.notifyDisputant(ctx, updated, audit.ActionDisputeResolved, in.Decision)
	if s.metrics != nil {
		s.metrics.DisputesResolved.Inc()
	}

	s.logger.InfoContext(ctx, "dispute resolved", "dispute_id", disputeID.String())
	return s.withPriority(ctx, updated), nil
}

// Withdraw lets the disputant pull the dispute back before resolution.
func (s *Service) Withdraw(ctx context.Context, disputeID id.DisputeID, notes string) (*models.Dispute, error) {
	d, err := s.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.Owner, d.Disputant)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, disputeID,
		func(d *models.Dispute) error {
			fromStatus = d.Status
			return d.CanWithdraw()
		},
		func(d *models.Dispute) {
			d.ApplyWithdrawal(notes, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.emit(ctx, disputeID, audit.ActionDisputeWithdrawn, fromStatus, updated.Status, caller, notes)
	return s.withPriority(ctx, updated), nil
}

// Get returns one dispute to the disputant, the assignee, or a reviewer.
func (s *Service) Get(ctx context.Context, disputeID id.DisputeID) (*models.Dispute, error) {
	d, err := s.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.Authenticated, id.ActorID{})
	if err != nil {
		return nil, err
	}
	if caller.Role.IsOfficerOrAdmin() || caller.ActorID == d.Disputant {
		return s.withPriority(ctx, d), nil
	}
	return nil, dErrors.New(dErrors.CodeForbidden, "not party to this dispute")
}

// List returns the caller's disputes, or every dispute for reviewers.
func (s *Service) List(ctx context.Context) ([]*models.Dispute, error) {
	caller, err := authz.Require(ctx, authz.Authenticated, id.ActorID{})
	if err != nil {
		return nil, err
	}
	var (
		disputes []*models.Dispute
	)
	if caller.Role.IsOfficerOrAdmin() {
		disputes, err = s.store.List(ctx)
	} else {
		disputes, err = s.store.ListByDisputant(ctx, caller.ActorID)
	}
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	now := requestcontext.Now(ctx)
	for _, d := range disputes {
		d.Priority = models.ComputePriority(d.Type, d.CreatedAt, now)
	}
	return disputes, nil
}

// ListByProperty returns the property's disputes to reviewers.
func (s *Service) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Dispute, error) {
	if _, err := authz.Require(ctx, authz.Reviewer, id.ActorID{}); err != nil {
		return nil, err
	}
	disputes, err := s.store.ListByProperty(ctx, propertyID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	now := requestcontext.Now(ctx)
	for _, d := range disputes {
		d.Priority = models.ComputePriority(d.Type, d.CreatedAt, now)
	}
	return disputes, nil
}

// withPriority stamps the derived priority for the response. The stores never
// write the field back.
func (s *Service) withPriority(ctx context.Context, d *models.Dispute) *models.Dispute {
	d.Priority = models.ComputePriority(d.Type, d.CreatedAt, requestcontext.Now(ctx))
	return d
}

func (s *Service) emit(
	ctx context.Context,
	disputeID id.DisputeID,
	action audit.Action,
	from, to models.Status,
	caller authz.Caller,
	notes string,
) {
	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		EntityType: audit.EntityDispute,
		EntityID:   disputeID.String(),
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(to),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      notes,
		RequestID:  requestcontext.RequestID(ctx),
	})
}

func (s *Service) notifyDisputant(ctx context.Context, d *models.Dispute, action audit.Action, detail string) {
	s.notifier.Publish(ctx, notify.Message{
		Recipient: d.Disputant,
		Entity:    string(audit.EntityDispute),
		EntityID:  d.ID.String(),
		Event:     string(action),
		Detail:    detail,
		At:        requestcontext.Now(ctx),
	})
}

func (s *Service) load(ctx context.Context, disputeID id.DisputeID) (*models.Dispute, error) {
	d, err := s.store.FindByID(ctx, disputeID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return d, nil
}

func (s *Service) mapStoreErr(err error) error {
	var coded *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "dispute not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "dispute conflict")
	case errors.As(err, &coded):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "dispute store failure")
	}
}
