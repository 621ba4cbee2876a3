// Package service implements the property registration workflow: submission,
// officer decisions, and recomputation of the aggregate flags the document and
// payment sub-workflows feed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"landregistry/internal/authz"
	"landregistry/internal/notify"
	"landregistry/internal/platform/metrics"
	"landregistry/internal/property/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/requestcontext"
)

// Store is the persistence surface the service needs.
type Store interface {
	CreateIfPlotAvailable(ctx context.Context, app *models.PropertyApplication) error
	FindByID(ctx context.Context, propertyID id.PropertyID) (*models.PropertyApplication, error)
	Execute(
		ctx context.Context,
		propertyID id.PropertyID,
		validate func(*models.PropertyApplication) error,
		mutate func(*models.PropertyApplication),
	) (*models.PropertyApplication, error)
	ListByOwner(ctx context.Context, owner id.ActorID) ([]*models.PropertyApplication, error)
	List(ctx context.Context) ([]*models.PropertyApplication, error)
}

// DocumentState reports the document sub-workflow's contribution to the
// aggregate: whether the full required set is verified, and whether any
// document exists at all. It is invoked while the application's lock is held,
// so implementations must not call back into the property store; the property
// type is passed in for the same reason.
type DocumentState interface {
	ValidationState(ctx context.Context, propertyID id.PropertyID, propertyType models.PropertyType) (validated, hasAny bool, err error)
}

// PaymentState reports the payment sub-workflow's contribution: whether a
// verified registration payment exists, and whether any payment exists.
type PaymentState interface {
	CompletionState(ctx context.Context, propertyID id.PropertyID) (completed, hasAny bool, err error)
}

// Service coordinates property application transitions.
type Service struct {
	store    Store
	docs     DocumentState
	payments PaymentState
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

// New creates the property service. docs and payments may be set later via
// BindSubWorkflows when construction order requires it.
func New(store Store, auditor *audit.Emitter, opts ...Option) *Service {
	s := &Service{
		store:    store,
		auditor:  auditor,
		notifier: notify.Noop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BindSubWorkflows attaches the document and payment state readers. Called
// once during wiring; the sub-workflow services in turn depend on Recompute.
func (s *Service) BindSubWorkflows(docs DocumentState, payments PaymentState) {
	s.docs = docs
	s.payments = payments
}

// SubmitInput carries the citizen-supplied fields of a new application.
type SubmitInput struct {
	PlotNumber   string          `json:"plot_number"`
	Location     models.Location `json:"location"`
	Area         float64         `json:"area"`
	PropertyType string          `json:"property_type"`
}

// Submit registers a new application owned by the caller.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.PropertyApplication, error) {
	caller, err := authz.Require(ctx, authz.Authenticated, id.ActorID{})
	if err != nil {
		return nil, err
	}

	propertyType, err := models.ParsePropertyType(in.PropertyType)
	if err != nil {
		return nil, err
	}

	app, err := models.NewPropertyApplication(
		id.NewPropertyID(), caller.ActorID, in.PlotNumber,
		in.Location, in.Area, propertyType, requestcontext.Now(ctx),
	)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateIfPlotAvailable(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "plot number already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create property application")
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  app.CreatedAt,
		EntityType: audit.EntityProperty,
		EntityID:   app.ID.String(),
		Action:     audit.ActionApplicationSubmitted,
		ToStatus:   string(app.Status),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		RequestID:  requestcontext.RequestID(ctx),
	})
	if s.metrics != nil {
		s.metrics.ApplicationsSubmitted.Inc()
	}

	s.logger.InfoContext(ctx, "application submitted",
		"property_id", app.ID.String(), "plot_number", app.PlotNumber)
	return app, nil
}

// Get returns one application. Owners see their own; officers and admins see
// any.
func (s *Service) Get(ctx context.Context, propertyID id.PropertyID) (*models.PropertyApplication, error) {
	app, err := s.load(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if _, err := authz.Require(ctx, authz.Owner, app.Owner); err != nil {
		if _, err := authz.Require(ctx, authz.Reviewer, id.ActorID{}); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// List returns the caller's applications, or every application for reviewers.
func (s *Service) List(ctx context.Context) ([]*models.PropertyApplication, error) {
	caller, err := authz.Require(ctx, authz.Authenticated, id.ActorID{})
	if err != nil {
		return nil, err
	}
	if caller.Role.IsOfficerOrAdmin() {
		return s.store.List(ctx)
	}
	return s.store.ListByOwner(ctx, caller.ActorID)
}

// Approve moves the application to approved. The caller must be a reviewer who
// is not the owner, and both aggregate flags must hold.
func (s *Service) Approve(ctx context.Context, propertyID id.PropertyID, notes string) (*models.PropertyApplication, error) {
	app, err := s.load(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.ReviewerNotOwner, app.Owner)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, propertyID,
		func(a *models.PropertyApplication) error {
			fromStatus = a.Status
			return a.CanApprove()
		},
		func(a *models.PropertyApplication) {
			a.ApplyApproval(caller.ActorID, notes, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityProperty,
		EntityID:   propertyID.String(),
		Action:     audit.ActionApplicationApproved,
		FromStatus: string(fromStatus),
		ToStatus:   string(updated.Status),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      notes,
		RequestID:  requestcontext.RequestID(ctx),
	})
	if s.metrics != nil {
		s.metrics.ApplicationsApproved.Inc()
	}
	s.notifier.Publish(ctx, notify.Message{
		Recipient: updated.Owner,
		Entity:    string(audit.EntityProperty),
		EntityID:  propertyID.String(),
		Event:     string(audit.ActionApplicationApproved),
		Detail:    notes,
		At:        now,
	})

	s.logger.InfoContext(ctx, "application approved", "property_id", propertyID.String())
	return updated, nil
}

// Reject moves the application to rejected. A reason is mandatory so the owner
// learns why.
func (s *Service) Reject(ctx context.Context, propertyID id.PropertyID, reason string) (*models.PropertyApplication, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}

	app, err := s.load(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.ReviewerNotOwner, app.Owner)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, propertyID,
		func(a *models.PropertyApplication) error {
			fromStatus = a.Status
			return a.CanReject()
		},
		func(a *models.PropertyApplication) {
			a.ApplyRejection(caller.ActorID, reason, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityProperty,
		EntityID:   propertyID.String(),
		Action:     audit.ActionApplicationRejected,
		FromStatus: string(fromStatus),
		ToStatus:   string(updated.Status),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      reason,
		RequestID:  requestcontext.RequestID(ctx),
	})
	if s.metrics != nil {
		s.metrics.ApplicationsRejected.Inc()
	}
	s.notifier.Publish(ctx, notify.Message{
		Recipient: updated.Owner,
		Entity:    string(audit.EntityProperty),
		EntityID:  propertyID.String(),
		Event:     string(audit.ActionApplicationRejected),
		Detail:    reason,
		At:        now,
	})

	s.logger.InfoContext(ctx, "application rejected", "property_id", propertyID.String())
	return updated, nil
}

// Recompute re-derives the aggregate flags and composite status from the
// document and payment stores. The sub-workflow services call it inside the
// same transaction as their own transition, so the flags never lag the facts
// they summarize. Terminal applications are left untouched.
func (s *Service) Recompute(ctx context.Context, propertyID id.PropertyID) error {
	if s.docs == nil || s.payments == nil {
		return dErrors.New(dErrors.CodeInternal, "sub-workflow readers not bound")
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	var docsValidated, docsAny, paymentDone, paymentAny bool
	updated, err := s.store.Execute(ctx, propertyID,
		// The child sets are read while the application's lock is held, so a
		// concurrent review cannot slide a stale view between read and write.
		func(a *models.PropertyApplication) error {
			fromStatus = a.Status
			var err error
			if docsValidated, docsAny, err = s.docs.ValidationState(ctx, propertyID, a.PropertyType); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read document state")
			}
			if paymentDone, paymentAny, err = s.payments.CompletionState(ctx, propertyID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read payment state")
			}
			return nil
		},
		func(a *models.PropertyApplication) {
			a.ApplyRecomputation(docsValidated, paymentDone, docsAny || paymentAny, now)
		},
	)
	if err != nil {
		return s.mapStoreErr(err)
	}

	if updated.Status != fromStatus {
		s.auditor.Emit(ctx, audit.Event{
			Timestamp:  now,
			EntityType: audit.EntityProperty,
			EntityID:   propertyID.String(),
			Action:     audit.ActionFlagsRecomputed,
			FromStatus: string(fromStatus),
			ToStatus:   string(updated.Status),
			ActorID:    requestcontext.ActorID(ctx),
			ActorRole:  requestcontext.Role(ctx),
			RequestID:  requestcontext.RequestID(ctx),
		})
	}
	return nil
}

// Owner returns the owning actor of an application. Sub-workflow services use
// it for their own ownership guards.
func (s *Service) Owner(ctx context.Context, propertyID id.PropertyID) (id.ActorID, error) {
	app, err := s.load(ctx, propertyID)
	if err != nil {
		return id.ActorID{}, err
	}
	return app.Owner, nil
}

// Approved reports whether the application has been approved, i.e. the plot
// is a registered property that may be transferred or disputed.
func (s *Service) Approved(ctx context.Context, propertyID id.PropertyID) (bool, error) {
	app, err := s.load(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return app.Status == models.StatusApproved, nil
}

// ReassignOwner rewrites the registered owner. Only transfer completion calls
// it, inside the completion transaction; the expected current owner is checked
// under the row lock so a racing completion cannot double-assign.
func (s *Service) ReassignOwner(ctx context.Context, propertyID id.PropertyID, from, to id.ActorID) error {
	now := requestcontext.Now(ctx)
	_, err := s.store.Execute(ctx, propertyID,
		func(a *models.PropertyApplication) error {
			if a.Status != models.StatusApproved {
				return dErrors.New(dErrors.CodeInvalidState, "only approved properties carry a transferable owner")
			}
			if a.Owner != from {
				return dErrors.New(dErrors.CodeConflict, "property owner changed since the transfer was approved")
			}
			return nil
		},
		func(a *models.PropertyApplication) {
			a.Owner = to
			a.UpdatedAt = now
		},
	)
	return s.mapStoreErr(err)
}

// Decided reports whether the application has reached a terminal status.
func (s *Service) Decided(ctx context.Context, propertyID id.PropertyID) (bool, error) {
	app, err := s.load(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return app.Status.IsTerminal(), nil
}

func (s *Service) load(ctx context.Context, propertyID id.PropertyID) (*models.PropertyApplication, error) {
	app, err := s.store.FindByID(ctx, propertyID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return app, nil
}

func (s *Service) mapStoreErr(err error) error {
	var coded *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "property application not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "property application conflict")
	case errors.As(err, &coded):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "property store failure")
	}
}
