// Package service implements the ownership transfer state machine. Completion
// is the only operation allowed to rewrite a property's owner, and it does so
// in the same transaction that marks the transfer completed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"landregistry/internal/authz"
	"landregistry/internal/notify"
	"landregistry/internal/platform/metrics"
	"landregistry/internal/transfer/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/platform/tx"
	"landregistry/pkg/requestcontext"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, t *models.Transfer) error
	FindByID(ctx context.Context, transferID id.TransferID) (*models.Transfer, error)
	HasOpenTransfer(ctx context.Context, propertyID id.PropertyID) (bool, error)
	Execute(
		ctx context.Context,
		transferID id.TransferID,
		validate func(*models.Transfer) error,
		mutate func(*models.Transfer),
	) (*models.Transfer, error)
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Transfer, error)
	List(ctx context.Context) ([]*models.Transfer, error)
}

// PropertyRegistry is the slice of the property service the transfer engine
// depends on.
type PropertyRegistry interface {
	Owner(ctx context.Context, propertyID id.PropertyID) (id.ActorID, error)
	Approved(ctx context.Context, propertyID id.PropertyID) (bool, error)
	ReassignOwner(ctx context.Context, propertyID id.PropertyID, from, to id.ActorID) error
}

// FeeState reports whether the transfer fee has been paid and verified.
type FeeState interface {
	TransferFeeVerified(ctx context.Context, transferID id.TransferID) (bool, error)
}

// Service coordinates transfer transitions.
type Service struct {
	store    Store
	registry PropertyRegistry
	fees     FeeState
	runner   tx.Runner
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

// WithFeeState attaches the transfer-fee reader. Without it approval does not
// check the fee (memory-only deployments wire it in main).
func WithFeeState(fees FeeState) Option {
	return func(s *Service) { s.fees = fees }
}

// New creates the transfer service.
func New(store Store, registry PropertyRegistry, runner tx.Runner, auditor *audit.Emitter, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		runner:   runner,
		auditor:  auditor,
		notifier: notify.Noop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitiateInput carries a new transfer request.
type InitiateInput struct {
	PropertyID   string `json:"property_id"`
	TransferType string `json:"transfer_type"`
	NewOwner     string `json:"new_owner"`
	Value        string `json:"transfer_value"`
}

// Initiate opens a transfer for an approved property. The caller must be the
// current owner or a reviewer; one open transfer per property at a time.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*models.Transfer, error) {
	propertyID, err := id.ParsePropertyID(in.PropertyID)
	if err != nil {
		return nil, err
	}
	transferType, err := models.ParseTransferType(in.TransferType)
	if err != nil {
		return nil, err
	}
	newOwner, err := id.ParseActorID(in.NewOwner)
	if err != nil {
		return nil, err
	}
	value := decimal.Zero
	if in.Value != "" {
		if value, err = decimal.NewFromString(in.Value); err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "transfer value must be a decimal number")
		}
	}

	owner, err := s.registry.Owner(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.Owner, owner)
	if err != nil {
		if caller, err = authz.Require(ctx, authz.Reviewer, id.ActorID{}); err != nil {
			return nil, err
		}
	}

	approved, err := s.registry.Approved(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "property registration is not approved")
	}

	open, err := s.store.HasOpenTransfer(ctx, propertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check open transfers")
	}
	if open {
		return nil, dErrors.New(dErrors.CodeConflict, "property already has an open transfer")
	}

	now := requestcontext.Now(ctx)
	t, err := models.NewTransfer(id.NewTransferID(), propertyID, transferType,
		owner, newOwner, caller.ActorID, value, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, t); err != nil {
		// The store re-checks the open-transfer rule under its own lock, so
		// racing initiations collapse to one winner here.
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "property already has an open transfer")
		}
		return nil, s.mapStoreErr(err)
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityTransfer,
		EntityID:   t.ID.String(),
		Action:     audit.ActionTransferInitiated,
		ToStatus:   string(t.Status),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      string(t.Type),
		RequestID:  requestcontext.RequestID(ctx),
	})
	s.notifier.Publish(ctx, notify.Message{
		Recipient: newOwner,
		Entity:    string(audit.EntityTransfer),
		EntityID:  t.ID.String(),
		Event:     string(audit.ActionTransferInitiated),
		At:        now,
	})

	s.logger.InfoContext(ctx, "transfer initiated",
		"transfer_id", t.ID.String(), "property_id", propertyID.String(), "type", t.Type)
	return t, nil
}

// ReviewDocuments records officer verdicts on the transfer documents and
// advances the transfer according to completeness.
func (s *Service) ReviewDocuments(ctx context.Context, transferID id.TransferID, decisions []models.DocumentDecision) (*models.Transfer, error) {
	caller, err := authz.Require(ctx, authz.Reviewer, id.ActorID{})
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, transferID,
		func(t *models.Transfer) error {
			fromStatus = t.Status
			return t.CanReviewDocuments()
		},
		func(t *models.Transfer) {
			t.ApplyDocumentReview(decisions, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.emitTransition(ctx, transferID, audit.ActionTransferDocsReviewed, fromStatus, updated.Status, caller, "")
	return updated, nil
}

// PerformComplianceChecks records the checklist. Every check must pass before
// the transfer reaches compliance_check and unlocks approval.
func (s *Service) PerformComplianceChecks(ctx context.Context, transferID id.TransferID, checks []models.ComplianceCheck) (*models.Transfer, error) {
	caller, err := authz.Require(ctx, authz.Reviewer, id.ActorID{})
	if err != nil {
		return nil, err
	}
	if len(checks) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one compliance check is required")
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, transferID,
		func(t *models.Transfer) error {
			fromStatus = t.Status
			return t.CanRunCompliance()
		},
		func(t *models.Transfer) {
			t.ApplyCompliance(checks, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.emitTransition(ctx, transferID, audit.ActionTransferComplianceRun, fromStatus, updated.Status, caller, "")
	return updated, nil
}

// Approve moves an eligible transfer to approved. The reviewer may not be a
// party to the transfer, and the transfer fee must be verified.
func (s *Service) Approve(ctx context.Context, transferID id.TransferID, notes string) (*models.Transfer, error) {
	t, err := s.load(ctx, transferID)
	if err != nil {
		return nil, err
	}
	caller, err := s.requireReviewerNotParty(ctx, t)
	if err != nil {
		return nil, err
	}

	if s.fees != nil {
		paid, err := s.fees.TransferFeeVerified(ctx, transferID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check transfer fee")
		}
		if !paid {
			return nil, dErrors.New(dErrors.CodePreconditionFailed, "transfer fee not yet verified")
		}
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, transferID,
		func(t *models.Transfer) error {
			fromStatus = t.Status
			return t.CanApprove()
		},
		func(t *models.Transfer) {
			t.ApplyApproval(caller.ActorID, notes, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.emitTransition(ctx, transferID, audit.ActionTransferApproved, fromStatus, updated.Status, caller, notes)
	s.notifyParties(ctx, updated, audit.ActionTransferApproved, notes)
	return updated, nil
}

// Reject concludes the transfer with a mandatory reason. Reachable from any
// state before completion.
func (s *Service) Reject(ctx context.Context, transferID id.TransferID, reason string) (*models.Transfer, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}

	t, err := s.load(ctx, transferID)
	if err != nil {
		return nil, err
	}
	caller, err := s.requireReviewerNotParty(ctx, t)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, transferID,
		func(t *models.Transfer) error {
			fromStatus = t.Status
			return t.CanReject()
		},
		func(t *models.Transfer) {
			t.ApplyRejection(caller.ActorID, reason, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.emitTransition(ctx, transferID, audit.ActionTransferRejected, fromStatus, updated.Status, caller, reason)
	s.notifyParties(ctx, updated, audit.ActionTransferRejected, reason)
	return updated, nil
}

// Cancel withdraws the transfer. Open to the initiator and to reviewers.
func (s *Service) Cancel(ctx context.Context, transferID id.TransferID, reason string) (*models.Transfer, error) {
	t, err := s.load(ctx, transferID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.Owner, t.InitiatedBy)
	if err != nil {
		if caller, err = authz.Require(ctx, authz.Reviewer, id.ActorID{}); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, transferID,
		func(t *models.Transfer) error {
			fromStatus = t.Status
			return t.CanCancel()
		},
		func(t *models.Transfer) {
			t.ApplyCancellation(caller.ActorID, reason, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.emitTransition(ctx, transferID, audit.ActionTransferCancelled, fromStatus, updated.Status, caller, reason)
	s.notifyParties(ctx, updated, audit.ActionTransferCancelled, reason)
	return updated, nil
}

// Complete finalizes an approved transfer: the transfer is marked completed
// and the property's owner is reassigned in one transaction. Either both
// writes commit or neither is observed.
func (s *Service) Complete(ctx context.Context, transferID id.TransferID) (*models.Transfer, error) {
	t, err := s.load(ctx, transferID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.AdminOnly, id.ActorID{})
	if err != nil {
		return nil, err
	}
	if caller.ActorID == t.PreviousOwner || caller.ActorID == t.NewOwner {
		return nil, dErrors.New(dErrors.CodeForbidden, "a party to the transfer may not complete it")
	}

	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	var updated *models.Transfer
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		updated, err = s.store.Execute(ctx, transferID,
			// The ownership rewrite runs inside the transfer's own critical
			// section, before the status mutation: if the owner cannot be
			// reassigned the transfer is not marked completed either.
			func(t *models.Transfer) error {
				fromStatus = t.Status
				if err := t.CanComplete(); err != nil {
					return err
				}
				return s.registry.ReassignOwner(ctx, t.PropertyID, t.PreviousOwner, t.NewOwner)
			},
			func(t *models.Transfer) {
				t.ApplyCompletion(caller.ActorID, now)
			},
		)
		if err != nil {
			return s.mapStoreErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitTransition(ctx, transferID, audit.ActionTransferCompleted, fromStatus, updated.Status, caller, "")
	s.notifyParties(ctx, updated, audit.ActionTransferCompleted, "")
	if s.metrics != nil {
		s.metrics.TransfersCompleted.Inc()
	}

	s.logger.InfoContext(ctx, "transfer completed",
		"transfer_id", transferID.String(),
		"property_id", updated.PropertyID.String(),
		"new_owner", updated.NewOwner.String(),
	)
	return updated, nil
}

// Get returns one transfer to a party or a reviewer.
func (s *Service) Get(ctx context.Context, transferID id.TransferID) (*models.Transfer, error) {
	t, err := s.load(ctx, transferID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.Authenticated, id.ActorID{})
	if err != nil {
		return nil, err
	}
	if caller.Role.IsOfficerOrAdmin() ||
		caller.ActorID == t.PreviousOwner || caller.ActorID == t.NewOwner || caller.ActorID == t.InitiatedBy {
		return t, nil
	}
	return nil, dErrors.New(dErrors.CodeForbidden, "not a party to this transfer")
}

// ListByProperty returns the property's transfers to its owner or a reviewer.
func (s *Service) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Transfer, error) {
	owner, err := s.registry.Owner(ctx, propertyID)
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

// Parties implements the payment service's TransferDirectory.
func (s *Service) Parties(ctx context.Context, transferID id.TransferID) (id.ActorID, id.ActorID, error) {
	t, err := s.load(ctx, transferID)
	if err != nil {
		return id.ActorID{}, id.ActorID{}, err
	}
	return t.PreviousOwner, t.NewOwner, nil
}

// requireReviewerNotParty admits officers and admins who are not themselves a
// party to the transfer. Decision authority stays disjoint from the parties,
// the same way application approval excludes the applicant.
func (s *Service) requireReviewerNotParty(ctx context.Context, t *models.Transfer) (authz.Caller, error) {
	caller, err := authz.Require(ctx, authz.Reviewer, id.ActorID{})
	if err != nil {
		return authz.Caller{}, err
	}
	if caller.ActorID == t.PreviousOwner || caller.ActorID == t.NewOwner {
		return authz.Caller{}, dErrors.New(dErrors.CodeForbidden, "a party to the transfer may not decide it")
	}
	return caller, nil
}

func (s *Service) emitTransition(
	ctx context.Context,
	transferID id.TransferID,
	action audit.Action,
	from, to models.Status,
	caller authz.Caller,
	notes string,
) {
	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		EntityType: audit.EntityTransfer,
		EntityID:   transferID.String(),
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(to),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      notes,
		RequestID:  requestcontext.RequestID(ctx),
	})
}

func (s *Service) notifyParties(ctx context.Context, t *models.Transfer, action audit.Action, detail string) {
	now := requestcontext.Now(ctx)
	for _, recipient := range []id.ActorID{t.PreviousOwner, t.NewOwner} {
		s.notifier.Publish(ctx, notify.Message{
			Recipient: recipient,
			Entity:    string(audit.EntityTransfer),
			EntityID:  t.ID.String(),
			Event:     string(action),
			Detail:    detail,
			At:        now,
		})
	}
}

func (s *Service) load(ctx context.Context, transferID id.TransferID) (*models.Transfer, error) {
	t, err := s.store.FindByID(ctx, transferID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return t, nil
}

func (s *Service) mapStoreErr(err error) error {
	var coded *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "transfer not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "transfer conflict")
	case errors.As(err, &coded):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "transfer store failure")
	}
}
