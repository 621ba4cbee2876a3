// Package service implements the payment verification sub-workflow. The rail
// outcome (completed/failed) and the officer verdict are separate facts; only
// a completed, officer-verified payment counts toward the aggregate.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"landregistry/internal/authz"
	"landregistry/internal/notify"
	"landregistry/internal/payment/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/platform/tx"
	"landregistry/pkg/requestcontext"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	Execute(
		ctx context.Context,
		paymentID id.PaymentID,
		validate func(*models.Payment) error,
		mutate func(*models.Payment),
	) (*models.Payment, error)
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Payment, error)
	ListByTransfer(ctx context.Context, transferID id.TransferID) ([]*models.Payment, error)
}

// Aggregate is the slice of the property service this sub-workflow depends on.
type Aggregate interface {
	Owner(ctx context.Context, propertyID id.PropertyID) (id.ActorID, error)
	Decided(ctx context.Context, propertyID id.PropertyID) (bool, error)
	Recompute(ctx context.Context, propertyID id.PropertyID) error
}

// TransferDirectory resolves the parties of a transfer so transfer-scoped
// payments can enforce payer identity.
type TransferDirectory interface {
	Parties(ctx context.Context, transferID id.TransferID) (previousOwner, newOwner id.ActorID, err error)
}

// Service coordinates payment initiation, rail outcomes, and verification.
type Service struct {
	store     Store
	aggregate Aggregate
	transfers TransferDirectory
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

// New creates the payment service. transfers may be bound later via
// BindTransfers when construction order requires it.
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

// BindTransfers attaches the transfer party resolver.
func (s *Service) BindTransfers(transfers TransferDirectory) {
	s.transfers = transfers
}

// InitiateInput carries a new payment. Exactly one of PropertyID/TransferID
// must be set. Amount travels as a string so it reaches decimal parsing
// without an intermediate float.
type InitiateInput struct {
	PropertyID    string          `json:"property_id,omitempty"`
	TransferID    string          `json:"transfer_id,omitempty"`
	Amount        string          `json:"amount"`
	PaymentType   string          `json:"payment_type"`
	PaymentMethod string          `json:"payment_method"`
	MethodDetails json.RawMessage `json:"payment_method_details,omitempty"`
}

// Initiate creates a pending payment for the calling payer.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*models.Payment, error) {
	caller, err := authz.Require(ctx, authz.Authenticated, id.ActorID{})
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be a decimal number")
	}
	paymentType, err := models.ParsePaymentType(in.PaymentType)
	if err != nil {
		return nil, err
	}
	method, err := models.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return nil, err
	}

	var propertyID id.PropertyID
	var transferID id.TransferID
	switch {
	case in.PropertyID != "" && in.TransferID != "":
		return nil, dErrors.New(dErrors.CodeValidation, "payment must reference exactly one of property or transfer")
	case in.PropertyID != "":
		if propertyID, err = id.ParsePropertyID(in.PropertyID); err != nil {
			return nil, err
		}
		if err := s.guardPropertyPayer(ctx, propertyID); err != nil {
			return nil, err
		}
	case in.TransferID != "":
		if transferID, err = id.ParseTransferID(in.TransferID); err != nil {
			return nil, err
		}
		if err := s.guardTransferPayer(ctx, transferID, caller.ActorID); err != nil {
			return nil, err
		}
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "payment must reference exactly one of property or transfer")
	}

	now := requestcontext.Now(ctx)
	p, err := models.NewPayment(id.NewPaymentID(), propertyID, transferID, caller.ActorID,
		amount, paymentType, method, in.MethodDetails, now)
	if err != nil {
		return nil, err
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create payment")
		}
		if !propertyID.IsNil() {
			return s.aggregate.Recompute(ctx, propertyID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityPayment,
		EntityID:   p.ID.String(),
		Action:     audit.ActionPaymentInitiated,
		ToStatus:   string(p.Status),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      string(p.Type),
		RequestID:  requestcontext.RequestID(ctx),
	})

	s.logger.InfoContext(ctx, "payment initiated",
		"payment_id", p.ID.String(), "type", p.Type, "amount", p.Amount.String())
	return p, nil
}

func (s *Service) guardPropertyPayer(ctx context.Context, propertyID id.PropertyID) error {
	owner, err := s.aggregate.Owner(ctx, propertyID)
	if err != nil {
		return err
	}
	if _, err := authz.Require(ctx, authz.Owner, owner); err != nil {
		return err
	}
	decided, err := s.aggregate.Decided(ctx, propertyID)
	if err != nil {
		return err
	}
	if decided {
		return dErrors.New(dErrors.CodeConflict, "application already decided")
	}
	return nil
}

func (s *Service) guardTransferPayer(ctx context.Context, transferID id.TransferID, caller id.ActorID) error {
	if s.transfers == nil {
		return dErrors.New(dErrors.CodeInternal, "transfer directory not bound")
	}
	previousOwner, newOwner, err := s.transfers.Parties(ctx, transferID)
	if err != nil {
		return err
	}
	if caller != previousOwner && caller != newOwner {
		return dErrors.New(dErrors.CodeForbidden, "only a party named on the transfer may pay its fee")
	}
	return nil
}

// MarkStatusInput reflects an external rail outcome.
type MarkStatusInput struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// MarkStatus records the rail outcome: completed or failed, from pending only.
func (s *Service) MarkStatus(ctx context.Context, paymentID id.PaymentID, in MarkStatusInput) (*models.Payment, error) {
	caller, err := authz.Require(ctx, authz.Authenticated, id.ActorID{})
	if err != nil {
		return nil, err
	}

	to := models.Status(in.Status)
	now := requestcontext.Now(ctx)
	var fromStatus models.Status
	updated, err := s.store.Execute(ctx, paymentID,
		func(p *models.Payment) error {
			fromStatus = p.Status
			return p.CanMarkStatus(to)
		},
		func(p *models.Payment) {
			p.ApplyStatus(to, in.TransactionID, now)
		},
	)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	action := audit.ActionPaymentCompleted
	if to == models.StatusFailed {
		action = audit.ActionPaymentFailed
	}
	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityPayment,
		EntityID:   paymentID.String(),
		Action:     action,
		FromStatus: string(fromStatus),
		ToStatus:   string(updated.Status),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      in.TransactionID,
		RequestID:  requestcontext.RequestID(ctx),
	})
	return updated, nil
}

// VerifyInput carries the officer verdict.
type VerifyInput struct {
	Notes string `json:"notes"`
}

// Verify records an officer-verified verdict. The transmitted amount must
// match the scheduled fee exactly; a property-scoped verification recomputes
// the aggregate inside the same transaction.
func (s *Service) Verify(ctx context.Context, paymentID id.PaymentID, in VerifyInput) (*models.Payment, error) {
	return s.verdict(ctx, paymentID, models.VerificationVerified, audit.ActionPaymentVerified, in)
}

// RejectVerification records an officer-rejected verdict.
func (s *Service) RejectVerification(ctx context.Context, paymentID id.PaymentID, in VerifyInput) (*models.Payment, error) {
	return s.verdict(ctx, paymentID, models.VerificationRejected, audit.ActionPaymentRejected, in)
}

func (s *Service) verdict(
	ctx context.Context,
	paymentID id.PaymentID,
	outcome models.VerificationStatus,
	action audit.Action,
	in VerifyInput,
) (*models.Payment, error) {
	p, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	caller, err := authz.Require(ctx, authz.ReviewerNotOwner, p.Payer)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var updated *models.Payment
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		updated, err = s.store.Execute(ctx, paymentID,
			func(p *models.Payment) error {
				if err := p.CanSetVerification(); err != nil {
					return err
				}
				if outcome == models.VerificationVerified {
					return p.MatchesFee()
				}
				return nil
			},
			func(p *models.Payment) {
				p.ApplyVerification(outcome, caller.ActorID, in.Notes, now)
			},
		)
		if err != nil {
			return s.mapStoreErr(err)
		}
		if !updated.PropertyID.IsNil() {
			return s.aggregate.Recompute(ctx, updated.PropertyID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityPayment,
		EntityID:   paymentID.String(),
		Action:     action,
		FromStatus: string(models.VerificationUnset),
		ToStatus:   string(outcome),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		Notes:      in.Notes,
		RequestID:  requestcontext.RequestID(ctx),
	})
	// A verified transfer fee unlocks the transfer's approval; note it on the
	// transfer's own trail so the unlock is visible there.
	if outcome == models.VerificationVerified && !updated.TransferID.IsNil() {
		s.auditor.Emit(ctx, audit.Event{
			Timestamp:  now,
			EntityType: audit.EntityTransfer,
			EntityID:   updated.TransferID.String(),
			Action:     audit.ActionTransferFeeVerified,
			ActorID:    caller.ActorID,
			ActorRole:  caller.Role,
			Notes:      updated.ID.String(),
			RequestID:  requestcontext.RequestID(ctx),
		})
	}
	s.notifier.Publish(ctx, notify.Message{
		Recipient: updated.Payer,
		Entity:    string(audit.EntityPayment),
		EntityID:  paymentID.String(),
		Event:     string(action),
		Detail:    in.Notes,
		At:        now,
	})

	s.logger.InfoContext(ctx, "payment verdict recorded",
		"payment_id", paymentID.String(), "outcome", outcome)
	return updated, nil
}

// ListByProperty returns a property's payments to its owner or a reviewer.
func (s *Service) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Payment, error) {
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

// CompletionState implements the property service's PaymentState: the flag
// holds iff a completed, officer-verified registration-fee payment exists.
func (s *Service) CompletionState(ctx context.Context, propertyID id.PropertyID) (completed, hasAny bool, err error) {
	payments, err := s.store.ListByProperty(ctx, propertyID)
	if err != nil {
		return false, false, err
	}
	hasAny = len(payments) > 0
	for _, p := range payments {
		if p.Type == models.TypeRegistrationFee && p.Verified() {
			return true, hasAny, nil
		}
	}
	return false, hasAny, nil
}

// TransferFeeVerified reports whether a verified transfer-fee payment exists
// for the transfer. The transfer engine consumes it as an approval
// precondition.
func (s *Service) TransferFeeVerified(ctx context.Context, transferID id.TransferID) (bool, error) {
	payments, err := s.store.ListByTransfer(ctx, transferID)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.Type == models.TypeTransferFee && p.Verified() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) load(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	p, err := s.store.FindByID(ctx, paymentID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return p, nil
}

func (s *Service) mapStoreErr(err error) error {
	var coded *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "payment not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "payment conflict")
	case errors.As(err, &coded):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "payment store failure")
	}
}
