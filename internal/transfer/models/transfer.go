// Package models defines the ownership transfer state machine: a linear
// progression with rejected/cancelled as alternate terminals, ending in a
// completion that reassigns the property's owner.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// Status is the transfer's position in the progression
// initiated → documents_pending → documents_submitted → under_review →
// compliance_check → approved → completed.
type Status string

const (
	StatusInitiated          Status = "initiated"
	StatusDocumentsPending   Status = "documents_pending"
	StatusDocumentsSubmitted Status = "documents_submitted"
	StatusUnderReview        Status = "under_review"
	StatusComplianceCheck    Status = "compliance_check"
	StatusApproved           Status = "approved"
	StatusRejected           Status = "rejected"
	StatusCompleted          Status = "completed"
	StatusCancelled          Status = "cancelled"
)

// IsTerminal reports whether no further transition may mutate the status.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusCancelled
}

// TransferType names the legal ground for the ownership change.
type TransferType string

const (
	TypeSale                  TransferType = "sale"
	TypeInheritance           TransferType = "inheritance"
	TypeGift                  TransferType = "gift"
	TypeCourtOrder            TransferType = "court_order"
	TypeGovernmentAcquisition TransferType = "government_acquisition"
	TypeExchange              TransferType = "exchange"
	TypeOther                 TransferType = "other"
)

var validTransferTypes = map[TransferType]bool{
	TypeSale:                  true,
	TypeInheritance:           true,
	TypeGift:                  true,
	TypeCourtOrder:            true,
	TypeGovernmentAcquisition: true,
	TypeExchange:              true,
	TypeOther:                 true,
}

// ParseTransferType constructs a TransferType from external input.
func ParseTransferType(s string) (TransferType, error) {
	t := TransferType(s)
	if !validTransferTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown transfer type")
	}
	return t, nil
}

// DocumentDecision is one officer verdict on a transfer document.
type DocumentDecision struct {
	DocumentType string `json:"document_type"`
	Approved     bool   `json:"approved"`
	Notes        string `json:"notes,omitempty"`
}

// ComplianceCheck is one item of the compliance checklist.
type ComplianceCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Notes  string `json:"notes,omitempty"`
}

// Transfer is one ownership reassignment request for a registered property.
type Transfer struct {
	ID         id.TransferID `json:"id"`
	PropertyID id.PropertyID `json:"property_id"`
	Type       TransferType  `json:"transfer_type"`

	PreviousOwner id.ActorID `json:"previous_owner"`
	NewOwner      id.ActorID `json:"new_owner"`

	Value    decimal.Decimal `json:"transfer_value"`
	Currency string          `json:"currency"`

	Status Status `json:"status"`

	DocumentDecisions []DocumentDecision `json:"document_decisions,omitempty"`
	ComplianceChecks  []ComplianceCheck  `json:"compliance_checks,omitempty"`

	InitiatedBy    id.ActorID `json:"initiated_by"`
	InitiationDate time.Time  `json:"initiation_date"`

	DecidedBy     id.ActorID `json:"decided_by,omitempty"`
	DecisionNotes string     `json:"decision_notes,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`

	CompletedBy id.ActorID `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTransfer validates and constructs a transfer in initiated.
func NewTransfer(
	transferID id.TransferID,
	propertyID id.PropertyID,
	transferType TransferType,
	previousOwner, newOwner, initiatedBy id.ActorID,
	value decimal.Decimal,
	now time.Time,
) (*Transfer, error) {
	if !validTransferTypes[transferType] {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown transfer type")
	}
	if newOwner.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "new owner is required")
	}
	if newOwner == previousOwner {
		return nil, dErrors.New(dErrors.CodeValidation, "new owner must differ from the current owner")
	}
	if value.IsNegative() {
		return nil, dErrors.New(dErrors.CodeValidation, "transfer value may not be negative")
	}
	return &Transfer{
		ID:             transferID,
		PropertyID:     propertyID,
		Type:           transferType,
		PreviousOwner:  previousOwner,
		NewOwner:       newOwner,
		Value:          value,
		Currency:       "ETB",
		Status:         StatusInitiated,
		InitiatedBy:    initiatedBy,
		InitiationDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CanReviewDocuments checks that the transfer still sits before the review
// stage.
func (t *Transfer) CanReviewDocuments() error {
	switch t.Status {
	case StatusInitiated, StatusDocumentsPending, StatusDocumentsSubmitted:
		return nil
	default:
		return t.stageError("document review")
	}
}

// ApplyDocumentReview records the per-document verdicts and advances according
// to completeness: a full approved set moves to under_review, a partial one to
// documents_submitted, an empty one to documents_pending.
func (t *Transfer) ApplyDocumentReview(decisions []DocumentDecision, now time.Time) {
	t.DocumentDecisions = decisions
	switch {
	case len(decisions) == 0:
		t.Status = StatusDocumentsPending
	case allApproved(decisions):
		t.Status = StatusUnderReview
	default:
		t.Status = StatusDocumentsSubmitted
	}
	t.UpdatedAt = now
}

func allApproved(decisions []DocumentDecision) bool {
	for _, d := range decisions {
		if !d.Approved {
			return false
		}
	}
	return true
}

// CanRunCompliance checks that document review has concluded.
func (t *Transfer) CanRunCompliance() error {
	if t.Status != StatusUnderReview {
		return t.stageError("compliance checks")
	}
	return nil
}

// ApplyCompliance records the checklist. All checks must pass to advance to
// compliance_check; otherwise the transfer stays under review with the failed
// results on record.
func (t *Transfer) ApplyCompliance(checks []ComplianceCheck, now time.Time) {
	t.ComplianceChecks = checks
	if len(checks) > 0 && allPassed(checks) {
		t.Status = StatusComplianceCheck
	}
	t.UpdatedAt = now
}

func allPassed(checks []ComplianceCheck) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// CompliancePassed reports whether the recorded checklist unlocked approval.
func (t *Transfer) CompliancePassed() bool {
	return t.Status == StatusComplianceCheck
}

// CanApprove checks the approval preconditions: compliance passed and no
// terminal outcome yet.
func (t *Transfer) CanApprove() error {
	if t.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "transfer already concluded")
	}
	if t.Status != StatusComplianceCheck {
		return dErrors.New(dErrors.CodePreconditionFailed, "compliance checks not yet passed")
	}
	return nil
}

// ApplyApproval transitions to approved. Call CanApprove first.
func (t *Transfer) ApplyApproval(officer id.ActorID, notes string, now time.Time) {
	t.Status = StatusApproved
	t.DecidedBy = officer
	t.DecisionNotes = notes
	t.DecidedAt = &now
	t.UpdatedAt = now
}

// CanReject checks that the transfer is still open. Rejection is reachable
// from any state before completion.
func (t *Transfer) CanReject() error {
	if t.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "transfer already concluded")
	}
	return nil
}

// ApplyRejection transitions to rejected. Call CanReject first.
func (t *Transfer) ApplyRejection(officer id.ActorID, reason string, now time.Time) {
	t.Status = StatusRejected
	t.DecidedBy = officer
	t.DecisionNotes = reason
	t.DecidedAt = &now
	t.UpdatedAt = now
}

// CanCancel mirrors CanReject: any state before completion.
func (t *Transfer) CanCancel() error {
	if t.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "transfer already concluded")
	}
	return nil
}

// ApplyCancellation transitions to cancelled. Call CanCancel first.
func (t *Transfer) ApplyCancellation(actor id.ActorID, reason string, now time.Time) {
	t.Status = StatusCancelled
	t.DecidedBy = actor
	t.DecisionNotes = reason
	t.DecidedAt = &now
	t.UpdatedAt = now
}

// CanComplete checks the completion precondition: approved, and nothing else.
func (t *Transfer) CanComplete() error {
	if t.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "transfer already concluded")
	}
	if t.Status != StatusApproved {
		return dErrors.Newf(dErrors.CodeInvalidState, "transfer is %s, not approved", t.Status)
	}
	return nil
}

// ApplyCompletion transitions to completed. The caller reassigns the property
// owner in the same transaction.
func (t *Transfer) ApplyCompletion(admin id.ActorID, now time.Time) {
	t.Status = StatusCompleted
	t.CompletedBy = admin
	t.CompletedAt = &now
	t.UpdatedAt = now
}

func (t *Transfer) stageError(stage string) error {
	if t.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "transfer already concluded")
	}
	return dErrors.Newf(dErrors.CodeInvalidState, "%s not permitted while transfer is %s", stage, t.Status)
}
