package models

import (
	"strings"
	"time"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// Status is the composite status of a property application. It is derived
// from the two sub-workflow flags plus explicit officer action, never set
// directly by a client.
type Status string

const (
	StatusPending            Status = "pending"
	StatusUnderReview        Status = "under_review"
	StatusDocumentsValidated Status = "documents_validated"
	StatusPaymentCompleted   Status = "payment_completed"
	StatusApproved           Status = "approved"
	StatusRejected           Status = "rejected"
)

// IsTerminal reports whether no further transition may mutate the status.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// PropertyType classifies the plot being registered. The required document
// set depends on it.
type PropertyType string

const (
	TypeResidential  PropertyType = "residential"
	TypeCommercial   PropertyType = "commercial"
	TypeIndustrial   PropertyType = "industrial"
	TypeAgricultural PropertyType = "agricultural"
)

var validPropertyTypes = map[PropertyType]bool{
	TypeResidential:  true,
	TypeCommercial:   true,
	TypeIndustrial:   true,
	TypeAgricultural: true,
}

// ParsePropertyType constructs a PropertyType from external input.
func ParsePropertyType(s string) (PropertyType, error) {
	t := PropertyType(s)
	if !validPropertyTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown property type")
	}
	return t, nil
}

func (t PropertyType) IsValid() bool { return validPropertyTypes[t] }

// Location places the plot administratively. Coordinates are optional.
type Location struct {
	Kebele    string   `json:"kebele"`
	SubCity   string   `json:"sub_city"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// PropertyApplication is the aggregate root of the registration workflow.
//
// Invariants:
//   - PlotNumber is non-empty, globally unique (case-insensitive), and
//     immutable after creation
//   - Area is strictly positive
//   - Status reaches approved only when DocumentsValidated && PaymentCompleted
//   - approved and rejected are terminal
//
// The derived flags are written only by the aggregate recomputation; a flag
// arriving from any other writer is a defect.
type PropertyApplication struct {
	ID           id.PropertyID `json:"id"`
	PlotNumber   string        `json:"plot_number"`
	Location     Location      `json:"location"`
	Area         float64       `json:"area"`
	PropertyType PropertyType  `json:"property_type"`
	Owner        id.ActorID    `json:"owner"`

	DocumentsValidated bool   `json:"documents_validated"`
	PaymentCompleted   bool   `json:"payment_completed"`
	Status             Status `json:"status"`

	DecidedBy     id.ActorID `json:"decided_by,omitempty"`
	DecisionNotes string     `json:"decision_notes,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPropertyApplication validates and constructs an application in pending.
func NewPropertyApplication(
	propertyID id.PropertyID,
	owner id.ActorID,
	plotNumber string,
	location Location,
	area float64,
	propertyType PropertyType,
	now time.Time,
) (*PropertyApplication, error) {
	plotNumber = strings.TrimSpace(plotNumber)
	if plotNumber == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "plot number is required")
	}
	if area <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "area must be positive")
	}
	if !propertyType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown property type")
	}
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner is required")
	}
	return &PropertyApplication{
		ID:           propertyID,
		PlotNumber:   plotNumber,
		Location:     location,
		Area:         area,
		PropertyType: propertyType,
		Owner:        owner,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizedPlotNumber returns the uniqueness key for the plot number.
func NormalizedPlotNumber(plotNumber string) string {
	return strings.ToLower(strings.TrimSpace(plotNumber))
}

// CanApprove checks the approval gate. Terminal entities report an invariant
// violation; missing sub-flags report which precondition is unmet so
// officer-facing errors are specific.
func (p *PropertyApplication) CanApprove() error {
	if p.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "application already decided")
	}
	if !p.DocumentsValidated && !p.PaymentCompleted {
		return dErrors.New(dErrors.CodePreconditionFailed, "documents not yet validated and payment not yet verified")
	}
	if !p.DocumentsValidated {
		return dErrors.New(dErrors.CodePreconditionFailed, "documents not yet validated")
	}
	if !p.PaymentCompleted {
		return dErrors.New(dErrors.CodePreconditionFailed, "payment not yet verified")
	}
	return nil
}

// ApplyApproval transitions to approved. Call CanApprove first.
func (p *PropertyApplication) ApplyApproval(officer id.ActorID, notes string, now time.Time) {
	p.Status = StatusApproved
	p.DecidedBy = officer
	p.DecisionNotes = notes
	p.DecidedAt = &now
	p.UpdatedAt = now
}

// CanReject checks that the application is still undecided.
func (p *PropertyApplication) CanReject() error {
	if p.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "application already decided")
	}
	return nil
}

// ApplyRejection transitions to rejected. Call CanReject first; the service
// validates the reason before reaching here.
func (p *PropertyApplication) ApplyRejection(officer id.ActorID, reason string, now time.Time) {
	p.Status = StatusRejected
	p.DecidedBy = officer
	p.DecisionNotes = reason
	p.DecidedAt = &now
	p.UpdatedAt = now
}

// ApplyRecomputation writes the derived flags and the non-terminal composite
// status. hasActivity marks whether any document or payment exists yet; it
// moves a pending application to under_review.
//
// When both flags hold the composite shows payment_completed: payment
// verification is the closing milestone of the intake flow, and the status
// must stay a pure function of stored state.
func (p *PropertyApplication) ApplyRecomputation(documentsValidated, paymentCompleted, hasActivity bool, now time.Time) {
	if p.Status.IsTerminal() {
		return
	}
	p.DocumentsValidated = documentsValidated
	p.PaymentCompleted = paymentCompleted
	switch {
	case paymentCompleted:
		p.Status = StatusPaymentCompleted
	case documentsValidated:
		p.Status = StatusDocumentsValidated
	case hasActivity:
		p.Status = StatusUnderReview
	default:
		p.Status = StatusPending
	}
	p.UpdatedAt = now
}
