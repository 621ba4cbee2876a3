// Package models defines the dispute resolution state machine. A dispute is
// raised by a citizen against a registered property and moves through officer
// review to a resolution, a dismissal, or a withdrawal by the disputant.
package models

import (
	"strings"
	"time"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// DisputeType names the grievance category.
type DisputeType string

const (
	TypeOwnership     DisputeType = "ownership_dispute"
	TypeBoundary      DisputeType = "boundary_dispute"
	TypeDocumentation DisputeType = "documentation_error"
	TypeFraud         DisputeType = "fraudulent_registration"
	TypeInheritance   DisputeType = "inheritance_dispute"
	TypeOther         DisputeType = "other"
)

var validDisputeTypes = map[DisputeType]bool{
	TypeOwnership:     true,
	TypeBoundary:      true,
	TypeDocumentation: true,
	TypeFraud:         true,
	TypeInheritance:   true,
	TypeOther:         true,
}

// ParseDisputeType validates a client-supplied type string.
func ParseDisputeType(s string) (DisputeType, error) {
	t := DisputeType(strings.ToLower(strings.TrimSpace(s)))
	if !validDisputeTypes[t] {
		return "", dErrors.New(dErrors.CodeValidation, "unknown dispute type")
	}
	return t, nil
}

// Status is the dispute lifecycle state.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusUnderReview   Status = "under_review"
	StatusInvestigation Status = "investigation"
	StatusMediation     Status = "mediation"
	StatusResolved      Status = "resolved"
	StatusDismissed     Status = "dismissed"
	StatusWithdrawn     Status = "withdrawn"
)

func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusDismissed || s == StatusWithdrawn
}

// officer-settable targets per current state; resolved and withdrawn have
// their own operations.
var statusTransitions = map[Status][]Status{
	StatusSubmitted:     {StatusUnderReview, StatusDismissed},
	StatusUnderReview:   {StatusInvestigation, StatusMediation, StatusDismissed},
	StatusInvestigation: {StatusMediation, StatusDismissed},
	StatusMediation:     {StatusInvestigation, StatusDismissed},
}

// ParseStatus validates a client-supplied status string for UpdateStatus.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusUnderReview, StatusInvestigation, StatusMediation, StatusDismissed:
		return st, nil
	case StatusResolved, StatusWithdrawn:
		return "", dErrors.Newf(dErrors.CodeValidation, "%s is set by its own operation", st)
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown dispute status")
	}
}

// Priority is derived at read time from the dispute type and age.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ComputePriority is a pure function of (disputeType, createdAt, now).
// Fraud and ownership claims are always high; otherwise age escalates.
func ComputePriority(disputeType DisputeType, createdAt, now time.Time) Priority {
	if disputeType == TypeFraud || disputeType == TypeOwnership {
		return PriorityHigh
	}
	age := now.Sub(createdAt)
	switch {
	case age > 30*24*time.Hour:
		return PriorityHigh
	case age > 14*24*time.Hour:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// TimelineEntry records one action taken on the dispute.
type TimelineEntry struct {
	Action          string    `json:"action"`
	Notes           string    `json:"notes,omitempty"`
	PerformedByRole id.Role   `json:"performed_by_role"`
	Timestamp       time.Time `json:"timestamp"`
}

// Resolution is the officer's final verdict.
type Resolution struct {
	Decision        string     `json:"decision"`
	ResolutionNotes string     `json:"resolution_notes"`
	ActionRequired  string     `json:"action_required,omitempty"`
	ResolvedBy      id.ActorID `json:"resolved_by"`
	ResolutionDate  time.Time  `json:"resolution_date"`
}

// Dispute is a grievance raised against a property. Priority is recomputed on
// every read and never written by the stores.
type Dispute struct {
	ID          id.DisputeID  `json:"id"`
	PropertyID  id.PropertyID `json:"property_id"`
	Disputant   id.ActorID    `json:"disputant"`
	Type        DisputeType   `json:"dispute_type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`

	Status     Status          `json:"status"`
	AssignedTo id.ActorID      `json:"assigned_to,omitempty"`
	Timeline   []TimelineEntry `json:"timeline"`
	Resolution *Resolution     `json:"resolution,omitempty"`

	Priority Priority `json:"priority,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDispute validates and constructs a dispute in submitted.
func NewDispute(
	disputeID id.DisputeID,
	propertyID id.PropertyID,
	disputant id.ActorID,
	disputeType DisputeType,
	title, description string,
	now time.Time,
) (*Dispute, error) {
	if !validDisputeTypes[disputeType] {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown dispute type")
	}
	if strings.TrimSpace(title) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if strings.TrimSpace(description) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "description is required")
	}

	d := &Dispute{
		ID:          disputeID,
		PropertyID:  propertyID,
		Disputant:   disputant,
		Type:        disputeType,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Status:      StatusSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	d.appendTimeline("filed", "", id.RoleCitizen, now)
	return d, nil
}

func (d *Dispute) appendTimeline(action, notes string, role id.Role, now time.Time) {
	d.Timeline = append(d.Timeline, TimelineEntry{
		Action:          action,
		Notes:           notes,
		PerformedByRole: role,
		Timestamp:       now,
	})
}

// CanUpdateStatus checks the officer transition to the target status.
func (d *Dispute) CanUpdateStatus(to Status) error {
	if d.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "dispute already concluded")
	}
	for _, allowed := range statusTransitions[d.Status] {
		if allowed == to {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeInvalidState, "cannot move dispute from %s to %s", d.Status, to)
}

// ApplyStatusUpdate moves the dispute and appends a timeline entry.
func (d *Dispute) ApplyStatusUpdate(to Status, notes string, role id.Role, now time.Time) {
	d.Status = to
	d.appendTimeline("status_"+string(to), notes, role, now)
	d.UpdatedAt = now
}

// CanAssign checks assignment eligibility.
func (d *Dispute) CanAssign() error {
	if d.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "dispute already concluded")
	}
	return nil
}

// ApplyAssignment sets the handling officer.
func (d *Dispute) ApplyAssignment(officer id.ActorID, notes string, role id.Role, now time.Time) {
	d.AssignedTo = officer
	d.appendTimeline("assigned", notes, role, now)
	d.UpdatedAt = now
}

// CanResolve checks that the dispute has entered review and is not concluded.
func (d *Dispute) CanResolve() error {
	if d.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "dispute already concluded")
	}
	if d.Status == StatusSubmitted {
		return dErrors.New(dErrors.CodePreconditionFailed, "dispute has not been reviewed yet")
	}
	return nil
}

// ApplyResolution records the verdict and moves to resolved.
func (d *Dispute) ApplyResolution(res Resolution, role id.Role, now time.Time) {
	res.ResolutionDate = now
	d.Resolution = &res
	d.Status = StatusResolved
	d.appendTimeline("resolved", res.ResolutionNotes, role, now)
	d.UpdatedAt = now
}

// CanWithdraw checks that the disputant can still pull the dispute back.
func (d *Dispute) CanWithdraw() error {
	if d.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "dispute already concluded")
	}
	return nil
}

// ApplyWithdrawal concludes the dispute at the disputant's request.
func (d *Dispute) ApplyWithdrawal(notes string, now time.Time) {
	d.Status = StatusWithdrawn
	d.appendTimeline("withdrawn", notes, id.RoleCitizen, now)
	d.UpdatedAt = now
}
