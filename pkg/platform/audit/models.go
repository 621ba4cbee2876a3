package audit

import (
	"time"

	id "landregistry/pkg/domain"
)

// EntityType names the workflow an audit entry belongs to.
type EntityType string

const (
	EntityProperty EntityType = "property_application"
	EntityDocument EntityType = "document"
	EntityPayment  EntityType = "payment"
	EntityTransfer EntityType = "transfer"
	EntityDispute  EntityType = "dispute"
	EntityActor    EntityType = "actor"
)

// EventCategory classifies audit events by their primary purpose. It drives
// retention policy and Kafka topic routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: approvals,
	// rejections, ownership reassignment, dispute resolutions. These require
	// tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// provisioning, guard-relevant administrative actions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine workflow activity useful for
	// operational visibility: uploads, submissions, status nudges.
	CategoryOperations EventCategory = "operations"
)

// Event is one append-only audit entry, emitted once per state transition.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time
	EntityType EntityType
	EntityID   string
	Action     Action
	FromStatus string
	ToStatus   string
	// ActorID is who performed the transition; ActorRole is the role the
	// actor directory resolved for them at the time of the call.
	ActorID   id.ActorID
	ActorRole id.Role
	Notes     string
	RequestID string
}

// Action names a workflow transition.
type Action string

const (
	// Property application events
	ActionApplicationSubmitted Action = "application_submitted"
	ActionApplicationApproved  Action = "application_approved"
	ActionApplicationRejected  Action = "application_rejected"
	ActionFlagsRecomputed      Action = "aggregate_flags_recomputed"

	// Document events
	ActionDocumentUploaded      Action = "document_uploaded"
	ActionDocumentVerified      Action = "document_verified"
	ActionDocumentRejected      Action = "document_rejected"
	ActionDocumentUpdateRequest Action = "document_update_requested"

	// Payment events
	ActionPaymentInitiated Action = "payment_initiated"
	ActionPaymentCompleted Action = "payment_completed"
	ActionPaymentFailed    Action = "payment_failed"
	ActionPaymentVerified  Action = "payment_verified"
	ActionPaymentRejected  Action = "payment_rejected"

	// Transfer events
	ActionTransferInitiated     Action = "transfer_initiated"
	ActionTransferDocsReviewed  Action = "transfer_documents_reviewed"
	ActionTransferComplianceRun Action = "transfer_compliance_checked"
	ActionTransferApproved      Action = "transfer_approved"
	ActionTransferRejected      Action = "transfer_rejected"
	ActionTransferCancelled     Action = "transfer_cancelled"
	ActionTransferCompleted     Action = "transfer_completed"
	ActionTransferFeeVerified   Action = "transfer_fee_verified"

	// Dispute events
	ActionDisputeFiled     Action = "dispute_filed"
	ActionDisputeAssigned  Action = "dispute_assigned"
	ActionDisputeUpdated   Action = "dispute_status_updated"
	ActionDisputeResolved  Action = "dispute_resolved"
	ActionDisputeWithdrawn Action = "dispute_withdrawn"

	// Provisioning events
	ActionActorProvisioned Action = "actor_provisioned"
)

// eventCategories maps each action to its category. Compliance actions change
// legal facts about land; security actions change who holds authority;
// everything else is operations.
var eventCategories = map[Action]EventCategory{
	ActionApplicationApproved: CategoryCompliance,
	ActionApplicationRejected: CategoryCompliance,
	ActionPaymentVerified:     CategoryCompliance,
	ActionPaymentRejected:     CategoryCompliance,
	ActionTransferApproved:    CategoryCompliance,
	ActionTransferRejected:    CategoryCompliance,
	ActionTransferCompleted:   CategoryCompliance,
	ActionDisputeResolved:     CategoryCompliance,

	ActionActorProvisioned: CategorySecurity,
	ActionDisputeAssigned:  CategorySecurity,

	ActionApplicationSubmitted:  CategoryOperations,
	ActionFlagsRecomputed:       CategoryOperations,
	ActionDocumentUploaded:      CategoryOperations,
	ActionDocumentVerified:      CategoryOperations,
	ActionDocumentRejected:      CategoryOperations,
	ActionDocumentUpdateRequest: CategoryOperations,
	ActionPaymentInitiated:      CategoryOperations,
	ActionPaymentCompleted:      CategoryOperations,
	ActionPaymentFailed:         CategoryOperations,
	ActionTransferInitiated:     CategoryOperations,
	ActionTransferDocsReviewed:  CategoryOperations,
	ActionTransferComplianceRun: CategoryOperations,
	ActionTransferCancelled:     CategoryOperations,
	ActionTransferFeeVerified:   CategoryOperations,
	ActionDisputeFiled:          CategoryOperations,
	ActionDisputeUpdated:        CategoryOperations,
	ActionDisputeWithdrawn:      CategoryOperations,
}

// Category returns the EventCategory for this action. Unknown actions default
// to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := eventCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}
