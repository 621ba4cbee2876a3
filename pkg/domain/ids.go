// Package domain holds the typed identifiers and actor roles shared by every
// workflow. IDs are distinct types over uuid.UUID so a DocumentID can never be
// passed where a PropertyID is expected; Parse* constructors enforce validity
// at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "landregistry/pkg/domain-errors"
)

// ActorID identifies a citizen, land officer, or admin account.
type ActorID uuid.UUID

// PropertyID identifies a property registration application.
type PropertyID uuid.UUID

// DocumentID identifies an uploaded document under review.
type DocumentID uuid.UUID

// PaymentID identifies a payment under verification.
type PaymentID uuid.UUID

// TransferID identifies an ownership transfer.
type TransferID uuid.UUID

// DisputeID identifies a dispute raised against a property.
type DisputeID uuid.UUID

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id cannot be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is not a valid UUID", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id cannot be the nil UUID", kind)
	}
	return u, nil
}

// ParseActorID validates and returns an ActorID.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor")
	return ActorID(u), err
}

// ParsePropertyID validates and returns a PropertyID.
func ParsePropertyID(s string) (PropertyID, error) {
	u, err := parseUUID(s, "property")
	return PropertyID(u), err
}

// ParseDocumentID validates and returns a DocumentID.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document")
	return DocumentID(u), err
}

// ParsePaymentID validates and returns a PaymentID.
func ParsePaymentID(s string) (PaymentID, error) {
	u, err := parseUUID(s, "payment")
	return PaymentID(u), err
}

// ParseTransferID validates and returns a TransferID.
func ParseTransferID(s string) (TransferID, error) {
	u, err := parseUUID(s, "transfer")
	return TransferID(u), err
}

// ParseDisputeID validates and returns a DisputeID.
func ParseDisputeID(s string) (DisputeID, error) {
	u, err := parseUUID(s, "dispute")
	return DisputeID(u), err
}

func (id ActorID) String() string    { return uuid.UUID(id).String() }
func (id PropertyID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id PaymentID) String() string  { return uuid.UUID(id).String() }
func (id TransferID) String() string { return uuid.UUID(id).String() }
func (id DisputeID) String() string  { return uuid.UUID(id).String() }

func (id ActorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id PropertyID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PaymentID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id TransferID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DisputeID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// NewActorID returns a fresh random ActorID.
func NewActorID() ActorID { return ActorID(uuid.New()) }

// NewPropertyID returns a fresh random PropertyID.
func NewPropertyID() PropertyID { return PropertyID(uuid.New()) }

// NewDocumentID returns a fresh random DocumentID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewPaymentID returns a fresh random PaymentID.
func NewPaymentID() PaymentID { return PaymentID(uuid.New()) }

// NewTransferID returns a fresh random TransferID.
func NewTransferID() TransferID { return TransferID(uuid.New()) }

// NewDisputeID returns a fresh random DisputeID.
func NewDisputeID() DisputeID { return DisputeID(uuid.New()) }

// MarshalText implementations keep typed IDs JSON-friendly as plain UUID strings.
func (id ActorID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id PropertyID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id DocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id PaymentID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id TransferID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id DisputeID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

func (id *ActorID) UnmarshalText(b []byte) error {
	parsed, err := ParseActorID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *PropertyID) UnmarshalText(b []byte) error {
	parsed, err := ParsePropertyID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DocumentID) UnmarshalText(b []byte) error {
	parsed, err := ParseDocumentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *PaymentID) UnmarshalText(b []byte) error {
	parsed, err := ParsePaymentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *TransferID) UnmarshalText(b []byte) error {
	parsed, err := ParseTransferID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DisputeID) UnmarshalText(b []byte) error {
	parsed, err := ParseDisputeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
