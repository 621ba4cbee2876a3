// Package models defines the payment verification sub-workflow. Amounts are
// exact decimals in ETB; verification compares the transmitted amount against
// the fee schedule with no rounding.
package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// Currency is the only currency the registry accepts.
const Currency = "ETB"

// PaymentType names the fee being paid.
type PaymentType string

const (
	TypeRegistrationFee PaymentType = "registration_fee"
	TypeTransferFee     PaymentType = "transfer_fee"
	TypeCertificateFee  PaymentType = "certificate_fee"
	TypeModificationFee PaymentType = "modification_fee"
)

// feeSchedule is the fixed fee per payment type, in ETB.
var feeSchedule = map[PaymentType]decimal.Decimal{
	TypeRegistrationFee: decimal.NewFromInt(7500),
	TypeTransferFee:     decimal.NewFromInt(5000),
	TypeCertificateFee:  decimal.NewFromInt(1500),
	TypeModificationFee: decimal.NewFromInt(1000),
}

// ParsePaymentType constructs a PaymentType from external input.
func ParsePaymentType(s string) (PaymentType, error) {
	t := PaymentType(s)
	if _, ok := feeSchedule[t]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown payment type")
	}
	return t, nil
}

// ExpectedFee returns the scheduled fee for a payment type.
func ExpectedFee(t PaymentType) decimal.Decimal {
	return feeSchedule[t]
}

// PaymentMethod names the rail the payer used.
type PaymentMethod string

const (
	MethodCBEBirr      PaymentMethod = "cbe_birr"
	MethodTelebirr     PaymentMethod = "telebirr"
	MethodAmole        PaymentMethod = "amole"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCash         PaymentMethod = "cash"
)

var validMethods = map[PaymentMethod]bool{
	MethodCBEBirr:      true,
	MethodTelebirr:     true,
	MethodAmole:        true,
	MethodBankTransfer: true,
	MethodCash:         true,
}

// ParsePaymentMethod constructs a PaymentMethod from external input.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(s)
	if !validMethods[m] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown payment method")
	}
	return m, nil
}

// Status reflects the outcome reported by the external payment rail.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// VerificationStatus is the officer's judgement, set only once the rail
// reports completed.
type VerificationStatus string

const (
	VerificationUnset    VerificationStatus = ""
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Payment is one fee payment, scoped to either a property application or a
// transfer (exactly one of the two references is set).
type Payment struct {
	ID         id.PaymentID  `json:"id"`
	PropertyID id.PropertyID `json:"property_id,omitempty"`
	TransferID id.TransferID `json:"transfer_id,omitempty"`
	Payer      id.ActorID    `json:"payer"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Type     PaymentType     `json:"payment_type"`
	Method   PaymentMethod   `json:"payment_method"`
	// MethodDetails is rail-specific and opaque to the workflow.
	MethodDetails json.RawMessage `json:"payment_method_details,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`

	Status             Status             `json:"status"`
	VerificationStatus VerificationStatus `json:"verification_status,omitempty"`
	VerificationNotes  string             `json:"verification_notes,omitempty"`
	VerifiedBy         id.ActorID         `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPayment validates and constructs a pending payment.
func NewPayment(
	paymentID id.PaymentID,
	propertyID id.PropertyID,
	transferID id.TransferID,
	payer id.ActorID,
	amount decimal.Decimal,
	paymentType PaymentType,
	method PaymentMethod,
	methodDetails json.RawMessage,
	now time.Time,
) (*Payment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if propertyID.IsNil() == transferID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "payment must reference exactly one of property or transfer")
	}
	if _, ok := feeSchedule[paymentType]; !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown payment type")
	}
	if !validMethods[method] {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown payment method")
	}
	if payer.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "payer is required")
	}
	return &Payment{
		ID:            paymentID,
		PropertyID:    propertyID,
		TransferID:    transferID,
		Payer:         payer,
		Amount:        amount,
		Currency:      Currency,
		Type:          paymentType,
		Method:        method,
		MethodDetails: methodDetails,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CanMarkStatus checks a rail outcome report. completed and failed are only
// reachable from pending.
func (p *Payment) CanMarkStatus(to Status) error {
	if to != StatusCompleted && to != StatusFailed {
		return dErrors.New(dErrors.CodeInvalidInput, "status must be completed or failed")
	}
	if p.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeConflict, "payment already %s", p.Status)
	}
	return nil
}

// ApplyStatus records the rail outcome. Call CanMarkStatus first.
func (p *Payment) ApplyStatus(to Status, transactionID string, now time.Time) {
	p.Status = to
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	p.UpdatedAt = now
}

// CanSetVerification checks the officer-verification preconditions: the rail
// must have reported completed and no verdict may stand yet.
func (p *Payment) CanSetVerification() error {
	if p.Status != StatusCompleted {
		return dErrors.Newf(dErrors.CodeInvalidState, "payment is %s, not completed", p.Status)
	}
	if p.VerificationStatus != VerificationUnset {
		return dErrors.Newf(dErrors.CodeConflict, "payment already %s", p.VerificationStatus)
	}
	return nil
}

// MatchesFee compares the transmitted amount to the scheduled fee exactly.
func (p *Payment) MatchesFee() error {
	expected := ExpectedFee(p.Type)
	if !p.Amount.Equal(expected) {
		return dErrors.Newf(dErrors.CodePreconditionFailed,
			"amount %s does not match the %s ETB %s", p.Amount, expected, p.Type)
	}
	return nil
}

// ApplyVerification records the officer verdict. Call CanSetVerification (and
// MatchesFee when verifying) first.
func (p *Payment) ApplyVerification(outcome VerificationStatus, officer id.ActorID, notes string, now time.Time) {
	p.VerificationStatus = outcome
	p.VerificationNotes = notes
	p.VerifiedBy = officer
	p.VerifiedAt = &now
	p.UpdatedAt = now
}

// Verified reports a completed payment with an officer-verified verdict.
func (p *Payment) Verified() bool {
	return p.Status == StatusCompleted && p.VerificationStatus == VerificationVerified
}
