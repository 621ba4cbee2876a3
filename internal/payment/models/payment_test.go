package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

func newPayment(t *testing.T, amount decimal.Decimal, paymentType PaymentType) *Payment {
	t.Helper()
	p, err := NewPayment(id.NewPaymentID(), id.NewPropertyID(), id.TransferID{}, id.NewActorID(),
		amount, paymentType, MethodTelebirr, nil, time.Now())
	require.NoError(t, err)
	return p
}

func TestNewPayment(t *testing.T) {
	t.Run("non-positive amount rejected", func(t *testing.T) {
		for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-100)} {
			_, err := NewPayment(id.NewPaymentID(), id.NewPropertyID(), id.TransferID{}, id.NewActorID(),
				amount, TypeRegistrationFee, MethodCash, nil, time.Now())
			require.Error(t, err, "amount %s", amount)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		}
	})

	t.Run("exactly one scope reference", func(t *testing.T) {
		// Neither set.
		_, err := NewPayment(id.NewPaymentID(), id.PropertyID{}, id.TransferID{}, id.NewActorID(),
			decimal.NewFromInt(10), TypeRegistrationFee, MethodCash, nil, time.Now())
		require.Error(t, err)

		// Both set.
		_, err = NewPayment(id.NewPaymentID(), id.NewPropertyID(), id.NewTransferID(), id.NewActorID(),
			decimal.NewFromInt(10), TypeRegistrationFee, MethodCash, nil, time.Now())
		require.Error(t, err)
	})

	t.Run("starts pending in ETB", func(t *testing.T) {
		p := newPayment(t, decimal.NewFromInt(7500), TypeRegistrationFee)
		assert.Equal(t, StatusPending, p.Status)
		assert.Equal(t, "ETB", p.Currency)
		assert.Equal(t, VerificationUnset, p.VerificationStatus)
	})
}

func TestMarkStatus(t *testing.T) {
	t.Run("completed and failed only from pending", func(t *testing.T) {
		p := newPayment(t, decimal.NewFromInt(7500), TypeRegistrationFee)
		require.NoError(t, p.CanMarkStatus(StatusCompleted))
		p.ApplyStatus(StatusCompleted, "TT123", time.Now())

		err := p.CanMarkStatus(StatusFailed)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("pending is not a rail outcome", func(t *testing.T) {
		p := newPayment(t, decimal.NewFromInt(7500), TypeRegistrationFee)
		assert.Error(t, p.CanMarkStatus(StatusPending))
	})
}

func TestVerificationPreconditions(t *testing.T) {
	t.Run("verification requires completed", func(t *testing.T) {
		p := newPayment(t, decimal.NewFromInt(7500), TypeRegistrationFee)
		err := p.CanSetVerification()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("verdict is set once", func(t *testing.T) {
		p := newPayment(t, decimal.NewFromInt(7500), TypeRegistrationFee)
		p.ApplyStatus(StatusCompleted, "TT123", time.Now())
		require.NoError(t, p.CanSetVerification())
		p.ApplyVerification(VerificationVerified, id.NewActorID(), "receipt matches", time.Now())

		err := p.CanSetVerification()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		assert.True(t, p.Verified())
	})
}

func TestMatchesFee(t *testing.T) {
	t.Run("exact match required", func(t *testing.T) {
		p := newPayment(t, decimal.RequireFromString("7500.00"), TypeRegistrationFee)
		assert.NoError(t, p.MatchesFee(), "7500.00 equals 7500 exactly under decimal compare")

		short := newPayment(t, decimal.RequireFromString("7499.99"), TypeRegistrationFee)
		err := short.MatchesFee()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	t.Run("schedule", func(t *testing.T) {
		cases := map[PaymentType]int64{
			TypeRegistrationFee: 7500,
			TypeTransferFee:     5000,
			TypeCertificateFee:  1500,
			TypeModificationFee: 1000,
		}
		for paymentType, want := range cases {
			assert.True(t, ExpectedFee(paymentType).Equal(decimal.NewFromInt(want)), "%s", paymentType)
		}
	})
}
