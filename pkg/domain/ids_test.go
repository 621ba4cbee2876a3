package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "landregistry/pkg/domain-errors"
)

// TestParseID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs".
func TestParseID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParsePropertyID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParsePropertyID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseActorID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseTransferID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, TransferID(valid), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety between ID
// kinds. If this compiles, the invariant holds:
//
//	var _ PropertyID = DocumentID(uuid.New()) // would not compile
func TestTypeDistinction(t *testing.T) {
	propertyID := PropertyID(uuid.New())
	documentID := DocumentID(uuid.New())
	assert.NotEqual(t, uuid.UUID(propertyID), uuid.UUID(documentID))
}

func TestIDTextRoundTrip(t *testing.T) {
	original := NewDisputeID()
	text, err := original.MarshalText()
	require.NoError(t, err)

	var decoded DisputeID
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, original, decoded)
}

func TestParseRole(t *testing.T) {
	t.Run("accepts the three supported roles", func(t *testing.T) {
		for _, s := range []string{"citizen", "land_officer", "admin"} {
			role, err := ParseRole(s)
			require.NoError(t, err)
			assert.True(t, role.IsValid())
		}
	})

	t.Run("rejects empty and unknown roles", func(t *testing.T) {
		for _, s := range []string{"", "officer", "superuser", "Citizen"} {
			_, err := ParseRole(s)
			require.Error(t, err, "input %q", s)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})

	t.Run("review authority", func(t *testing.T) {
		assert.False(t, RoleCitizen.IsOfficerOrAdmin())
		assert.True(t, RoleLandOfficer.IsOfficerOrAdmin())
		assert.True(t, RoleAdmin.IsOfficerOrAdmin())
	})
}
