package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	property "landregistry/internal/property/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

func newDoc(t *testing.T, docType DocumentType) *Document {
	t.Helper()
	d, err := NewDocument(id.NewDocumentID(), id.NewPropertyID(), docType,
		"title_deed.pdf", 120_000, "application/pdf", time.Now())
	require.NoError(t, err)
	return d
}

func TestNewDocument(t *testing.T) {
	t.Run("starts pending", func(t *testing.T) {
		d := newDoc(t, TypeTitleDeed)
		assert.Equal(t, StatusPending, d.Status)
	})

	t.Run("rejects bad metadata", func(t *testing.T) {
		cases := []struct {
			name     string
			fileName string
			size     int64
			mime     string
		}{
			{"empty file name", " ", 100, "application/pdf"},
			{"zero size", "a.pdf", 0, "application/pdf"},
			{"negative size", "a.pdf", -1, "application/pdf"},
			{"empty mime", "a.pdf", 100, ""},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewDocument(id.NewDocumentID(), id.NewPropertyID(), TypeIDCard,
					tc.fileName, tc.size, tc.mime, time.Now())
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			})
		}
	})
}

func TestReviewTransitions(t *testing.T) {
	t.Run("terminal review conflicts without re-review", func(t *testing.T) {
		d := newDoc(t, TypeTitleDeed)
		d.ApplyReview(StatusVerified, id.NewActorID(), "legible", time.Now())

		err := d.CanReview(false)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		assert.NoError(t, d.CanReview(true))
	})

	t.Run("needs_update stays reviewable", func(t *testing.T) {
		d := newDoc(t, TypeTitleDeed)
		d.ApplyReview(StatusNeedsUpdate, id.NewActorID(), "blurred scan", time.Now())
		assert.NoError(t, d.CanReview(false))
	})
}

func TestResubmission(t *testing.T) {
	t.Run("verified document is immutable", func(t *testing.T) {
		d := newDoc(t, TypeTitleDeed)
		d.ApplyReview(StatusVerified, id.NewActorID(), "", time.Now())
		err := d.CanResubmit()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("pending document may not be replaced mid-review", func(t *testing.T) {
		d := newDoc(t, TypeTitleDeed)
		err := d.CanResubmit()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("resubmission clears the review outcome", func(t *testing.T) {
		d := newDoc(t, TypeTitleDeed)
		d.ApplyReview(StatusNeedsUpdate, id.NewActorID(), "blurred scan", time.Now())
		require.NoError(t, d.CanResubmit())

		d.ApplyResubmission("title_deed_v2.pdf", 130_000, "application/pdf", time.Now())
		assert.Equal(t, StatusPending, d.Status)
		assert.Nil(t, d.ReviewedAt)
		assert.Equal(t, "blurred scan", d.Notes, "officer request stays visible")
	})
}

func TestRequiredTypes(t *testing.T) {
	assert.Len(t, RequiredTypes(property.TypeResidential), 3)
	assert.Contains(t, RequiredTypes(property.TypeCommercial), TypeApplicationForm)
	assert.Contains(t, RequiredTypes(property.TypeIndustrial), TypeApplicationForm)
	assert.Len(t, RequiredTypes(property.TypeAgricultural), 3)
}

func TestValidationOutcome(t *testing.T) {
	propertyID := id.NewPropertyID()
	mk := func(docType DocumentType, status Status) *Document {
		d, err := NewDocument(id.NewDocumentID(), propertyID, docType,
			"f.pdf", 1, "application/pdf", time.Now())
		require.NoError(t, err)
		d.Status = status
		return d
	}

	t.Run("empty set", func(t *testing.T) {
		validated, hasAny := ValidationOutcome(property.TypeResidential, nil)
		assert.False(t, validated)
		assert.False(t, hasAny)
	})

	t.Run("all required verified", func(t *testing.T) {
		validated, hasAny := ValidationOutcome(property.TypeResidential, []*Document{
			mk(TypeTitleDeed, StatusVerified),
			mk(TypeIDCard, StatusVerified),
			mk(TypeTaxClearance, StatusVerified),
		})
		assert.True(t, validated)
		assert.True(t, hasAny)
	})

	t.Run("missing required type", func(t *testing.T) {
		validated, _ := ValidationOutcome(property.TypeResidential, []*Document{
			mk(TypeTitleDeed, StatusVerified),
			mk(TypeIDCard, StatusVerified),
		})
		assert.False(t, validated)
	})

	t.Run("any rejected document forces false", func(t *testing.T) {
		validated, _ := ValidationOutcome(property.TypeResidential, []*Document{
			mk(TypeTitleDeed, StatusVerified),
			mk(TypeIDCard, StatusVerified),
			mk(TypeTaxClearance, StatusVerified),
			mk(TypeOther, StatusRejected),
		})
		assert.False(t, validated)
	})

	t.Run("commercial additionally needs the application form", func(t *testing.T) {
		docs := []*Document{
			mk(TypeTitleDeed, StatusVerified),
			mk(TypeIDCard, StatusVerified),
			mk(TypeTaxClearance, StatusVerified),
		}
		validated, _ := ValidationOutcome(property.TypeCommercial, docs)
		assert.False(t, validated)

		docs = append(docs, mk(TypeApplicationForm, StatusVerified))
		validated, _ = ValidationOutcome(property.TypeCommercial, docs)
		assert.True(t, validated)
	})
}
