// Package models defines the document review sub-workflow: per-document
// state, the required set per property type, and the transition rules an
// officer's review must respect.
package models

import (
	"strings"
	"time"

	property "landregistry/internal/property/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// DocumentType classifies an uploaded document.
type DocumentType string

const (
	TypeTitleDeed       DocumentType = "title_deed"
	TypeIDCard          DocumentType = "id_card"
	TypeTaxClearance    DocumentType = "tax_clearance"
	TypeApplicationForm DocumentType = "application_form"
	TypeOther           DocumentType = "other"
)

var validDocumentTypes = map[DocumentType]bool{
	TypeTitleDeed:       true,
	TypeIDCard:          true,
	TypeTaxClearance:    true,
	TypeApplicationForm: true,
	TypeOther:           true,
}

// ParseDocumentType constructs a DocumentType from external input.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(s)
	if !validDocumentTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown document type")
	}
	return t, nil
}

// RequiredTypes returns the document set that must be verified before the
// owning application's documentsValidated flag may hold. Commercial and
// industrial registrations additionally require the application form.
func RequiredTypes(propertyType property.PropertyType) []DocumentType {
	base := []DocumentType{TypeTitleDeed, TypeIDCard, TypeTaxClearance}
	switch propertyType {
	case property.TypeCommercial, property.TypeIndustrial:
		return append(base, TypeApplicationForm)
	default:
		return base
	}
}

// Status is the review state of one document.
type Status string

const (
	StatusPending     Status = "pending"
	StatusVerified    Status = "verified"
	StatusRejected    Status = "rejected"
	StatusNeedsUpdate Status = "needs_update"
)

// IsTerminal reports whether the document has received a final review. A
// terminal document only moves again through an explicit re-review or a
// resubmission.
func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// Document is one uploaded file under review. The bytes live in the external
// blob store keyed by Document id; only the metadata triple is recorded here.
type Document struct {
	ID         id.DocumentID `json:"id"`
	PropertyID id.PropertyID `json:"property_id"`
	Type       DocumentType  `json:"document_type"`

	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`

	Status Status `json:"status"`
	Notes  string `json:"notes,omitempty"`

	ReviewedBy id.ActorID `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument validates the upload metadata and constructs a pending document.
func NewDocument(
	documentID id.DocumentID,
	propertyID id.PropertyID,
	docType DocumentType,
	fileName string,
	fileSize int64,
	mimeType string,
	now time.Time,
) (*Document, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "file name is required")
	}
	if fileSize <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file size must be positive")
	}
	if strings.TrimSpace(mimeType) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "mime type is required")
	}
	if !docType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown document type")
	}
	return &Document{
		ID:         documentID,
		PropertyID: propertyID,
		Type:       docType,
		FileName:   fileName,
		FileSize:   fileSize,
		MimeType:   mimeType,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (t DocumentType) IsValid() bool { return validDocumentTypes[t] }

// CanReview checks whether an officer decision may be applied. A terminal
// document conflicts unless the caller explicitly asked for a re-review.
func (d *Document) CanReview(reReview bool) error {
	if d.Status.IsTerminal() && !reReview {
		return dErrors.Newf(dErrors.CodeConflict, "document already %s", d.Status)
	}
	return nil
}

// ApplyReview records an officer decision. Call CanReview first.
func (d *Document) ApplyReview(to Status, reviewer id.ActorID, notes string, now time.Time) {
	d.Status = to
	d.Notes = notes
	d.ReviewedBy = reviewer
	d.ReviewedAt = &now
	d.UpdatedAt = now
}

// CanResubmit checks whether the owner may replace the file. Only documents
// sent back for update or rejected outright accept a resubmission; a verified
// document is immutable.
func (d *Document) CanResubmit() error {
	switch d.Status {
	case StatusNeedsUpdate, StatusRejected:
		return nil
	case StatusVerified:
		return dErrors.New(dErrors.CodeConflict, "verified documents are immutable")
	default:
		return dErrors.New(dErrors.CodeInvalidState, "document is awaiting review")
	}
}

// ApplyResubmission replaces the file metadata and returns the document to
// pending. The previous review outcome is cleared; the officer notes survive
// so the owner's fix stays visible next to the request that prompted it.
func (d *Document) ApplyResubmission(fileName string, fileSize int64, mimeType string, now time.Time) {
	d.FileName = fileName
	d.FileSize = fileSize
	d.MimeType = mimeType
	d.Status = StatusPending
	d.ReviewedBy = id.ActorID{}
	d.ReviewedAt = nil
	d.UpdatedAt = now
}

// ValidationOutcome computes the document sub-workflow's contribution to the
// aggregate flags from a full document set. Deterministic and side-effect
// free: every required type must have a verified document and no document may
// stand rejected.
func ValidationOutcome(propertyType property.PropertyType, docs []*Document) (validated bool, hasAny bool) {
	hasAny = len(docs) > 0

	verifiedByType := make(map[DocumentType]bool)
	for _, d := range docs {
		switch d.Status {
		case StatusRejected:
			return false, hasAny
		case StatusVerified:
			verifiedByType[d.Type] = true
		}
	}
	for _, required := range RequiredTypes(propertyType) {
		if !verifiedByType[required] {
			return false, hasAny
		}
	}
	return true, hasAny
}
