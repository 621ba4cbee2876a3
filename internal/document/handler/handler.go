// Package handler exposes the document review sub-workflow over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/document/models"
	"landregistry/internal/document/service"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/httputil"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts document routes. Uploads hang off the owning property;
// review decisions address the document directly.
func (h *Handler) Register(r chi.Router) {
	r.Post("/properties/{propertyID}/documents", h.upload)
	r.Get("/properties/{propertyID}/documents", h.list)
	r.Route("/documents/{documentID}", func(r chi.Router) {
		r.Post("/verify", h.verify)
		r.Post("/reject", h.reject)
		r.Post("/request-update", h.requestUpdate)
		r.Post("/resubmit", h.resubmit)
	})
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	var in service.UploadInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	in.PropertyID = chi.URLParam(r, "propertyID")

	doc, err := h.svc.Upload(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	docs, err := h.svc.ListByProperty(r.Context(), propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.Verify)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.Reject)
}

func (h *Handler) requestUpdate(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.RequestUpdate)
}

func (h *Handler) review(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, documentID id.DocumentID, in service.ReviewInput) (*models.Document, error),
) {
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var in service.ReviewInput
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
			return
		}
	}

	doc, err := op(r.Context(), documentID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) resubmit(w http.ResponseWriter, r *http.Request) {
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var in service.ResubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	doc, err := h.svc.Resubmit(r.Context(), documentID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}
