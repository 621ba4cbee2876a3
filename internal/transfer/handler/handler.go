// Package handler exposes the transfer workflow over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/transfer/models"
	"landregistry/internal/transfer/service"
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

// Register mounts transfer routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transfers", h.initiate)
	r.Get("/properties/{propertyID}/transfers", h.listByProperty)
	r.Route("/transfers/{transferID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/review-documents", h.reviewDocuments)
		r.Post("/compliance-checks", h.performCompliance)
		r.Post("/approve", h.approve)
		r.Post("/reject", h.reject)
		r.Post("/cancel", h.cancel)
		r.Post("/complete", h.complete)
	})
}

type decisionRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

type documentReviewRequest struct {
	Decisions []models.DocumentDecision `json:"decisions"`
}

type complianceRequest struct {
	Checks []models.ComplianceCheck `json:"checks"`
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var in service.InitiateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	t, err := h.svc.Initiate(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	transferID, err := id.ParseTransferID(chi.URLParam(r, "transferID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	t, err := h.svc.Get(r.Context(), transferID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) listByProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	transfers, err := h.svc.ListByProperty(r.Context(), propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transfers)
}

func (h *Handler) reviewDocuments(w http.ResponseWriter, r *http.Request) {
	transferID, err := id.ParseTransferID(chi.URLParam(r, "transferID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var in documentReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	t, err := h.svc.ReviewDocuments(r.Context(), transferID, in.Decisions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) performCompliance(w http.ResponseWriter, r *http.Request) {
	transferID, err := id.ParseTransferID(chi.URLParam(r, "transferID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var in complianceRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	t, err := h.svc.PerformComplianceChecks(r.Context(), transferID, in.Checks)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	transferID, body, ok := h.decision(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Approve(r.Context(), transferID, body.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	transferID, body, ok := h.decision(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Reject(r.Context(), transferID, body.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	transferID, body, ok := h.decision(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Cancel(r.Context(), transferID, body.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	transferID, err := id.ParseTransferID(chi.URLParam(r, "transferID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	t, err := h.svc.Complete(r.Context(), transferID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) decision(w http.ResponseWriter, r *http.Request) (id.TransferID, decisionRequest, bool) {
	transferID, err := id.ParseTransferID(chi.URLParam(r, "transferID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.TransferID{}, decisionRequest{}, false
	}

	var body decisionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
			return id.TransferID{}, decisionRequest{}, false
		}
	}
	return transferID, body, true
}
