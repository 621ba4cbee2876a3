// Package handler exposes the payment sub-workflow over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/payment/models"
	"landregistry/internal/payment/service"
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

// Register mounts payment routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/payments", h.initiate)
	r.Get("/properties/{propertyID}/payments", h.listByProperty)
	r.Route("/payments/{paymentID}", func(r chi.Router) {
		r.Post("/status", h.markStatus)
		r.Post("/verify", h.verify)
		r.Post("/reject", h.reject)
	})
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var in service.InitiateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	p, err := h.svc.Initiate(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) listByProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	payments, err := h.svc.ListByProperty(r.Context(), propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, payments)
}

func (h *Handler) markStatus(w http.ResponseWriter, r *http.Request) {
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var in service.MarkStatusInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	p, err := h.svc.MarkStatus(r.Context(), paymentID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	h.verdict(w, r, h.svc.Verify)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.verdict(w, r, h.svc.RejectVerification)
}

func (h *Handler) verdict(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, paymentID id.PaymentID, in service.VerifyInput) (*models.Payment, error),
) {
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var in service.VerifyInput
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
			return
		}
	}

	p, err := op(r.Context(), paymentID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
