// Package handler exposes dispute resolution over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/dispute/service"
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

// Register mounts dispute routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/disputes", h.file)
	r.Get("/disputes", h.list)
	r.Get("/properties/{propertyID}/disputes", h.listByProperty)
	r.Route("/disputes/{disputeID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/status", h.updateStatus)
		r.Post("/assign", h.assign)
		r.Post("/resolve", h.resolve)
		r.Post("/withdraw", h.withdraw)
	})
}

func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	var in service.FileInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	d, err := h.svc.File(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.svc.Get(r.Context(), disputeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	disputes, err := h.svc.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, disputes)
}

func (h *Handler) listByProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	disputes, err := h.svc.ListByProperty(r.Context(), propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, disputes)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var in service.UpdateStatusInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	d, err := h.svc.UpdateStatus(r.Context(), disputeID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var in service.AssignInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	d, err := h.svc.Assign(r.Context(), disputeID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var in service.ResolveInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	d, err := h.svc.Resolve(r.Context(), disputeID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var body struct {
		Notes string `json:"notes"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
			return
		}
	}

	d, err := h.svc.Withdraw(r.Context(), disputeID, body.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}
