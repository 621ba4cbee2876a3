// Package handler exposes the property registration workflow over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/property/service"
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

// Register mounts the property routes. The router is expected to already
// carry the authentication middleware.
func (h *Handler) Register(r chi.Router) {
	r.Route("/properties", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/", h.list)
		r.Route("/{propertyID}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Post("/approve", h.approve)
			r.Post("/reject", h.reject)
		})
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	app, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, app)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, apps)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.svc.Get(r.Context(), propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

type decisionRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req decisionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
			return
		}
	}

	app, err := h.svc.Approve(r.Context(), propertyID, req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	app, err := h.svc.Reject(r.Context(), propertyID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}
