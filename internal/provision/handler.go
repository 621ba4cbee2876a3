package provision

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/httputil"
)

// Handler exposes the promotion endpoint.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the provisioning route.
func (h *Handler) Register(r chi.Router) {
	r.Post("/provision", h.promote)
}

func (h *Handler) promote(w http.ResponseWriter, r *http.Request) {
	var in PromoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	cred, err := h.svc.Promote(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cred)
}
