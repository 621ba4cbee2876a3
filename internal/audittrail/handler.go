// Package audittrail exposes the append-only audit log for review. Writes go
// through the emitter inside each workflow service; this surface is read-only.
package audittrail

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/authz"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/httputil"
)

var knownEntityTypes = map[audit.EntityType]bool{
	audit.EntityProperty: true,
	audit.EntityDocument: true,
	audit.EntityPayment:  true,
	audit.EntityTransfer: true,
	audit.EntityDispute:  true,
	audit.EntityActor:    true,
}

// Handler serves audit trail reads to reviewers.
type Handler struct {
	emitter *audit.Emitter
}

func NewHandler(emitter *audit.Emitter) *Handler {
	return &Handler{emitter: emitter}
}

// Register mounts audit routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/recent", h.recent)
	r.Get("/audit/{entityType}/{entityID}", h.byEntity)
}

func (h *Handler) byEntity(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.Require(r.Context(), authz.Reviewer, id.ActorID{}); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entityType := audit.EntityType(chi.URLParam(r, "entityType"))
	if !knownEntityTypes[entityType] {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "unknown entity type"))
		return
	}

	events, err := h.emitter.List(r.Context(), entityType, chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "read audit trail"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.Require(r.Context(), authz.Reviewer, id.ActorID{}); err != nil {
		httputil.WriteError(w, err)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 1000"))
			return
		}
		limit = parsed
	}

	events, err := h.emitter.ListRecent(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "read audit trail"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}
