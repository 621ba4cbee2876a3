package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landregistry/internal/property/models"
	"landregistry/internal/property/service"
	"landregistry/internal/property/store"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/audit"
	auditmem "landregistry/pkg/platform/audit/store/memory"
	"landregistry/pkg/requestcontext"
)

func newRouter(svc *service.Service, actorID id.ActorID, role id.Role) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithActor(req.Context(), actorID, role)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	New(svc).Register(r)
	return r
}

func newService(t *testing.T) *service.Service {
	t.Helper()
	return service.New(store.NewInMemory(), audit.NewEmitter(auditmem.NewInMemoryStore()))
}

func TestSubmitEndpoint(t *testing.T) {
	svc := newService(t)
	citizen := id.NewActorID()
	router := newRouter(svc, citizen, id.RoleCitizen)

	body, _ := json.Marshal(map[string]any{
		"plot_number":   "AA-000123",
		"location":      map[string]any{"kebele": "05", "sub_city": "Bole"},
		"area":          250.0,
		"property_type": "residential",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/properties", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var app models.PropertyApplication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))
	assert.Equal(t, models.StatusPending, app.Status)
	assert.Equal(t, citizen, app.Owner)
}

func TestSubmitEndpointRejectsMalformedBody(t *testing.T) {
	router := newRouter(newService(t), id.NewActorID(), id.RoleCitizen)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/properties", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEndpointRejectsMalformedID(t *testing.T) {
	router := newRouter(newService(t), id.NewActorID(), id.RoleCitizen)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/properties/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveEndpointGate(t *testing.T) {
	svc := newService(t)
	citizen := id.NewActorID()

	app, err := svc.Submit(
		requestcontext.WithActor(httptest.NewRequest(http.MethodGet, "/", nil).Context(), citizen, id.RoleCitizen),
		service.SubmitInput{PlotNumber: "AA-1", Area: 100, PropertyType: "residential"},
	)
	require.NoError(t, err)

	officerRouter := newRouter(svc, id.NewActorID(), id.RoleLandOfficer)
	rec := httptest.NewRecorder()
	officerRouter.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/properties/"+app.ID.String()+"/approve", nil))

	// Neither sub-workflow is complete, so the gate responds 412.
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestRejectEndpointRequiresReason(t *testing.T) {
	svc := newService(t)
	citizen := id.NewActorID()
	app, err := svc.Submit(
		requestcontext.WithActor(httptest.NewRequest(http.MethodGet, "/", nil).Context(), citizen, id.RoleCitizen),
		service.SubmitInput{PlotNumber: "AA-1", Area: 100, PropertyType: "residential"},
	)
	require.NoError(t, err)

	officerRouter := newRouter(svc, id.NewActorID(), id.RoleLandOfficer)
	rec := httptest.NewRecorder()
	officerRouter.ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost, "/properties/"+app.ID.String()+"/reject",
		bytes.NewReader([]byte(`{"reason":""}`))))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
