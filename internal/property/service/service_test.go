package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"landregistry/internal/notify"
	"landregistry/internal/property/models"
	"landregistry/internal/property/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	auditmem "landregistry/pkg/platform/audit/store/memory"
	"landregistry/pkg/requestcontext"
)

type fakeDocs struct {
	validated, any bool
	onRead         func()
}

func (f *fakeDocs) ValidationState(context.Context, id.PropertyID, models.PropertyType) (bool, bool, error) {
	if f.onRead != nil {
		f.onRead()
	}
	return f.validated, f.any, nil
}

type fakePayments struct {
	completed, any bool
	onRead         func()
}

func (f *fakePayments) CompletionState(context.Context, id.PropertyID) (bool, bool, error) {
	if f.onRead != nil {
		f.onRead()
	}
	return f.completed, f.any, nil
}

type ServiceSuite struct {
	suite.Suite

	svc      *Service
	docs     *fakeDocs
	payments *fakePayments
	auditLog *auditmem.InMemoryStore
	sink     *notify.Recorder

	citizen id.ActorID
	officer id.ActorID
	admin   id.ActorID
}

func (s *ServiceSuite) SetupTest() {
	s.docs = &fakeDocs{}
	s.payments = &fakePayments{}
	s.auditLog = auditmem.NewInMemoryStore()
	s.sink = &notify.Recorder{}

	s.svc = New(store.NewInMemory(), audit.NewEmitter(s.auditLog), WithNotifier(s.sink))
	s.svc.BindSubWorkflows(s.docs, s.payments)

	s.citizen = id.NewActorID()
	s.officer = id.NewActorID()
	s.admin = id.NewActorID()
}

func (s *ServiceSuite) ctxAs(actorID id.ActorID, role id.Role) context.Context {
	return requestcontext.WithActor(context.Background(), actorID, role)
}

func (s *ServiceSuite) submit(plot string) *models.PropertyApplication {
	s.T().Helper()
	app, err := s.svc.Submit(s.ctxAs(s.citizen, id.RoleCitizen), SubmitInput{
		PlotNumber:   plot,
		Location:     models.Location{Kebele: "05", SubCity: "Bole"},
		Area:         250,
		PropertyType: "residential",
	})
	s.Require().NoError(err)
	return app
}

func (s *ServiceSuite) recompute(propertyID id.PropertyID) {
	s.T().Helper()
	s.Require().NoError(s.svc.Recompute(s.ctxAs(s.officer, id.RoleLandOfficer), propertyID))
}

func (s *ServiceSuite) TestSubmit() {
	app := s.submit("AA-000123")

	s.Equal(models.StatusPending, app.Status)
	s.Equal(s.citizen, app.Owner)

	trail, err := s.auditLog.ListByEntity(context.Background(), audit.EntityProperty, app.ID.String())
	s.Require().NoError(err)
	s.Require().Len(trail, 1)
	s.Equal(audit.ActionApplicationSubmitted, trail[0].Action)
}

func (s *ServiceSuite) TestSubmitDuplicatePlot() {
	s.submit("AA-000123")

	_, err := s.svc.Submit(s.ctxAs(id.NewActorID(), id.RoleCitizen), SubmitInput{
		PlotNumber:   "aa-000123",
		Location:     models.Location{},
		Area:         90,
		PropertyType: "commercial",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestSubmitUnauthenticated() {
	_, err := s.svc.Submit(context.Background(), SubmitInput{
		PlotNumber: "AA-1", Area: 10, PropertyType: "residential",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestApprovalGateHappyPath() {
	app := s.submit("AA-000123")
	ctx := s.ctxAs(s.officer, id.RoleLandOfficer)

	// Nothing validated yet: the gate must hold.
	_, err := s.svc.Approve(ctx, app.ID, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))

	// Documents verified, payment outstanding.
	s.docs.validated, s.docs.any = true, true
	s.recompute(app.ID)
	_, err = s.svc.Approve(ctx, app.ID, "")
	s.Require().Error(err)
	s.Contains(err.Error(), "payment not yet verified")

	// Payment verified as well: the gate opens.
	s.payments.completed, s.payments.any = true, true
	s.recompute(app.ID)
	approved, err := s.svc.Approve(ctx, app.ID, "all checks passed")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, approved.Status)
	s.Equal(s.officer, approved.DecidedBy)

	// Owner was told.
	s.Require().Len(s.sink.Messages, 1)
	s.Equal(s.citizen, s.sink.Messages[0].Recipient)
	s.Equal(string(audit.ActionApplicationApproved), s.sink.Messages[0].Event)
}

func (s *ServiceSuite) TestApprovalOrderIndependence() {
	// Payment first, documents second must open the gate just the same.
	app := s.submit("AA-000123")
	ctx := s.ctxAs(s.officer, id.RoleLandOfficer)

	s.payments.completed, s.payments.any = true, true
	s.recompute(app.ID)
	_, err := s.svc.Approve(ctx, app.ID, "")
	s.Require().Error(err)
	s.Contains(err.Error(), "documents not yet validated")

	s.docs.validated, s.docs.any = true, true
	s.recompute(app.ID)
	_, err = s.svc.Approve(ctx, app.ID, "ok")
	s.NoError(err)
}

func (s *ServiceSuite) TestSelfApprovalForbidden() {
	app := s.submit("AA-000123")
	s.docs.validated, s.docs.any = true, true
	s.payments.completed, s.payments.any = true, true
	s.recompute(app.ID)

	// Even with reviewer or admin authority, the owner may not decide their
	// own application.
	for _, role := range []id.Role{id.RoleLandOfficer, id.RoleAdmin} {
		_, err := s.svc.Approve(s.ctxAs(s.citizen, role), app.ID, "")
		s.Require().Error(err, "role %s", role)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "role %s", role)
	}
}

func (s *ServiceSuite) TestCitizenCannotApprove() {
	app := s.submit("AA-000123")
	_, err := s.svc.Approve(s.ctxAs(id.NewActorID(), id.RoleCitizen), app.ID, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestTerminalIsFinal() {
	app := s.submit("AA-000123")
	ctx := s.ctxAs(s.officer, id.RoleLandOfficer)

	_, err := s.svc.Reject(ctx, app.ID, "incomplete survey data")
	s.Require().NoError(err)

	_, err = s.svc.Reject(ctx, app.ID, "again")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = s.svc.Approve(ctx, app.ID, "")
	s.Require().Error(err)

	// Late sub-workflow activity must not resurrect a decided application.
	s.docs.validated, s.docs.any = true, true
	s.payments.completed, s.payments.any = true, true
	s.recompute(app.ID)
	got, err := s.svc.Get(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
}

func (s *ServiceSuite) TestRejectRequiresReason() {
	app := s.submit("AA-000123")
	_, err := s.svc.Reject(s.ctxAs(s.officer, id.RoleLandOfficer), app.ID, "   ")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestRecomputeAuditsOnlyChanges() {
	app := s.submit("AA-000123")

	s.recompute(app.ID) // no activity, still pending: no event
	s.docs.any = true
	s.recompute(app.ID) // pending -> under_review
	s.recompute(app.ID) // unchanged: no event

	trail, err := s.auditLog.ListByEntity(context.Background(), audit.EntityProperty, app.ID.String())
	s.Require().NoError(err)
	s.Require().Len(trail, 2) // submitted + one recompute
	s.Equal(audit.ActionFlagsRecomputed, trail[1].Action)
	s.Equal(string(models.StatusPending), trail[1].FromStatus)
	s.Equal(string(models.StatusUnderReview), trail[1].ToStatus)
}

func (s *ServiceSuite) TestGetVisibility() {
	app := s.submit("AA-000123")

	_, err := s.svc.Get(s.ctxAs(s.citizen, id.RoleCitizen), app.ID)
	s.NoError(err)

	_, err = s.svc.Get(s.ctxAs(s.officer, id.RoleLandOfficer), app.ID)
	s.NoError(err)

	_, err = s.svc.Get(s.ctxAs(id.NewActorID(), id.RoleCitizen), app.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestListScopedByRole() {
	s.submit("AA-1")
	other, err := s.svc.Submit(s.ctxAs(id.NewActorID(), id.RoleCitizen), SubmitInput{
		PlotNumber: "AA-2", Area: 10, PropertyType: "residential",
	})
	s.Require().NoError(err)

	mine, err := s.svc.List(s.ctxAs(s.citizen, id.RoleCitizen))
	s.Require().NoError(err)
	s.Len(mine, 1)

	all, err := s.svc.List(s.ctxAs(s.admin, id.RoleAdmin))
	s.Require().NoError(err)
	s.Len(all, 2)
	_ = other
}

// executeWindow wraps the store and flags the span in which Execute's
// callbacks run, i.e. while the application's lock is held.
type executeWindow struct {
	*store.InMemory
	inside atomic.Bool
}

func (s *executeWindow) Execute(
	ctx context.Context,
	propertyID id.PropertyID,
	validate func(*models.PropertyApplication) error,
	mutate func(*models.PropertyApplication),
) (*models.PropertyApplication, error) {
	s.inside.Store(true)
	defer s.inside.Store(false)
	return s.InMemory.Execute(ctx, propertyID, validate, mutate)
}

// Recompute must read the child sets inside the application's critical
// section; reading them before taking the lock lets a concurrent review
// overwrite the flags with a stale view.
func (s *ServiceSuite) TestRecomputeReadsChildrenUnderApplicationLock() {
	tracked := &executeWindow{InMemory: store.NewInMemory()}
	svc := New(tracked, audit.NewEmitter(s.auditLog))
	svc.BindSubWorkflows(s.docs, s.payments)

	app, err := svc.Submit(s.ctxAs(s.citizen, id.RoleCitizen), SubmitInput{
		PlotNumber:   "AA-000900",
		Location:     models.Location{Kebele: "05", SubCity: "Bole"},
		Area:         120,
		PropertyType: "residential",
	})
	s.Require().NoError(err)

	var docsLocked, paymentsLocked bool
	s.docs.onRead = func() { docsLocked = tracked.inside.Load() }
	s.payments.onRead = func() { paymentsLocked = tracked.inside.Load() }

	s.Require().NoError(svc.Recompute(s.ctxAs(s.officer, id.RoleLandOfficer), app.ID))
	s.True(docsLocked)
	s.True(paymentsLocked)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func TestApproveUnknownApplication(t *testing.T) {
	svc := New(store.NewInMemory(), audit.NewEmitter(auditmem.NewInMemoryStore()))
	svc.BindSubWorkflows(&fakeDocs{}, &fakePayments{})

	ctx := requestcontext.WithActor(context.Background(), id.NewActorID(), id.RoleLandOfficer)
	_, err := svc.Approve(ctx, id.NewPropertyID(), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRequestScopedTimeStampsDecision(t *testing.T) {
	svc := New(store.NewInMemory(), audit.NewEmitter(auditmem.NewInMemoryStore()))
	docs := &fakeDocs{validated: true, any: true}
	payments := &fakePayments{completed: true, any: true}
	svc.BindSubWorkflows(docs, payments)

	citizen := id.NewActorID()
	app, err := svc.Submit(
		requestcontext.WithActor(context.Background(), citizen, id.RoleCitizen),
		SubmitInput{PlotNumber: "AA-9", Area: 50, PropertyType: "agricultural"},
	)
	require.NoError(t, err)

	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithActor(context.Background(), id.NewActorID(), id.RoleLandOfficer)
	ctx = requestcontext.WithTime(ctx, fixed)
	require.NoError(t, svc.Recompute(ctx, app.ID))

	approved, err := svc.Approve(ctx, app.ID, "verified on site")
	require.NoError(t, err)
	require.NotNil(t, approved.DecidedAt)
	assert.Equal(t, fixed, *approved.DecidedAt)
	assert.Equal(t, fixed, approved.UpdatedAt)
}
