package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"landregistry/internal/dispute/models"
	"landregistry/internal/dispute/store"
	"landregistry/internal/notify"
	propertymodels "landregistry/internal/property/models"
	propertyservice "landregistry/internal/property/service"
	propertystore "landregistry/internal/property/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	auditmem "landregistry/pkg/platform/audit/store/memory"
	"landregistry/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite

	disputes *Service
	props    *propertyservice.Service
	sink     *notify.Recorder

	owner     id.ActorID
	disputant id.ActorID
	officer   id.ActorID
	admin     id.ActorID
	app       *propertymodels.PropertyApplication
}

func (s *ServiceSuite) SetupTest() {
	auditor := audit.NewEmitter(auditmem.NewInMemoryStore())
	s.sink = &notify.Recorder{}

	s.props = propertyservice.New(propertystore.NewInMemory(), auditor)
	s.disputes = New(store.NewInMemory(), s.props, auditor, WithNotifier(s.sink))

	s.owner = id.NewActorID()
	s.disputant = id.NewActorID()
	s.officer = id.NewActorID()
	s.admin = id.NewActorID()

	app, err := s.props.Submit(s.ctxAs(s.owner, id.RoleCitizen), propertyservice.SubmitInput{
		PlotNumber:   "AA-000900",
		Location:     propertymodels.Location{Kebele: "02", SubCity: "Arada"},
		Area:         180,
		PropertyType: "residential",
	})
	s.Require().NoError(err)
	s.app = app
}

func (s *ServiceSuite) ctxAs(actorID id.ActorID, role id.Role) context.Context {
	return requestcontext.WithActor(context.Background(), actorID, role)
}

func (s *ServiceSuite) file() *models.Dispute {
	s.T().Helper()
	d, err := s.disputes.File(s.ctxAs(s.disputant, id.RoleCitizen), FileInput{
		PropertyID:  s.app.ID.String(),
		DisputeType: "boundary_dispute",
		Title:       "Fence over the survey line",
		Description: "The neighboring plot's fence extends two meters into this parcel.",
	})
	s.Require().NoError(err)
	return d
}

func (s *ServiceSuite) TestFileAgainstUnknownPropertyFails() {
	_, err := s.disputes.File(s.ctxAs(s.disputant, id.RoleCitizen), FileInput{
		PropertyID:  id.NewPropertyID().String(),
		DisputeType: "other",
		Title:       "t",
		Description: "d",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestFileStampsPriority() {
	d := s.file()
	s.Equal(models.StatusSubmitted, d.Status)
	s.Equal(models.PriorityLow, d.Priority)

	fraud, err := s.disputes.File(s.ctxAs(s.disputant, id.RoleCitizen), FileInput{
		PropertyID:  s.app.ID.String(),
		DisputeType: "fraudulent_registration",
		Title:       "Forged title deed",
		Description: "The registration was backed by a forged deed.",
	})
	s.Require().NoError(err)
	s.Equal(models.PriorityHigh, fraud.Priority)
}

func (s *ServiceSuite) TestUpdateStatusRequiresNotes() {
	d := s.file()
	_, err := s.disputes.UpdateStatus(s.ctxAs(s.officer, id.RoleLandOfficer), d.ID, UpdateStatusInput{
		Status: "under_review",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestCitizenCannotUpdateStatus() {
	d := s.file()
	_, err := s.disputes.UpdateStatus(s.ctxAs(s.disputant, id.RoleCitizen), d.ID, UpdateStatusInput{
		Status: "under_review", Notes: "please hurry",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestUpdateStatusAppendsTimeline() {
	d := s.file()
	updated, err := s.disputes.UpdateStatus(s.ctxAs(s.officer, id.RoleLandOfficer), d.ID, UpdateStatusInput{
		Status: "under_review", Notes: "triaged",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, updated.Status)
	s.Require().Len(updated.Timeline, 2)
	s.Equal(id.RoleLandOfficer, updated.Timeline[1].PerformedByRole)

	// The disputant heard about it.
	s.Require().Len(s.sink.Messages, 1)
	s.Equal(s.disputant, s.sink.Messages[0].Recipient)
}

func (s *ServiceSuite) TestAssignIsAdminOnly() {
	d := s.file()

	_, err := s.disputes.Assign(s.ctxAs(s.officer, id.RoleLandOfficer), d.ID, AssignInput{
		OfficerID: s.officer.String(),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	updated, err := s.disputes.Assign(s.ctxAs(s.admin, id.RoleAdmin), d.ID, AssignInput{
		OfficerID: s.officer.String(), Notes: "take this one",
	})
	s.Require().NoError(err)
	s.Equal(s.officer, updated.AssignedTo)
}

func (s *ServiceSuite) TestResolveRequiresDecisionAndNotes() {
	d := s.file()
	ctx := s.ctxAs(s.officer, id.RoleLandOfficer)
	_, err := s.disputes.UpdateStatus(ctx, d.ID, UpdateStatusInput{Status: "under_review", Notes: "triaged"})
	s.Require().NoError(err)

	_, err = s.disputes.Resolve(ctx, d.ID, ResolveInput{Decision: "in favor"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	resolved, err := s.disputes.Resolve(ctx, d.ID, ResolveInput{
		Decision:        "in favor of disputant",
		ResolutionNotes: "boundary re-surveyed, records corrected",
		ActionRequired:  "remove encroaching fence",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusResolved, resolved.Status)
	s.Require().NotNil(resolved.Resolution)
	s.Equal(s.officer, resolved.Resolution.ResolvedBy)
}

func (s *ServiceSuite) TestResolveBeforeReviewFails() {
	d := s.file()
	_, err := s.disputes.Resolve(s.ctxAs(s.officer, id.RoleLandOfficer), d.ID, ResolveInput{
		Decision: "in favor", ResolutionNotes: "n",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
}

func (s *ServiceSuite) TestWithdrawOnlyByDisputant() {
	d := s.file()

	_, err := s.disputes.Withdraw(s.ctxAs(s.owner, id.RoleCitizen), d.ID, "not mine")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	withdrawn, err := s.disputes.Withdraw(s.ctxAs(s.disputant, id.RoleCitizen), d.ID, "settled privately")
	s.Require().NoError(err)
	s.Equal(models.StatusWithdrawn, withdrawn.Status)

	// Terminal: even officers cannot move it afterwards.
	_, err = s.disputes.UpdateStatus(s.ctxAs(s.officer, id.RoleLandOfficer), d.ID, UpdateStatusInput{
		Status: "under_review", Notes: "reopening",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestListVisibility() {
	s.file()

	mine, err := s.disputes.List(s.ctxAs(s.disputant, id.RoleCitizen))
	s.Require().NoError(err)
	s.Len(mine, 1)

	none, err := s.disputes.List(s.ctxAs(s.owner, id.RoleCitizen))
	s.Require().NoError(err)
	s.Empty(none)

	all, err := s.disputes.List(s.ctxAs(s.officer, id.RoleLandOfficer))
	s.Require().NoError(err)
	s.Len(all, 1)
	s.NotEmpty(all[0].Priority)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
