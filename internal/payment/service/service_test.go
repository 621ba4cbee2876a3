package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"landregistry/internal/notify"
	"landregistry/internal/payment/models"
	"landregistry/internal/payment/store"
	propertymodels "landregistry/internal/property/models"
	propertyservice "landregistry/internal/property/service"
	propertystore "landregistry/internal/property/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	auditmem "landregistry/pkg/platform/audit/store/memory"
	"landregistry/pkg/platform/tx"
	"landregistry/pkg/requestcontext"
)

type stubDocs struct{ validated, any bool }

func (f *stubDocs) ValidationState(context.Context, id.PropertyID, propertymodels.PropertyType) (bool, bool, error) {
	return f.validated, f.any, nil
}

type stubTransfers struct{ prev, next id.ActorID }

func (f *stubTransfers) Parties(context.Context, id.TransferID) (id.ActorID, id.ActorID, error) {
	return f.prev, f.next, nil
}

type ServiceSuite struct {
	suite.Suite

	payments *Service
	props    *propertyservice.Service
	docs     *stubDocs
	auditLog *auditmem.InMemoryStore
	sink     *notify.Recorder

	citizen id.ActorID
	officer id.ActorID
	app     *propertymodels.PropertyApplication
}

func (s *ServiceSuite) SetupTest() {
	s.auditLog = auditmem.NewInMemoryStore()
	auditor := audit.NewEmitter(s.auditLog)
	s.docs = &stubDocs{}
	s.sink = &notify.Recorder{}

	s.props = propertyservice.New(propertystore.NewInMemory(), auditor)
	s.payments = New(store.NewInMemory(), s.props, tx.NewMemoryRunner(), auditor, WithNotifier(s.sink))
	s.props.BindSubWorkflows(s.docs, s.payments)

	s.citizen = id.NewActorID()
	s.officer = id.NewActorID()

	app, err := s.props.Submit(s.ctxAs(s.citizen, id.RoleCitizen), propertyservice.SubmitInput{
		PlotNumber:   "AA-000123",
		Location:     propertymodels.Location{Kebele: "05", SubCity: "Bole"},
		Area:         250,
		PropertyType: "residential",
	})
	s.Require().NoError(err)
	s.app = app
}

func (s *ServiceSuite) ctxAs(actorID id.ActorID, role id.Role) context.Context {
	return requestcontext.WithActor(context.Background(), actorID, role)
}

func (s *ServiceSuite) initiate(amount string) *models.Payment {
	s.T().Helper()
	p, err := s.payments.Initiate(s.ctxAs(s.citizen, id.RoleCitizen), InitiateInput{
		PropertyID:    s.app.ID.String(),
		Amount:        amount,
		PaymentType:   "registration_fee",
		PaymentMethod: "telebirr",
	})
	s.Require().NoError(err)
	return p
}

func (s *ServiceSuite) appStatus() propertymodels.Status {
	s.T().Helper()
	app, err := s.props.Get(s.ctxAs(s.officer, id.RoleLandOfficer), s.app.ID)
	s.Require().NoError(err)
	return app.Status
}

func (s *ServiceSuite) TestInitiateValidation() {
	cases := []struct {
		name   string
		amount string
		code   dErrors.Code
	}{
		{"zero amount", "0", dErrors.CodeValidation},
		{"negative amount", "-100", dErrors.CodeValidation},
		{"non-numeric amount", "a lot", dErrors.CodeValidation},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.payments.Initiate(s.ctxAs(s.citizen, id.RoleCitizen), InitiateInput{
				PropertyID:    s.app.ID.String(),
				Amount:        tc.amount,
				PaymentType:   "registration_fee",
				PaymentMethod: "cash",
			})
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tc.code))
		})
	}
}

func (s *ServiceSuite) TestInitiateForbiddenForNonOwner() {
	_, err := s.payments.Initiate(s.ctxAs(id.NewActorID(), id.RoleCitizen), InitiateInput{
		PropertyID:    s.app.ID.String(),
		Amount:        "7500",
		PaymentType:   "registration_fee",
		PaymentMethod: "cash",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestInitiateMovesApplicationUnderReview() {
	s.Equal(propertymodels.StatusPending, s.appStatus())
	s.initiate("7500")
	s.Equal(propertymodels.StatusUnderReview, s.appStatus())
}

func (s *ServiceSuite) TestMarkStatusOnlyFromPending() {
	p := s.initiate("7500")
	ctx := s.ctxAs(s.citizen, id.RoleCitizen)

	_, err := s.payments.MarkStatus(ctx, p.ID, MarkStatusInput{Status: "completed", TransactionID: "TT-9"})
	s.Require().NoError(err)

	_, err = s.payments.MarkStatus(ctx, p.ID, MarkStatusInput{Status: "failed"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestVerifyRequiresCompleted() {
	p := s.initiate("7500")
	_, err := s.payments.Verify(s.ctxAs(s.officer, id.RoleLandOfficer), p.ID, VerifyInput{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestVerifyComparesFeeExactly() {
	p := s.initiate("7499.99")
	_, err := s.payments.MarkStatus(s.ctxAs(s.citizen, id.RoleCitizen), p.ID, MarkStatusInput{Status: "completed"})
	s.Require().NoError(err)

	_, err = s.payments.Verify(s.ctxAs(s.officer, id.RoleLandOfficer), p.ID, VerifyInput{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
}

func (s *ServiceSuite) TestHappyPathRaisesAggregateFlag() {
	p := s.initiate("7500.00")
	_, err := s.payments.MarkStatus(s.ctxAs(s.citizen, id.RoleCitizen), p.ID, MarkStatusInput{Status: "completed", TransactionID: "TT-1"})
	s.Require().NoError(err)

	verified, err := s.payments.Verify(s.ctxAs(s.officer, id.RoleLandOfficer), p.ID, VerifyInput{Notes: "receipt matches"})
	s.Require().NoError(err)
	s.True(verified.Verified())
	s.Equal(propertymodels.StatusPaymentCompleted, s.appStatus())

	// Payer was told.
	s.Require().Len(s.sink.Messages, 1)
	s.Equal(s.citizen, s.sink.Messages[0].Recipient)
}

func (s *ServiceSuite) TestRejectedVerdictKeepsFlagDown() {
	p := s.initiate("7500")
	_, err := s.payments.MarkStatus(s.ctxAs(s.citizen, id.RoleCitizen), p.ID, MarkStatusInput{Status: "completed"})
	s.Require().NoError(err)

	_, err = s.payments.RejectVerification(s.ctxAs(s.officer, id.RoleLandOfficer), p.ID, VerifyInput{Notes: "receipt forged"})
	s.Require().NoError(err)
	s.Equal(propertymodels.StatusUnderReview, s.appStatus())

	// The verdict is final; a second one conflicts.
	_, err = s.payments.Verify(s.ctxAs(s.officer, id.RoleLandOfficer), p.ID, VerifyInput{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestPayerCannotVerifyOwnPayment() {
	p := s.initiate("7500")
	_, err := s.payments.MarkStatus(s.ctxAs(s.citizen, id.RoleCitizen), p.ID, MarkStatusInput{Status: "completed"})
	s.Require().NoError(err)

	_, err = s.payments.Verify(s.ctxAs(s.citizen, id.RoleLandOfficer), p.ID, VerifyInput{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestVerifiedTransferFeeNotedOnTransferTrail() {
	transferID := id.NewTransferID()
	s.payments.BindTransfers(&stubTransfers{prev: s.citizen, next: id.NewActorID()})

	p, err := s.payments.Initiate(s.ctxAs(s.citizen, id.RoleCitizen), InitiateInput{
		TransferID:    transferID.String(),
		Amount:        "5000",
		PaymentType:   "transfer_fee",
		PaymentMethod: "telebirr",
	})
	s.Require().NoError(err)

	_, err = s.payments.MarkStatus(s.ctxAs(s.citizen, id.RoleCitizen), p.ID, MarkStatusInput{Status: "completed", TransactionID: "TT-5"})
	s.Require().NoError(err)
	_, err = s.payments.Verify(s.ctxAs(s.officer, id.RoleLandOfficer), p.ID, VerifyInput{Notes: "receipt matches"})
	s.Require().NoError(err)

	trail, err := s.auditLog.ListByEntity(context.Background(), audit.EntityTransfer, transferID.String())
	s.Require().NoError(err)
	s.Require().Len(trail, 1)
	s.Equal(audit.ActionTransferFeeVerified, trail[0].Action)
	s.Equal(p.ID.String(), trail[0].Notes)
	s.Equal(s.officer, trail[0].ActorID)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
