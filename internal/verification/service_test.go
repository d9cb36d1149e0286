package verification_test

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks LocationPolicy,AccountLookup,AuditPublisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"lms/internal/application/models"
	"lms/internal/application/store"
	"lms/internal/audit"
	auditmemory "lms/internal/audit/store/memory"
	"lms/internal/platform/metrics"
	"lms/internal/room"
	"lms/internal/session"
	"lms/internal/verification"
	"lms/internal/verification/mocks"
	id "lms/pkg/domain"
	dErrors "lms/pkg/domain-errors"
	"lms/pkg/platform/sentinel"
	"lms/pkg/requestcontext"
)

type testMember struct {
	id     string
	mu     sync.Mutex
	frames []json.RawMessage
}

func (m *testMember) MemberID() string { return m.id }

func (m *testMember) Enqueue(frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, append(json.RawMessage(nil), frame...))
	return true
}

func (m *testMember) Evict(string) {}

func (m *testMember) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.frames))
	for _, f := range m.frames {
		var e struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &e)
		out = append(out, e.Type)
	}
	return out
}

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *store.InMemory
	rooms    *room.Registry
	audits   *auditmemory.InMemoryStore
	location *mocks.MockLocationPolicy
	accounts *mocks.MockAccountLookup
	svc      *verification.Service
	ctx      context.Context

	applicant verification.Caller
	officer   verification.Caller
	stranger  verification.Caller
	appID     id.ApplicationID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func newCaller(name string, role session.Role) verification.Caller {
	return verification.Caller{
		Principal: session.Principal{SubjectID: id.SubjectID(id.NewApplicationID()), Role: role},
		Member:    &testMember{id: name},
	}
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = store.NewInMemory()
	s.rooms = room.NewRegistry()
	s.audits = auditmemory.NewInMemoryStore()
	s.location = mocks.NewMockLocationPolicy(s.ctrl)
	s.accounts = mocks.NewMockAccountLookup(s.ctrl)
	s.svc = verification.New(s.store, s.rooms,
		verification.WithLocationPolicy(s.location),
		verification.WithAccountLookup(s.accounts),
		verification.WithAuditPublisher(audit.NewPublisher(s.audits)),
		verification.WithMetrics(metrics.New(prometheus.NewRegistry())),
		verification.WithEventTimeout(time.Second),
	)
	s.ctx = requestcontext.WithRequestID(context.Background(), "req-1")

	s.applicant = newCaller("applicant", session.RoleApplicant)
	s.officer = newCaller("officer", session.RoleOfficer)
	s.stranger = newCaller("stranger", session.RoleApplicant)

	app, err := s.svc.CreateApplication(s.ctx, s.applicant, verification.CreateApplication{
		PersonalInfo: models.PersonalInfo{FullName: "John Banda", IDNumber: "MW-1"},
		LoanDetails:  models.LoanDetails{Amount: 100000, Purpose: "stock", RepaymentPeriodMonths: 6},
	})
	s.Require().NoError(err)
	s.appID = app.ID
}

func joinFrames() []string {
	return []string{verification.OutJoinedApplication, verification.OutVerificationStatus}
}

func (s *ServiceSuite) member(c verification.Caller) *testMember {
	return c.Member.(*testMember)
}

func (s *ServiceSuite) stored() *models.LoanApplication {
	app, err := s.store.FindByID(s.ctx, s.appID)
	s.Require().NoError(err)
	return app
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *ServiceSuite) TestCreateApplication() {
	s.Run("staff cannot create applications", func() {
		_, err := s.svc.CreateApplication(s.ctx, s.officer, verification.CreateApplication{
			PersonalInfo: models.PersonalInfo{FullName: "x"},
		})
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("invalid personal info is a validation error", func() {
		_, err := s.svc.CreateApplication(s.ctx, s.applicant, verification.CreateApplication{})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("records an audit event", func() {
		events, err := s.audits.ListByApplication(s.ctx, s.appID.String())
		s.Require().NoError(err)
		s.Require().NotEmpty(events)
		s.Equal(audit.ActionApplicationCreated, events[0].Action)
		s.Equal("req-1", events[0].RequestID)
	})
}

func (s *ServiceSuite) TestJoin() {
	s.Run("applicant receives the snapshot and joins the room", func() {
		result, err := s.svc.Join(s.ctx, s.applicant, s.appID)
		s.Require().NoError(err)
		s.Equal(models.FacetSnapshot{}, result.Snapshot)
		s.Equal(models.StatusDraft, result.Status)
		s.True(s.rooms.IsMember(s.applicant.Member, s.appID))
		s.Equal(joinFrames(), s.member(s.applicant).types())
	})

	s.Run("officer may join any application", func() {
		_, err := s.svc.Join(s.ctx, s.officer, s.appID)
		s.Require().NoError(err)
		s.True(s.rooms.IsMember(s.officer.Member, s.appID))
	})

	s.Run("another applicant is refused and never joins", func() {
		_, err := s.svc.Join(s.ctx, s.stranger, s.appID)
		s.requireCode(err, dErrors.CodeForbidden)
		s.False(s.rooms.IsMember(s.stranger.Member, s.appID))
		s.Empty(s.member(s.stranger).types())
	})

	s.Run("unknown application", func() {
		_, err := s.svc.Join(s.ctx, s.applicant, id.NewApplicationID())
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("nil application id", func() {
		_, err := s.svc.Join(s.ctx, s.applicant, id.ApplicationID{})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("leave removes membership", func() {
		s.svc.Leave(s.ctx, s.officer, s.appID)
		s.False(s.rooms.IsMember(s.officer.Member, s.appID))
	})
}

func (s *ServiceSuite) TestCapturePhoto() {
	_, err := s.svc.Join(s.ctx, s.officer, s.appID)
	s.Require().NoError(err)

	event, err := s.svc.CapturePhoto(s.ctx, s.applicant, verification.CapturePhoto{
		ApplicationID: s.appID,
		ImageData:     "data:image/jpeg;base64,AAAA",
		Location:      &models.GeoPoint{Latitude: -13.96, Longitude: 33.78},
	})
	s.Require().NoError(err)
	s.Equal(verification.OutPhotoCaptured, event.Type)
	s.Equal("req-1", event.RequestID)
	s.Equal(append(joinFrames(), verification.OutPhotoCaptured), s.member(s.officer).types())
	s.True(s.stored().Verification.Photo.Verified)

	s.Run("resubmission over verified evidence is a conflict", func() {
		_, err := s.svc.CapturePhoto(s.ctx, s.applicant, verification.CapturePhoto{ApplicationID: s.appID, ImageData: "other"})
		s.requireCode(err, dErrors.CodeConflict)
		s.Equal("data:image/jpeg;base64,AAAA", s.stored().Verification.Photo.Image)
		s.Len(s.member(s.officer).types(), 3)
	})

	s.Run("empty image is a validation error", func() {
		_, err := s.svc.CapturePhoto(s.ctx, s.applicant, verification.CapturePhoto{ApplicationID: s.appID})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("stranger is refused", func() {
		_, err := s.svc.CapturePhoto(s.ctx, s.stranger, verification.CapturePhoto{ApplicationID: s.appID, ImageData: "x"})
		s.requireCode(err, dErrors.CodeForbidden)
	})
}

func (s *ServiceSuite) TestVerifyLocation() {
	point := models.GeoPoint{Latitude: -15.78, Longitude: 35.0, Accuracy: 20}

	s.Run("missing coordinates never reach the policy", func() {
		_, err := s.svc.VerifyLocation(s.ctx, s.applicant, verification.VerifyLocation{ApplicationID: s.appID})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("out of range latitude", func() {
		_, err := s.svc.VerifyLocation(s.ctx, s.applicant, verification.VerifyLocation{
			ApplicationID: s.appID,
			Coordinates:   &models.GeoPoint{Latitude: 91},
		})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("stranger never reaches the policy", func() {
		_, err := s.svc.VerifyLocation(s.ctx, s.stranger, verification.VerifyLocation{ApplicationID: s.appID, Coordinates: &point})
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("policy failure leaves the facet untouched", func() {
		s.location.EXPECT().Check(gomock.Any(), point).Return(verification.LocationResult{}, errors.New("geo service down"))
		_, err := s.svc.VerifyLocation(s.ctx, s.applicant, verification.VerifyLocation{ApplicationID: s.appID, Coordinates: &point})
		s.requireCode(err, dErrors.CodeInternal)
		s.Nil(s.stored().Verification.Location.CheckedAt)
	})

	s.Run("records the policy outcome", func() {
		s.location.EXPECT().Check(gomock.Any(), point).Return(verification.LocationResult{
			Verified: true, Confidence: 0.95, Message: "Location verified successfully",
		}, nil)
		event, err := s.svc.VerifyLocation(s.ctx, s.applicant, verification.VerifyLocation{ApplicationID: s.appID, Coordinates: &point})
		s.Require().NoError(err)

		payload := event.Payload.(verification.LocationVerifiedPayload)
		s.True(payload.Verified)
		s.Equal("Location verified successfully", payload.Message)
		loc := s.stored().Verification.Location
		s.True(loc.Verified)
		s.InDelta(0.95, loc.Confidence, 1e-9)
	})

	s.Run("verified location is not re-checked", func() {
		_, err := s.svc.VerifyLocation(s.ctx, s.applicant, verification.VerifyLocation{ApplicationID: s.appID, Coordinates: &point})
		s.requireCode(err, dErrors.CodeConflict)
	})
}

func (s *ServiceSuite) TestVerifyWitness() {
	event, err := s.svc.VerifyWitness(s.ctx, s.applicant, verification.VerifyWitness{
		ApplicationID: s.appID,
		Witness:       verification.WitnessData{Name: "Mary Phiri", IDNumber: "MW-2", Signature: "sig"},
	})
	s.Require().NoError(err)
	s.Equal("Mary Phiri", event.Payload.(verification.WitnessVerifiedPayload).WitnessName)
	s.Equal("Mary Phiri", s.stored().Verification.Witness.Name)

	_, err = s.svc.VerifyWitness(s.ctx, s.applicant, verification.VerifyWitness{ApplicationID: s.appID})
	s.requireCode(err, dErrors.CodeValidation)
}

// TestMobileMoneyThenIdentity covers the abbreviated-name mismatch flow.
func (s *ServiceSuite) TestMobileMoneyThenIdentity() {
	_, err := s.svc.Join(s.ctx, s.applicant, s.appID)
	s.Require().NoError(err)

	s.accounts.EXPECT().Lookup(gomock.Any(), "mpamba", "+265888000111").
		Return(verification.Account{HolderName: "J Banda", Active: true}, nil)

	event, err := s.svc.VerifyMobileMoney(s.ctx, s.applicant, verification.VerifyMobileMoney{
		ApplicationID: s.appID,
		Provider:      "MPAMBA",
		PhoneNumber:   "+265 888 000 111",
	})
	s.Require().NoError(err)
	mm := event.Payload.(verification.MobileMoneyVerifiedPayload)
	s.True(mm.Verified)
	s.Equal("J Banda", mm.AccountName)

	event, err = s.svc.VerifyID(s.ctx, s.applicant, verification.VerifyID{
		ApplicationID: s.appID,
		FrontImage:    "front",
		BackImage:     "back",
	})
	s.Require().NoError(err)
	idv := event.Payload.(verification.IDVerifiedPayload)
	s.False(idv.Verified)
	s.InDelta(0.7, idv.MatchScore, 1e-9)
	s.Equal("Name mismatch detected", idv.Message)

	app := s.stored()
	s.Equal(verification.MethodAutomated, app.Verification.IdentityDocument.Method)
	s.Require().NotNil(app.Verification.NameMatch)
	s.Equal("J Banda", app.Verification.NameMatch.AccountName)
	s.InDelta(0.7, app.Verification.NameMatch.Score, 1e-9)
	s.Equal(
		append(joinFrames(), verification.OutMobileMoneyVerified, verification.OutIDVerified),
		s.member(s.applicant).types(),
	)
}

func (s *ServiceSuite) TestVerifyMobileMoneyFailures() {
	s.Run("invalid provider and phone", func() {
		_, err := s.svc.VerifyMobileMoney(s.ctx, s.applicant, verification.VerifyMobileMoney{
			ApplicationID: s.appID, Provider: "mpesa", PhoneNumber: "+265888000111",
		})
		s.requireCode(err, dErrors.CodeValidation)

		_, err = s.svc.VerifyMobileMoney(s.ctx, s.applicant, verification.VerifyMobileMoney{
			ApplicationID: s.appID, Provider: "tnm", PhoneNumber: "+26588800011",
		})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("lookup outage is internal and writes nothing", func() {
		s.accounts.EXPECT().Lookup(gomock.Any(), "tnm", "+265888000111").
			Return(verification.Account{}, sentinel.ErrUnavailable)
		_, err := s.svc.VerifyMobileMoney(s.ctx, s.applicant, verification.VerifyMobileMoney{
			ApplicationID: s.appID, Provider: "tnm", PhoneNumber: "+265888000111",
		})
		s.requireCode(err, dErrors.CodeInternal)
		s.Empty(s.stored().PaymentAccount.Provider)
	})

	s.Run("unknown account is recorded unverified", func() {
		s.accounts.EXPECT().Lookup(gomock.Any(), "airtel_money", "+265999000111").
			Return(verification.Account{}, sentinel.ErrNotFound)
		event, err := s.svc.VerifyMobileMoney(s.ctx, s.applicant, verification.VerifyMobileMoney{
			ApplicationID: s.appID, Provider: "airtel_money", PhoneNumber: "+265999000111",
		})
		s.Require().NoError(err)
		s.False(event.Payload.(verification.MobileMoneyVerifiedPayload).Verified)
		app := s.stored()
		s.Equal("airtel_money", app.PaymentAccount.Provider)
		s.False(app.Verification.PaymentAccount.Verified)
	})
}

// TestConcurrentFacetsOnOneApplication verifies unrelated facets submitted at
// the same time are both kept.
func (s *ServiceSuite) TestConcurrentFacetsOnOneApplication() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.svc.CapturePhoto(s.ctx, s.applicant, verification.CapturePhoto{ApplicationID: s.appID, ImageData: "img"})
		s.NoError(err)
	}()
	go func() {
		defer wg.Done()
		_, err := s.svc.VerifyWitness(s.ctx, s.applicant, verification.VerifyWitness{
			ApplicationID: s.appID, Witness: verification.WitnessData{Name: "Mary Phiri"},
		})
		s.NoError(err)
	}()
	wg.Wait()

	app := s.stored()
	s.Equal("img", app.Verification.Photo.Image)
	s.Equal("Mary Phiri", app.Verification.Witness.Name)
}

func (s *ServiceSuite) TestEventsAreSerializedPerApplication() {
	started := make(chan struct{})
	unblock := make(chan struct{})
	point := models.GeoPoint{Latitude: -13.9, Longitude: 33.7}
	s.location.EXPECT().Check(gomock.Any(), point).DoAndReturn(
		func(context.Context, models.GeoPoint) (verification.LocationResult, error) {
			close(started)
			<-unblock
			return verification.LocationResult{Verified: true, Confidence: 0.95, Message: "ok"}, nil
		})

	done := make(chan error, 1)
	go func() {
		_, err := s.svc.VerifyLocation(s.ctx, s.applicant, verification.VerifyLocation{ApplicationID: s.appID, Coordinates: &point})
		done <- err
	}()
	<-started

	s.Run("another application is not blocked", func() {
		other, err := s.svc.CreateApplication(s.ctx, s.applicant, verification.CreateApplication{
			PersonalInfo: models.PersonalInfo{FullName: "John Banda"},
		})
		s.Require().NoError(err)
		_, err = s.svc.CapturePhoto(s.ctx, s.applicant, verification.CapturePhoto{ApplicationID: other.ID, ImageData: "img"})
		s.NoError(err)
	})

	s.Run("a cancelled caller still gets its event applied", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		photoDone := make(chan error, 1)
		go func() {
			_, err := s.svc.CapturePhoto(ctx, s.applicant, verification.CapturePhoto{ApplicationID: s.appID, ImageData: "img"})
			photoDone <- err
		}()

		close(unblock)
		s.Require().NoError(<-done)
		s.Require().NoError(<-photoDone)
		app := s.stored()
		s.True(app.Verification.Location.Verified)
		s.True(app.Verification.Photo.Verified)
	})
}

func (s *ServiceSuite) TestEventTimeout() {
	svc := verification.New(s.store, s.rooms,
		verification.WithLocationPolicy(s.location),
		verification.WithEventTimeout(30*time.Millisecond),
	)
	point := models.GeoPoint{Latitude: -13.9, Longitude: 33.7}
	started := make(chan struct{})
	unblock := make(chan struct{})
	s.location.EXPECT().Check(gomock.Any(), point).DoAndReturn(
		func(context.Context, models.GeoPoint) (verification.LocationResult, error) {
			close(started)
			<-unblock
			return verification.LocationResult{Verified: true, Confidence: 0.95, Message: "ok"}, nil
		})

	done := make(chan error, 1)
	go func() {
		_, err := svc.VerifyLocation(s.ctx, s.applicant, verification.VerifyLocation{ApplicationID: s.appID, Coordinates: &point})
		done <- err
	}()
	<-started

	_, err := svc.CapturePhoto(s.ctx, s.applicant, verification.CapturePhoto{ApplicationID: s.appID, ImageData: "img"})
	s.requireCode(err, dErrors.CodeTimeout)

	close(unblock)
	s.requireCode(<-done, dErrors.CodeTimeout)
	app := s.stored()
	s.False(app.Verification.Photo.Verified)
	s.False(app.Verification.Location.Verified)
}

func (s *ServiceSuite) TestTransitionStatus() {
	_, err := s.svc.Join(s.ctx, s.officer, s.appID)
	s.Require().NoError(err)

	s.Run("applicant submits own draft", func() {
		app, err := s.svc.TransitionStatus(s.ctx, s.applicant, verification.TransitionStatus{
			ApplicationID: s.appID, To: "submitted",
		})
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, app.Status)
		s.Len(app.StatusHistory, 2)
		s.Equal(s.applicant.Principal.SubjectID.String(), app.StatusHistory[1].ChangedBy)
		s.Contains(s.member(s.officer).types(), verification.OutStatusChanged)
	})

	s.Run("applicant cannot move beyond submission", func() {
		_, err := s.svc.TransitionStatus(s.ctx, s.applicant, verification.TransitionStatus{
			ApplicationID: s.appID, To: "under_review",
		})
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("illegal edge is a conflict and appends nothing", func() {
		_, err := s.svc.TransitionStatus(s.ctx, s.officer, verification.TransitionStatus{
			ApplicationID: s.appID, To: "approved",
		})
		s.requireCode(err, dErrors.CodeConflict)
		s.Len(s.stored().StatusHistory, 2)
	})

	s.Run("unknown status", func() {
		_, err := s.svc.TransitionStatus(s.ctx, s.officer, verification.TransitionStatus{
			ApplicationID: s.appID, To: "archived",
		})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("officer walks the lifecycle", func() {
		for _, to := range []string{"under_review", "verification_in_progress", "approved", "disbursed", "completed", "defaulted"} {
			_, err := s.svc.TransitionStatus(s.ctx, s.officer, verification.TransitionStatus{
				ApplicationID: s.appID, To: to, Note: "step " + to,
			})
			s.Require().NoError(err, to)
		}
		app := s.stored()
		s.Equal(models.StatusDefaulted, app.Status)
		s.Len(app.StatusHistory, 8)
		s.Equal("step defaulted", app.StatusHistory[7].Note)
	})
}

func (s *ServiceSuite) TestResetFacet() {
	_, err := s.svc.CapturePhoto(s.ctx, s.applicant, verification.CapturePhoto{ApplicationID: s.appID, ImageData: "img"})
	s.Require().NoError(err)

	s.Run("applicant cannot reset", func() {
		_, err := s.svc.ResetFacet(s.ctx, s.applicant, verification.ResetFacet{ApplicationID: s.appID, Facet: "photo"})
		s.requireCode(err, dErrors.CodeForbidden)
		s.True(s.stored().Verification.Photo.Verified)
	})

	s.Run("unknown facet", func() {
		_, err := s.svc.ResetFacet(s.ctx, s.officer, verification.ResetFacet{ApplicationID: s.appID, Facet: "selfie"})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("officer reset allows resubmission", func() {
		event, err := s.svc.ResetFacet(s.ctx, s.officer, verification.ResetFacet{
			ApplicationID: s.appID, Facet: "photo", Reason: "blurry",
		})
		s.Require().NoError(err)
		s.Equal(verification.OutFacetReset, event.Type)
		s.False(s.stored().Verification.Photo.Verified)

		_, err = s.svc.CapturePhoto(s.ctx, s.applicant, verification.CapturePhoto{ApplicationID: s.appID, ImageData: "sharp"})
		s.Require().NoError(err)
		s.Equal("sharp", s.stored().Verification.Photo.Image)
	})
}

func (s *ServiceSuite) TestOfficerJoinAndMessages() {
	_, err := s.svc.Join(s.ctx, s.applicant, s.appID)
	s.Require().NoError(err)

	s.Run("applicant cannot officer-join", func() {
		_, err := s.svc.OfficerJoin(s.ctx, s.applicant, s.appID)
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("officer join is announced to the room", func() {
		_, err := s.svc.OfficerJoin(s.ctx, s.officer, s.appID)
		s.Require().NoError(err)
		s.Equal(append(joinFrames(), verification.OutOfficerConnected), s.member(s.applicant).types())
	})

	s.Run("non-member cannot send messages", func() {
		_, err := s.svc.SendMessage(s.ctx, s.stranger, verification.SendMessage{ApplicationID: s.appID, Message: "hi"})
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("empty message is a validation error", func() {
		_, err := s.svc.SendMessage(s.ctx, s.officer, verification.SendMessage{ApplicationID: s.appID, Message: "   "})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("member message reaches the room", func() {
		event, err := s.svc.SendMessage(s.ctx, s.officer, verification.SendMessage{ApplicationID: s.appID, Message: "Please hold the ID closer"})
		s.Require().NoError(err)
		payload := event.Payload.(verification.NewMessagePayload)
		s.Equal("text", payload.Type)
		s.Equal(string(session.RoleOfficer), payload.SenderRole)
		s.Contains(s.member(s.applicant).types(), verification.OutNewMessage)
	})
}

func (s *ServiceSuite) TestAuditFailureDoesNotFailTheEvent() {
	publisher := mocks.NewMockAuditPublisher(s.ctrl)
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit sink down")).MinTimes(1)

	svc := verification.New(s.store, s.rooms, verification.WithAuditPublisher(publisher))
	_, err := svc.CapturePhoto(s.ctx, s.applicant, verification.CapturePhoto{ApplicationID: s.appID, ImageData: "img"})
	s.Require().NoError(err)
	s.True(s.stored().Verification.Photo.Verified)
}
