package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/net/websocket"

	"lms/internal/application/models"
	"lms/internal/application/store"
	"lms/internal/room"
	"lms/internal/session"
	"lms/internal/transport/ws"
	"lms/internal/verification"
	id "lms/pkg/domain"
)

const testSecret = "handler-test-secret"

type frame struct {
	Type          string          `json:"type"`
	ApplicationID string          `json:"applicationId"`
	RequestID     string          `json:"requestId"`
	Payload       json.RawMessage `json:"payload"`
}

type HandlerSuite struct {
	suite.Suite
	rooms  *room.Registry
	svc    *verification.Service
	server *httptest.Server
	issuer *session.Issuer

	applicantID id.SubjectID
	appID       id.ApplicationID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.start(ws.Config{MaxFramesPerSecond: 50})
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
	s.server = nil
}

func (s *HandlerSuite) start(cfg ws.Config) {
	if s.server != nil {
		s.server.Close()
	}
	s.rooms = room.NewRegistry()
	s.svc = verification.New(store.NewInMemory(), s.rooms,
		verification.WithAccountLookup(verification.NewDirectoryLookup(map[string]string{
			"mpamba:+265888000111": "J Banda",
		})),
		verification.WithEventTimeout(time.Second),
	)
	s.issuer = session.NewIssuer(testSecret)
	s.server = httptest.NewServer(ws.New(session.NewGate(testSecret), s.svc, s.rooms, cfg))

	s.applicantID = id.SubjectID(id.NewApplicationID())
	app, err := s.svc.CreateApplication(context.Background(), verification.Caller{
		Principal: session.Principal{SubjectID: s.applicantID, Role: session.RoleApplicant},
	}, verification.CreateApplication{
		PersonalInfo: models.PersonalInfo{FullName: "John Banda", IDNumber: "MW-1"},
	})
	s.Require().NoError(err)
	s.appID = app.ID
}

func (s *HandlerSuite) token(subject id.SubjectID, role session.Role) string {
	token, err := s.issuer.Issue(subject, role, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *HandlerSuite) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *HandlerSuite) dial(token string) *websocket.Conn {
	cfg, err := websocket.NewConfig(s.wsURL(), s.server.URL)
	s.Require().NoError(err)
	cfg.Header.Set("Authorization", "Bearer "+token)
	conn, err := websocket.DialConfig(cfg)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *HandlerSuite) dialApplicant() *websocket.Conn {
	return s.dial(s.token(s.applicantID, session.RoleApplicant))
}

func (s *HandlerSuite) dialOfficer() *websocket.Conn {
	return s.dial(s.token(id.SubjectID(id.NewApplicationID()), session.RoleOfficer))
}

func (s *HandlerSuite) send(conn *websocket.Conn, eventType, requestID string, payload map[string]any) {
	if payload != nil {
		if _, ok := payload["applicationId"]; !ok {
			payload["applicationId"] = s.appID.String()
		}
	}
	s.Require().NoError(websocket.JSON.Send(conn, map[string]any{
		"type":      eventType,
		"requestId": requestID,
		"payload":   payload,
	}))
}

func (s *HandlerSuite) next(conn *websocket.Conn) frame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var f frame
	s.Require().NoError(websocket.JSON.Receive(conn, &f))
	return f
}

func (s *HandlerSuite) expect(conn *websocket.Conn, types ...string) []frame {
	frames := make([]frame, 0, len(types))
	for _, want := range types {
		f := s.next(conn)
		s.Require().Equal(want, f.Type, string(f.Payload))
		frames = append(frames, f)
	}
	return frames
}

func (s *HandlerSuite) join(conn *websocket.Conn) {
	s.send(conn, "join-application", "join", map[string]any{})
	s.expect(conn, verification.OutJoinedApplication, verification.OutVerificationStatus)
}

func (s *HandlerSuite) expectError(conn *websocket.Conn, code string) frame {
	f := s.next(conn)
	s.Require().Equal(verification.OutError, f.Type)
	var payload ws.ErrorPayload
	s.Require().NoError(json.Unmarshal(f.Payload, &payload))
	s.Equal(code, payload.Code, payload.Message)
	return f
}

func (s *HandlerSuite) TestUpgradeRequiresSession() {
	s.Run("missing token is refused before upgrade", func() {
		resp, err := http.Get(s.server.URL)
		s.Require().NoError(err)
		defer resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("invalid token is refused", func() {
		cfg, err := websocket.NewConfig(s.wsURL(), s.server.URL)
		s.Require().NoError(err)
		cfg.Header.Set("Authorization", "Bearer not-a-token")
		_, err = websocket.DialConfig(cfg)
		s.Error(err)
	})

	s.Run("token query parameter is accepted", func() {
		cfg, err := websocket.NewConfig(s.wsURL()+"?token="+s.token(s.applicantID, session.RoleApplicant), s.server.URL)
		s.Require().NoError(err)
		conn, err := websocket.DialConfig(cfg)
		s.Require().NoError(err)
		defer conn.Close()
		s.join(conn)
	})
}

func (s *HandlerSuite) TestJoinSendsSnapshot() {
	conn := s.dialApplicant()
	s.send(conn, "join-application", "r-1", map[string]any{})

	frames := s.expect(conn, verification.OutJoinedApplication, verification.OutVerificationStatus)
	s.Equal("r-1", frames[0].RequestID)
	s.Equal(s.appID.String(), frames[0].ApplicationID)

	var joined verification.JoinedPayload
	s.Require().NoError(json.Unmarshal(frames[0].Payload, &joined))
	s.Equal(string(models.StatusDraft), joined.Status)

	var snapshot map[string]json.RawMessage
	s.Require().NoError(json.Unmarshal(frames[1].Payload, &snapshot))
	s.Contains(snapshot, "photo")
	s.Equal(1, s.rooms.Size(s.appID))
}

func (s *HandlerSuite) TestFacetEventsReachTheRoom() {
	applicant := s.dialApplicant()
	officer := s.dialOfficer()
	s.join(applicant)

	s.send(officer, "officer-join", "o-1", map[string]any{})
	s.expect(officer, verification.OutJoinedApplication, verification.OutVerificationStatus, verification.OutOfficerConnected)
	s.expect(applicant, verification.OutOfficerConnected)

	s.send(applicant, "capture-photo", "p-1", map[string]any{
		"imageData": "data:image/jpeg;base64,AAAA",
		"location":  map[string]any{"latitude": -13.96, "longitude": 33.78},
	})
	for _, conn := range []*websocket.Conn{applicant, officer} {
		f := s.expect(conn, verification.OutPhotoCaptured)[0]
		s.Equal("p-1", f.RequestID)
	}

	s.send(officer, "send-message", "m-1", map[string]any{"message": "  hello  "})
	f := s.expect(applicant, verification.OutNewMessage)[0]
	var msg verification.NewMessagePayload
	s.Require().NoError(json.Unmarshal(f.Payload, &msg))
	s.Equal("hello", msg.Message)
	s.Equal("officer", msg.SenderRole)
}

func (s *HandlerSuite) TestMobileMoneyThenIdentityMismatch() {
	conn := s.dialApplicant()
	s.join(conn)

	s.send(conn, "verify-mobile-money", "mm", map[string]any{
		"provider":    "MPAMBA",
		"phoneNumber": "+265 888 000 111",
	})
	f := s.expect(conn, verification.OutMobileMoneyVerified)[0]
	var account verification.MobileMoneyVerifiedPayload
	s.Require().NoError(json.Unmarshal(f.Payload, &account))
	s.True(account.Verified)
	s.Equal("J Banda", account.AccountName)
	s.Equal("mpamba", account.Provider)

	s.send(conn, "verify-id", "id", map[string]any{
		"idImages": map[string]any{"front": "front-image", "back": "back-image"},
	})
	f = s.expect(conn, verification.OutIDVerified)[0]
	var result verification.IDVerifiedPayload
	s.Require().NoError(json.Unmarshal(f.Payload, &result))
	s.False(result.Verified)
	s.InDelta(0.7, result.MatchScore, 1e-9)
	s.Equal("Name mismatch detected", result.Message)
}

func (s *HandlerSuite) TestSenderOutsideRoomStillGetsResult() {
	conn := s.dialApplicant()

	s.send(conn, "verify-location", "loc", map[string]any{
		"coordinates": map[string]any{"latitude": -13.96, "longitude": 33.78, "accuracy": 10},
	})
	f := s.expect(conn, verification.OutLocationVerified)[0]
	var result verification.LocationVerifiedPayload
	s.Require().NoError(json.Unmarshal(f.Payload, &result))
	s.True(result.Verified)
	s.Equal(0, s.rooms.Size(s.appID))
}

func (s *HandlerSuite) TestRefusedFrames() {
	conn := s.dialApplicant()

	s.Run("unknown event type", func() {
		s.send(conn, "approve-everything", "u-1", map[string]any{})
		f := s.expectError(conn, "bad_request")
		s.Equal("u-1", f.RequestID)
	})

	s.Run("frame that is not json", func() {
		s.Require().NoError(websocket.Message.Send(conn, "{not json"))
		s.expectError(conn, "bad_request")
	})

	s.Run("missing payload", func() {
		s.send(conn, "join-application", "np", nil)
		s.expectError(conn, "bad_request")
	})

	s.Run("malformed application id", func() {
		s.send(conn, "join-application", "bad", map[string]any{"applicationId": "nope"})
		s.expectError(conn, "validation_error")
	})

	s.Run("unknown application", func() {
		s.send(conn, "join-application", "nf", map[string]any{"applicationId": id.NewApplicationID().String()})
		s.expectError(conn, "not_found")
	})

	s.Run("message before joining", func() {
		s.send(conn, "send-message", "m", map[string]any{"message": "hi"})
		s.expectError(conn, "forbidden")
	})

	s.Run("applicant cannot join as officer", func() {
		s.send(conn, "officer-join", "oj", map[string]any{})
		s.expectError(conn, "forbidden")
	})

	s.Run("connection survives refused frames", func() {
		s.join(conn)
	})
}

func (s *HandlerSuite) TestStrangerCannotJoin() {
	stranger := s.dial(s.token(id.SubjectID(id.NewApplicationID()), session.RoleApplicant))
	s.send(stranger, "join-application", "s", map[string]any{})
	s.expectError(stranger, "forbidden")
	s.Equal(0, s.rooms.Size(s.appID))
}

func (s *HandlerSuite) TestLeave() {
	conn := s.dialApplicant()
	s.join(conn)

	s.send(conn, "leave-application", "l", map[string]any{})
	f := s.expect(conn, verification.OutLeftApplication)[0]
	s.Equal("l", f.RequestID)
	s.Equal(0, s.rooms.Size(s.appID))
}

func (s *HandlerSuite) TestDisconnectLeavesRooms() {
	conn := s.dialApplicant()
	s.join(conn)
	s.Require().Equal(1, s.rooms.Size(s.appID))

	s.Require().NoError(conn.Close())
	s.Eventually(func() bool { return s.rooms.Size(s.appID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func (s *HandlerSuite) TestRateLimitClosesConnection() {
	s.start(ws.Config{MaxFramesPerSecond: 2})
	conn := s.dialApplicant()

	for range 3 {
		s.send(conn, "approve-everything", "", map[string]any{})
	}
	s.expectError(conn, "bad_request")
	s.expectError(conn, "bad_request")
	f := s.expectError(conn, "bad_request")
	s.Contains(string(f.Payload), "rate limit")

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var f2 frame
	err := websocket.JSON.Receive(conn, &f2)
	s.True(errors.Is(err, io.EOF), "expected closed connection, got %v", err)
}

func (s *HandlerSuite) TestIdleConnectionIsClosed() {
	s.start(ws.Config{IdleTimeout: 50 * time.Millisecond})
	conn := s.dialApplicant()

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var f frame
	err := websocket.JSON.Receive(conn, &f)
	s.True(errors.Is(err, io.EOF), "expected closed connection, got %v", err)
}
