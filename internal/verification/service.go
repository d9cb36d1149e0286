// Package verification coordinates facet verification for loan applications.
//
// Every event for one application runs while holding that application's
// token from a KeyLock: read, external check, write and broadcast happen as one
// step, so events are applied and broadcast in arrival order. Events for
// different applications never wait on each other.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lms/internal/application/models"
	"lms/internal/audit"
	"lms/internal/platform/metrics"
	"lms/internal/room"
	"lms/internal/session"
	id "lms/pkg/domain"
	dErrors "lms/pkg/domain-errors"
	"lms/pkg/platform/sentinel"
	"lms/pkg/requestcontext"
)

const defaultEventTimeout = 10 * time.Second

// Caller is who sent an event. Member is nil for HTTP requests.
type Caller struct {
	Principal session.Principal
	Member    room.Member
}

// JoinResult is sent back to a member that joined an application room.
type JoinResult struct {
	ApplicationID id.ApplicationID
	Status        models.Status
	Snapshot      models.FacetSnapshot
}

// Service is the verification coordinator.
type Service struct {
	store    Store
	rooms    Broadcaster
	locks    *KeyLock
	location LocationPolicy
	accounts AccountLookup
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	timeout  time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithLocationPolicy(p LocationPolicy) Option {
	return func(s *Service) {
		if p != nil {
			s.location = p
		}
	}
}

func WithAccountLookup(l AccountLookup) Option {
	return func(s *Service) {
		if l != nil {
			s.accounts = l
		}
	}
}

// WithEventTimeout bounds how long one event may wait for its token and run.
func WithEventTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(store Store, rooms Broadcaster, opts ...Option) *Service {
	s := &Service{
		store:    store,
		rooms:    rooms,
		locks:    NewKeyLock(),
		location: NewGeofencePolicy(MalawiBounds),
		accounts: NewDirectoryLookup(nil),
		logger:   slog.New(slog.DiscardHandler),
		timeout:  defaultEventTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateApplication stores a new draft owned by the calling applicant.
func (s *Service) CreateApplication(ctx context.Context, caller Caller, cmd CreateApplication) (app *models.LoanApplication, err error) {
	appID := id.NewApplicationID()
	defer func() { s.observe(ctx, EventCreateApplication, appID, caller, err) }()

	if caller.Principal.Role != session.RoleApplicant {
		return nil, dErrors.New(dErrors.CodeForbidden, "only applicants can create applications")
	}
	app, err = models.NewLoanApplication(appID, caller.Principal.SubjectID, cmd.PersonalInfo, cmd.LoanDetails, requestcontext.Now(ctx))
	if err != nil {
		if de, ok := dErrors.As(err); ok {
			return nil, dErrors.New(dErrors.CodeValidation, de.Message)
		}
		return nil, err
	}
	if err := s.store.Create(ctx, app); err != nil {
		return nil, translate(err)
	}
	s.emit(ctx, audit.Event{
		ApplicationID: appID.String(),
		SubjectID:     caller.Principal.SubjectID.String(),
		Action:        audit.ActionApplicationCreated,
		Outcome:       audit.OutcomeOK,
	})
	return app, nil
}

// GetApplication returns the aggregate to its applicant or to staff.
func (s *Service) GetApplication(ctx context.Context, caller Caller, appID id.ApplicationID) (*models.LoanApplication, error) {
	app, err := s.store.FindByID(ctx, appID)
	if err != nil {
		return nil, translate(err)
	}
	if err := authorize(caller.Principal, app); err != nil {
		return nil, err
	}
	return app, nil
}

// Join adds the caller's connection to the application room and sends it the
// joined-application and verification-status frames. Both happen under the
// application's token so the member sees every event after the snapshot and
// none before it.
func (s *Service) Join(ctx context.Context, caller Caller, appID id.ApplicationID) (JoinResult, error) {
	var result JoinResult
	err := s.run(ctx, EventJoinApplication, appID, caller, nil, func(ctx context.Context) error {
		var err error
		result, err = s.join(ctx, caller, appID)
		return err
	})
	return result, err
}

func (s *Service) join(ctx context.Context, caller Caller, appID id.ApplicationID) (JoinResult, error) {
	if caller.Member == nil {
		return JoinResult{}, dErrors.New(dErrors.CodeBadRequest, "joining requires a realtime connection")
	}
	app, err := s.loadAuthorized(ctx, caller, appID)
	if err != nil {
		return JoinResult{}, err
	}
	s.rooms.Join(caller.Member, appID)
	s.unicast(ctx, caller.Member, appID, OutJoinedApplication, JoinedPayload{
		ApplicationID: appID.String(),
		Status:        string(app.Status),
	})
	s.unicast(ctx, caller.Member, appID, OutVerificationStatus, app.Snapshot())
	s.emit(ctx, audit.Event{
		ApplicationID: appID.String(),
		SubjectID:     caller.Principal.SubjectID.String(),
		Action:        audit.ActionRoomJoined,
		Outcome:       audit.OutcomeOK,
	})
	return JoinResult{ApplicationID: appID, Status: app.Status, Snapshot: app.Snapshot()}, nil
}

// Leave removes the caller's connection from the application room.
func (s *Service) Leave(_ context.Context, caller Caller, appID id.ApplicationID) {
	if caller.Member != nil {
		s.rooms.Leave(caller.Member, appID)
	}
}

// OfficerJoin joins an officer or admin to the room and announces them to it.
func (s *Service) OfficerJoin(ctx context.Context, caller Caller, appID id.ApplicationID) (JoinResult, error) {
	var result JoinResult
	err := s.run(ctx, EventOfficerJoin, appID, caller, func() error {
		if !caller.Principal.Role.IsStaff() {
			return dErrors.New(dErrors.CodeForbidden, "only officers and admins can join as officer")
		}
		return nil
	}, func(ctx context.Context) error {
		var err error
		result, err = s.join(ctx, caller, appID)
		if err != nil {
			return err
		}
		s.broadcast(ctx, appID, OutOfficerConnected, OfficerConnectedPayload{
			OfficerID: caller.Principal.SubjectID.String(),
			Role:      string(caller.Principal.Role),
			Timestamp: requestcontext.Now(ctx),
		})
		return nil
	})
	return result, err
}

// SendMessage relays a chat message to the room. Messages are not persisted.
func (s *Service) SendMessage(ctx context.Context, caller Caller, cmd SendMessage) (room.Event, error) {
	cmd.Normalize()
	var event room.Event
	err := s.run(ctx, EventSendMessage, cmd.ApplicationID, caller, cmd.Validate, func(ctx context.Context) error {
		if caller.Member == nil || !s.rooms.IsMember(caller.Member, cmd.ApplicationID) {
			return dErrors.New(dErrors.CodeForbidden, "join the application before sending messages")
		}
		event = s.broadcast(ctx, cmd.ApplicationID, OutNewMessage, NewMessagePayload{
			Sender:     caller.Principal.SubjectID.String(),
			SenderRole: string(caller.Principal.Role),
			Message:    cmd.Message,
			Type:       cmd.Type,
			Timestamp:  requestcontext.Now(ctx),
		})
		return nil
	})
	return event, err
}

// TransitionStatus moves the application along its lifecycle. Staff may take
// any allowed edge; an applicant may only submit their own draft.
func (s *Service) TransitionStatus(ctx context.Context, caller Caller, cmd TransitionStatus) (*models.LoanApplication, error) {
	to, ok := models.ParseStatus(cmd.To)
	var updated *models.LoanApplication
	err := s.run(ctx, EventTransitionStatus, cmd.ApplicationID, caller, func() error {
		if !ok {
			return dErrors.New(dErrors.CodeValidation, "unknown status: "+cmd.To)
		}
		if len(cmd.Note) > maxTextLength*4 {
			return dErrors.New(dErrors.CodeValidation, "note is too long")
		}
		return nil
	}, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		var previous models.Status
		app, err := s.store.Update(ctx, cmd.ApplicationID, func(app *models.LoanApplication) error {
			if err := authorizeTransition(caller.Principal, app, to); err != nil {
				return err
			}
			if err := app.CanTransitionTo(to); err != nil {
				return err
			}
			previous = app.Status
			app.ApplyTransition(to, caller.Principal.SubjectID.String(), cmd.Note, now)
			return nil
		})
		if err != nil {
			return err
		}
		updated = app
		last := app.StatusHistory[len(app.StatusHistory)-1]
		s.metrics.IncrementTransition(string(to))
		s.broadcast(ctx, cmd.ApplicationID, OutStatusChanged, StatusChangedPayload{
			Status:         string(to),
			PreviousStatus: string(previous),
			ChangedBy:      last.ChangedBy,
			Note:           last.Note,
			Timestamp:      last.Timestamp,
		})
		s.emit(ctx, audit.Event{
			ApplicationID: cmd.ApplicationID.String(),
			SubjectID:     caller.Principal.SubjectID.String(),
			Action:        audit.ActionStatusChanged,
			Outcome:       string(to),
			Reason:        last.Note,
		})
		return nil
	})
	return updated, err
}

// ResetFacet clears one facet so it can be submitted again. Staff only.
func (s *Service) ResetFacet(ctx context.Context, caller Caller, cmd ResetFacet) (room.Event, error) {
	facet, ok := models.ParseFacet(cmd.Facet)
	var event room.Event
	err := s.run(ctx, EventResetFacet, cmd.ApplicationID, caller, func() error {
		if !ok {
			return dErrors.New(dErrors.CodeValidation, "unknown facet: "+cmd.Facet)
		}
		return nil
	}, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		_, err := s.store.Update(ctx, cmd.ApplicationID, func(app *models.LoanApplication) error {
			if err := authorize(caller.Principal, app); err != nil {
				return err
			}
			if !caller.Principal.Role.IsStaff() {
				return dErrors.New(dErrors.CodeForbidden, "only officers and admins can reset a facet")
			}
			if app.Status.IsTerminal() {
				return dErrors.New(dErrors.CodeConflict, "application is "+string(app.Status)+"; verification is closed")
			}
			return app.ResetFacet(facet, now)
		})
		if err != nil {
			return err
		}
		event = s.broadcast(ctx, cmd.ApplicationID, OutFacetReset, FacetResetPayload{
			Facet:     string(facet),
			ResetBy:   caller.Principal.SubjectID.String(),
			Reason:    cmd.Reason,
			Timestamp: now,
		})
		s.emit(ctx, audit.Event{
			ApplicationID: cmd.ApplicationID.String(),
			SubjectID:     caller.Principal.SubjectID.String(),
			Action:        audit.ActionFacetReset,
			Facet:         string(facet),
			Outcome:       audit.OutcomeOK,
			Reason:        cmd.Reason,
		})
		return nil
	})
	return event, err
}

// run validates, takes the application's token and executes fn under a
// context that survives caller cancellation but not the event timeout.
func (s *Service) run(
	ctx context.Context,
	event EventType,
	appID id.ApplicationID,
	caller Caller,
	validate func() error,
	fn func(ctx context.Context) error,
) (err error) {
	defer func() { s.observe(ctx, event, appID, caller, err) }()

	if validate != nil {
		if err := validate(); err != nil {
			return err
		}
	}
	if appID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "applicationId is required")
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	release, err := s.locks.Lock(ctx, appID.String())
	s.metrics.ObserveLockWait(start)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for application")
	}
	defer release()

	return translate(fn(ctx))
}

func (s *Service) loadAuthorized(ctx context.Context, caller Caller, appID id.ApplicationID) (*models.LoanApplication, error) {
	app, err := s.store.FindByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller.Principal, app); err != nil {
		s.emit(ctx, audit.Event{
			ApplicationID: appID.String(),
			SubjectID:     caller.Principal.SubjectID.String(),
			Action:        audit.ActionAccessDenied,
			Outcome:       audit.OutcomeRejected,
			Reason:        "not the applicant",
		})
		return nil, err
	}
	return app, nil
}

// broadcast publishes to the room. Delivery problems are logged; the write
// that produced the event has already succeeded.
func (s *Service) broadcast(ctx context.Context, appID id.ApplicationID, eventType string, payload any) room.Event {
	event := room.Event{
		Type:          eventType,
		ApplicationID: appID,
		RequestID:     requestcontext.RequestID(ctx),
		Payload:       payload,
	}
	if _, err := s.rooms.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to broadcast event",
			"event", eventType,
			"application_id", appID.String(),
			"error", err,
		)
	}
	return event
}

func (s *Service) unicast(ctx context.Context, member room.Member, appID id.ApplicationID, eventType string, payload any) {
	err := s.rooms.Send(ctx, member, room.Event{
		Type:          eventType,
		ApplicationID: appID,
		RequestID:     requestcontext.RequestID(ctx),
		Payload:       payload,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send event",
			"event", eventType,
			"application_id", appID.String(),
			"error", err,
		)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(event.Action),
			"application_id", event.ApplicationID,
			"error", err,
		)
	}
}

func (s *Service) observe(ctx context.Context, event EventType, appID id.ApplicationID, caller Caller, err error) {
	if err == nil {
		s.metrics.ObserveEvent(string(event), audit.OutcomeOK)
		return
	}
	code := dErrors.CodeOf(err)
	s.metrics.ObserveEvent(string(event), string(code))
	attrs := []any{
		"event", string(event),
		"application_id", appID.String(),
		"subject_id", caller.Principal.SubjectID.String(),
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if code == dErrors.CodeInternal {
		s.logger.ErrorContext(ctx, "verification event failed", attrs...)
		return
	}
	s.logger.WarnContext(ctx, "verification event rejected", attrs...)
}

func authorize(p session.Principal, app *models.LoanApplication) error {
	if p.Role.IsStaff() || app.IsApplicant(p.SubjectID) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "not permitted to access this application")
}

func authorizeTransition(p session.Principal, app *models.LoanApplication, to models.Status) error {
	if err := authorize(p, app); err != nil {
		return err
	}
	if p.Role.IsStaff() {
		return nil
	}
	if app.Status == models.StatusDraft && to == models.StatusSubmitted {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "applicants can only submit their own draft")
}

// translate maps store facts and aggregate invariants to domain codes.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if de, ok := dErrors.As(err); ok {
		if de.Code == dErrors.CodeInvariantViolation {
			return dErrors.New(dErrors.CodeConflict, de.Message)
		}
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "application not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "application was modified concurrently, retry")
	case errors.Is(err, sentinel.ErrAlreadyExists):
		return dErrors.Wrap(err, dErrors.CodeConflict, "application already exists")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "verification timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to process verification")
	}
}
