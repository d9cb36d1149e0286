// Package ws serves the realtime verification channel over websockets.
//
// A connection is authenticated once, before the upgrade. Each inbound frame
// is dispatched synchronously to the verification coordinator, so the frames
// of one connection are handled in the order they were sent.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"lms/internal/platform/metrics"
	"lms/internal/platform/ratewindow"
	"lms/internal/room"
	"lms/internal/session"
	"lms/internal/verification"
	id "lms/pkg/domain"
	dErrors "lms/pkg/domain-errors"
	"lms/pkg/platform/httputil"
	"lms/pkg/requestcontext"
)

// Authenticator validates a session token.
type Authenticator interface {
	Authenticate(token string) (session.Principal, error)
}

// Coordinator is the subset of the verification service the channel drives.
type Coordinator interface {
	Join(ctx context.Context, caller verification.Caller, appID id.ApplicationID) (verification.JoinResult, error)
	Leave(ctx context.Context, caller verification.Caller, appID id.ApplicationID)
	OfficerJoin(ctx context.Context, caller verification.Caller, appID id.ApplicationID) (verification.JoinResult, error)
	SendMessage(ctx context.Context, caller verification.Caller, cmd verification.SendMessage) (room.Event, error)
	CapturePhoto(ctx context.Context, caller verification.Caller, cmd verification.CapturePhoto) (room.Event, error)
	VerifyLocation(ctx context.Context, caller verification.Caller, cmd verification.VerifyLocation) (room.Event, error)
	VerifyWitness(ctx context.Context, caller verification.Caller, cmd verification.VerifyWitness) (room.Event, error)
	VerifyID(ctx context.Context, caller verification.Caller, cmd verification.VerifyID) (room.Event, error)
	VerifyMobileMoney(ctx context.Context, caller verification.Caller, cmd verification.VerifyMobileMoney) (room.Event, error)
	ResetFacet(ctx context.Context, caller verification.Caller, cmd verification.ResetFacet) (room.Event, error)
}

// Rooms is the membership surface the channel needs on disconnect.
type Rooms interface {
	IsMember(member room.Member, appID id.ApplicationID) bool
	LeaveAll(member room.Member)
}

// Config bounds a connection.
type Config struct {
	IdleTimeout        time.Duration
	MaxFramesPerSecond int
	SendBuffer         int
	MaxFrameBytes      int
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.MaxFramesPerSecond <= 0 {
		c.MaxFramesPerSecond = 20
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 16 << 20
	}
	return c
}

type Handler struct {
	gate    Authenticator
	service Coordinator
	rooms   Rooms
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func New(gate Authenticator, service Coordinator, rooms Rooms, cfg Config, opts ...Option) *Handler {
	h := &Handler{
		gate:    gate,
		service: service,
		rooms:   rooms,
		cfg:     cfg.withDefaults(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP authenticates the upgrade request and then serves the socket.
// A refused request is answered with 401 and never reaches the upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "method not allowed"))
		return
	}
	principal, err := h.gate.Authenticate(tokenFromRequest(r))
	if err != nil {
		h.logger.WarnContext(r.Context(), "realtime connection refused",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	// Origin is not checked; the session token authenticates the connection.
	server := websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			h.serve(conn, principal)
		},
	}
	server.ServeHTTP(w, r)
}

// tokenFromRequest reads the bearer header, then the token query parameter.
// Browsers cannot set headers on a websocket upgrade.
func tokenFromRequest(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (h *Handler) serve(conn *websocket.Conn, principal session.Principal) {
	conn.MaxPayloadBytes = h.cfg.MaxFrameBytes
	c := newConnection(conn, principal, h.cfg.SendBuffer, h.logger)

	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()

	h.metrics.ConnectionOpened()
	h.logger.InfoContext(ctx, "realtime connection opened",
		"connection_id", c.id,
		"subject_id", principal.SubjectID.String(),
		"role", string(principal.Role),
	)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()
	defer func() {
		h.rooms.LeaveAll(c)
		c.close()
		<-writerDone
		h.metrics.ConnectionClosed()
		h.logger.InfoContext(ctx, "realtime connection closed", "connection_id", c.id)
	}()

	limiter := ratewindow.New(h.cfg.MaxFramesPerSecond, time.Second)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout)); err != nil {
			return
		}
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				c.sendError("", dErrors.New(dErrors.CodeValidation, "frame is too large"))
				continue
			}
			h.logDisconnect(ctx, c, err)
			return
		}
		select {
		case <-c.done:
			return
		default:
		}

		if !limiter.Allow(time.Now()) {
			c.sendError("", dErrors.New(dErrors.CodeBadRequest, "rate limit exceeded"))
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("", dErrors.New(dErrors.CodeBadRequest, "invalid frame"))
			continue
		}
		frameCtx := requestcontext.WithRequestID(ctx, frame.RequestID)
		if err := h.dispatch(frameCtx, c, frame); err != nil {
			c.sendError(frame.RequestID, err)
		}
	}
}

func (h *Handler) logDisconnect(ctx context.Context, c *connection, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
	case errors.As(err, &netErr) && netErr.Timeout():
		h.logger.InfoContext(ctx, "closing idle realtime connection", "connection_id", c.id)
	default:
		select {
		case <-c.done:
		default:
			h.logger.WarnContext(ctx, "realtime read failed", "connection_id", c.id, "error", err)
		}
	}
}

// dispatch routes a frame by its event type.
func (h *Handler) dispatch(ctx context.Context, c *connection, f Frame) error {
	eventType, ok := verification.ParseEventType(f.Type)
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, "unsupported event type: "+f.Type)
	}
	caller := verification.Caller{Principal: c.principal, Member: c}

	switch eventType {
	case verification.EventJoinApplication:
		return h.join(ctx, caller, f, h.service.Join)
	case verification.EventOfficerJoin:
		return h.join(ctx, caller, f, h.service.OfficerJoin)
	case verification.EventLeaveApplication:
		_, appID, err := decode[applicationPayload](f.Payload)
		if err != nil {
			return err
		}
		h.service.Leave(ctx, caller, appID)
		c.unicast(room.Event{
			Type:          verification.OutLeftApplication,
			ApplicationID: appID,
			RequestID:     f.RequestID,
			Payload:       applicationPayload{ApplicationID: appID.String()},
		})
		return nil
	case verification.EventCapturePhoto:
		return handle[capturePhotoPayload](ctx, h, c, caller, f, h.service.CapturePhoto)
	case verification.EventVerifyLocation:
		return handle[verifyLocationPayload](ctx, h, c, caller, f, h.service.VerifyLocation)
	case verification.EventVerifyWitness:
		return handle[verifyWitnessPayload](ctx, h, c, caller, f, h.service.VerifyWitness)
	case verification.EventVerifyID:
		return handle[verifyIDPayload](ctx, h, c, caller, f, h.service.VerifyID)
	case verification.EventVerifyMobileMoney:
		return handle[verifyMobileMoneyPayload](ctx, h, c, caller, f, h.service.VerifyMobileMoney)
	case verification.EventSendMessage:
		return handle[sendMessagePayload](ctx, h, c, caller, f, h.service.SendMessage)
	case verification.EventResetFacet:
		return handle[resetFacetPayload](ctx, h, c, caller, f, h.service.ResetFacet)
	}
	return dErrors.New(dErrors.CodeBadRequest, "unsupported event type: "+f.Type)
}

func (h *Handler) join(
	ctx context.Context,
	caller verification.Caller,
	f Frame,
	op func(context.Context, verification.Caller, id.ApplicationID) (verification.JoinResult, error),
) error {
	_, appID, err := decode[applicationPayload](f.Payload)
	if err != nil {
		return err
	}
	_, err = op(ctx, caller, appID)
	return err
}

// handle runs one facet command. A sender outside the room still receives
// the resulting event.
func handle[P commandPayload[C], C any](
	ctx context.Context,
	h *Handler,
	c *connection,
	caller verification.Caller,
	f Frame,
	op func(context.Context, verification.Caller, C) (room.Event, error),
) error {
	p, appID, err := decode[P](f.Payload)
	if err != nil {
		return err
	}
	event, err := op(ctx, caller, p.command(appID))
	if err != nil {
		return err
	}
	if !h.rooms.IsMember(c, appID) {
		c.unicast(event)
	}
	return nil
}
