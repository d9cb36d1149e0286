package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"lms/internal/room"
	"lms/internal/session"
	"lms/internal/verification"
	dErrors "lms/pkg/domain-errors"
)

const writeTimeout = 10 * time.Second

// connection is one authenticated websocket. Frames reach the socket only
// through send, drained by writeLoop, so room fan-out never blocks on a slow
// peer.
type connection struct {
	id        string
	principal session.Principal
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func newConnection(ws *websocket.Conn, principal session.Principal, buffer int, logger *slog.Logger) *connection {
	return &connection{
		id:        uuid.NewString(),
		principal: principal,
		ws:        ws,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

func (c *connection) MemberID() string {
	return c.id
}

// Enqueue queues a frame without blocking. Frames for a closing connection
// are dropped.
func (c *connection) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *connection) Evict(reason string) {
	c.logger.Warn("closing realtime connection",
		"connection_id", c.id,
		"subject_id", c.principal.SubjectID.String(),
		"reason", reason,
	)
	c.close()
}

func (c *connection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writeLoop delivers queued frames until the connection closes, then flushes
// what is already queued and closes the socket.
func (c *connection) writeLoop() {
	defer func() { _ = c.ws.Close() }()
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.close()
				return
			}
		case <-c.done:
			for {
				select {
				case frame := <-c.send:
					if err := c.write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *connection) write(frame []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return websocket.Message.Send(c.ws, string(frame))
}

// unicast sends event to this connection only.
func (c *connection) unicast(event room.Event) {
	frame, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to encode frame", "event", event.Type, "error", err)
		return
	}
	if !c.Enqueue(frame) {
		c.Evict("send queue full")
	}
}

func (c *connection) sendError(requestID string, err error) {
	c.unicast(room.Event{
		Type:      verification.OutError,
		RequestID: requestID,
		Payload: ErrorPayload{
			Code:    string(dErrors.CodeOf(err)),
			Message: dErrors.PublicMessage(err),
		},
	})
}
