// Package room keeps the membership of per-application broadcast groups.
//
// A room is named app:{applicationId}. Publish delivers to every member in the
// order Publish calls are made for that room. Delivery never blocks: a member
// whose outbound queue is full is evicted instead of stalling everyone else.
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"lms/internal/platform/metrics"
	id "lms/pkg/domain"
)

// Member is one connection that can receive room traffic.
type Member interface {
	// MemberID is unique per connection.
	MemberID() string
	// Enqueue queues an encoded frame without blocking and reports false
	// when the member's queue is full.
	Enqueue(frame []byte) bool
	// Evict closes a member that could not keep up.
	Evict(reason string)
}

// Event is an outbound frame addressed to a whole room.
type Event struct {
	Type          string           `json:"type"`
	ApplicationID id.ApplicationID `json:"applicationId,omitzero"`
	RequestID     string           `json:"requestId,omitempty"`
	Payload       any              `json:"payload"`
}

// Name returns the room name of an application.
func Name(appID id.ApplicationID) string {
	return "app:" + appID.String()
}

type group struct {
	mu      sync.Mutex
	members map[string]Member
}

// Registry owns all rooms. Lock order is Registry.mu before group.mu.
type Registry struct {
	mu          sync.Mutex
	rooms       map[string]*group
	memberships map[string]map[string]struct{}
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:       make(map[string]*group),
		memberships: make(map[string]map[string]struct{}),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join adds member to the application's room. Joining twice is a no-op.
func (r *Registry) Join(member Member, appID id.ApplicationID) {
	name := Name(appID)
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.rooms[name]
	if !ok {
		g = &group{members: make(map[string]Member)}
		r.rooms[name] = g
	}
	g.mu.Lock()
	_, already := g.members[member.MemberID()]
	g.members[member.MemberID()] = member
	g.mu.Unlock()
	if already {
		return
	}

	joined, ok := r.memberships[member.MemberID()]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[member.MemberID()] = joined
	}
	joined[name] = struct{}{}
	r.metrics.AddRoomMembers(1)
}

// Leave removes member from the application's room. It is idempotent.
func (r *Registry) Leave(member Member, appID id.ApplicationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(member.MemberID(), Name(appID))
}

// LeaveAll removes member from every room it joined.
func (r *Registry) LeaveAll(member Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.memberships[member.MemberID()] {
		r.leaveLocked(member.MemberID(), name)
	}
}

func (r *Registry) leaveLocked(memberID, name string) {
	g, ok := r.rooms[name]
	if !ok {
		return
	}
	g.mu.Lock()
	_, present := g.members[memberID]
	delete(g.members, memberID)
	empty := len(g.members) == 0
	g.mu.Unlock()
	if !present {
		return
	}
	if empty {
		delete(r.rooms, name)
	}
	if joined := r.memberships[memberID]; joined != nil {
		delete(joined, name)
		if len(joined) == 0 {
			delete(r.memberships, memberID)
		}
	}
	r.metrics.AddRoomMembers(-1)
}

// IsMember reports whether member currently belongs to the application's room.
func (r *Registry) IsMember(member Member, appID id.ApplicationID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.memberships[member.MemberID()][Name(appID)]
	return ok
}

// Size returns the number of members in the application's room.
func (r *Registry) Size(appID id.ApplicationID) int {
	r.mu.Lock()
	g, ok := r.rooms[Name(appID)]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Publish encodes event once and enqueues it to every member of its room.
// The room lock is held across the enqueue loop, so two Publish calls for the
// same room are seen by every member in the same order.
func (r *Registry) Publish(ctx context.Context, event Event) (int, error) {
	frame, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	name := Name(event.ApplicationID)
	r.mu.Lock()
	g, ok := r.rooms[name]
	r.mu.Unlock()
	if !ok {
		return 0, nil
	}

	var slow []Member
	delivered := 0
	g.mu.Lock()
	for _, m := range g.members {
		if m.Enqueue(frame) {
			delivered++
			continue
		}
		slow = append(slow, m)
	}
	g.mu.Unlock()

	for _, m := range slow {
		r.logger.WarnContext(ctx, "evicting slow room member",
			"application_id", event.ApplicationID.String(),
			"member_id", m.MemberID(),
			"event", event.Type,
		)
		r.LeaveAll(m)
		m.Evict("send queue full")
	}
	return delivered, nil
}


// Send encodes event and enqueues it to member alone. A member whose queue is
// full is evicted.
func (r *Registry) Send(ctx context.Context, member Member, event Event) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	if member.Enqueue(frame) {
		return nil
	}
	r.logger.WarnContext(ctx, "evicting slow member",
		"member_id", member.MemberID(),
		"event", event.Type,
	)
	r.LeaveAll(member)
	member.Evict("send queue full")
	return nil
}
