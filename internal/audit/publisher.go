package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events synchronously.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

// AsyncPublisher queues events for a Worker so slow sinks never hold up a
// verification. Emit drops the event when the queue is full.
type AsyncPublisher struct {
	inbox   chan Event
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewAsyncPublisher(buffer int, logger *slog.Logger) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AsyncPublisher{inbox: make(chan Event, buffer), logger: logger}
}

func (p *AsyncPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.dropped.Add(1)
		p.logger.WarnContext(ctx, "audit queue full, dropping event",
			"application_id", event.ApplicationID,
			"action", string(event.Action),
		)
	}
	return nil
}

// Dropped returns how many events were discarded because the queue was full.
func (p *AsyncPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Inbox is the channel a Worker drains.
func (p *AsyncPublisher) Inbox() <-chan Event {
	return p.inbox
}
