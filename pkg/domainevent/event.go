// Package domainevent defines the contracts between aggregates, the
// unit of work, and the event bus.
package domainevent

import (
	"context"
	"time"
)

// Event is an immutable record of something that happened to an
// aggregate. Events are produced synchronously by aggregate methods,
// buffered on the instance, and drained by the persistence layer.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// Carrier is implemented by aggregates that buffer domain events.
// PullEvents drains the buffer and returns an owned slice; callers
// never see the internal buffer itself, so a stale reference cannot
// cause a double publish.
type Carrier interface {
	PullEvents() []Event
	AttachEvents(events ...Event)
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Queue buffers events for delivery after the surrounding transaction
// commits. The unit of work implements it.
type Queue interface {
	Queue(events ...Event)
}
