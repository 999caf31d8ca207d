// Package eventbus is the in-process publish/subscribe fabric for
// domain events. Delivery is synchronous and FIFO per Publish call.
package eventbus

import (
	"context"
	"sync"

	"github.com/loomhq/loom/pkg/domainevent"
	"go.uber.org/zap"
)

// Handler consumes one event. Handler errors are logged, not retried;
// events are not durable (see the unit of work).
type Handler func(ctx context.Context, event domainevent.Event) error

type Bus struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	anyAll   []Handler
}

func New(log *zap.Logger) *Bus {
	return &Bus{
		log:      log.Named("eventbus"),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for the named event.
func (b *Bus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.anyAll = append(b.anyAll, handler)
}

// Publish delivers events to subscribers in the order given.
func (b *Bus) Publish(ctx context.Context, events ...domainevent.Event) error {
	for _, event := range events {
		b.mu.RLock()
		named := b.handlers[event.EventName()]
		all := b.anyAll
		b.mu.RUnlock()

		for _, handler := range named {
			if err := handler(ctx, event); err != nil {
				b.log.Warn("event handler failed",
					zap.String("event", event.EventName()),
					zap.Error(err),
				)
			}
		}
		for _, handler := range all {
			if err := handler(ctx, event); err != nil {
				b.log.Warn("event handler failed",
					zap.String("event", event.EventName()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}
