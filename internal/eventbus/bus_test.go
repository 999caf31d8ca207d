package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loomhq/loom/pkg/domainevent"
	"go.uber.org/zap/zaptest"
)

type testEvent struct {
	name string
}

func (e testEvent) EventName() string     { return e.name }
func (e testEvent) OccurredAt() time.Time { return time.Time{} }

func TestPublishDeliversInOrder(t *testing.T) {
	bus := New(zaptest.NewLogger(t))

	var seen []string
	bus.Subscribe("a", func(ctx context.Context, event domainevent.Event) error {
		seen = append(seen, "named:"+event.EventName())
		return nil
	})
	bus.SubscribeAll(func(ctx context.Context, event domainevent.Event) error {
		seen = append(seen, "all:"+event.EventName())
		return nil
	})

	if err := bus.Publish(context.Background(), testEvent{name: "a"}, testEvent{name: "b"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	want := []string{"named:a", "all:a", "all:b"}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("delivery order mismatch: %v", seen)
		}
	}
}

func TestHandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := New(zaptest.NewLogger(t))

	var delivered int
	bus.Subscribe("a", func(ctx context.Context, event domainevent.Event) error {
		return errors.New("boom")
	})
	bus.Subscribe("a", func(ctx context.Context, event domainevent.Event) error {
		delivered++
		return nil
	})

	if err := bus.Publish(context.Background(), testEvent{name: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("later handler skipped after error")
	}
}
