package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"dealership_portal/platform/logger"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var hits atomic.Int32
	bus.Subscribe("lead:created", HandlerFunc(func(context.Context, Event) error {
		hits.Add(1)
		return nil
	}))
	bus.Subscribe("lead:created", HandlerFunc(func(context.Context, Event) error {
		hits.Add(1)
		return errors.New("logged, not returned")
	}))
	bus.Subscribe("other", HandlerFunc(func(context.Context, Event) error {
		t.Errorf("unexpected delivery")
		return nil
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "lead:created"})
	bus.Wait()
	if hits.Load() != 2 {
		t.Fatalf("expected 2 deliveries, got %d", hits.Load())
	}
}

func TestPublishRecoversPanics(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	bus.Subscribe("x", HandlerFunc(func(context.Context, Event) error { panic("boom") }))

	bus.Publish(context.Background(), testEvent{name: "x"})
	done := make(chan struct{})
	go func() {
		bus.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("bus did not settle after a panic")
	}
}

func TestPublishSyncJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	first := errors.New("first")
	second := errors.New("second")
	bus.Subscribe("x", HandlerFunc(func(context.Context, Event) error { return first }))
	bus.Subscribe("x", HandlerFunc(func(context.Context, Event) error { return second }))

	err := bus.PublishSync(context.Background(), testEvent{name: "x"})
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Fatalf("expected both errors, got %v", err)
	}
}

func TestSubscriptionClose(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var hits atomic.Int32
	sub := bus.Subscribe("x", HandlerFunc(func(context.Context, Event) error {
		hits.Add(1)
		return nil
	}))
	sub.Close()
	sub.Close()

	if err := bus.PublishSync(context.Background(), testEvent{name: "x"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no delivery after close")
	}
	if len(bus.handlers) != 0 {
		t.Fatalf("expected empty handler table")
	}
}
