// Package events is the in-process bus that carries realtime CRM push events
// from the bridge to every mounted pipeline view.
package events

import (
	"context"
	"time"
)

// Event is anything published on the bus. EventName is the subscription key.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent is embedded by events to provide OccurredAt.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to the handlers subscribed to their name.
type Bus interface {
	// Publish runs handlers asynchronously.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers in turn and returns their joined errors.
	PublishSync(ctx context.Context, event Event) error
	// Subscribe registers handler until the Subscription is closed.
	Subscribe(eventName string, handler Handler) *Subscription
}
