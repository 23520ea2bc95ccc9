package realtime

import (
	"context"
	"errors"

	"dealership_portal/platform/events"
	"dealership_portal/platform/logger"

	"golang.org/x/sync/errgroup"
)

// Source delivers frames until ctx is cancelled. Run returns nil on
// cancellation and an error only when the source cannot continue.
type Source interface {
	Name() string
	Run(ctx context.Context, emit func(Frame)) error
}

// Bridge publishes every frame from its sources on the bus.
type Bridge struct {
	bus     events.Bus
	log     *logger.Logger
	sources []Source
}

// NewBridge creates a Bridge.
func NewBridge(bus events.Bus, log *logger.Logger, sources ...Source) *Bridge {
	return &Bridge{bus: bus, log: log, sources: sources}
}

// Sources reports how many sources are attached.
func (b *Bridge) Sources() int { return len(b.sources) }

// Run blocks until ctx is cancelled or a source fails.
func (b *Bridge) Run(ctx context.Context) error {
	if len(b.sources) == 0 {
		<-ctx.Done()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range b.sources {
		g.Go(func() error {
			b.log.Info("realtime source started", "source", src.Name())
			err := src.Run(gctx, func(f Frame) {
				b.log.RealtimeEvent(f.Event, src.Name())
				b.bus.Publish(gctx, NewEvent(f, src.Name()))
			})
			b.log.Info("realtime source stopped", "source", src.Name())
			return err
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Subscription is a view's registration for all push kinds.
type Subscription struct {
	subs []*events.Subscription
}

// Subscribe calls fn for every push event published on bus.
func Subscribe(bus events.Bus, fn func(Event)) *Subscription {
	h := events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if ev, ok := e.(Event); ok {
			fn(ev)
		}
		return nil
	})

	s := &Subscription{subs: make([]*events.Subscription, 0, len(Kinds))}
	for _, kind := range Kinds {
		s.subs = append(s.subs, bus.Subscribe(kind, h))
	}
	return s
}

// Close releases every registration. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	for _, sub := range s.subs {
		sub.Close()
	}
}
