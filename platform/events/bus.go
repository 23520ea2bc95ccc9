package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dealership_portal/platform/logger"
)

type registration struct {
	name    string
	handler Handler
}

// InMemoryBus dispatches events to handlers registered in this process.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string]map[*registration]struct{}
	log      *logger.Logger
	wg       sync.WaitGroup
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string]map[*registration]struct{}),
		log:      log,
	}
}

// Subscription is a registered handler. Close removes it from the bus.
type Subscription struct {
	bus  *InMemoryBus
	reg  *registration
	once sync.Once
}

// Close unregisters the handler. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.remove(s.reg)
	})
}

// Subscribe registers a handler for eventName.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) *Subscription {
	reg := &registration{name: eventName, handler: handler}

	b.mu.Lock()
	defer b.mu.Unlock()

	regs, ok := b.handlers[eventName]
	if !ok {
		regs = make(map[*registration]struct{})
		b.handlers[eventName] = regs
	}
	regs[reg] = struct{}{}

	return &Subscription{bus: b, reg: reg}
}

func (b *InMemoryBus) remove(reg *registration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[reg.name]
	delete(regs, reg)
	if len(regs) == 0 {
		delete(b.handlers, reg.name)
	}
}

func (b *InMemoryBus) snapshot(eventName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	regs := b.handlers[eventName]
	handlers := make([]Handler, 0, len(regs))
	for reg := range regs {
		handlers = append(handlers, reg.handler)
	}
	return handlers
}

// Publish runs every handler for the event in its own goroutine.
// Handler errors are logged, not returned.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	for _, h := range b.snapshot(event.EventName()) {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event handler panicked", "event", event.EventName(), "panic", fmt.Sprint(r))
				}
			}()
			if err := h.Handle(ctx, event); err != nil {
				b.log.Error("event handler failed", "event", event.EventName(), "error", err)
			}
		}(h)
	}
}

// PublishSync runs every handler in turn and joins their errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	var errs []error
	for _, h := range b.snapshot(event.EventName()) {
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until handlers started by Publish have returned.
func (b *InMemoryBus) Wait() {
	b.wg.Wait()
}

// Compile-time check that InMemoryBus implements Bus
var _ Bus = (*InMemoryBus)(nil)
