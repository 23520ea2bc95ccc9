// Package conflict queues skate warnings that need an explicit confirm or
// cancel before a move can proceed.
package conflict

import (
	"errors"
	"slices"
	"sync"
	"time"

	"dealership_portal/internal/pipeline/domain"

	"github.com/google/uuid"
)

var (
	// ErrUnknownTicket is returned when resolving a ticket that is not open.
	ErrUnknownTicket = errors.New("unknown or already resolved conflict ticket")
	// ErrClosed is returned by Present after Close.
	ErrClosed = errors.New("conflict gate closed")
)

// Ticket is one pending confirm/cancel decision.
type Ticket struct {
	ID        string              `json:"id"`
	Move      domain.PendingMove  `json:"move"`
	Warning   domain.SkateWarning `json:"warning"`
	CreatedAt time.Time           `json:"createdAt"`
}

type entry struct {
	ticket    Ticket
	onConfirm func()
	onCancel  func()
}

// Gate holds open tickets in arrival order. The oldest one is the one shown.
// Each ticket fires exactly one of its callbacks, exactly once.
type Gate struct {
	mu     sync.Mutex
	queue  []*entry
	closed bool
	now    func() time.Time
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// Present queues a decision for move.
func (g *Gate) Present(move domain.PendingMove, warning domain.SkateWarning, onConfirm, onCancel func()) (Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return Ticket{}, ErrClosed
	}

	t := Ticket{
		ID:        uuid.NewString(),
		Move:      move,
		Warning:   warning,
		CreatedAt: g.now(),
	}
	g.queue = append(g.queue, &entry{ticket: t, onConfirm: onConfirm, onCancel: onCancel})
	return t, nil
}

// Current returns the ticket being surfaced, if any.
func (g *Gate) Current() (Ticket, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return Ticket{}, false
	}
	return g.queue[0].ticket, true
}

// Open returns every open ticket, oldest first.
func (g *Gate) Open() []Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Ticket, 0, len(g.queue))
	for _, e := range g.queue {
		out = append(out, e.ticket)
	}
	return out
}

// Resolve closes a ticket and fires onConfirm or onCancel. Callbacks run on
// the caller's goroutine after the gate lock is released.
func (g *Gate) Resolve(ticketID string, confirm bool) error {
	g.mu.Lock()
	idx := slices.IndexFunc(g.queue, func(e *entry) bool { return e.ticket.ID == ticketID })
	if idx < 0 {
		g.mu.Unlock()
		return ErrUnknownTicket
	}
	e := g.queue[idx]
	g.queue = slices.Delete(g.queue, idx, idx+1)
	g.mu.Unlock()

	fire(e, confirm)
	return nil
}

// Close cancels every open ticket and rejects new ones.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	open := g.queue
	g.queue = nil
	g.mu.Unlock()

	for _, e := range open {
		fire(e, false)
	}
}

func fire(e *entry, confirm bool) {
	cb := e.onCancel
	if confirm {
		cb = e.onConfirm
	}
	if cb != nil {
		cb()
	}
}
