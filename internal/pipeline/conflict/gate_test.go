package conflict

import (
	"errors"
	"testing"

	"dealership_portal/internal/pipeline/domain"
)

func move(id string) domain.PendingMove {
	return domain.PendingMove{LeadID: id, SourceStageID: "new", TargetStageID: "contacted"}
}

func TestGateSurfacesOldestTicketFirst(t *testing.T) {
	g := NewGate()
	first, _ := g.Present(move("a"), domain.SkateWarning{LeadName: "A"}, nil, nil)
	second, _ := g.Present(move("b"), domain.SkateWarning{LeadName: "B"}, nil, nil)

	cur, ok := g.Current()
	if !ok || cur.ID != first.ID {
		t.Fatalf("expected first ticket surfaced, got %+v", cur)
	}
	if err := g.Resolve(first.ID, false); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	cur, ok = g.Current()
	if !ok || cur.ID != second.ID {
		t.Fatalf("expected second ticket surfaced next, got %+v", cur)
	}
}

func TestGateFiresExactlyOneCallbackOnce(t *testing.T) {
	g := NewGate()
	var confirms, cancels int
	ticket, _ := g.Present(move("a"), domain.SkateWarning{}, func() { confirms++ }, func() { cancels++ })

	if err := g.Resolve(ticket.ID, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := g.Resolve(ticket.ID, false); !errors.Is(err, ErrUnknownTicket) {
		t.Fatalf("expected ErrUnknownTicket on second resolve, got %v", err)
	}
	g.Close()

	if confirms != 1 || cancels != 0 {
		t.Fatalf("expected 1 confirm and 0 cancels, got %d and %d", confirms, cancels)
	}
}

func TestGateCloseCancelsOpenTickets(t *testing.T) {
	g := NewGate()
	var cancels int
	for _, id := range []string{"a", "b", "c"} {
		if _, err := g.Present(move(id), domain.SkateWarning{}, nil, func() { cancels++ }); err != nil {
			t.Fatalf("present: %v", err)
		}
	}

	g.Close()
	g.Close()

	if cancels != 3 {
		t.Fatalf("expected 3 cancels, got %d", cancels)
	}
	if len(g.Open()) != 0 {
		t.Fatalf("expected no open tickets after close")
	}
	if _, err := g.Present(move("d"), domain.SkateWarning{}, nil, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestGateCallbackMayPresentAgain(t *testing.T) {
	g := NewGate()
	var again Ticket
	first, _ := g.Present(move("a"), domain.SkateWarning{}, func() {
		again, _ = g.Present(move("a"), domain.SkateWarning{}, nil, nil)
	}, nil)

	if err := g.Resolve(first.ID, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	cur, ok := g.Current()
	if !ok || cur.ID != again.ID {
		t.Fatalf("expected ticket presented from callback, got %+v", cur)
	}
}
