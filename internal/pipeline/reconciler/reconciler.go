// Package reconciler turns drops into optimistic moves and settles them
// against the CRM's answer.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/internal/pipeline/ports"
	"dealership_portal/internal/pipeline/store"
	"dealership_portal/platform/logger"

	"github.com/google/uuid"
)

var (
	ErrNoTransition   = errors.New("lead dropped on its own stage")
	ErrStaleDrag      = errors.New("lead is no longer in its source stage")
	ErrMoveInFlight   = errors.New("lead already has a move in flight")
	ErrUnknownTarget  = errors.New("drop target is neither a stage nor a lead in view")
	ErrListLayout     = errors.New("stage moves are not available in list layout")
	errRepeatConflict = errors.New("server returned another conflict for an override")
)

// State is where a move stands.
type State int

const (
	Idle State = iota
	Optimistic
	Confirmed
	RolledBack
	AwaitingConflictResolution
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Optimistic:
		return "optimistic"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	case AwaitingConflictResolution:
		return "awaiting_conflict_resolution"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is what came back from a transition call.
type Outcome struct {
	Move     domain.PendingMove
	Override bool
	Result   domain.TransitionResult
	Err      error
}

// Resolution tells the caller what to do next with a settled call.
type Resolution struct {
	Move  domain.PendingMove
	State State
	// Recover asks for a full re-fetch of the active filter context.
	Recover  bool
	Conflict *domain.SkateWarning
	Alert    *domain.Alert
}

// Reconciler owns the per-lead pending-move lock.
type Reconciler struct {
	store *store.Store
	api   ports.StageTransitioner
	log   *logger.Logger
	now   func() time.Time

	mu      sync.Mutex
	pending map[string]domain.PendingMove
}

// New creates a Reconciler moving leads inside st.
func New(st *store.Store, api ports.StageTransitioner, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store:   st,
		api:     api,
		log:     log,
		now:     time.Now,
		pending: make(map[string]domain.PendingMove),
	}
}

// Begin resolves a drop and applies the move to the store at once.
func (r *Reconciler) Begin(drop domain.DropEvent, layout domain.Layout) (domain.PendingMove, error) {
	if layout == domain.LayoutList {
		return domain.PendingMove{}, ErrListLayout
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	target, err := r.resolveTarget(drop.TargetID)
	if err != nil {
		return domain.PendingMove{}, err
	}

	lead, ok := r.store.Lookup(drop.LeadID)
	if !ok {
		return domain.PendingMove{}, ErrStaleDrag
	}
	if lead.StageID == target {
		return domain.PendingMove{}, ErrNoTransition
	}
	if _, busy := r.pending[drop.LeadID]; busy {
		return domain.PendingMove{}, ErrMoveInFlight
	}

	moved, err := r.store.MoveLead(drop.LeadID, lead.StageID, target)
	if err != nil {
		return domain.PendingMove{}, err
	}
	if !moved {
		return domain.PendingMove{}, ErrStaleDrag
	}

	move := domain.PendingMove{LeadID: drop.LeadID, SourceStageID: lead.StageID, TargetStageID: target}
	r.pending[move.LeadID] = move
	return move, nil
}

// A drop target is a stage column or a lead card; a card means its stage.
func (r *Reconciler) resolveTarget(targetID string) (string, error) {
	if _, ok := r.store.Bucket(targetID); ok {
		return targetID, nil
	}
	if lead, ok := r.store.Lookup(targetID); ok {
		return lead.StageID, nil
	}
	return "", ErrUnknownTarget
}

// Submit sends the transition to the CRM.
func (r *Reconciler) Submit(ctx context.Context, move domain.PendingMove, override bool) Outcome {
	res, err := r.api.UpdateLeadStage(ctx, domain.StageTransition{
		LeadID:        move.LeadID,
		TargetStageID: move.TargetStageID,
		Override:      override,
	})
	return Outcome{Move: move, Override: override, Result: res, Err: err}
}

// Resolve settles an outcome. A conflict keeps the optimistic placement and
// the lead's lock; every other outcome releases the lock.
func (r *Reconciler) Resolve(o Outcome) Resolution {
	move := o.Move

	if o.Err != nil {
		r.log.TransitionFailed(move.LeadID, move.TargetStageID, o.Override, o.Err)
		return r.rollback(move, r.alert(domain.AlertTransitionFailed, move, "Could not move the lead. The board was reloaded."))
	}

	switch res := o.Result.(type) {
	case domain.Committed:
		r.release(move.LeadID)
		r.settle(move)
		r.log.TransitionResolved(move.LeadID, move.TargetStageID, Confirmed.String())
		return Resolution{Move: move, State: Confirmed}

	case domain.Conflict:
		if o.Override {
			r.log.TransitionFailed(move.LeadID, move.TargetStageID, true, errRepeatConflict)
			return r.rollback(move, r.alert(domain.AlertTransitionFailed, move, "The lead could not be taken over. The board was reloaded."))
		}
		warning := res.Warning
		r.log.TransitionResolved(move.LeadID, move.TargetStageID, AwaitingConflictResolution.String())
		return Resolution{Move: move, State: AwaitingConflictResolution, Conflict: &warning}

	case domain.Blocked:
		reason := strings.TrimSpace(res.Reason)
		if reason == "" {
			reason = "This lead cannot be moved right now."
		}
		r.log.TransitionResolved(move.LeadID, move.TargetStageID, "blocked")
		return r.rollback(move, r.alert(domain.AlertBlocked, move, reason))

	default:
		r.log.TransitionFailed(move.LeadID, move.TargetStageID, o.Override, fmt.Errorf("unexpected transition result %T", o.Result))
		return r.rollback(move, r.alert(domain.AlertTransitionFailed, move, "Could not move the lead. The board was reloaded."))
	}
}

// CancelConflict abandons a move that was waiting on a conflict decision.
func (r *Reconciler) CancelConflict(move domain.PendingMove) Resolution {
	r.log.TransitionResolved(move.LeadID, move.TargetStageID, "conflict_cancelled")
	return r.rollback(move, nil)
}

// Pending lists moves that hold a lock, ordered by lead id.
func (r *Reconciler) Pending() []domain.PendingMove {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := slices.Sorted(maps.Keys(r.pending))
	out := make([]domain.PendingMove, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.pending[id])
	}
	return out
}

// InFlight reports whether a lead holds a lock.
func (r *Reconciler) InFlight(leadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[leadID]
	return ok
}

// Reset drops every lock.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.pending)
}

func (r *Reconciler) release(leadID string) {
	r.mu.Lock()
	delete(r.pending, leadID)
	r.mu.Unlock()
}

// A full re-fetch may have landed while the call was out; put the lead back
// where the server now has it.
func (r *Reconciler) settle(move domain.PendingMove) {
	lead, ok := r.store.Lookup(move.LeadID)
	if !ok || lead.StageID == move.TargetStageID {
		return
	}
	if _, err := r.store.MoveLead(move.LeadID, lead.StageID, move.TargetStageID); err != nil && !errors.Is(err, store.ErrClosed) {
		r.log.Warn("reapply confirmed move", "lead_id", move.LeadID, "error", err)
	}
}

// The local revert gives immediate feedback; the re-fetch it asks for is
// what makes the board authoritative again.
func (r *Reconciler) rollback(move domain.PendingMove, alert *domain.Alert) Resolution {
	r.release(move.LeadID)
	if _, err := r.store.MoveLead(move.LeadID, move.TargetStageID, move.SourceStageID); err != nil && !errors.Is(err, store.ErrClosed) {
		r.log.Warn("revert optimistic move", "lead_id", move.LeadID, "error", err)
	}
	return Resolution{Move: move, State: RolledBack, Recover: true, Alert: alert}
}

func (r *Reconciler) alert(kind domain.AlertKind, move domain.PendingMove, msg string) *domain.Alert {
	return &domain.Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		LeadID:    move.LeadID,
		StageID:   move.TargetStageID,
		Message:   msg,
		CreatedAt: r.now(),
	}
}
