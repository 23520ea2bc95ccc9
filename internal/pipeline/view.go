// Package pipeline keeps a per-stage lead board in sync with the CRM. A View
// owns one store and one reconciliation loop; every state change happens on
// that loop, network calls run beside it and post their results back.
package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"dealership_portal/internal/pipeline/conflict"
	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/internal/pipeline/fetcher"
	"dealership_portal/internal/pipeline/ports"
	"dealership_portal/internal/pipeline/realtime"
	"dealership_portal/internal/pipeline/reconciler"
	"dealership_portal/internal/pipeline/stages"
	"dealership_portal/internal/pipeline/store"
	"dealership_portal/platform/apperr"
	"dealership_portal/platform/config"
	"dealership_portal/platform/events"
	"dealership_portal/platform/logger"
	"dealership_portal/platform/validator"
)

var (
	ErrNotMounted     = errors.New("pipeline view not mounted")
	ErrAlreadyMounted = errors.New("pipeline view already mounted")
	ErrDisposed       = errors.New("pipeline view disposed")
	ErrUnknownAlert   = errors.New("unknown alert")
)

// Deps are the collaborators of a View.
type Deps struct {
	API ports.LeadAPI
	// Bus delivers realtime push events. Nil disables realtime refresh.
	Bus events.Bus
	Log *logger.Logger
}

// Options tunes a View. Zero values take defaults.
type Options struct {
	PageSize         int
	FetchConcurrency int
	Debounce         time.Duration
	InboxSize        int
}

const defaultInboxSize = 64

// OptionsFromConfig reads view tuning from configuration.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		PageSize:         cfg.GetPipelinePageSize(),
		FetchConcurrency: cfg.GetPipelineFetchConcurrency(),
		Debounce:         cfg.GetPipelineDebounce(),
		InboxSize:        cfg.GetPipelineInboxSize(),
	}
}

type msgKind int

const (
	msgDrop msgKind = iota
	msgSetFilter
	msgApplyFilter
	msgRefresh
	msgRealtime
	msgLoadMore
	msgResolveConflict
	msgDismissAlert
	msgFetchDone
	msgLoadMoreDone
	msgTransitionDone
)

type message struct {
	kind    msgKind
	payload any
	reply   chan error
}

type fetchDone struct {
	result fetcher.Result
	stages []domain.Stage
}

type conflictDecision struct {
	ticketID string
	confirm  bool
}

const (
	stateNew int32 = iota
	stateMounted
	stateDisposed
)

// View is one mounted pipeline board.
type View struct {
	log       *logger.Logger
	bus       events.Bus
	validate  *validator.Validator
	store     *store.Store
	directory *stages.Directory
	fetcher   *fetcher.Fetcher
	rec       *reconciler.Reconciler
	gate      *conflict.Gate
	debounce  *fetcher.Debouncer

	inbox    chan message
	done     chan struct{}
	loopDone chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	sub      *realtime.Subscription

	lifecycleMu   sync.Mutex
	lifecycle     atomic.Int32
	refetchQueued atomic.Bool

	// Loop-owned, published under mu for Snapshot.
	mu          sync.RWMutex
	filter      domain.FilterContext
	scope       []domain.Stage
	alerts      []domain.Alert
	stageErrors map[string]string
	loadingMore string
	fetching    bool
	changes     uint64

	watchMu  sync.Mutex
	watchers map[chan struct{}]struct{}
}

// NewView wires a View. It does no I/O until Mount.
func NewView(deps Deps, opts Options) *View {
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}

	st := store.New()
	ctx, cancel := context.WithCancel(context.Background())
	return &View{
		log:       log,
		bus:       deps.Bus,
		validate:  validator.New(),
		store:     st,
		directory: stages.NewDirectory(deps.API),
		fetcher: fetcher.New(deps.API, st, log, fetcher.Options{
			PageSize:    opts.PageSize,
			Concurrency: opts.FetchConcurrency,
		}),
		rec:      reconciler.New(st, deps.API, log),
		gate:     conflict.NewGate(),
		debounce: fetcher.NewDebouncer(opts.Debounce),
		inbox:    make(chan message, opts.InboxSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[chan struct{}]struct{}),
	}
}

// Mount loads the stage list, runs the first fetch for filter and starts the
// loop. Stage fetch failures do not fail Mount; they show up in the snapshot.
func (v *View) Mount(ctx context.Context, filter domain.FilterContext) error {
	if err := v.checkFilter(filter); err != nil {
		return err
	}

	v.lifecycleMu.Lock()
	defer v.lifecycleMu.Unlock()
	switch v.lifecycle.Load() {
	case stateMounted:
		return ErrAlreadyMounted
	case stateDisposed:
		return ErrDisposed
	}

	if err := v.directory.Load(ctx); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "could not load pipeline stages", err)
	}

	filter = filter.Normalize()
	scope, err := v.directory.Scope(filter)
	if err != nil {
		return err
	}

	res, applied, err := v.fetcher.FetchInitial(ctx, filter, scope)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.filter = filter
	if applied {
		v.scope = scope
		v.stageErrors = stageErrors(res.Errors)
	}
	v.changes++
	v.mu.Unlock()

	if v.bus != nil {
		v.sub = realtime.Subscribe(v.bus, v.onRealtime)
	}
	v.lifecycle.Store(stateMounted)
	go v.run()
	return nil
}

// Dispose stops the loop, releases the realtime subscription and freezes the
// store. Results still in flight are dropped.
func (v *View) Dispose() {
	v.lifecycleMu.Lock()
	defer v.lifecycleMu.Unlock()

	prev := v.lifecycle.Swap(stateDisposed)
	if prev == stateDisposed {
		return
	}
	v.debounce.Stop()
	v.sub.Close()
	v.fetcher.Stop()
	v.store.Close()
	close(v.done)
	v.cancel()
	if prev == stateMounted {
		<-v.loopDone
	}
	v.gate.Close()
	v.rec.Reset()

	v.watchMu.Lock()
	for ch := range v.watchers {
		close(ch)
	}
	clear(v.watchers)
	v.watchMu.Unlock()
}

// Drop moves a lead optimistically and submits the transition.
func (v *View) Drop(ctx context.Context, drop domain.DropEvent) error {
	if err := v.validate.Struct(drop); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid drop", err).WithDetails(validator.FieldErrors(err))
	}
	return v.send(ctx, msgDrop, drop)
}

// SetFilter validates filter and applies it after the debounce delay. Later
// calls inside the delay replace earlier ones.
func (v *View) SetFilter(ctx context.Context, filter domain.FilterContext) error {
	if err := v.checkFilter(filter); err != nil {
		return err
	}
	return v.send(ctx, msgSetFilter, filter.Normalize())
}

// Refresh re-runs the active fetch path.
func (v *View) Refresh(ctx context.Context) error {
	return v.send(ctx, msgRefresh, nil)
}

// LoadMore loads the next page of a stage. It is a no-op when another page
// load is in flight or the stage has no more pages.
func (v *View) LoadMore(ctx context.Context, stageID string) error {
	return v.send(ctx, msgLoadMore, stageID)
}

// ResolveConflict confirms or cancels an open conflict ticket.
func (v *View) ResolveConflict(ctx context.Context, ticketID string, confirm bool) error {
	return v.send(ctx, msgResolveConflict, conflictDecision{ticketID: ticketID, confirm: confirm})
}

// DismissAlert removes an alert.
func (v *View) DismissAlert(ctx context.Context, alertID string) error {
	return v.send(ctx, msgDismissAlert, alertID)
}

func (v *View) checkFilter(filter domain.FilterContext) error {
	if err := v.validate.Struct(filter); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid filter", err).WithDetails(validator.FieldErrors(err))
	}
	return nil
}

// send hands a command to the loop and waits for its answer.
func (v *View) send(ctx context.Context, kind msgKind, payload any) error {
	switch v.lifecycle.Load() {
	case stateNew:
		return ErrNotMounted
	case stateDisposed:
		return ErrDisposed
	}

	reply := make(chan error, 1)
	select {
	case v.inbox <- message{kind: kind, payload: payload, reply: reply}:
	case <-v.done:
		return ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-v.done:
		return ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an internal message. It gives up once the view is disposed.
func (v *View) post(kind msgKind, payload any) {
	select {
	case v.inbox <- message{kind: kind, payload: payload}:
	case <-v.done:
	}
}

func (v *View) onRealtime(ev realtime.Event) {
	if v.refetchQueued.CompareAndSwap(false, true) {
		v.post(msgRealtime, ev.Kind)
	}
}

func (v *View) run() {
	defer close(v.loopDone)
	for {
		select {
		case <-v.done:
			return
		case m := <-v.inbox:
			err := v.handle(m)
			if m.reply != nil {
				m.reply <- err
			}
			v.notify()
		}
	}
}

func (v *View) handle(m message) error {
	if v.lifecycle.Load() == stateDisposed {
		return ErrDisposed
	}
	switch m.kind {
	case msgDrop:
		return v.handleDrop(m.payload.(domain.DropEvent))
	case msgSetFilter:
		filter := m.payload.(domain.FilterContext)
		v.debounce.Trigger(func() { v.post(msgApplyFilter, filter) })
		return nil
	case msgApplyFilter:
		filter := m.payload.(domain.FilterContext)
		v.mu.Lock()
		unchanged := v.filter.Equal(filter)
		v.filter = filter
		v.mu.Unlock()
		if !unchanged {
			v.startFetch()
		}
		return nil
	case msgRefresh:
		v.debounce.Cancel()
		v.startFetch()
		return nil
	case msgRealtime:
		v.refetchQueued.Store(false)
		v.startFetch()
		return nil
	case msgLoadMore:
		v.startLoadMore(m.payload.(string))
		return nil
	case msgResolveConflict:
		d := m.payload.(conflictDecision)
		return v.gate.Resolve(d.ticketID, d.confirm)
	case msgDismissAlert:
		return v.dismissAlert(m.payload.(string))
	case msgFetchDone:
		v.commitFetch(m.payload.(fetchDone))
		return nil
	case msgLoadMoreDone:
		v.commitLoadMore(m.payload.(fetcher.PageResult))
		return nil
	case msgTransitionDone:
		v.settle(v.rec.Resolve(m.payload.(reconciler.Outcome)))
		return nil
	}
	return nil
}

func (v *View) handleDrop(drop domain.DropEvent) error {
	v.mu.RLock()
	layout := v.filter.Layout
	v.mu.RUnlock()

	move, err := v.rec.Begin(drop, layout)
	if err != nil {
		return err
	}
	v.submit(move, false)
	return nil
}

func (v *View) submit(move domain.PendingMove, override bool) {
	if v.lifecycle.Load() == stateDisposed {
		return
	}
	go func() {
		v.post(msgTransitionDone, v.rec.Submit(v.ctx, move, override))
	}()
}

// settle applies a reconciler resolution. Gate callbacks run on the loop, so
// they act directly instead of posting.
func (v *View) settle(res reconciler.Resolution) {
	switch res.State {
	case reconciler.AwaitingConflictResolution:
		move := res.Move
		_, err := v.gate.Present(move, *res.Conflict,
			func() { v.submit(move, true) },
			func() { v.settle(v.rec.CancelConflict(move)) },
		)
		if err != nil {
			v.settle(v.rec.CancelConflict(move))
		}
	case reconciler.Confirmed:
		// A full fetch started before the CRM applied the move may still land
		// and put the lead back; supersede it with one that reads after.
		if v.fetcher.InFlight() {
			v.startFetch()
		}
	case reconciler.RolledBack:
		if res.Alert != nil {
			v.addAlert(*res.Alert)
		}
		if res.Recover {
			v.startFetch()
		}
	}
}

func (v *View) startFetch() {
	if v.lifecycle.Load() == stateDisposed {
		return
	}
	v.mu.RLock()
	filter := v.filter
	v.mu.RUnlock()

	scope, err := v.directory.Scope(filter)
	if err != nil {
		v.log.Error("resolve stage scope", "error", err)
		return
	}

	v.mu.Lock()
	v.fetching = true
	v.mu.Unlock()
	batch := v.fetcher.Begin(v.ctx, filter, scope)

	go func() {
		v.post(msgFetchDone, fetchDone{result: v.fetcher.Run(batch), stages: scope})
	}()
}

func (v *View) commitFetch(d fetchDone) {
	applied, err := v.fetcher.Commit(d.result)
	if err != nil {
		if !errors.Is(err, store.ErrClosed) {
			v.log.Error("commit fetch", "generation", d.result.Generation, "error", err)
		}
		return
	}
	if !applied {
		return
	}

	v.mu.Lock()
	v.scope = d.stages
	v.stageErrors = stageErrors(d.result.Errors)
	v.fetching = false
	v.mu.Unlock()
}

func (v *View) startLoadMore(stageID string) {
	req, ok := v.fetcher.BeginLoadMore(stageID)
	if !ok {
		return
	}
	v.mu.Lock()
	v.loadingMore = stageID
	v.mu.Unlock()

	go func() {
		v.post(msgLoadMoreDone, v.fetcher.RunLoadMore(v.ctx, req))
	}()
}

func (v *View) commitLoadMore(res fetcher.PageResult) {
	_, err := v.fetcher.CommitLoadMore(res)

	v.mu.Lock()
	v.loadingMore = ""
	v.mu.Unlock()

	if err == nil || errors.Is(err, store.ErrClosed) {
		return
	}
	v.addAlert(domain.Alert{
		ID:        newAlertID(),
		Kind:      domain.AlertLoadMoreFailed,
		StageID:   res.Request.StageID,
		Message:   "Could not load more leads. Try again.",
		CreatedAt: time.Now(),
	})
}

func (v *View) addAlert(a domain.Alert) {
	v.mu.Lock()
	v.alerts = append(v.alerts, a)
	v.mu.Unlock()
}

func (v *View) dismissAlert(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx := slices.IndexFunc(v.alerts, func(a domain.Alert) bool { return a.ID == id })
	if idx < 0 {
		return ErrUnknownAlert
	}
	v.alerts = slices.Delete(v.alerts, idx, idx+1)
	return nil
}

func stageErrors(errs []fetcher.StageError) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.StageID] = e.Err.Error()
	}
	return out
}
