package pipeline

import (
	"maps"
	"slices"

	"dealership_portal/internal/pipeline/conflict"
	"dealership_portal/internal/pipeline/domain"

	"github.com/google/uuid"
)

// Snapshot is a consistent copy of what a view shows.
type Snapshot struct {
	Filter      domain.FilterContext `json:"filter"`
	Stages      []domain.Stage       `json:"stages"`
	Buckets     []domain.Bucket      `json:"buckets"`
	Pending     []domain.PendingMove `json:"pending"`
	Conflict    *conflict.Ticket     `json:"conflict,omitempty"`
	Queued      int                  `json:"queuedConflicts"`
	Alerts      []domain.Alert       `json:"alerts"`
	StageErrors map[string]string    `json:"stageErrors,omitempty"`
	Fetching    bool                 `json:"fetching"`
	LoadingMore string               `json:"loadingMore,omitempty"`
	Generation  uint64               `json:"generation"`
	Version     uint64               `json:"version"`
}

// Bucket returns the bucket for a stage, if it is in view.
func (s Snapshot) Bucket(stageID string) (domain.Bucket, bool) {
	idx := slices.IndexFunc(s.Buckets, func(b domain.Bucket) bool { return b.StageID == stageID })
	if idx < 0 {
		return domain.Bucket{}, false
	}
	return s.Buckets[idx], true
}

// Snapshot copies the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	snap := Snapshot{
		Filter:      v.filter,
		Stages:      slices.Clone(v.scope),
		Alerts:      slices.Clone(v.alerts),
		StageErrors: maps.Clone(v.stageErrors),
		Fetching:    v.fetching,
		LoadingMore: v.loadingMore,
		Version:     v.changes,
	}
	v.mu.RUnlock()

	snap.Buckets = v.store.Snapshot()
	snap.Pending = v.rec.Pending()
	snap.Generation = v.fetcher.Generation()
	snap.Version += v.store.Version()
	open := v.gate.Open()
	if len(open) > 0 {
		head := open[0]
		snap.Conflict = &head
		snap.Queued = len(open) - 1
	}
	if snap.Alerts == nil {
		snap.Alerts = []domain.Alert{}
	}
	return snap
}

// Watch returns a channel that receives a signal after the view changes.
// Bursts of changes coalesce into one signal. The channel is closed by the
// returned cancel func or when the view is disposed.
func (v *View) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	v.watchMu.Lock()
	if v.lifecycle.Load() == stateDisposed {
		v.watchMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	v.watchers[ch] = struct{}{}
	v.watchMu.Unlock()

	return ch, func() {
		v.watchMu.Lock()
		defer v.watchMu.Unlock()
		if _, ok := v.watchers[ch]; ok {
			delete(v.watchers, ch)
			close(ch)
		}
	}
}

func (v *View) notify() {
	v.mu.Lock()
	v.changes++
	v.mu.Unlock()

	v.watchMu.Lock()
	defer v.watchMu.Unlock()
	for ch := range v.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func newAlertID() string {
	return uuid.NewString()
}
