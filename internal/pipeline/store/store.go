// Package store holds the stage buckets of a pipeline view. It is the only
// place bucket contents change, which is what keeps a lead in at most one
// bucket at a time.
package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"dealership_portal/internal/pipeline/domain"
)

var (
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("bucket store closed")
	// ErrDuplicateLead is returned when a mutation would materialize a lead twice.
	ErrDuplicateLead = errors.New("lead already materialized in another bucket")
)

// Store maps stage id to the leads materialized for that stage.
type Store struct {
	mu      sync.RWMutex
	order   []string
	buckets map[string]*domain.Bucket
	index   map[string]string // lead id -> stage id
	version uint64
	closed  bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		buckets: make(map[string]*domain.Bucket),
		index:   make(map[string]string),
	}
}

// ReplaceAll swaps the whole mapping in one step. Stage order follows the
// argument. A lead id seen in an earlier bucket wins over later occurrences;
// the number of dropped duplicates is returned.
func (s *Store) ReplaceAll(buckets []domain.Bucket) (int, error) {
	order := make([]string, 0, len(buckets))
	next := make(map[string]*domain.Bucket, len(buckets))
	index := make(map[string]string)
	dropped := 0

	for _, b := range buckets {
		if _, dup := next[b.StageID]; dup {
			return 0, fmt.Errorf("replace all: stage %q listed twice", b.StageID)
		}
		nb := &domain.Bucket{StageID: b.StageID, Pagination: b.Pagination, Leads: make([]domain.Lead, 0, len(b.Leads))}
		for _, lead := range b.Leads {
			if _, seen := index[lead.ID]; seen {
				dropped++
				continue
			}
			index[lead.ID] = b.StageID
			nb.Leads = append(nb.Leads, lead.WithStage(lead.StageID))
		}
		order = append(order, b.StageID)
		next[b.StageID] = nb
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.order = order
	s.buckets = next
	s.index = index
	s.version++
	return dropped, nil
}

// AppendPage extends a bucket with the next page. It is a no-op (false) when
// the bucket is absent, when has_more is already false, or when the page is
// not ahead of the current cursor. Leads already materialized anywhere are
// skipped.
func (s *Store) AppendPage(stageID string, leads []domain.Lead, p domain.Pagination) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	b, ok := s.buckets[stageID]
	if !ok || !b.Pagination.HasMore || p.Page <= b.Pagination.Page {
		return false, nil
	}

	added := make([]domain.Lead, 0, len(leads))
	seen := make(map[string]struct{}, len(leads))
	for _, lead := range leads {
		if _, exists := s.index[lead.ID]; exists {
			continue
		}
		if _, dup := seen[lead.ID]; dup {
			continue
		}
		seen[lead.ID] = struct{}{}
		added = append(added, lead.WithStage(lead.StageID))
	}

	for _, lead := range added {
		s.index[lead.ID] = stageID
	}
	b.Leads = append(b.Leads, added...)
	b.Pagination = domain.Pagination{Page: p.Page, HasMore: p.HasMore, Total: max(p.Total, 0)}
	s.version++
	return true, nil
}

// MoveLead removes the lead from src and appends a copy with its stage
// rewritten to the end of dst. A lead absent from src is a no-op (false), so
// repeating a move or replaying a late event never duplicates it. When dst is
// not in scope the lead simply leaves the view.
func (s *Store) MoveLead(leadID, src, dst string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if src == dst {
		return false, nil
	}

	from, ok := s.buckets[src]
	if !ok {
		return false, nil
	}
	idx := slices.IndexFunc(from.Leads, func(l domain.Lead) bool { return l.ID == leadID })
	if idx < 0 {
		return false, nil
	}

	to, inScope := s.buckets[dst]
	if inScope && slices.ContainsFunc(to.Leads, func(l domain.Lead) bool { return l.ID == leadID }) {
		return false, ErrDuplicateLead
	}

	moved := from.Leads[idx].WithStage(dst)
	from.Leads = slices.Delete(from.Leads, idx, idx+1)
	if from.Pagination.Total > 0 {
		from.Pagination.Total--
	}

	if inScope {
		to.Leads = append(to.Leads, moved)
		to.Pagination.Total++
		s.index[leadID] = dst
	} else {
		delete(s.index, leadID)
	}
	s.version++
	return true, nil
}

// Close stops all further mutation. Reads keep working.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Bucket returns a copy of one bucket.
func (s *Store) Bucket(stageID string) (domain.Bucket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[stageID]
	if !ok {
		return domain.Bucket{}, false
	}
	return b.Clone(), true
}

// Lookup finds a materialized lead.
func (s *Store) Lookup(leadID string) (domain.Lead, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stageID, ok := s.index[leadID]
	if !ok {
		return domain.Lead{}, false
	}
	for _, lead := range s.buckets[stageID].Leads {
		if lead.ID == leadID {
			return lead.WithStage(lead.StageID), true
		}
	}
	return domain.Lead{}, false
}

// Snapshot returns deep copies of every bucket in stage order.
func (s *Store) Snapshot() []domain.Bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Bucket, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.buckets[id].Clone())
	}
	return out
}

// Version increases on every applied mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// verify walks every bucket and reports a lead id materialized more than once
// or an index entry pointing at the wrong bucket.
func (s *Store) verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]string)
	for _, id := range s.order {
		for _, lead := range s.buckets[id].Leads {
			if prev, dup := seen[lead.ID]; dup {
				return fmt.Errorf("%w: %s in %s and %s", ErrDuplicateLead, lead.ID, prev, id)
			}
			seen[lead.ID] = id
			if s.index[lead.ID] != id {
				return fmt.Errorf("index for %s points at %q, found in %q", lead.ID, s.index[lead.ID], id)
			}
		}
	}
	if len(seen) != len(s.index) {
		return fmt.Errorf("index holds %d leads, buckets hold %d", len(s.index), len(seen))
	}
	return nil
}
