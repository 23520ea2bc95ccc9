// Package stages holds the ordered list of pipeline stages.
package stages

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/internal/pipeline/ports"
)

// ErrNotLoaded is returned by Scope before the first successful Load.
var ErrNotLoaded = errors.New("stage directory not loaded")

// Directory is loaded once and read everywhere else. The stage set only
// changes through another Load.
type Directory struct {
	source ports.StageLister

	mu     sync.RWMutex
	stages []domain.Stage
	loaded bool
}

// NewDirectory creates an empty directory backed by source.
func NewDirectory(source ports.StageLister) *Directory {
	return &Directory{source: source}
}

// Load fetches the stage list and swaps it in. A failed load keeps whatever
// was loaded before.
func (d *Directory) Load(ctx context.Context) error {
	list, err := d.source.ListStages(ctx)
	if err != nil {
		return fmt.Errorf("list stages: %w", err)
	}

	seen := make(map[string]struct{}, len(list))
	kept := make([]domain.Stage, 0, len(list))
	for _, s := range list {
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		kept = append(kept, s)
	}

	d.mu.Lock()
	d.stages = kept
	d.loaded = true
	d.mu.Unlock()
	return nil
}

// Scope returns the stages a filter context puts in view, in directory order.
// An empty selection means every stage; the converted view narrows the scope
// to the converted stage.
func (d *Directory) Scope(filter domain.FilterContext) ([]domain.Stage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.loaded {
		return nil, ErrNotLoaded
	}

	selected := make(map[string]struct{}, len(filter.SelectedStageIDs))
	for _, id := range filter.SelectedStageIDs {
		selected[id] = struct{}{}
	}

	out := make([]domain.Stage, 0, len(d.stages))
	for _, s := range d.stages {
		if len(selected) > 0 {
			if _, ok := selected[s.ID]; !ok {
				continue
			}
		}
		if filter.ViewMode == domain.ViewConverted && s.Name != domain.StageConverted {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
