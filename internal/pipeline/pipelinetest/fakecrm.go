// Package pipelinetest provides an in-memory CRM for exercising pipeline
// views without a network.
package pipelinetest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/internal/pipeline/ports"
)

// ListHook runs before a listing is answered. Returning an error fails the
// call; blocking on ctx lets a test hold a request in flight.
type ListHook func(ctx context.Context, q domain.ListLeadsQuery) error

// TransitionFunc overrides the answer to a stage transition.
type TransitionFunc func(req domain.StageTransition) (domain.TransitionResult, error)

// CRM is a fake lead API holding server-side leads in creation order.
type CRM struct {
	mu          sync.Mutex
	stages      []domain.Stage
	leads       []domain.Lead
	stageErr    error
	listErrs    map[string]error
	listHook    ListHook
	transition  TransitionFunc
	lists       []domain.ListLeadsQuery
	transitions []domain.StageTransition
}

var _ ports.LeadAPI = (*CRM)(nil)

// New creates a fake CRM with the given stage ids, in order.
func New(stageIDs ...string) *CRM {
	c := &CRM{listErrs: make(map[string]error)}
	for _, id := range stageIDs {
		c.stages = append(c.stages, domain.Stage{ID: id, Name: id, DisplayName: strings.ToUpper(id[:1]) + id[1:]})
	}
	return c
}

// Seed creates n leads in stage with ids prefix-1 .. prefix-n.
func (c *CRM) Seed(stageID, prefix string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%s-%d", prefix, i)
		c.leads = append(c.leads, domain.Lead{ID: id, StageID: stageID, Name: "Lead " + id, IsActive: true})
	}
}

// Add stores leads as they are.
func (c *CRM) Add(leads ...domain.Lead) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leads = append(c.leads, leads...)
}

// FailStage makes every listing of stageID fail with err. A nil err clears it.
func (c *CRM) FailStage(stageID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.listErrs, stageID)
		return
	}
	c.listErrs[stageID] = err
}

// FailStages makes ListStages fail.
func (c *CRM) FailStages(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stageErr = err
}

// OnList installs a hook run before every listing.
func (c *CRM) OnList(h ListHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listHook = h
}

// OnTransition overrides transition answers. Nil restores the default,
// which commits the move.
func (c *CRM) OnTransition(fn TransitionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transition = fn
}

// Lists returns every listing query received, in order.
func (c *CRM) Lists() []domain.ListLeadsQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lists)
}

// ListsFor counts listing calls for one stage id ("" for the list layout).
func (c *CRM) ListsFor(stageID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, q := range c.lists {
		if q.StageID == stageID {
			n++
		}
	}
	return n
}

// Transitions returns every transition request received, in order.
func (c *CRM) Transitions() []domain.StageTransition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.transitions)
}

// StageOf returns a lead's server-side stage.
func (c *CRM) StageOf(leadID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(leadID); i >= 0 {
		return c.leads[i].StageID
	}
	return ""
}

// ListStages implements ports.StageLister.
func (c *CRM) ListStages(ctx context.Context) ([]domain.Stage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stageErr != nil {
		return nil, c.stageErr
	}
	return slices.Clone(c.stages), nil
}

// ListLeads implements ports.LeadLister.
func (c *CRM) ListLeads(ctx context.Context, q domain.ListLeadsQuery) (domain.LeadPage, error) {
	c.mu.Lock()
	c.lists = append(c.lists, q)
	hook := c.listHook
	c.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, q); err != nil {
			return domain.LeadPage{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.LeadPage{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.listErrs[q.StageID]; err != nil {
		return domain.LeadPage{}, err
	}

	matched := make([]domain.Lead, 0)
	for _, l := range c.leads {
		if matches(l, q) {
			matched = append(matched, l.WithStage(l.StageID))
		}
	}

	size := q.PageSize
	if size <= 0 {
		size = 20
	}
	page := max(q.Page, 1)
	pages := (len(matched) + size - 1) / size
	start := min((page-1)*size, len(matched))
	end := min(start+size, len(matched))

	return domain.LeadPage{Items: matched[start:end], Page: page, Pages: pages, Total: len(matched)}, nil
}

// UpdateLeadStage implements ports.StageTransitioner. By default the move is
// committed and the server-side stage updated.
func (c *CRM) UpdateLeadStage(ctx context.Context, req domain.StageTransition) (domain.TransitionResult, error) {
	c.mu.Lock()
	c.transitions = append(c.transitions, req)
	fn := c.transition
	c.mu.Unlock()

	if fn != nil {
		res, err := fn(req)
		if _, ok := res.(domain.Committed); ok && err == nil {
			c.setStage(req.LeadID, req.TargetStageID)
		}
		return res, err
	}
	lead, err := c.setStage(req.LeadID, req.TargetStageID)
	if err != nil {
		return nil, err
	}
	return domain.Committed{Lead: lead}, nil
}

func (c *CRM) setStage(leadID, stageID string) (domain.Lead, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(leadID)
	if i < 0 {
		return domain.Lead{}, fmt.Errorf("lead %s not found", leadID)
	}
	c.leads[i].StageID = stageID
	return c.leads[i].WithStage(stageID), nil
}

func (c *CRM) index(leadID string) int {
	return slices.IndexFunc(c.leads, func(l domain.Lead) bool { return l.ID == leadID })
}

func matches(l domain.Lead, q domain.ListLeadsQuery) bool {
	if q.StageID != "" && l.StageID != q.StageID {
		return false
	}
	if q.Stage != "" && l.StageID != q.Stage {
		return false
	}
	if q.IsActive != nil && l.IsActive != *q.IsActive {
		return false
	}
	if q.Search != "" && !strings.Contains(strings.ToLower(l.Name), strings.ToLower(q.Search)) {
		return false
	}
	if q.Source != "" && l.Source != q.Source {
		return false
	}
	switch q.Pool {
	case "unassigned":
		if l.AssignedTo != nil {
			return false
		}
	case "mine":
		if l.AssignedTo == nil {
			return false
		}
	}
	return true
}
