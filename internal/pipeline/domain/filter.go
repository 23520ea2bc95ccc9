package domain

import (
	"slices"
	"strings"
)

// ViewMode scopes which leads a pipeline view shows.
type ViewMode string

const (
	ViewAll        ViewMode = "all"
	ViewMine       ViewMode = "mine"
	ViewUnassigned ViewMode = "unassigned"
	ViewFresh      ViewMode = "fresh"
	ViewConverted  ViewMode = "converted"
)

// ViewModes lists the modes in display order.
var ViewModes = []ViewMode{ViewAll, ViewMine, ViewUnassigned, ViewFresh, ViewConverted}

// Next returns the mode after m, wrapping around.
func (m ViewMode) Next() ViewMode {
	idx := slices.Index(ViewModes, m)
	return ViewModes[(idx+1)%len(ViewModes)]
}

// Layout selects between per-stage columns and a single flat list.
type Layout string

const (
	LayoutPipeline Layout = "pipeline"
	LayoutList     Layout = "list"
)

// FilterContext determines which stages are fetched and which query
// parameters accompany every page request.
type FilterContext struct {
	Search           string   `json:"search" validate:"max=200"`
	Source           string   `json:"source" validate:"max=100"`
	AssignedTo       string   `json:"assignedTo" validate:"max=100"`
	ViewMode         ViewMode `json:"viewMode" validate:"omitempty,oneof=all mine unassigned fresh converted"`
	Layout           Layout   `json:"layout" validate:"omitempty,oneof=pipeline list"`
	SelectedStageIDs []string `json:"selectedStageIds" validate:"max=50,dive,required"`
}

// Normalize trims text fields, fills defaults and sorts the stage selection
// so that Equal compares meaning rather than spelling.
func (f FilterContext) Normalize() FilterContext {
	out := f
	out.Search = strings.TrimSpace(f.Search)
	out.Source = strings.TrimSpace(f.Source)
	out.AssignedTo = strings.TrimSpace(f.AssignedTo)
	if out.ViewMode == "" {
		out.ViewMode = ViewAll
	}
	if out.Layout == "" {
		out.Layout = LayoutPipeline
	}
	if len(f.SelectedStageIDs) > 0 {
		out.SelectedStageIDs = slices.Clone(f.SelectedStageIDs)
		slices.Sort(out.SelectedStageIDs)
		out.SelectedStageIDs = slices.Compact(out.SelectedStageIDs)
	} else {
		out.SelectedStageIDs = nil
	}
	return out
}

// Equal reports whether two filter contexts select the same data.
func (f FilterContext) Equal(other FilterContext) bool {
	a, b := f.Normalize(), other.Normalize()
	return a.Search == b.Search &&
		a.Source == b.Source &&
		a.AssignedTo == b.AssignedTo &&
		a.ViewMode == b.ViewMode &&
		a.Layout == b.Layout &&
		slices.Equal(a.SelectedStageIDs, b.SelectedStageIDs)
}

// ListLeadsQuery mirrors the lead-listing endpoint parameters.
type ListLeadsQuery struct {
	Page       int
	PageSize   int
	Search     string
	Source     string
	AssignedTo string
	Pool       string
	FreshOnly  bool
	StageID    string
	Stage      string
	IsActive   *bool
}

// LeadPage is one page of the lead-listing endpoint.
type LeadPage struct {
	Items []Lead
	Page  int
	Pages int
	Total int
}

// HasMore reports whether pages remain after this one.
func (p LeadPage) HasMore() bool {
	return p.Page < p.Pages
}

// Pagination converts the page header into a bucket cursor.
func (p LeadPage) Pagination() Pagination {
	page := p.Page
	if page < 1 {
		page = 1
	}
	total := p.Total
	if total < 0 {
		total = 0
	}
	return Pagination{Page: page, HasMore: p.HasMore(), Total: total}
}
