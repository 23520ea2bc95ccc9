// Package ports defines the interfaces the pipeline core consumes from the
// CRM. Implementations live outside the core (see internal/crm).
package ports

import (
	"context"

	"dealership_portal/internal/pipeline/domain"
)

// LeadLister reads pages of the lead-listing endpoint.
type LeadLister interface {
	ListLeads(ctx context.Context, query domain.ListLeadsQuery) (domain.LeadPage, error)
}

// StageTransitioner moves a lead to another stage on the server.
type StageTransitioner interface {
	UpdateLeadStage(ctx context.Context, req domain.StageTransition) (domain.TransitionResult, error)
}

// StageLister reads the ordered pipeline stage list.
type StageLister interface {
	ListStages(ctx context.Context) ([]domain.Stage, error)
}

// LeadAPI is everything the pipeline view needs from the CRM.
type LeadAPI interface {
	LeadLister
	StageTransitioner
	StageLister
}
