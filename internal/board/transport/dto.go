// Package transport holds request and response shapes of the board API.
package transport

import (
	"dealership_portal/internal/pipeline"
	"dealership_portal/internal/pipeline/domain"
)

type CreateSessionRequest struct {
	Filter domain.FilterContext `json:"filter"`
}

type UpdateFilterRequest struct {
	Filter domain.FilterContext `json:"filter"`
}

type MoveRequest struct {
	LeadID   string `json:"leadId" validate:"required,max=100"`
	TargetID string `json:"targetId" validate:"required,max=100"`
}

type ConflictDecisionRequest struct {
	Confirm *bool `json:"confirm" validate:"required"`
}

type SessionResponse struct {
	SessionID string            `json:"sessionId"`
	Snapshot  pipeline.Snapshot `json:"snapshot"`
}

type AcceptedResponse struct {
	Status string `json:"status"`
}
