// Package transport holds the wire shapes of the dealership CRM API.
package transport

import (
	"encoding/json"
	"time"
)

// Lead is a lead as returned by the CRM.
type Lead struct {
	ID              string    `json:"id"`
	StageID         string    `json:"stage_id"`
	AssignedTo      *string   `json:"assigned_to"`
	AssignedToName  string    `json:"assigned_to_name"`
	Source          string    `json:"source"`
	CreatedAt       time.Time `json:"created_at"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	VehicleInterest string    `json:"vehicle_interest"`
	IsActive        bool      `json:"is_active"`
}

// LeadPage is the lead-listing response.
type LeadPage struct {
	Items []Lead `json:"items"`
	Page  int    `json:"page"`
	Pages int    `json:"pages"`
	Total int    `json:"total"`
}

// Stage is a pipeline stage.
type Stage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	Position    int    `json:"position"`
}

// StageList is the stage-listing response.
type StageList struct {
	Stages []Stage `json:"stages"`
}

// UpdateStageRequest is the body of a stage transition call.
type UpdateStageRequest struct {
	StageID  string `json:"stage_id"`
	Note     string `json:"note,omitempty"`
	Override bool   `json:"override,omitempty"`
}

// SkateWarning is returned in place of a lead when the transition needs an
// explicit override. SkateWarning is always true on this shape.
type SkateWarning struct {
	SkateWarning   bool   `json:"skate_warning"`
	LeadName       string `json:"lead_name"`
	AssignedToID   string `json:"assigned_to_id"`
	AssignedToName string `json:"assigned_to_name"`
	Action         string `json:"action"`
	Message        string `json:"message"`
	NotifyHint     string `json:"notify_hint"`
}

// ErrorResponse is the body of a non-2xx response.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// CodeSkateBlocked marks a transition refused with no override path.
const CodeSkateBlocked = "skate_blocked"
