package domain

import "time"

// Lead is the pipeline-relevant projection of a CRM lead.
type Lead struct {
	ID             string    `json:"id"`
	StageID        string    `json:"stageId"`
	AssignedTo     *string   `json:"assignedTo,omitempty"`
	AssignedToName string    `json:"assignedToName,omitempty"`
	Source         string    `json:"source,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Vehicle        string    `json:"vehicle,omitempty"`
	IsActive       bool      `json:"isActive"`
}

// WithStage returns a copy of the lead placed in stageID.
func (l Lead) WithStage(stageID string) Lead {
	out := l
	if l.AssignedTo != nil {
		assigned := *l.AssignedTo
		out.AssignedTo = &assigned
	}
	out.StageID = stageID
	return out
}

// Pagination is the per-bucket page cursor.
type Pagination struct {
	Page    int  `json:"page"`
	HasMore bool `json:"hasMore"`
	Total   int  `json:"total"`
}

// Bucket is the ordered collection of leads materialized for one stage.
// Lead order is arrival order, not necessarily server order across pages.
type Bucket struct {
	StageID    string     `json:"stageId"`
	Leads      []Lead     `json:"leads"`
	Pagination Pagination `json:"pagination"`
}

// Clone returns a deep copy of the bucket.
func (b Bucket) Clone() Bucket {
	out := b
	out.Leads = make([]Lead, len(b.Leads))
	for i, lead := range b.Leads {
		out.Leads[i] = lead.WithStage(lead.StageID)
	}
	return out
}

// EmptyBucket is what a stage whose fetch failed is left with.
func EmptyBucket(stageID string) Bucket {
	return Bucket{StageID: stageID, Leads: []Lead{}, Pagination: Pagination{Page: 1}}
}

// PendingMove is an optimistic transition awaiting server confirmation.
type PendingMove struct {
	LeadID        string `json:"leadId"`
	SourceStageID string `json:"sourceStageId"`
	TargetStageID string `json:"targetStageId"`
}

// DropEvent is a drag-and-drop drop: TargetID is either a stage id or the id
// of the lead card the lead was dropped onto.
type DropEvent struct {
	LeadID   string `json:"leadId" validate:"required"`
	TargetID string `json:"targetId" validate:"required"`
}
