package domain

import "time"

// StageTransition is a request to move a lead to another stage.
type StageTransition struct {
	LeadID        string
	TargetStageID string
	Note          string
	Override      bool
}

// TransitionResult is the outcome of a stage transition call. It is one of
// Committed, Conflict or Blocked; callers type-switch on it.
type TransitionResult interface {
	transitionResult()
}

// Committed means the server applied the transition.
type Committed struct {
	Lead Lead
}

// Conflict means the server wants an explicit override before moving a lead
// owned by someone else.
type Conflict struct {
	Warning SkateWarning
}

// Blocked means the server refused the transition with no override path.
type Blocked struct {
	Reason string
}

func (Committed) transitionResult() {}
func (Conflict) transitionResult()  {}
func (Blocked) transitionResult()   {}

// SkateWarning is the payload of a confirmable ownership conflict.
type SkateWarning struct {
	LeadName       string `json:"leadName"`
	AssignedToID   string `json:"assignedToId"`
	AssignedToName string `json:"assignedToName"`
	Action         string `json:"action"`
	Message        string `json:"message"`
	NotifyHint     string `json:"notifyHint,omitempty"`
}

// AlertKind classifies a dismissible alert.
type AlertKind string

const (
	AlertBlocked          AlertKind = "blocked"
	AlertTransitionFailed AlertKind = "transition_failed"
	AlertLoadMoreFailed   AlertKind = "load_more_failed"
)

// Alert is a non-blocking notice shown until dismissed.
type Alert struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	LeadID    string    `json:"leadId,omitempty"`
	StageID   string    `json:"stageId,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
