package types

import "time"

// JobStatus aggregates the executions of one run request.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one workflow run request fanned out over several profiles.
type Job struct {
	ID         int               `json:"id"`
	WorkflowID int               `json:"workflowId"`
	ProfileIDs []int             `json:"profileIds"`
	Vars       map[string]string `json:"vars,omitempty"`
	Status     JobStatus         `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// ExecutionStatus is the per-profile run state.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// CanTransition reports whether s may move to next.
// pending -> running -> {completed, failed}; pending may also fail directly.
func (s ExecutionStatus) CanTransition(next ExecutionStatus) bool {
	switch s {
	case ExecutionPending:
		return next == ExecutionRunning || next == ExecutionFailed
	case ExecutionRunning:
		return next == ExecutionCompleted || next == ExecutionFailed
	}
	return false
}

// Execution is one profile's run of a job.
type Execution struct {
	ID          int             `json:"id"`
	JobID       int             `json:"jobId"`
	ProfileID   int             `json:"profileId"`
	WorkflowID  int             `json:"workflowId"`
	SessionID   *int            `json:"sessionId,omitempty"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Result      map[string]any  `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
