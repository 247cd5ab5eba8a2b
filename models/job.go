package models

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a collection job.
type JobState string

const (
	JobStateQueued    JobState = "QUEUED"
	JobStateRunning   JobState = "RUNNING"
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
	JobStateCancelled JobState = "CANCELLED"
)

// IsTerminal reports whether the state ends the job lifecycle.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// JobOutcome is the terminal result fanned out to every subscriber of a job.
// Exactly one of Record or Err is set, except for cancelled jobs where both
// may be nil. Stale marks a record served from the durable store past its
// freshness window.
type JobOutcome struct {
	JobID  uuid.UUID       `json:"job_id"`
	Key    LookupKey       `json:"key"`
	State  JobState        `json:"state"`
	Record *PropertyRecord `json:"record,omitempty"`
	Stale  bool            `json:"stale,omitempty"`
	Err    error           `json:"-"`
}

// JobStatus is the externally visible snapshot of a collection job, shaped for
// the HTTP status endpoint.
type JobStatus struct {
	JobID       uuid.UUID       `json:"job_id"`
	Key         LookupKey       `json:"key"`
	Priority    int             `json:"priority"`
	State       JobState        `json:"state"`
	Subscribers int             `json:"subscribers"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Record      *PropertyRecord `json:"record,omitempty"`
	Stale       bool            `json:"stale,omitempty"`
	Error       string          `json:"error,omitempty"`
}
