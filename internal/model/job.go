package model

import "time"

// Job kinds
type JobKind string

const (
	JobKindSingle JobKind = "single"
	JobKindBatch  JobKind = "batch"
)

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// ItemStatus is the terminal outcome of one work unit within a job.
type ItemStatus struct {
	Ref   string `json:"ref"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Job tracks one import request from acceptance to its terminal state.
// Jobs live in memory only; they are gone after a restart.
type Job struct {
	ID          string       `json:"id"`
	Kind        JobKind      `json:"kind"`
	Status      JobStatus    `json:"status"`
	Total       int          `json:"total"`
	Completed   int          `json:"completed"`
	Failed      int          `json:"failed"`
	Items       []ItemStatus `json:"items,omitempty"`
	PlaylistID  string       `json:"playlist_id,omitempty"`
	Concurrency int          `json:"concurrency,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Percentage reports how much of the job has reached a terminal item state.
func (j *Job) Percentage() int {
	if j.Total == 0 {
		return 0
	}
	return (j.Completed + j.Failed) * 100 / j.Total
}

// Terminal reports whether the job reached its final state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
