package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Job status constants. queued -> running -> {succeeded, failed, canceled};
// terminal states are final.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	JobStatusCanceled  = "canceled"
)

// Job is one asynchronous, observable, cancelable execution of a connector +
// document-processing pipeline against a Source. Jobs are created by a start
// request, mutated only by the executor, and never deleted; a rerun creates
// a fresh Job referencing the same source.
type Job struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID        string             `bson:"tenant_id" json:"tenant_id"`
	SourceID        primitive.ObjectID `bson:"source_id" json:"source_id"`
	Status          string             `bson:"status" json:"status"`
	CancelRequested bool               `bson:"cancel_requested" json:"-"`
	ItemsProcessed  int                `bson:"items_processed" json:"items_processed"`
	ItemsFailed     int                `bson:"items_failed" json:"items_failed"`
	Error           string             `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	StartedAt       *time.Time         `bson:"started_at,omitempty" json:"started_at,omitempty"`
	FinishedAt      *time.Time         `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return TerminalJobStatus(j.Status)
}

// TerminalJobStatus reports whether status is one of the final states.
func TerminalJobStatus(status string) bool {
	switch status {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// StartJobRequest starts an ingestion job for an existing source or an
// inline source descriptor.
type StartJobRequest struct {
	SourceID string        `json:"source_id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Location string        `json:"location,omitempty"`
	Params   *SourceParams `json:"params,omitempty"`
}

// JobLogSlice is one offset-based read of a job's append-only log.
// NextOffset always equals the request offset plus len(Content), so polling
// with the returned offset never re-reads or skips bytes.
type JobLogSlice struct {
	Content    string `json:"content"`
	NextOffset int64  `json:"next_offset"`
	Status     string `json:"status,omitempty"` // present only once terminal
}
