package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobStatusSent       JobStatus = "SENT"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusImported   JobStatus = "IMPORTED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether processing has finished for this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusImported || s == JobStatusFailed
}

// ImportJob tracks one uploaded file through the pipeline.
type ImportJob struct {
	ID           int64
	UserID       uuid.UUID
	AccountID    *int64
	CreditCardID *int64
	Status       JobStatus
	FileName     string
	FilePath     string // opaque blob storage key
	HandlerType  string
	FailedReason *string
	SuccessCount int
	ErrorCount   int
	Errors       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ProcessedAt  *time.Time
}

// Fail moves the job to FAILED with the given reason.
func (j *ImportJob) Fail(reason string, at time.Time) {
	j.Status = JobStatusFailed
	j.FailedReason = &reason
	j.ProcessedAt = &at
}

// StartProcessing moves the job to PROCESSING and clears the outcome of any
// earlier run.
func (j *ImportJob) StartProcessing() {
	j.Status = JobStatusProcessing
	j.FailedReason = nil
	j.ProcessedAt = nil
	j.HandlerType = ""
	j.SuccessCount = 0
	j.ErrorCount = 0
	j.Errors = nil
}

// Reset puts the job back in SENT so it can be processed again.
func (j *ImportJob) Reset() {
	j.Status = JobStatusSent
	j.FailedReason = nil
}
