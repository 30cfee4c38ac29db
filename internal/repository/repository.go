// Package repository provides database abstraction for tracking
// preprocessing jobs.
package repository

import (
	"context"

	"github.com/callgrind-index/pkg/model"
)

// JobRepository defines the interface for preprocessing-job persistence.
type JobRepository interface {
	// GetPendingJobs retrieves jobs waiting to be picked up by a worker.
	GetPendingJobs(ctx context.Context, limit int) ([]*model.PreprocessJob, error)

	// GetJobByID retrieves a job by its numeric ID.
	GetJobByID(ctx context.Context, id int64) (*model.PreprocessJob, error)

	// GetJobByUUID retrieves a job by its UUID.
	GetJobByUUID(ctx context.Context, uuid string) (*model.PreprocessJob, error)

	// CreateJob persists a new pending job.
	CreateJob(ctx context.Context, job *model.PreprocessJob) error

	// UpdateStatus updates a job's status.
	UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error

	// UpdateStatusWithInfo updates a job's status along with a status message.
	UpdateStatusWithInfo(ctx context.Context, id int64, status model.JobStatus, info string) error

	// CompleteJob records a job's completion, including its resulting
	// function count.
	CompleteJob(ctx context.Context, id int64, functionCount uint32) error

	// LockJobForProcessing attempts to claim a pending job for processing,
	// preventing a second worker from picking it up concurrently. It
	// returns false, nil if the job was not in a lockable state (already
	// claimed, or gone).
	LockJobForProcessing(ctx context.Context, id int64) (bool, error)
}
