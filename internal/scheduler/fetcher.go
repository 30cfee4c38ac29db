package scheduler

import (
	"context"

	"github.com/callgrind-index/internal/repository"
	"github.com/callgrind-index/pkg/model"
)

// RepositoryTaskFetcher implements task fetching using the job repository.
type RepositoryTaskFetcher struct {
	jobRepo repository.JobRepository
}

// NewRepositoryTaskFetcher creates a new RepositoryTaskFetcher.
func NewRepositoryTaskFetcher(jobRepo repository.JobRepository) *RepositoryTaskFetcher {
	return &RepositoryTaskFetcher{jobRepo: jobRepo}
}

// FetchPendingTasks returns pending jobs to be processed.
func (f *RepositoryTaskFetcher) FetchPendingTasks(ctx context.Context, limit int) ([]*Task, error) {
	jobs, err := f.jobRepo.GetPendingJobs(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := make([]*Task, len(jobs))
	for i, j := range jobs {
		result[i] = convertModelTask(j)
	}

	return result, nil
}

// LockTask attempts to lock a job for processing.
func (f *RepositoryTaskFetcher) LockTask(ctx context.Context, taskID int64) (bool, error) {
	return f.jobRepo.LockJobForProcessing(ctx, taskID)
}

// UpdateTaskStatus updates the job status.
func (f *RepositoryTaskFetcher) UpdateTaskStatus(ctx context.Context, taskID int64, status model.JobStatus, info string) error {
	if info != "" {
		return f.jobRepo.UpdateStatusWithInfo(ctx, taskID, status, info)
	}
	return f.jobRepo.UpdateStatus(ctx, taskID, status)
}

// convertModelTask converts a model.PreprocessJob to a scheduler.Task.
func convertModelTask(j *model.PreprocessJob) *Task {
	return &Task{
		ID:             j.ID,
		UUID:           j.JobUUID,
		InputKey:       j.InputKey,
		OutputKey:      j.OutputKey,
		ProxyFunctions: j.ProxyFunctions,
		Priority:       j.Priority,
	}
}
