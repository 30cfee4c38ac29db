package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callgrind-index/pkg/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormJobRepository implements JobRepository using GORM.
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository.
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// GetPendingJobs retrieves jobs waiting to be picked up by a worker.
func (r *GormJobRepository) GetPendingJobs(ctx context.Context, limit int) ([]*model.PreprocessJob, error) {
	var records []PreprocessJobRecord

	err := r.db.WithContext(ctx).
		Where("status = ?", model.JobStatusPending).
		Order("priority DESC, id ASC").
		Limit(limit).
		Find(&records).Error

	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}

	jobs := make([]*model.PreprocessJob, len(records))
	for i, rec := range records {
		jobs[i] = rec.ToModel()
	}

	return jobs, nil
}

// GetJobByID retrieves a job by its numeric ID.
func (r *GormJobRepository) GetJobByID(ctx context.Context, id int64) (*model.PreprocessJob, error) {
	var record PreprocessJobRecord

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return record.ToModel(), nil
}

// GetJobByUUID retrieves a job by its UUID.
func (r *GormJobRepository) GetJobByUUID(ctx context.Context, uuid string) (*model.PreprocessJob, error) {
	var record PreprocessJobRecord

	err := r.db.WithContext(ctx).Where("job_uuid = ?", uuid).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found: %s", uuid)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return record.ToModel(), nil
}

// CreateJob persists a new pending job.
func (r *GormJobRepository) CreateJob(ctx context.Context, job *model.PreprocessJob) error {
	record, err := FromModel(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	job.ID = record.ID
	return nil
}

// UpdateStatus updates a job's status.
func (r *GormJobRepository) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	result := r.db.WithContext(ctx).
		Model(&PreprocessJobRecord{}).
		Where("id = ?", id).
		Update("status", status)

	if result.Error != nil {
		return fmt.Errorf("failed to update job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job not found: %d", id)
	}

	return nil
}

// UpdateStatusWithInfo updates a job's status along with a status message.
func (r *GormJobRepository) UpdateStatusWithInfo(ctx context.Context, id int64, status model.JobStatus, info string) error {
	result := r.db.WithContext(ctx).
		Model(&PreprocessJobRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"status_info": info,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job not found: %d", id)
	}

	return nil
}

// CompleteJob records a job's completion, including its resulting function
// count.
func (r *GormJobRepository) CompleteJob(ctx context.Context, id int64, functionCount uint32) error {
	result := r.db.WithContext(ctx).
		Model(&PreprocessJobRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         model.JobStatusCompleted,
			"function_count": functionCount,
			"end_time":       time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to complete job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job not found: %d", id)
	}

	return nil
}

// LockJobForProcessing attempts to claim a pending job for processing using
// FOR UPDATE, preventing a second worker from picking it up concurrently.
func (r *GormJobRepository) LockJobForProcessing(ctx context.Context, id int64) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record PreprocessJobRecord

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ?", id, model.JobStatusPending).
			First(&record).Error

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gorm.ErrRecordNotFound
			}
			return err
		}

		now := time.Now()
		return tx.Model(&PreprocessJobRecord{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     model.JobStatusRunning,
				"begin_time": now,
			}).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock job: %w", err)
	}

	return true, nil
}
