package source

import (
	"context"
	"sync"
	"time"

	"github.com/callgrind-index/internal/repository"
	"github.com/callgrind-index/pkg/model"
	"github.com/callgrind-index/pkg/utils"
)

// SourceTypeDB is the source type constant for database source.
const SourceTypeDB SourceType = "database"

func init() {
	// Register the database source strategy
	Register(SourceTypeDB, NewDatabaseSource)
}

// DatabaseOptions holds database source specific configuration.
type DatabaseOptions struct {
	// PollInterval is how often to poll for new jobs.
	PollInterval time.Duration

	// BatchSize is the maximum number of jobs to fetch per poll.
	BatchSize int
}

// DefaultDatabaseOptions returns the default options.
func DefaultDatabaseOptions() *DatabaseOptions {
	return &DatabaseOptions{
		PollInterval: 2 * time.Second,
		BatchSize:    10,
	}
}

// DatabaseSource implements TaskSource for database-based job fetching.
type DatabaseSource struct {
	name    string
	options *DatabaseOptions
	logger  utils.Logger

	jobRepo repository.JobRepository

	taskChan chan *TaskEvent
	stopCh   chan struct{}

	mu      sync.RWMutex
	running bool
}

// NewDatabaseSource creates a new database source from configuration.
func NewDatabaseSource(cfg *SourceConfig) (TaskSource, error) {
	opts := &DatabaseOptions{
		PollInterval: cfg.GetDuration("poll_interval", 2*time.Second),
		BatchSize:    cfg.GetInt("batch_size", 10),
	}

	return &DatabaseSource{
		name:     cfg.Name,
		options:  opts,
		taskChan: make(chan *TaskEvent, opts.BatchSize*2),
		stopCh:   make(chan struct{}),
	}, nil
}

// NewDatabaseSourceWithDeps creates a new database source with explicit dependencies.
// This is useful for production use where the repository is already initialized.
func NewDatabaseSourceWithDeps(name string, opts *DatabaseOptions, jobRepo repository.JobRepository, logger utils.Logger) *DatabaseSource {
	if opts == nil {
		opts = DefaultDatabaseOptions()
	}
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}

	return &DatabaseSource{
		name:     name,
		options:  opts,
		logger:   logger,
		jobRepo:  jobRepo,
		taskChan: make(chan *TaskEvent, opts.BatchSize*2),
		stopCh:   make(chan struct{}),
	}
}

// SetRepository sets the job repository.
// This must be called before Start if using the factory-created source.
func (s *DatabaseSource) SetRepository(jobRepo repository.JobRepository) {
	s.jobRepo = jobRepo
}

// SetLogger sets the logger.
func (s *DatabaseSource) SetLogger(logger utils.Logger) {
	s.logger = logger
}

// Type returns the source type.
func (s *DatabaseSource) Type() SourceType {
	return SourceTypeDB
}

// Name returns the source instance name.
func (s *DatabaseSource) Name() string {
	return s.name
}

// Start starts the database polling loop.
func (s *DatabaseSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	if s.jobRepo == nil {
		s.mu.Unlock()
		return nil // No repository configured, skip
	}

	s.running = true
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("Database source %s starting with poll_interval=%v, batch_size=%d",
			s.name, s.options.PollInterval, s.options.BatchSize)
	}

	go s.pollLoop(ctx)
	return nil
}

// Stop stops the database source.
func (s *DatabaseSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	return nil
}

// Tasks returns the task event channel.
func (s *DatabaseSource) Tasks() <-chan *TaskEvent {
	return s.taskChan
}

// Ack acknowledges a job has been processed successfully.
// For database source, this is a no-op: the processor already marks the
// job completed via JobRepository.CompleteJob.
func (s *DatabaseSource) Ack(ctx context.Context, event *TaskEvent) error {
	return nil
}

// Nack indicates a job processing failed.
// For database source, this updates the job status to failed.
func (s *DatabaseSource) Nack(ctx context.Context, event *TaskEvent, reason string) error {
	if s.jobRepo == nil || event.Job == nil {
		return nil
	}
	return s.jobRepo.UpdateStatusWithInfo(ctx, event.Job.ID, model.JobStatusFailed, reason)
}

// HealthCheck checks the database connection.
func (s *DatabaseSource) HealthCheck(ctx context.Context) error {
	if s.jobRepo == nil {
		return nil
	}
	// Try to fetch a single job as health check
	_, err := s.jobRepo.GetPendingJobs(ctx, 1)
	return err
}

// pollLoop continuously polls the database for pending jobs.
func (s *DatabaseSource) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.options.PollInterval)
	defer ticker.Stop()

	// Initial poll
	s.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll fetches pending jobs and emits them to the task channel.
func (s *DatabaseSource) poll(ctx context.Context) {
	if s.jobRepo == nil {
		return
	}

	jobs, err := s.jobRepo.GetPendingJobs(ctx, s.options.BatchSize)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("Database source %s failed to fetch jobs: %v", s.name, err)
		}
		return
	}

	for _, job := range jobs {
		// Try to lock the job
		locked, err := s.jobRepo.LockJobForProcessing(ctx, job.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("Database source %s failed to lock job %d: %v", s.name, job.ID, err)
			}
			continue
		}
		if !locked {
			continue // Job already locked by another instance
		}

		// Create and emit task event
		event := NewTaskEvent(job, SourceTypeDB, s.name).
			WithMetadata("locked_at", time.Now().Format(time.RFC3339))

		select {
		case s.taskChan <- event:
			if s.logger != nil {
				s.logger.Debug("Database source %s emitted job %s", s.name, job.JobUUID)
			}
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
			// Channel full: return the locked job to pending so a later
			// poll picks it up again
			if err := s.jobRepo.UpdateStatus(ctx, job.ID, model.JobStatusPending); err != nil && s.logger != nil {
				s.logger.Error("Database source %s failed to release job %d: %v", s.name, job.ID, err)
			}
			if s.logger != nil {
				s.logger.Warn("Database source %s task channel full, job %d will retry", s.name, job.ID)
			}
		}
	}
}
