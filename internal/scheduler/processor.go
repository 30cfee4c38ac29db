package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/callgrind-index/internal/callgrind"
	"github.com/callgrind-index/internal/index"
	"github.com/callgrind-index/internal/repository"
	"github.com/callgrind-index/internal/storage"
	"github.com/callgrind-index/pkg/config"
	"github.com/callgrind-index/pkg/model"
	"github.com/callgrind-index/pkg/utils"
)

// DefaultTaskProcessor implements TaskProcessor using the Preprocessor/Writer
// pipeline.
type DefaultTaskProcessor struct {
	config   *config.Config
	storage  storage.Storage
	repos    *repository.Repositories
	external *callgrind.ExternalPreprocessor
	logger   utils.Logger
}

// ProcessorConfig holds processor configuration.
type ProcessorConfig struct {
	Config   *config.Config
	Storage  storage.Storage
	Repos    *repository.Repositories
	External *callgrind.ExternalPreprocessor
	Logger   utils.Logger
}

// NewDefaultTaskProcessor creates a new DefaultTaskProcessor.
func NewDefaultTaskProcessor(cfg *ProcessorConfig) *DefaultTaskProcessor {
	if cfg.Logger == nil {
		cfg.Logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}

	external := cfg.External
	if external == nil {
		external = &callgrind.ExternalPreprocessor{BinaryPath: cfg.Config.Callgrind.ExternalPreprocessor}
	}

	return &DefaultTaskProcessor{
		config:   cfg.Config,
		storage:  cfg.Storage,
		repos:    cfg.Repos,
		external: external,
		logger:   cfg.Logger,
	}
}

// Process runs the preprocessing pipeline for a single task: download the
// trace, aggregate it into a Model, write the binary index, upload it, and
// record the job outcome.
func (p *DefaultTaskProcessor) Process(ctx context.Context, task *Task) error {
	p.logger.Info("Starting preprocessing for task %d (UUID: %s)", task.ID, task.UUID)

	taskDir := p.config.GetTaskDir(task.UUID)
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(taskDir); err != nil {
			p.logger.Warn("Failed to clean up task directory %s: %v", taskDir, err)
		}
	}()

	inputPath := filepath.Join(taskDir, "trace.in")
	outputPath := filepath.Join(taskDir, "trace.idx")

	if err := p.storage.DownloadFile(ctx, task.InputKey, inputPath); err != nil {
		failErr := fmt.Errorf("failed to download input: %w", err)
		p.markFailed(ctx, task, failErr)
		return failErr
	}

	functionCount, err := p.preprocess(ctx, task, inputPath, outputPath)
	if err != nil {
		failErr := fmt.Errorf("preprocessing failed: %w", err)
		p.markFailed(ctx, task, failErr)
		return failErr
	}

	if err := p.storage.UploadFile(ctx, task.OutputKey, outputPath); err != nil {
		failErr := fmt.Errorf("failed to upload index: %w", err)
		p.markFailed(ctx, task, failErr)
		return failErr
	}

	if err := p.repos.Job.CompleteJob(ctx, task.ID, functionCount); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	p.logger.Info("Task %d (UUID: %s) completed: %d functions", task.ID, task.UUID, functionCount)
	return nil
}

// preprocess produces the binary index at outputPath, trying the external
// fast path first and falling back to the in-process Preprocessor.
func (p *DefaultTaskProcessor) preprocess(ctx context.Context, task *Task, inputPath, outputPath string) (uint32, error) {
	if p.external != nil && p.external.Available() {
		ok, err := p.external.Run(ctx, inputPath, outputPath, task.ProxyFunctions)
		if err != nil {
			return 0, err
		}
		if ok {
			return p.countFunctions(outputPath)
		}
		p.logger.Debug("External preprocessor declined task %d, falling back to in-process path", task.ID)
	}

	reader, closer, err := callgrind.OpenTraceReader(inputPath)
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	pre := callgrind.NewPreprocessor(callgrind.Options{ProxyFunctions: task.ProxyFunctions})
	m, err := pre.Run(reader)
	if err != nil {
		return 0, err
	}

	if err := callgrind.WriteIndex(outputPath, m); err != nil {
		return 0, err
	}

	return uint32(len(m.Functions)), nil
}

// countFunctions reads back the header of an index written by the external
// fast path to recover the function count for job bookkeeping.
func (p *DefaultTaskProcessor) countFunctions(outputPath string) (uint32, error) {
	r, err := index.Open(outputPath, index.MsecFormat())
	if err != nil {
		return 0, fmt.Errorf("failed to inspect generated index: %w", err)
	}
	defer r.Close()
	return r.FunctionCount(), nil
}

// markFailed records a job failure, logging but not escalating any error
// encountered while doing so.
func (p *DefaultTaskProcessor) markFailed(ctx context.Context, task *Task, cause error) {
	if err := p.repos.Job.UpdateStatusWithInfo(ctx, task.ID, model.JobStatusFailed, cause.Error()); err != nil {
		p.logger.Error("Failed to mark task %d failed: %v", task.ID, err)
	}
}
