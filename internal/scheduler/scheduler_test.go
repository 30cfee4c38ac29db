package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/callgrind-index/internal/scheduler/source"
	"github.com/callgrind-index/pkg/model"
	"github.com/callgrind-index/pkg/utils"
)

// fakeSource is a minimal in-memory TaskSource used to drive events through
// the Aggregator without a real database/kafka/http backend.
type fakeSource struct {
	sourceType source.SourceType
	name       string
	taskChan   chan *source.TaskEvent

	acked  int32
	nacked int32
}

func newFakeSource(name string) *fakeSource {
	return &fakeSource{
		sourceType: source.SourceType("fake"),
		name:       name,
		taskChan:   make(chan *source.TaskEvent, 10),
	}
}

func (f *fakeSource) Type() source.SourceType         { return f.sourceType }
func (f *fakeSource) Name() string                     { return f.name }
func (f *fakeSource) Start(ctx context.Context) error  { return nil }
func (f *fakeSource) Stop() error                      { return nil }
func (f *fakeSource) Tasks() <-chan *source.TaskEvent   { return f.taskChan }
func (f *fakeSource) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeSource) Ack(ctx context.Context, event *source.TaskEvent) error {
	atomic.AddInt32(&f.acked, 1)
	return nil
}

func (f *fakeSource) Nack(ctx context.Context, event *source.TaskEvent, reason string) error {
	atomic.AddInt32(&f.nacked, 1)
	return nil
}

func (f *fakeSource) push(job *model.PreprocessJob) {
	f.taskChan <- source.NewTaskEvent(job, f.sourceType, f.name)
}

// MockTaskProcessor is a mock implementation of TaskProcessor.
type MockTaskProcessor struct {
	mock.Mock
	processedCount int32
}

func (m *MockTaskProcessor) Process(ctx context.Context, task *Task) error {
	atomic.AddInt32(&m.processedCount, 1)
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskProcessor) GetProcessedCount() int32 {
	return atomic.LoadInt32(&m.processedCount)
}

func newTestAggregator(sources ...source.TaskSource) *source.Aggregator {
	return source.NewAggregator(sources, 100, nil)
}

func TestScheduler_New(t *testing.T) {
	processor := &MockTaskProcessor{}
	agg := newTestAggregator(newFakeSource("s1"))

	t.Run("WithDefaultConfig", func(t *testing.T) {
		s := New(nil, agg, processor, nil)
		require.NotNil(t, s)
		assert.Equal(t, 5, s.config.WorkerCount)
		assert.Equal(t, 2*time.Second, s.config.PollInterval)
	})

	t.Run("WithCustomConfig", func(t *testing.T) {
		config := &SchedulerConfig{
			PollInterval:  5 * time.Second,
			WorkerCount:   10,
			PrioritySlots: 3,
			TaskBatchSize: 20,
		}
		s := New(config, agg, processor, nil)
		require.NotNil(t, s)
		assert.Equal(t, 10, s.config.WorkerCount)
		assert.Equal(t, 5*time.Second, s.config.PollInterval)
	})
}

func TestScheduler_Stats(t *testing.T) {
	processor := &MockTaskProcessor{}
	agg := newTestAggregator(newFakeSource("s1"))
	config := &SchedulerConfig{
		WorkerCount: 5,
	}

	s := New(config, agg, processor, nil)

	stats := s.Stats()
	// Before Start(), workerPool is empty, so ActiveWorkers = WorkerCount - 0 = WorkerCount
	assert.Equal(t, 5, stats.ActiveWorkers)
	assert.Equal(t, 5, stats.TotalWorkers)
	assert.False(t, stats.Running)
}

func TestScheduler_ShouldAcceptTask(t *testing.T) {
	processor := &MockTaskProcessor{}
	agg := newTestAggregator(newFakeSource("s1"))
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)
	config := &SchedulerConfig{
		WorkerCount:   5,
		PrioritySlots: 2,
		PollInterval:  100 * time.Millisecond,
		TaskBatchSize: 5,
	}

	s := New(config, agg, processor, logger)

	// Need to initialize worker pool like Start() does
	for i := 0; i < config.WorkerCount; i++ {
		s.workerPool <- struct{}{}
	}

	t.Run("HighPriorityTask", func(t *testing.T) {
		task := &Task{Priority: 1}
		assert.True(t, s.shouldAcceptTask(task))
	})

	t.Run("NormalPriorityTask", func(t *testing.T) {
		task := &Task{Priority: 0}
		assert.True(t, s.shouldAcceptTask(task))
	})
}

func TestScheduler_StartStop(t *testing.T) {
	processor := &MockTaskProcessor{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)
	agg := newTestAggregator(newFakeSource("s1"))

	config := &SchedulerConfig{
		PollInterval:  100 * time.Millisecond,
		WorkerCount:   2,
		PrioritySlots: 1,
		TaskBatchSize: 5,
	}

	s := New(config, agg, processor, logger)

	ctx, cancel := context.WithCancel(context.Background())

	err := s.Start(ctx)
	require.NoError(t, err)

	stats := s.Stats()
	assert.True(t, stats.Running)

	time.Sleep(200 * time.Millisecond)

	cancel()
	s.Stop()

	stats = s.Stats()
	assert.False(t, stats.Running)
}

func TestScheduler_ProcessTask(t *testing.T) {
	processor := &MockTaskProcessor{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)
	src := newFakeSource("s1")
	agg := newTestAggregator(src)

	config := &SchedulerConfig{
		PollInterval:  100 * time.Millisecond,
		WorkerCount:   2,
		PrioritySlots: 1,
		TaskBatchSize: 5,
	}

	s := New(config, agg, processor, logger)

	job := model.NewPreprocessJob("job-uuid-1", "trace.in", "trace.idx", nil)
	job.ID = 1
	job.Priority = 1

	processor.On("Process", mock.Anything, mock.MatchedBy(func(task *Task) bool {
		return task.ID == 1
	})).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())

	err := s.Start(ctx)
	require.NoError(t, err)

	src.push(job)

	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, int32(1), processor.GetProcessedCount())

	cancel()
	s.Stop()
}

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()
	assert.Equal(t, 2*time.Second, config.PollInterval)
	assert.Equal(t, 5, config.WorkerCount)
	assert.Equal(t, 2, config.PrioritySlots)
	assert.Equal(t, 10, config.TaskBatchSize)
}

func TestConvertEventToTask(t *testing.T) {
	job := model.NewPreprocessJob("uuid-123", "in.key", "out.key", []string{"proxy"})
	job.ID = 1

	s := &Scheduler{}
	event := source.NewTaskEvent(job, source.SourceType("fake"), "s1")
	event.Priority = 1

	task := s.convertEventToTask(event)

	assert.Equal(t, int64(1), task.ID)
	assert.Equal(t, "uuid-123", task.UUID)
	assert.Equal(t, "in.key", task.InputKey)
	assert.Equal(t, "out.key", task.OutputKey)
	assert.Equal(t, []string{"proxy"}, task.ProxyFunctions)
	assert.Equal(t, 1, task.Priority)
}
