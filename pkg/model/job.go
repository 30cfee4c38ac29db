package model

import "time"

// JobStatus represents the lifecycle state of a preprocessing job.
type JobStatus int

const (
	JobStatusPending   JobStatus = 0
	JobStatusRunning   JobStatus = 1
	JobStatusCompleted JobStatus = 2
	JobStatusFailed    JobStatus = 3
)

// String returns the string representation of JobStatus.
func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "pending"
	case JobStatusRunning:
		return "running"
	case JobStatusCompleted:
		return "completed"
	case JobStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PreprocessJob is a persisted record of one Preprocessor invocation,
// tracked by the async scheduler/service layer. It has no bearing on the
// core's data model (pkg/model.FunctionRecord etc.); the core never reads
// or writes this type.
type PreprocessJob struct {
	ID             int64      `json:"id" db:"id"`
	JobUUID        string     `json:"job_uuid" db:"job_uuid"`
	InputKey       string     `json:"input_key" db:"input_key"`
	OutputKey      string     `json:"output_key" db:"output_key"`
	ProxyFunctions []string   `json:"proxy_functions" db:"-"`
	Status         JobStatus  `json:"status" db:"status"`
	StatusInfo     string     `json:"status_info" db:"status_info"`
	FunctionCount  uint32     `json:"function_count" db:"function_count"`
	Priority       int        `json:"priority" db:"priority"`
	CreateTime     time.Time  `json:"create_time" db:"create_time"`
	BeginTime      *time.Time `json:"begin_time" db:"begin_time"`
	EndTime        *time.Time `json:"end_time" db:"end_time"`
}

// NewPreprocessJob creates a pending PreprocessJob.
func NewPreprocessJob(jobUUID, inputKey, outputKey string, proxyFunctions []string) *PreprocessJob {
	return &PreprocessJob{
		JobUUID:        jobUUID,
		InputKey:       inputKey,
		OutputKey:      outputKey,
		ProxyFunctions: proxyFunctions,
		Status:         JobStatusPending,
		CreateTime:     time.Now(),
	}
}

// MarkRunning transitions the job to running and stamps BeginTime.
func (j *PreprocessJob) MarkRunning() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.BeginTime = &now
}

// MarkCompleted transitions the job to completed and records the resulting
// function count.
func (j *PreprocessJob) MarkCompleted(functionCount uint32) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.FunctionCount = functionCount
	j.EndTime = &now
}

// MarkFailed transitions the job to failed with the given status message.
func (j *PreprocessJob) MarkFailed(info string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.StatusInfo = info
	j.EndTime = &now
}
