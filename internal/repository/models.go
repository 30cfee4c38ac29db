// Package repository provides database abstraction for tracking
// preprocessing jobs.
package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/callgrind-index/pkg/model"
)

// PreprocessJobRecord represents the preprocess_job table.
type PreprocessJobRecord struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement"`
	JobUUID        string          `gorm:"column:job_uuid;type:varchar(64);uniqueIndex"`
	InputKey       string          `gorm:"column:input_key;type:varchar(512)"`
	OutputKey      string          `gorm:"column:output_key;type:varchar(512)"`
	ProxyFunctions JSONField       `gorm:"column:proxy_functions;type:json"`
	Status         model.JobStatus `gorm:"column:status"`
	StatusInfo     string          `gorm:"column:status_info;type:text"`
	FunctionCount  uint32          `gorm:"column:function_count"`
	Priority       int             `gorm:"column:priority"`
	CreateTime     time.Time       `gorm:"column:create_time;autoCreateTime"`
	BeginTime      *time.Time      `gorm:"column:begin_time"`
	EndTime        *time.Time      `gorm:"column:end_time"`
}

// TableName returns the table name for PreprocessJobRecord.
func (PreprocessJobRecord) TableName() string {
	return "preprocess_job"
}

// ToModel converts a PreprocessJobRecord to model.PreprocessJob.
func (r *PreprocessJobRecord) ToModel() *model.PreprocessJob {
	job := &model.PreprocessJob{
		ID:            r.ID,
		JobUUID:       r.JobUUID,
		InputKey:      r.InputKey,
		OutputKey:     r.OutputKey,
		Status:        r.Status,
		StatusInfo:    r.StatusInfo,
		FunctionCount: r.FunctionCount,
		Priority:      r.Priority,
		CreateTime:    r.CreateTime,
		BeginTime:     r.BeginTime,
		EndTime:       r.EndTime,
	}

	if r.ProxyFunctions != nil {
		_ = json.Unmarshal(r.ProxyFunctions, &job.ProxyFunctions)
	}

	return job
}

// FromModel populates a PreprocessJobRecord from model.PreprocessJob.
func FromModel(job *model.PreprocessJob) (*PreprocessJobRecord, error) {
	var proxyFunctionsJSON []byte
	if job.ProxyFunctions != nil {
		var err error
		proxyFunctionsJSON, err = json.Marshal(job.ProxyFunctions)
		if err != nil {
			return nil, err
		}
	}

	return &PreprocessJobRecord{
		ID:             job.ID,
		JobUUID:        job.JobUUID,
		InputKey:       job.InputKey,
		OutputKey:      job.OutputKey,
		ProxyFunctions: JSONField(proxyFunctionsJSON),
		Status:         job.Status,
		StatusInfo:     job.StatusInfo,
		FunctionCount:  job.FunctionCount,
		Priority:       job.Priority,
		CreateTime:     job.CreateTime,
		BeginTime:      job.BeginTime,
		EndTime:        job.EndTime,
	}, nil
}

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}
