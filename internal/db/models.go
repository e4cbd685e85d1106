package db

import (
	"time"
)

// StatsKey is the fixed storage key of the usage record.
const StatsKey = "sparkconvert_statistics"

type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "error"
)

// UsageStats is the single accumulated usage row.
type UsageStats struct {
	Name             string     `gorm:"primaryKey;size:64" json:"-"`
	TotalConversions int64      `gorm:"not null;default:0" json:"total_conversions"`
	TotalSize        int64      `gorm:"not null;default:0" json:"total_size"`
	LastConversion   *time.Time `json:"last_conversion"`
}

// TaskHistory is one finished job
type TaskHistory struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	JobID        string     `gorm:"size:36;index" json:"job_id"`
	FileName     string     `json:"file_name"`
	SourceType   string     `json:"source_type"`
	Target       string     `gorm:"size:16" json:"target"`
	Strategy     string     `gorm:"size:32" json:"strategy"`
	Status       TaskStatus `gorm:"size:16;index" json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SourceSize   int64      `json:"source_size"`
	OutputSize   int        `json:"output_size"`
	OutputPath   string     `json:"output_path,omitempty"`
	SourceMD5    string     `gorm:"size:32" json:"source_md5"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `gorm:"index" json:"end_time"`
	DurationMs   int64      `json:"duration_ms"`
}

// Stats is the usage record as read back.
type Stats struct {
	Count         int64      `json:"count"`
	TotalBytes    int64      `json:"total_bytes"`
	LastTimestamp *time.Time `json:"last_timestamp"`
}
