package job

import (
	"errors"
	"time"

	"github.com/ah-its-andy/sparkconvert/internal/converter"
	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether s is completed or error.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusError }

var (
	ErrNotFound   = errors.New("job not found")
	ErrNotPending = errors.New("job is no longer pending")
	ErrNoOutput   = errors.New("job has no output")
)

// Job is a snapshot of one conversion. Values returned by the manager are
// copies; mutating them has no effect.
type Job struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	MediaType         formats.MediaType  `json:"media_type"`
	Size              int64              `json:"size"`
	Target            string             `json:"target"`
	AllowedTargets    []string           `json:"allowed_targets"`
	Status            Status             `json:"status"`
	Progress          int                `json:"progress"`
	Settings          converter.Settings `json:"settings"`
	Strategy          string             `json:"strategy,omitempty"`
	Error             string             `json:"error,omitempty"`
	ErrorKind         converter.Kind     `json:"error_kind,omitempty"`
	OutputMediaType   formats.MediaType  `json:"output_media_type,omitempty"`
	OutputSize        int                `json:"output_size,omitempty"`
	OutputName        string             `json:"output_name,omitempty"`
	OutputPath        string             `json:"output_path,omitempty"`
	MetadataPreserved bool               `json:"metadata_preserved"`
	MetadataSummary   string             `json:"metadata_summary,omitempty"`
	Warning           string             `json:"warning,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	StartedAt         *time.Time         `json:"started_at,omitempty"`
	FinishedAt        *time.Time         `json:"finished_at,omitempty"`

	data   []byte
	output []byte
}

func (j *Job) snapshot() Job {
	c := *j
	c.AllowedTargets = append([]string(nil), j.AllowedTargets...)
	c.data = nil
	c.output = nil
	return c
}

// Notice reports a payload that was refused at intake. Refused payloads never
// become jobs.
type Notice struct {
	Kind    converter.Kind `json:"kind"`
	Name    string         `json:"name,omitempty"`
	Count   int            `json:"count,omitempty"`
	Message string         `json:"message"`
}

// SubmitResult lists the jobs created by one submission and the notices for
// what was refused.
type SubmitResult struct {
	Jobs    []Job    `json:"jobs"`
	Notices []Notice `json:"notices"`
}
