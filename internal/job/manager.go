// Package job holds submitted conversions and runs them one at a time.
package job

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ah-its-andy/sparkconvert/internal/converter"
	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

const (
	DefaultMaxBatch    = 10
	DefaultMaxFileSize = 100 << 20
)

// Options bound intake and execution.
type Options struct {
	MaxBatch    int
	MaxFileSize int64
	// JobTimeout bounds a single strategy call. Zero means no limit.
	JobTimeout time.Duration
}

// Deliverer saves a completed output and returns where it went.
type Deliverer interface {
	Deliver(ctx context.Context, sourceName, target string, data []byte) (string, error)
}

// UsageRecorder accumulates usage for every completed job.
type UsageRecorder interface {
	Record(ctx context.Context, size int64) error
}

// HistoryRecorder stores one row per finished job.
type HistoryRecorder interface {
	RecordTask(ctx context.Context, rec TaskRecord) error
}

// LogSink collects per-job diagnostics.
type LogSink interface {
	StartTask(id string)
	AppendLog(id, content string)
	EndTask(id string)
	Remove(id string)
}

// Hooks are the side effects of a finished job. Any of them may be nil.
type Hooks struct {
	Delivery Deliverer
	Usage    UsageRecorder
	History  HistoryRecorder
	Logs     LogSink
}

// TaskRecord describes a finished job.
type TaskRecord struct {
	JobID      string
	Name       string
	MediaType  formats.MediaType
	Target     string
	Strategy   string
	Status     Status
	Error      string
	Size       int64
	OutputSize int
	OutputPath string
	SourceMD5  string
	Started    time.Time
	Finished   time.Time
}

// Manager owns every job of the session.
type Manager struct {
	router *converter.Router
	opts   Options
	hooks  Hooks

	mu       sync.RWMutex
	jobs     []*Job
	settings converter.Settings

	runMu sync.Mutex
}

func NewManager(router *converter.Router, opts Options, hooks Hooks) *Manager {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Manager{
		router:   router,
		opts:     opts,
		hooks:    hooks,
		settings: converter.DefaultSettings(),
	}
}

// Settings returns the settings new jobs will be created with.
func (m *Manager) Settings() converter.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// SetSettings changes the settings for future submissions only.
func (m *Manager) SetSettings(s converter.Settings) {
	if s.Compression == "" {
		s.Compression = converter.CompressionMedium
	}
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
}

// Submit creates one pending job per acceptable source. Oversized and
// unsupported sources are refused individually, then everything beyond the
// batch cap is dropped with a single notice.
func (m *Manager) Submit(sources []Source) SubmitResult {
	res := SubmitResult{Jobs: []Job{}, Notices: []Notice{}}

	accepted := make([]Source, 0, len(sources))
	for _, src := range sources {
		switch {
		case src.Size > m.opts.MaxFileSize:
			res.Notices = append(res.Notices, Notice{
				Kind:    converter.KindSizeLimitExceeded,
				Name:    src.Name,
				Message: fmt.Sprintf("%s is larger than %d MiB", src.Name, m.opts.MaxFileSize>>20),
			})
		case !formats.Supported(src.MediaType):
			res.Notices = append(res.Notices, Notice{
				Kind:    converter.KindUnsupportedType,
				Name:    src.Name,
				Message: fmt.Sprintf("%s has unsupported type %q", src.Name, src.MediaType),
			})
		default:
			accepted = append(accepted, src)
		}
	}
	if over := len(accepted) - m.opts.MaxBatch; over > 0 {
		accepted = accepted[:m.opts.MaxBatch]
		res.Notices = append(res.Notices, Notice{
			Kind:    converter.KindBatchLimitExceeded,
			Count:   over,
			Message: fmt.Sprintf("only %d files can be added at once, %d dropped", m.opts.MaxBatch, over),
		})
	}

	settings := m.Settings()
	now := time.Now()
	created := make([]*Job, 0, len(accepted))
	for _, src := range accepted {
		data, err := src.Load()
		if err != nil {
			res.Notices = append(res.Notices, Notice{
				Kind:    converter.KindDecode,
				Name:    src.Name,
				Message: fmt.Sprintf("cannot read %s: %v", src.Name, err),
			})
			continue
		}
		created = append(created, &Job{
			ID:             uuid.NewString(),
			Name:           src.Name,
			MediaType:      src.MediaType,
			Size:           int64(len(data)),
			AllowedTargets: formats.AllowedTargets(src.MediaType),
			Status:         StatusPending,
			Settings:       settings,
			CreatedAt:      now,
			data:           data,
		})
	}

	m.mu.Lock()
	m.jobs = append(m.jobs, created...)
	for _, j := range created {
		res.Jobs = append(res.Jobs, j.snapshot())
	}
	m.mu.Unlock()

	for _, n := range res.Notices {
		log.Printf("[Manager] intake: %s: %s", n.Kind, n.Message)
	}
	log.Printf("[Manager] submitted %d job(s)", len(created))
	return res
}

func (m *Manager) find(id string) (int, *Job) {
	for i, j := range m.jobs {
		if j.ID == id {
			return i, j
		}
	}
	return -1, nil
}

// SetTarget chooses the output format of a pending job. An empty target
// clears the choice.
func (m *Manager) SetTarget(id, target string) (Job, error) {
	target = formats.NormalizeExt(target)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, j := m.find(id)
	if j == nil {
		return Job{}, ErrNotFound
	}
	if j.Status != StatusPending {
		return j.snapshot(), ErrNotPending
	}
	if target != "" && !formats.Allows(j.MediaType, target) {
		return j.snapshot(), &converter.Error{
			Kind: converter.KindUnsupportedConversion,
			Op:   "target",
			Msg:  fmt.Sprintf("%s cannot be converted to %s", j.MediaType, target),
		}
	}
	j.Target = target
	return j.snapshot(), nil
}

// Remove deletes a pending job.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	i, j := m.find(id)
	if j == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	if j.Status != StatusPending {
		m.mu.Unlock()
		return ErrNotPending
	}
	m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
	m.mu.Unlock()
	m.dropLog(id)
	return nil
}

// RemoveCompleted deletes every completed job and returns how many.
func (m *Manager) RemoveCompleted() int {
	return m.removeWhere(func(j *Job) bool { return j.Status == StatusCompleted })
}

// RemoveAll deletes every job regardless of status. A job that is converting
// still finishes and is delivered, but is no longer listed.
func (m *Manager) RemoveAll() int {
	return m.removeWhere(func(*Job) bool { return true })
}

func (m *Manager) removeWhere(match func(*Job) bool) int {
	m.mu.Lock()
	kept := m.jobs[:0]
	var removed []string
	for _, j := range m.jobs {
		if match(j) {
			removed = append(removed, j.ID)
			continue
		}
		kept = append(kept, j)
	}
	for i := len(kept); i < len(m.jobs); i++ {
		m.jobs[i] = nil
	}
	m.jobs = kept
	m.mu.Unlock()
	for _, id := range removed {
		m.dropLog(id)
	}
	return len(removed)
}

// List returns every job in submission order.
func (m *Manager) List() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.snapshot())
	}
	return out
}

// Get returns one job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, j := m.find(id)
	if j == nil {
		return Job{}, false
	}
	return j.snapshot(), true
}

// Output returns the converted bytes of a completed job.
func (m *Manager) Output(id string) (Job, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, j := m.find(id)
	if j == nil {
		return Job{}, nil, ErrNotFound
	}
	if j.Status != StatusCompleted || j.output == nil {
		return j.snapshot(), nil, ErrNoOutput
	}
	return j.snapshot(), j.output, nil
}

// Eligible counts pending jobs that have a target.
func (m *Manager) Eligible() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, j := range m.jobs {
		if j.Status == StatusPending && j.Target != "" {
			n++
		}
	}
	return n
}

func (m *Manager) dropLog(id string) {
	if m.hooks.Logs != nil {
		m.hooks.Logs.Remove(id)
	}
}
