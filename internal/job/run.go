package job

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/ah-its-andy/sparkconvert/internal/converter"
	"github.com/ah-its-andy/sparkconvert/internal/utils"
)

// Result is the outcome of one job within a batch.
type Result struct {
	JobID      string         `json:"job_id"`
	Name       string         `json:"name"`
	Target     string         `json:"target"`
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  converter.Kind `json:"error_kind,omitempty"`
	OutputPath string         `json:"output_path,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// BatchReport folds the results of one ConvertAll call.
type BatchReport struct {
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Results   []Result  `json:"results"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

func (r *BatchReport) add(res Result) {
	r.Total++
	switch res.Status {
	case StatusCompleted:
		r.Completed++
	case StatusError:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// ConvertAll runs every pending job that has a target, one at a time in
// submission order. Each job reaches a terminal state before the next starts.
// Cancelling ctx stops jobs from starting but never interrupts one that is
// already converting.
func (m *Manager) ConvertAll(ctx context.Context) BatchReport {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	report := BatchReport{Results: []Result{}, Started: time.Now()}

	m.mu.RLock()
	queue := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status == StatusPending && j.Target != "" {
			queue = append(queue, j)
		}
	}
	m.mu.RUnlock()

	for _, j := range queue {
		if ctx.Err() != nil {
			log.Printf("[Manager] batch interrupted, %d job(s) left pending", len(queue)-report.Total)
			break
		}
		if !m.begin(j) {
			continue
		}
		report.add(m.run(ctx, j))
	}
	report.Finished = time.Now()
	log.Printf("[Manager] batch done: %d completed, %d failed", report.Completed, report.Failed)
	return report
}

// begin moves j to converting if it is still listed, pending and targeted.
func (m *Manager) begin(j *Job) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, cur := m.find(j.ID); cur == nil || j.Status != StatusPending || j.Target == "" {
		return false
	}
	now := time.Now()
	j.Status = StatusConverting
	j.Progress = 0
	j.StartedAt = &now
	return true
}

func (m *Manager) run(ctx context.Context, j *Job) Result {
	m.mu.RLock()
	id, name, target, mt, settings, data := j.ID, j.Name, j.Target, j.MediaType, j.Settings, j.data
	m.mu.RUnlock()

	start := time.Now()
	if m.hooks.Logs != nil {
		m.hooks.Logs.StartTask(id)
	}
	logw := &logWriter{sink: m.hooks.Logs, id: id}
	log.Printf("[Manager] converting %s (%s -> %s)", name, mt, target)

	out, strategy, err := m.convert(ctx, converter.Request{
		Payload:  converter.Payload{Name: name, MediaType: mt, Data: data},
		Target:   target,
		Settings: settings,
		Log:      logw,
	}, j)

	res := Result{JobID: id, Name: name, Target: target}
	rec := TaskRecord{
		JobID: id, Name: name, MediaType: mt, Target: target, Strategy: strategy,
		Size: int64(len(data)), SourceMD5: utils.MD5Bytes(data), Started: start,
	}

	if err != nil {
		m.finish(j, func(j *Job) {
			j.Status = StatusError
			j.Error = err.Error()
			j.ErrorKind = converter.KindOf(err)
			j.Strategy = strategy
			j.data = nil
		})
		log.Printf("[Manager] %s failed: %v", name, err)
		logw.printf("error: %v", err)
		res.Status, res.Error, res.ErrorKind = StatusError, err.Error(), converter.KindOf(err)
		rec.Status, rec.Error = StatusError, err.Error()
	} else {
		outName := utils.ConvertedName(name, target)
		m.finish(j, func(j *Job) {
			j.Status = StatusCompleted
			j.Progress = 100
			j.Strategy = strategy
			j.output = out.Data
			j.OutputMediaType = out.MediaType
			j.OutputSize = len(out.Data)
			j.OutputName = outName
			j.MetadataPreserved = out.MetadataPreserved
			j.MetadataSummary = out.MetadataSummary
		})
		res.Status = StatusCompleted
		rec.Status, rec.OutputSize = StatusCompleted, len(out.Data)

		warnings := m.afterSuccess(ctx, j, name, target, out.Data, &res, logw)
		rec.OutputPath = res.OutputPath
		if len(warnings) > 0 {
			rec.Error = strings.Join(warnings, "; ")
		}
		log.Printf("[Manager] %s completed (%d bytes)", name, len(out.Data))
	}

	rec.Finished = time.Now()
	res.DurationMs = rec.Finished.Sub(start).Milliseconds()
	if m.hooks.History != nil {
		if err := m.hooks.History.RecordTask(context.WithoutCancel(ctx), rec); err != nil {
			log.Printf("[Manager] record history for %s: %v", name, err)
		}
	}
	if m.hooks.Logs != nil {
		m.hooks.Logs.EndTask(id)
	}
	return res
}

// convert selects the strategy and runs it behind a progress guard. Panics
// are turned into transform errors so one job cannot take down the batch.
func (m *Manager) convert(ctx context.Context, req converter.Request, j *Job) (out converter.Output, strategy string, err error) {
	s, err := m.router.Select(req.Payload.MediaType, req.Target)
	if err != nil {
		return out, "", err
	}
	strategy = s.Kind().String()

	runCtx := context.WithoutCancel(ctx)
	if m.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, m.opts.JobTimeout)
		defer cancel()
	}

	sink, stop := converter.GuardProgress(func(p int) { m.setProgress(j, p) })
	defer stop()
	req.Progress = sink

	defer func() {
		if r := recover(); r != nil {
			err = &converter.Error{Kind: converter.KindTransform, Op: strategy, Msg: fmt.Sprintf("panic: %v", r)}
		}
	}()
	out, err = s.Convert(runCtx, req)
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	if err != nil && converter.KindOf(err) == "" {
		err = &converter.Error{Kind: converter.KindTransform, Op: strategy, Err: err}
	}
	return out, strategy, err
}

func (m *Manager) afterSuccess(ctx context.Context, j *Job, name, target string, data []byte, res *Result, logw *logWriter) []string {
	sideCtx := context.WithoutCancel(ctx)
	var warnings []string
	if m.hooks.Delivery != nil {
		path, err := m.hooks.Delivery.Deliver(sideCtx, name, target, data)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("save failed: %v", err))
		} else {
			res.OutputPath = path
			logw.printf("saved %s", filepath.Base(path))
		}
	}
	if m.hooks.Usage != nil {
		m.mu.RLock()
		size := j.Size
		m.mu.RUnlock()
		if err := m.hooks.Usage.Record(sideCtx, size); err != nil {
			warnings = append(warnings, fmt.Sprintf("usage not recorded: %v", err))
		}
	}
	for _, w := range warnings {
		log.Printf("[Manager] %s: %s", name, w)
	}
	m.finish(j, func(j *Job) {
		j.OutputPath = res.OutputPath
		j.Warning = strings.Join(warnings, "; ")
		j.data = nil
	})
	return warnings
}

func (m *Manager) finish(j *Job, apply func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(j)
	if j.Status.Terminal() && j.FinishedAt == nil {
		now := time.Now()
		j.FinishedAt = &now
	}
}

func (m *Manager) setProgress(j *Job, p int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.Status == StatusConverting && p > j.Progress {
		j.Progress = p
	}
}

type logWriter struct {
	sink LogSink
	id   string
}

func (w *logWriter) Write(p []byte) (int, error) {
	if w.sink != nil {
		w.sink.AppendLog(w.id, string(p))
	}
	return len(p), nil
}

func (w *logWriter) printf(format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
