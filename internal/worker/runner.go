// Package worker runs conversion batches in the background, one at a time.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ah-its-andy/sparkconvert/internal/job"
)

var ErrStopped = errors.New("worker stopped")

// BatchConverter is the part of the job manager the runner drives.
type BatchConverter interface {
	ConvertAll(ctx context.Context) job.BatchReport
}

// Status is a point-in-time view of the runner.
type Status struct {
	Running bool             `json:"running"`
	Queued  bool             `json:"queued"`
	Last    *job.BatchReport `json:"last,omitempty"`
}

type Runner struct {
	conv  BatchConverter
	queue *Queue

	mu      sync.Mutex
	waiters []chan job.BatchReport
	running bool
	last    *job.BatchReport
	stopped bool
}

func NewRunner(conv BatchConverter, q *Queue) *Runner {
	if q == nil {
		q = NewQueue()
	}
	return &Runner{conv: conv, queue: q}
}

// Run serves batch requests until ctx is cancelled. A batch in flight when
// ctx ends still lets its converting job finish.
func (r *Runner) Run(ctx context.Context) {
	log.Printf("[Worker] started")
	for {
		select {
		case <-ctx.Done():
			r.queue.StopAccepting()
			r.stop()
			log.Printf("[Worker] stopped")
			return
		case <-r.queue.Chan():
			r.runBatch(ctx)
		}
	}
}

func (r *Runner) runBatch(ctx context.Context) {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.running = true
	r.mu.Unlock()

	start := time.Now()
	report := r.conv.ConvertAll(ctx)
	log.Printf("[Worker] batch of %d finished in %s", report.Total, time.Since(start).Round(time.Millisecond))

	r.mu.Lock()
	r.running = false
	r.last = &report
	r.mu.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- report:
		default:
		}
		close(ch)
	}
}

func (r *Runner) stop() {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.stopped = true
	r.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

// Trigger queues a batch without waiting for it.
func (r *Runner) Trigger() bool {
	return r.queue.Trigger()
}

// Wait queues a batch and blocks until a batch that started after the call
// has finished.
func (r *Runner) Wait(ctx context.Context) (job.BatchReport, error) {
	ch, err := r.register()
	if err != nil {
		return job.BatchReport{}, err
	}
	if !r.queue.Trigger() {
		r.unregister(ch)
		return job.BatchReport{}, ErrStopped
	}
	select {
	case report, ok := <-ch:
		if !ok {
			return job.BatchReport{}, ErrStopped
		}
		return report, nil
	case <-ctx.Done():
		r.unregister(ch)
		return job.BatchReport{}, ctx.Err()
	}
}

func (r *Runner) register() (chan job.BatchReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrStopped
	}
	ch := make(chan job.BatchReport, 1)
	r.waiters = append(r.waiters, ch)
	return ch, nil
}

// unregister drops ch if the runner has not claimed it yet. A claimed channel
// is buffered, so the runner never blocks on it.
func (r *Runner) unregister(ch chan job.BatchReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.waiters {
		if c == ch {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{Running: r.running, Queued: r.queue.Queued()}
	if r.last != nil {
		last := *r.last
		st.Last = &last
	}
	return st
}
