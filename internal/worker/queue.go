package worker

import (
	"sync"
)

// Queue holds at most one pending batch request. Triggers that arrive while a
// request is already queued are folded into it.
type Queue struct {
	ch        chan struct{}
	mu        sync.Mutex
	accepting bool
}

func NewQueue() *Queue {
	return &Queue{
		ch:        make(chan struct{}, 1),
		accepting: true,
	}
}

// Trigger asks for a batch. It never blocks and reports false only once the
// queue has stopped accepting.
func (q *Queue) Trigger() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.accepting {
		return false
	}
	select {
	case q.ch <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue) StopAccepting() {
	q.mu.Lock()
	q.accepting = false
	q.mu.Unlock()
}

func (q *Queue) Chan() <-chan struct{} { return q.ch }

// Queued reports whether a request is waiting for the runner.
func (q *Queue) Queued() bool { return len(q.ch) > 0 }
