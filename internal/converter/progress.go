package converter

import "sync"

// ProgressSink receives a completion percentage.
type ProgressSink func(percent int)

type progressGuard struct {
	mu     sync.Mutex
	last   int
	closed bool
	sink   ProgressSink
}

// GuardProgress wraps sink so that values are clamped to [0, 100], a value
// lower than the last one forwarded is dropped, and nothing reaches sink once
// the returned stop function has been called.
func GuardProgress(sink ProgressSink) (guarded ProgressSink, stop func()) {
	g := &progressGuard{sink: sink}
	return g.report, g.stop
}

func (g *progressGuard) report(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || p < g.last {
		return
	}
	g.last = p
	if g.sink != nil {
		g.sink(p)
	}
}

func (g *progressGuard) stop() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
