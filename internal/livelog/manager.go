package livelog

import (
	"sync"
	"time"
	"unicode/utf8"
)

// MaxLogBytes caps the text kept per job; older output is discarded first.
const MaxLogBytes = 64 << 10

// LiveLog is the diagnostic output of one job.
type LiveLog struct {
	JobID      string     `json:"job_id"`
	Logs       string     `json:"logs"`
	StartTime  time.Time  `json:"start_time"`
	LastUpdate time.Time  `json:"last_update"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}

func (l *LiveLog) copy() *LiveLog {
	c := *l
	return &c
}

// Manager keeps live logs keyed by job ID
type Manager struct {
	mu   sync.RWMutex
	logs map[string]*LiveLog
}

func NewManager() *Manager {
	return &Manager{logs: make(map[string]*LiveLog)}
}

// StartTask creates or resets the log for a job
func (m *Manager) StartTask(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.logs[jobID] = &LiveLog{
		JobID:      jobID,
		StartTime:  now,
		LastUpdate: now,
	}
}

// AppendLog appends to a job's log. Unknown jobs are ignored.
func (m *Manager) AppendLog(jobID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, exists := m.logs[jobID]; exists {
		l.Logs += content
		if n := len(l.Logs); n > MaxLogBytes {
			l.Logs = trimHead(l.Logs, n-MaxLogBytes)
		}
		l.LastUpdate = time.Now()
	}
}

// GetLog returns a copy of a job's log
func (m *Manager) GetLog(jobID string) (*LiveLog, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, exists := m.logs[jobID]
	if !exists {
		return nil, false
	}
	return l.copy(), true
}

// EndTask marks a job's log finished. The text is kept until Remove.
func (m *Manager) EndTask(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, exists := m.logs[jobID]; exists {
		now := time.Now()
		l.EndTime = &now
		l.LastUpdate = now
	}
}

// Remove drops a job's log.
func (m *Manager) Remove(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.logs, jobID)
}

// GetAllActiveLogs returns the logs of jobs that have not ended
func (m *Manager) GetAllActiveLogs() map[string]*LiveLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*LiveLog)
	for id, l := range m.logs {
		if l.EndTime == nil {
			result[id] = l.copy()
		}
	}
	return result
}

// CleanOldLogs removes finished logs not updated within maxAge
func (m *Manager) CleanOldLogs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	n := 0
	for id, l := range m.logs {
		if l.EndTime != nil && now.Sub(l.LastUpdate) > maxAge {
			delete(m.logs, id)
			n++
		}
	}
	return n
}

// trimHead drops at least cut bytes from the front of s, advancing to the
// next rune boundary.
func trimHead(s string, cut int) string {
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}
