// Package ffmpeg drives an ffmpeg binary over a private working directory.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var ErrUnavailable = errors.New("ffmpeg unavailable")

// ExecError is a failed transcode with the tail of ffmpeg's stderr.
type ExecError struct {
	Err        error
	Diagnostic string
}

func (e *ExecError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("ffmpeg error: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg error: %v | %s", e.Err, e.Diagnostic)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Engine is a started ffmpeg installation bound to a scratch directory.
// Filenames passed to its methods are relative to that directory.
type Engine struct {
	bin string
	dir string

	mu     sync.Mutex
	closed bool
}

// New locates bin, checks that it runs, and creates the working directory.
func New(ctx context.Context, bin, tempDir string) (*Engine, error) {
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, bin)
	}
	if out, err := exec.CommandContext(ctx, path, "-hide_banner", "-version").CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrUnavailable, err, strings.TrimSpace(string(out)))
	}
	dir, err := os.MkdirTemp(tempDir, "sparkconvert-ffmpeg-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Engine{bin: path, dir: dir}, nil
}

// Dir is the working directory.
func (e *Engine) Dir() string { return e.dir }

func (e *Engine) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid working filename %q", name)
	}
	return filepath.Join(e.dir, name), nil
}

func (e *Engine) WriteFile(name string, data []byte) error {
	p, err := e.path(name)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

func (e *Engine) ReadFile(name string) ([]byte, error) {
	p, err := e.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Remove deletes working files, ignoring ones that do not exist.
func (e *Engine) Remove(names ...string) {
	for _, name := range names {
		if p, err := e.path(name); err == nil {
			_ = os.Remove(p)
		}
	}
}

// Exec runs ffmpeg with args in the working directory. onRatio, when not
// nil, receives the fraction of the input duration processed so far.
func (e *Engine) Exec(ctx context.Context, args []string, onRatio func(float64)) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return &ExecError{Err: errors.New("engine closed")}
	}

	full := append([]string{"-hide_banner", "-nostdin", "-y", "-nostats", "-progress", "pipe:1"}, args...)
	cmd := exec.CommandContext(ctx, e.bin, full...)
	cmd.Dir = e.dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ExecError{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ExecError{Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &ExecError{Err: err}
	}

	var duration atomic.Int64 // microseconds
	tail := newTail(20)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			line := sc.Text()
			if d, ok := ParseDurationLine(line); ok {
				duration.CompareAndSwap(0, d)
			}
			tail.add(line)
		}
	}()

	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok || onRatio == nil {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// both keys carry microseconds
			us, err := strconv.ParseInt(val, 10, 64)
			total := duration.Load()
			if err != nil || us < 0 || total <= 0 {
				continue
			}
			onRatio(min(float64(us)/float64(total), 1))
		case "progress":
			if val == "end" {
				onRatio(1)
			}
		}
	}
	<-done

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &ExecError{Err: err, Diagnostic: tail.String()}
	}
	return nil
}

// Close removes the working directory. The engine is unusable afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return os.RemoveAll(e.dir)
}

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// ParseDurationLine extracts the input duration in microseconds from an
// ffmpeg banner line such as "  Duration: 00:01:02.50, start: ...".
func ParseDurationLine(line string) (int64, bool) {
	m := durationRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	total := (float64(h*3600+mi*60) + s) * 1e6
	if total <= 0 {
		return 0, false
	}
	return int64(total), true
}

type tail struct {
	max   int
	lines []string
	mu    sync.Mutex
}

func newTail(max int) *tail { return &tail{max: max} }

func (t *tail) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(strings.Join(t.lines, "\n"))
}
