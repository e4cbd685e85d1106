// Package watcher submits files dropped into watched directories.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ah-its-andy/sparkconvert/internal/config"
	"github.com/ah-its-andy/sparkconvert/internal/formats"
	"github.com/ah-its-andy/sparkconvert/internal/job"
	"github.com/ah-its-andy/sparkconvert/internal/utils"
)

// Submitter is the part of the job manager the watcher feeds.
type Submitter interface {
	Submit(sources []job.Source) job.SubmitResult
	SetTarget(id, target string) (job.Job, error)
}

// Trigger starts a batch once new jobs are in.
type Trigger interface {
	Trigger() bool
}

const stableInterval = 100 * time.Millisecond

type Options struct {
	Dirs []string
	// Files are collected for this long after the last event, then checked
	// for a stable size and submitted together.
	StabilityDelay time.Duration
	BatchSize      int
	Rules          *config.Rules
	// IgnoreDir is skipped, normally the output directory.
	IgnoreDir string
}

type Watcher struct {
	opts    Options
	sub     Submitter
	trigger Trigger
	w       *fsnotify.Watcher

	mu      sync.Mutex
	paused  bool
	pending map[string]struct{}
	timer   *time.Timer
}

func New(opts Options, sub Submitter, trigger Trigger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = job.DefaultMaxBatch
	}
	if opts.IgnoreDir != "" {
		if abs, err := filepath.Abs(opts.IgnoreDir); err == nil {
			opts.IgnoreDir = abs
		}
	}
	return &Watcher{
		opts:    opts,
		sub:     sub,
		trigger: trigger,
		w:       w,
		pending: make(map[string]struct{}),
	}, nil
}

// Start registers every watched directory and serves events until ctx ends.
func (wr *Watcher) Start(ctx context.Context) error {
	if err := wr.registerAll(); err != nil {
		return err
	}
	log.Printf("[Watcher] watching %v", wr.opts.Dirs)
	for {
		select {
		case <-ctx.Done():
			wr.mu.Lock()
			if wr.timer != nil {
				wr.timer.Stop()
			}
			wr.mu.Unlock()
			return nil
		case ev, ok := <-wr.w.Events:
			if !ok {
				return nil
			}
			wr.handleEvent(ev)
		case err, ok := <-wr.w.Errors:
			if !ok {
				return nil
			}
			log.Printf("[Watcher] error: %v", err)
		}
	}
}

func (wr *Watcher) Close() error { return wr.w.Close() }

func (wr *Watcher) Pause() {
	wr.mu.Lock()
	wr.paused = true
	wr.mu.Unlock()
}

func (wr *Watcher) Resume() {
	wr.mu.Lock()
	wr.paused = false
	wr.mu.Unlock()
}

func (wr *Watcher) Paused() bool {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return wr.paused
}

func (wr *Watcher) registerAll() error {
	for _, root := range wr.opts.Dirs {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return err
		}
		wr.addTree(root)
	}
	return nil
}

func (wr *Watcher) addTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if wr.ignored(path) {
				return filepath.SkipDir
			}
			if err := wr.w.Add(path); err != nil {
				log.Printf("[Watcher] add %s: %v", path, err)
			}
		}
		return nil
	})
}

func (wr *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		fi, err := os.Stat(ev.Name)
		if err == nil && fi.IsDir() {
			wr.addTree(ev.Name)
			return
		}
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if wr.Paused() || !wr.candidate(ev.Name) {
		return
	}
	wr.schedule(ev.Name)
}

// candidate filters out temp files, outputs and unsupported types.
func (wr *Watcher) candidate(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if wr.ignored(filepath.Dir(path)) {
		return false
	}
	return formats.Supported(formats.Detect(base, "", nil))
}

func (wr *Watcher) ignored(dir string) bool {
	if wr.opts.IgnoreDir == "" {
		return false
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(wr.opts.IgnoreDir, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (wr *Watcher) schedule(path string) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	wr.pending[path] = struct{}{}
	if wr.timer != nil {
		wr.timer.Stop()
	}
	wr.timer = time.AfterFunc(wr.opts.StabilityDelay, wr.flush)
}

func (wr *Watcher) flush() {
	wr.mu.Lock()
	paths := make([]string, 0, len(wr.pending))
	for p := range wr.pending {
		paths = append(paths, p)
	}
	wr.pending = make(map[string]struct{})
	wr.timer = nil
	wr.mu.Unlock()

	wr.Submit(paths)
}

// Submit hands stable files to the manager in batches, applies the rule
// targets and triggers a run. It returns how many jobs were created.
func (wr *Watcher) Submit(paths []string) int {
	sort.Strings(paths)
	sources := make([]job.Source, 0, len(paths))
	for _, p := range paths {
		if err := utils.WaitFileStable(p, stableInterval); err != nil {
			log.Printf("[Watcher] %s: %v", p, err)
			continue
		}
		src, err := job.FileSource(p)
		if err != nil {
			log.Printf("[Watcher] %s: %v", p, err)
			continue
		}
		sources = append(sources, src)
	}

	created, targeted := 0, 0
	for start := 0; start < len(sources); start += wr.opts.BatchSize {
		end := min(start+wr.opts.BatchSize, len(sources))
		res := wr.sub.Submit(sources[start:end])
		created += len(res.Jobs)
		for _, j := range res.Jobs {
			target := wr.opts.Rules.TargetFor(j.MediaType)
			if target == "" {
				continue
			}
			if _, err := wr.sub.SetTarget(j.ID, target); err != nil {
				log.Printf("[Watcher] target %s for %s: %v", target, j.Name, err)
				continue
			}
			targeted++
		}
	}
	if created > 0 {
		log.Printf("[Watcher] submitted %d file(s), %d with a default target", created, targeted)
	}
	if targeted > 0 && wr.trigger != nil {
		wr.trigger.Trigger()
	}
	return created
}

// ScanAll submits every supported file already present in the watched
// directories.
func (wr *Watcher) ScanAll() int {
	var paths []string
	for _, root := range wr.opts.Dirs {
		_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if wr.ignored(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if wr.candidate(path) {
				paths = append(paths, path)
			}
			return nil
		})
	}
	return wr.Submit(paths)
}
