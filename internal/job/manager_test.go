package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ah-its-andy/sparkconvert/internal/codec/docx"
	"github.com/ah-its-andy/sparkconvert/internal/converter"
	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

type funcStrategy struct {
	kind converter.StrategyKind
	fn   func(ctx context.Context, req converter.Request) (converter.Output, error)
}

func (s funcStrategy) Kind() converter.StrategyKind { return s.kind }

func (s funcStrategy) Convert(ctx context.Context, req converter.Request) (converter.Output, error) {
	return s.fn(ctx, req)
}

func echoRaster() funcStrategy {
	return funcStrategy{kind: converter.StrategyRaster, fn: func(ctx context.Context, req converter.Request) (converter.Output, error) {
		req.Progress(50)
		return converter.Output{Data: append([]byte("out:"), req.Payload.Data...), MediaType: formats.MediaTypeForExt(req.Target)}, nil
	}}
}

type fakeUsage struct {
	mu    sync.Mutex
	count int
	bytes int64
	err   error
}

func (u *fakeUsage) Record(ctx context.Context, size int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.count++
	u.bytes += size
	return nil
}

type fakeDelivery struct {
	saved map[string][]byte
	err   error
}

func (d *fakeDelivery) Deliver(ctx context.Context, name, target string, data []byte) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	path := "/out/" + strings.TrimSuffix(name, ".jpg") + "-converted" + target
	d.saved[path] = data
	return path, nil
}

type fakeHistory struct {
	records []TaskRecord
}

func (h *fakeHistory) RecordTask(ctx context.Context, rec TaskRecord) error {
	h.records = append(h.records, rec)
	return nil
}

type fakeLogs struct {
	mu      sync.Mutex
	logs    map[string]string
	ended   map[string]bool
	removed []string
}

func newFakeLogs() *fakeLogs {
	return &fakeLogs{logs: map[string]string{}, ended: map[string]bool{}}
}

func (l *fakeLogs) StartTask(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs[id] = ""
}

func (l *fakeLogs) AppendLog(id, c string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs[id] += c
}

func (l *fakeLogs) EndTask(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ended[id] = true
}

func (l *fakeLogs) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, id)
}

type countingSource struct {
	loads int
}

func (c *countingSource) source(name string, mt formats.MediaType, size int64) Source {
	return Source{Name: name, MediaType: mt, Size: size, Load: func() ([]byte, error) {
		c.loads++
		return bytes.Repeat([]byte{'x'}, int(min(size, 16))), nil
	}}
}

func TestSubmitCapsBatch(t *testing.T) {
	m := NewManager(converter.NewRouter(echoRaster()), Options{}, Hooks{})
	cs := &countingSource{}
	var sources []Source
	for i := 0; i < 11; i++ {
		sources = append(sources, cs.source(fmt.Sprintf("f%02d.jpg", i), formats.JPEG, 4))
	}

	res := m.Submit(sources)
	if len(res.Jobs) != 10 {
		t.Fatalf("jobs = %d, want 10", len(res.Jobs))
	}
	if len(res.Notices) != 1 || res.Notices[0].Kind != converter.KindBatchLimitExceeded || res.Notices[0].Count != 1 {
		t.Fatalf("notices = %+v", res.Notices)
	}
	if cs.loads != 10 {
		t.Errorf("loaded %d payloads, the dropped one must never be read", cs.loads)
	}
	for i, j := range m.List() {
		if j.Name != fmt.Sprintf("f%02d.jpg", i) {
			t.Errorf("job %d is %s, submission order lost", i, j.Name)
		}
		if j.Status != StatusPending || j.Progress != 0 {
			t.Errorf("new job %s: status %s progress %d", j.Name, j.Status, j.Progress)
		}
	}
}

func TestSubmitRejectsOversizeAndUnsupported(t *testing.T) {
	m := NewManager(converter.NewRouter(echoRaster()), Options{}, Hooks{})
	cs := &countingSource{}

	res := m.Submit([]Source{cs.source("huge.mp4", formats.MP4, DefaultMaxFileSize+1)})
	if len(res.Jobs) != 0 {
		t.Fatalf("jobs = %d, want 0", len(res.Jobs))
	}
	if len(res.Notices) != 1 || res.Notices[0].Kind != converter.KindSizeLimitExceeded {
		t.Fatalf("notices = %+v", res.Notices)
	}

	res = m.Submit([]Source{
		cs.source("exactly.mp4", formats.MP4, DefaultMaxFileSize),
		cs.source("bundle.zip", "application/zip", 10),
	})
	if len(res.Jobs) != 1 || res.Jobs[0].Name != "exactly.mp4" {
		t.Fatalf("jobs = %+v", res.Jobs)
	}
	if len(res.Notices) != 1 || res.Notices[0].Kind != converter.KindUnsupportedType {
		t.Fatalf("notices = %+v", res.Notices)
	}
	if cs.loads != 1 {
		t.Errorf("loads = %d, refused payloads must not be read", cs.loads)
	}
}

func TestSettingsAreSnapshotted(t *testing.T) {
	m := NewManager(converter.NewRouter(echoRaster()), Options{}, Hooks{})
	if s := m.Settings(); !s.PreserveMetadata || s.Compression != converter.CompressionMedium {
		t.Fatalf("defaults = %+v", s)
	}
	res := m.Submit([]Source{BytesSource("a.jpg", formats.JPEG, []byte("a"))})
	m.SetSettings(converter.Settings{PreserveMetadata: false, Compression: converter.CompressionHigh})
	res2 := m.Submit([]Source{BytesSource("b.jpg", formats.JPEG, []byte("b"))})

	a, _ := m.Get(res.Jobs[0].ID)
	b, _ := m.Get(res2.Jobs[0].ID)
	if a.Settings.Compression != converter.CompressionMedium || !a.Settings.PreserveMetadata {
		t.Errorf("existing job settings changed: %+v", a.Settings)
	}
	if b.Settings.Compression != converter.CompressionHigh || b.Settings.PreserveMetadata {
		t.Errorf("new job settings = %+v", b.Settings)
	}
}

func TestSetTarget(t *testing.T) {
	m := NewManager(converter.NewRouter(echoRaster()), Options{}, Hooks{})
	id := m.Submit([]Source{BytesSource("a.jpg", formats.JPEG, []byte("a"))}).Jobs[0].ID

	if _, err := m.SetTarget(id, ".mp3"); !errors.Is(err, converter.ErrUnsupportedConversion) {
		t.Errorf("err = %v, want UnsupportedConversion", err)
	}
	j, err := m.SetTarget(id, "PNG")
	if err != nil || j.Target != ".png" {
		t.Fatalf("SetTarget = %+v, %v", j, err)
	}
	if _, err := m.SetTarget("nope", ".png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	m.ConvertAll(context.Background())
	if _, err := m.SetTarget(id, ".webp"); !errors.Is(err, ErrNotPending) {
		t.Errorf("err = %v, want ErrNotPending", err)
	}
	if j, _ := m.Get(id); j.Target != ".png" {
		t.Errorf("target changed after leaving pending: %s", j.Target)
	}
}

func TestConvertAllRunsSequentially(t *testing.T) {
	var mu sync.Mutex
	var order []string
	running := 0
	overlap := false
	failing := funcStrategy{kind: converter.StrategyRaster, fn: func(ctx context.Context, req converter.Request) (converter.Output, error) {
		mu.Lock()
		running++
		if running > 1 {
			overlap = true
		}
		order = append(order, req.Payload.Name)
		mu.Unlock()
		defer func() { mu.Lock(); running--; mu.Unlock() }()

		for _, p := range []int{10, 5, 60, 200} {
			req.Progress(p)
		}
		if req.Payload.Name == "bad.jpg" {
			return converter.Output{}, &converter.Error{Kind: converter.KindDecode, Op: "raster"}
		}
		return converter.Output{Data: []byte("ok"), MediaType: formats.PNG}, nil
	}}

	usage := &fakeUsage{}
	delivery := &fakeDelivery{saved: map[string][]byte{}}
	history := &fakeHistory{}
	logs := newFakeLogs()
	m := NewManager(converter.NewRouter(failing), Options{}, Hooks{Delivery: delivery, Usage: usage, History: history, Logs: logs})

	res := m.Submit([]Source{
		BytesSource("one.jpg", formats.JPEG, []byte("11")),
		BytesSource("bad.jpg", formats.JPEG, []byte("222")),
		BytesSource("untargeted.jpg", formats.JPEG, []byte("3")),
		BytesSource("three.jpg", formats.JPEG, []byte("4444")),
	})
	for _, j := range res.Jobs {
		if j.Name != "untargeted.jpg" {
			if _, err := m.SetTarget(j.ID, ".png"); err != nil {
				t.Fatal(err)
			}
		}
	}

	report := m.ConvertAll(context.Background())
	if overlap {
		t.Error("two jobs converted at the same time")
	}
	if got := strings.Join(order, ","); got != "one.jpg,bad.jpg,three.jpg" {
		t.Errorf("order = %s", got)
	}
	if report.Total != 3 || report.Completed != 2 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}

	byName := map[string]Job{}
	for _, j := range m.List() {
		byName[j.Name] = j
	}
	if j := byName["bad.jpg"]; j.Status != StatusError || j.ErrorKind != converter.KindDecode || j.Error == "" {
		t.Errorf("bad.jpg = %+v", j)
	}
	if j := byName["untargeted.jpg"]; j.Status != StatusPending || j.Progress != 0 {
		t.Errorf("untargeted job should stay pending: %+v", j)
	}
	for _, name := range []string{"one.jpg", "three.jpg"} {
		j := byName[name]
		if j.Status != StatusCompleted || j.Progress != 100 || j.OutputPath == "" || j.OutputName == "" {
			t.Errorf("%s = %+v", name, j)
		}
	}
	if usage.count != 2 || usage.bytes != 6 {
		t.Errorf("usage = %d files, %d bytes; want 2, 6", usage.count, usage.bytes)
	}
	if len(delivery.saved) != 2 {
		t.Errorf("saved %d outputs, want 2", len(delivery.saved))
	}
	if len(history.records) != 3 {
		t.Errorf("history rows = %d, want 3", len(history.records))
	}
	if id := byName["bad.jpg"].ID; !logs.ended[id] || !strings.Contains(logs.logs[id], "DecodeError") {
		t.Errorf("log for failed job = %q", logs.logs[id])
	}

	_, data, err := m.Output(byName["one.jpg"].ID)
	if err != nil || string(data) != "ok" {
		t.Errorf("Output = %q, %v", data, err)
	}
	if _, _, err := m.Output(byName["bad.jpg"].ID); !errors.Is(err, ErrNoOutput) {
		t.Errorf("err = %v, want ErrNoOutput", err)
	}

	again := m.ConvertAll(context.Background())
	if again.Total != 0 {
		t.Errorf("second batch ran %d jobs, terminal jobs must not rerun", again.Total)
	}
}

func TestRemoveWhileConvertingIsRefused(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := funcStrategy{kind: converter.StrategyRaster, fn: func(ctx context.Context, req converter.Request) (converter.Output, error) {
		req.Progress(30)
		close(started)
		<-release
		return converter.Output{Data: []byte("ok"), MediaType: formats.PNG}, nil
	}}
	m := NewManager(converter.NewRouter(blocking), Options{}, Hooks{})
	res := m.Submit([]Source{
		BytesSource("a.jpg", formats.JPEG, []byte("a")),
		BytesSource("b.jpg", formats.JPEG, []byte("b")),
	})
	a, b := res.Jobs[0].ID, res.Jobs[1].ID
	m.SetTarget(a, ".png")

	done := make(chan BatchReport)
	go func() { done <- m.ConvertAll(context.Background()) }()
	<-started

	if j, _ := m.Get(a); j.Status != StatusConverting || j.Progress != 30 {
		t.Errorf("during conversion: %+v", j)
	}
	if err := m.Remove(a); !errors.Is(err, ErrNotPending) {
		t.Errorf("Remove(converting) = %v, want ErrNotPending", err)
	}
	if err := m.Remove(b); err != nil {
		t.Errorf("Remove(pending) = %v", err)
	}
	close(release)
	<-done

	if j, ok := m.Get(a); !ok || j.Status != StatusCompleted {
		t.Errorf("after batch: %+v", j)
	}
	if _, ok := m.Get(b); ok {
		t.Error("removed job still listed")
	}
}

func TestRemoveCompletedAndAll(t *testing.T) {
	m := NewManager(converter.NewRouter(echoRaster()), Options{}, Hooks{Logs: newFakeLogs()})
	res := m.Submit([]Source{
		BytesSource("a.jpg", formats.JPEG, []byte("a")),
		BytesSource("b.jpg", formats.JPEG, []byte("b")),
		BytesSource("c.jpg", formats.JPEG, []byte("c")),
	})
	m.SetTarget(res.Jobs[0].ID, ".png")
	m.SetTarget(res.Jobs[2].ID, ".webp")
	m.ConvertAll(context.Background())

	if n := m.RemoveCompleted(); n != 2 {
		t.Errorf("RemoveCompleted = %d, want 2", n)
	}
	list := m.List()
	if len(list) != 1 || list[0].Name != "b.jpg" {
		t.Fatalf("left = %+v", list)
	}
	if n := m.RemoveAll(); n != 1 || len(m.List()) != 0 {
		t.Errorf("RemoveAll = %d, left %d", n, len(m.List()))
	}
	if err := m.Remove(res.Jobs[1].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSideEffectFailuresBecomeWarnings(t *testing.T) {
	usage := &fakeUsage{err: errors.New("disk full")}
	delivery := &fakeDelivery{err: errors.New("read-only")}
	m := NewManager(converter.NewRouter(echoRaster()), Options{}, Hooks{Delivery: delivery, Usage: usage})
	id := m.Submit([]Source{BytesSource("a.jpg", formats.JPEG, []byte("a"))}).Jobs[0].ID
	m.SetTarget(id, ".png")
	m.ConvertAll(context.Background())

	j, _ := m.Get(id)
	if j.Status != StatusCompleted {
		t.Fatalf("status = %s", j.Status)
	}
	if !strings.Contains(j.Warning, "read-only") || !strings.Contains(j.Warning, "disk full") {
		t.Errorf("warning = %q", j.Warning)
	}
}

func TestJobTimeoutAndPanic(t *testing.T) {
	hang := funcStrategy{kind: converter.StrategyRaster, fn: func(ctx context.Context, req converter.Request) (converter.Output, error) {
		if req.Payload.Name == "panic.jpg" {
			panic("codec bug")
		}
		<-ctx.Done()
		return converter.Output{}, ctx.Err()
	}}
	m := NewManager(converter.NewRouter(hang), Options{JobTimeout: 20 * time.Millisecond}, Hooks{})
	res := m.Submit([]Source{
		BytesSource("hang.jpg", formats.JPEG, []byte("a")),
		BytesSource("panic.jpg", formats.JPEG, []byte("b")),
	})
	for _, j := range res.Jobs {
		m.SetTarget(j.ID, ".png")
	}
	report := m.ConvertAll(context.Background())
	if report.Failed != 2 {
		t.Fatalf("report = %+v", report)
	}
	if j, _ := m.Get(res.Jobs[1].ID); !strings.Contains(j.Error, "codec bug") || j.ErrorKind != converter.KindTransform {
		t.Errorf("panic job = %+v", j)
	}
}

func TestConvertAllWithBundledStrategies(t *testing.T) {
	router, media := converter.NewDefaultRouter(converter.Tools{TempDir: t.TempDir()})
	defer media.Close()
	usage := &fakeUsage{}
	m := NewManager(router, Options{}, Hooks{Usage: usage})
	m.SetSettings(converter.Settings{PreserveMetadata: true, Compression: converter.CompressionNone})

	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	res := m.Submit([]Source{
		BytesSource("photo.jpg", formats.JPEG, jpg.Bytes()),
		BytesSource("notes.md", formats.Markdown, []byte("# Hi\n\nthere")),
		BytesSource("scan.pdf", formats.PDF, []byte("%PDF-1.4\n")),
		BytesSource("logo.svg", formats.SVG, []byte("<svg xmlns='http://www.w3.org/2000/svg'/>")),
	})
	targets := []string{".png", ".pdf", ".docx", ".jpg"}
	for i, j := range res.Jobs {
		if _, err := m.SetTarget(j.ID, targets[i]); err != nil {
			t.Fatalf("SetTarget(%s): %v", j.Name, err)
		}
	}
	m.ConvertAll(context.Background())

	jobs := m.List()
	want := []struct {
		status Status
		mt     formats.MediaType
	}{
		{StatusCompleted, formats.PNG},
		{StatusCompleted, formats.PDF},
		{StatusCompleted, formats.DOCX},
		{StatusError, ""},
	}
	for i, w := range want {
		if jobs[i].Status != w.status || jobs[i].OutputMediaType != w.mt {
			t.Errorf("%s: status %s output %s, want %s %s (err %s)",
				jobs[i].Name, jobs[i].Status, jobs[i].OutputMediaType, w.status, w.mt, jobs[i].Error)
		}
	}
	if jobs[3].ErrorKind != converter.KindNotImplemented {
		t.Errorf("svg job error kind = %s", jobs[3].ErrorKind)
	}
	if usage.count != 3 || usage.bytes != int64(jpg.Len()+len("# Hi\n\nthere")+len("%PDF-1.4\n")) {
		t.Errorf("usage = %d, %d", usage.count, usage.bytes)
	}

	_, out, err := m.Output(jobs[2].ID)
	if err != nil {
		t.Fatal(err)
	}
	if text, _ := docx.ExtractText(out); !strings.Contains(text, converter.PDFExtractionPlaceholder) {
		t.Errorf("pdf -> docx should carry the placeholder, got %q", text)
	}
}
