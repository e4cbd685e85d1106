package converter

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/ah-its-andy/sparkconvert/internal/codec/ffmpeg"
	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

var videoCRF = map[CompressionLevel]string{
	CompressionLow:    "23",
	CompressionMedium: "28",
	CompressionHigh:   "33",
}

var audioBitrate = map[CompressionLevel]string{
	CompressionLow:    "192k",
	CompressionMedium: "128k",
	CompressionHigh:   "96k",
}

// MediaStrategy transcodes audio and video through a shared engine that is
// started on first use.
type MediaStrategy struct {
	factory TranscoderFactory

	mu     sync.Mutex
	engine Transcoder
}

func NewMediaStrategy(factory TranscoderFactory) *MediaStrategy {
	return &MediaStrategy{factory: factory}
}

// FFmpegFactory starts engines from the ffmpeg binary at bin.
func FFmpegFactory(bin, tempDir string) TranscoderFactory {
	return func(ctx context.Context) (Transcoder, error) {
		e, err := ffmpeg.New(ctx, bin, tempDir)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

func (s *MediaStrategy) Kind() StrategyKind { return StrategyMedia }

// engineFor returns the shared engine, starting it if needed. A failed start
// is not cached, so the next job tries again.
func (s *MediaStrategy) engineFor(ctx context.Context) (Transcoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		return s.engine, nil
	}
	if s.factory == nil {
		return nil, errors.New("no transcoder configured")
	}
	e, err := s.factory(ctx)
	if err != nil {
		return nil, err
	}
	s.engine = e
	return e, nil
}

func (s *MediaStrategy) Convert(ctx context.Context, req Request) (Output, error) {
	const op = "timed-media"
	target := formats.NormalizeExt(req.Target)
	if !formats.FamilyOf(req.Payload.MediaType).IsTimed() {
		return Output{}, newError(KindUnsupportedConversion, op, nil, "%s is not audio or video", req.Payload.MediaType)
	}
	switch formats.KindOf(target) {
	case formats.KindVideo, formats.KindAnimation, formats.KindAudio:
	default:
		return Output{}, newError(KindUnsupportedConversion, op, nil, "%s is not a media target", target)
	}

	engine, err := s.engineFor(ctx)
	if err != nil {
		return Output{}, newError(KindEngineUnavailable, op, err, "")
	}

	inExt := formats.ExtForMediaType(req.Payload.MediaType)
	if inExt == "" {
		inExt = ".bin"
	}
	in, out := "input"+inExt, "output"+target
	args := MediaArgs(in, out, target, req.Settings)

	onRatio := func(r float64) { req.report(int(math.Round(r * 100))) }

	if err := engine.WriteFile(in, req.Payload.Data); err != nil {
		return Output{}, newError(KindTransform, op, err, "write input")
	}
	defer engine.Remove(in, out)

	req.logf("ffmpeg %s", strings.Join(args, " "))
	if err := engine.Exec(ctx, args, onRatio); err != nil {
		var execErr *ffmpeg.ExecError
		if errors.As(err, &execErr) && execErr.Diagnostic != "" {
			req.logf("%s", execErr.Diagnostic)
			return Output{}, newError(KindTransform, op, execErr.Err, "%s", execErr.Diagnostic)
		}
		return Output{}, newError(KindTransform, op, err, "")
	}
	data, err := engine.ReadFile(out)
	if err != nil {
		return Output{}, newError(KindTransform, op, err, "read output")
	}

	o := Output{Data: data, MediaType: formats.MediaTypeForExt(target)}
	if req.Settings.PreserveMetadata {
		o.MetadataPreserved = true
		o.MetadataSummary = "container metadata copied"
	}
	return o, nil
}

// Close releases the shared engine if one was started.
func (s *MediaStrategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.engine.(io.Closer); ok {
		s.engine = nil
		return c.Close()
	}
	s.engine = nil
	return nil
}

// MediaArgs builds the transcode arguments for in -> out.
func MediaArgs(in, out, target string, settings Settings) []string {
	args := []string{"-i", in}
	if !settings.PreserveMetadata {
		args = append(args, "-map_metadata", "-1")
	}

	kind := formats.KindOf(target)
	switch formats.NormalizeExt(target) {
	case ".mp4", ".mov":
		args = append(args, "-pix_fmt", "yuv420p")
	case ".gif":
		args = append(args, "-vf", "fps=10,scale=480:-1:flags=lanczos", "-loop", "0")
	}
	if kind == formats.KindAudio {
		args = append(args, "-vn")
	}

	switch {
	case kind == formats.KindVideo:
		if crf, ok := videoCRF[settings.Compression]; ok {
			args = append(args, "-crf", crf)
			if formats.NormalizeExt(target) == ".webm" {
				args = append(args, "-b:v", "0")
			}
		}
	case kind == formats.KindAudio && formats.NormalizeExt(target) != ".wav":
		if br, ok := audioBitrate[settings.Compression]; ok {
			args = append(args, "-b:a", br)
		}
	}
	return append(args, out)
}
