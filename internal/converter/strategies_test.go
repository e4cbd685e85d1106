package converter

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"reflect"
	"strings"
	"testing"

	"github.com/ah-its-andy/sparkconvert/internal/codec/docx"
	"github.com/ah-its-andy/sparkconvert/internal/codec/ffmpeg"
	"github.com/ah-its-andy/sparkconvert/internal/codec/markdown"
	"github.com/ah-its-andy/sparkconvert/internal/codec/pdfpage"
	"github.com/ah-its-andy/sparkconvert/internal/codec/raster"
	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

func sampleImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 24, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 10), uint8(y * 10), 90, 255})
		}
	}
	return img
}

func sampleJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, sampleImage(), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sampleGIF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, sampleImage(), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func request(mt formats.MediaType, data []byte, target string, s Settings) Request {
	return Request{Payload: Payload{Name: "f", MediaType: mt, Data: data}, Target: target, Settings: s}
}

func TestRasterStrategy(t *testing.T) {
	s := NewRasterStrategy(&raster.Codec{})
	ctx := context.Background()

	out, err := s.Convert(ctx, request(formats.JPEG, sampleJPEG(t), ".png", Settings{Compression: CompressionNone}))
	if err != nil {
		t.Fatalf("jpeg -> png: %v", err)
	}
	if out.MediaType != formats.PNG {
		t.Errorf("media type = %s", out.MediaType)
	}
	if _, err := png.Decode(bytes.NewReader(out.Data)); err != nil {
		t.Errorf("output does not decode as png: %v", err)
	}

	tests := []struct {
		name string
		mt   formats.MediaType
		data []byte
		tgt  string
		want error
	}{
		{"svg source", formats.SVG, []byte("<svg/>"), ".jpg", ErrNotImplemented},
		{"svg target", formats.JPEG, sampleJPEG(t), ".svg", ErrNotImplemented},
		{"garbage", formats.PNG, []byte("nope"), ".jpg", ErrDecode},
		{"no webp encoder", formats.JPEG, sampleJPEG(t), ".webp", ErrEngineUnavailable},
		{"not raster", formats.JPEG, sampleJPEG(t), ".mp4", ErrUnsupportedConversion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Convert(ctx, request(tt.mt, tt.data, tt.tgt, DefaultSettings()))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPageStrategy(t *testing.T) {
	s := NewPageStrategy(pdfpage.Composer{})
	ctx := context.Background()

	for _, tc := range []struct {
		mt   formats.MediaType
		data []byte
	}{
		{formats.JPEG, sampleJPEG(t)},
		{formats.GIF, sampleGIF(t)},
	} {
		out, err := s.Convert(ctx, request(tc.mt, tc.data, ".pdf", DefaultSettings()))
		if err != nil {
			t.Fatalf("%s -> pdf: %v", tc.mt, err)
		}
		if out.MediaType != formats.PDF || !bytes.HasPrefix(out.Data, []byte("%PDF-")) {
			t.Errorf("%s -> pdf produced %s %q", tc.mt, out.MediaType, out.Data[:min(8, len(out.Data))])
		}
	}

	if _, err := s.Convert(ctx, request(formats.PNG, []byte("broken"), ".pdf", DefaultSettings())); !errors.Is(err, ErrDecode) {
		t.Errorf("err = %v, want DecodeError", err)
	}
	if _, err := s.Convert(ctx, request(formats.SVG, []byte("<svg/>"), ".pdf", DefaultSettings())); !errors.Is(err, ErrDecode) {
		t.Errorf("sizeless svg: err = %v, want DecodeError", err)
	}
}

func TestPageStrategyRendersSVG(t *testing.T) {
	s := NewPageStrategy(pdfpage.Composer{})
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10" viewBox="0 0 10 10">` +
		`<rect x="1" y="1" width="8" height="8" fill="#336699"/></svg>`)

	out, err := s.Convert(context.Background(), request(formats.SVG, svg, ".pdf", DefaultSettings()))
	if err != nil {
		t.Fatalf("svg -> pdf: %v", err)
	}
	if out.MediaType != formats.PDF || !bytes.HasPrefix(out.Data, []byte("%PDF-")) {
		t.Errorf("svg -> pdf produced %s", out.MediaType)
	}
}

// interlacedPNG builds a 1x1 RGB8 PNG with the Adam7 flag set. With a single
// pixel only the first pass carries data, so the scanline is the same as the
// non-interlaced one.
func interlacedPNG(t *testing.T) []byte {
	t.Helper()
	chunk := func(typ string, data []byte) []byte {
		out := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
		out = append(out, typ...)
		out = append(out, data...)
		return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(append([]byte(typ), data...)))
	}
	ihdr := binary.BigEndian.AppendUint32(nil, 1)
	ihdr = binary.BigEndian.AppendUint32(ihdr, 1)
	ihdr = append(ihdr, 8, 2, 0, 0, 1) // depth 8, truecolor, deflate, adaptive filter, Adam7

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	if _, err := zw.Write([]byte{0, 200, 40, 40}); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	out := []byte("\x89PNG\r\n\x1a\n")
	out = append(out, chunk("IHDR", ihdr)...)
	out = append(out, chunk("IDAT", idat.Bytes())...)
	out = append(out, chunk("IEND", nil)...)
	return out
}

func TestPageStrategyInterlacedPNG(t *testing.T) {
	data := interlacedPNG(t)
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("fixture does not decode: %v", err)
	}
	if !raster.PNGInterlaced(data) {
		t.Fatal("fixture is not flagged as interlaced")
	}

	out, err := NewPageStrategy(pdfpage.Composer{}).Convert(context.Background(), request(formats.PNG, data, ".pdf", DefaultSettings()))
	if err != nil {
		t.Fatalf("interlaced png -> pdf: %v", err)
	}
	if out.MediaType != formats.PDF || !bytes.HasPrefix(out.Data, []byte("%PDF-")) {
		t.Errorf("interlaced png -> pdf produced %s", out.MediaType)
	}
}

type fakeTranscoder struct {
	files  map[string][]byte
	args   [][]string
	ratios []float64
	err    error
}

func newFakeTranscoder() *fakeTranscoder {
	return &fakeTranscoder{files: map[string][]byte{}, ratios: []float64{0.25, 0.5, 1}}
}

func (f *fakeTranscoder) WriteFile(name string, data []byte) error {
	f.files[name] = data
	return nil
}

func (f *fakeTranscoder) ReadFile(name string) ([]byte, error) {
	data, ok := f.files[name]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (f *fakeTranscoder) Remove(names ...string) {
	for _, n := range names {
		delete(f.files, n)
	}
}

func (f *fakeTranscoder) Exec(ctx context.Context, args []string, onRatio func(float64)) error {
	f.args = append(f.args, args)
	if f.err != nil {
		return f.err
	}
	for _, r := range f.ratios {
		onRatio(r)
	}
	in := args[1]
	out := args[len(args)-1]
	f.files[out] = append([]byte("converted:"), f.files[in]...)
	return nil
}

func TestMediaStrategySharesEngine(t *testing.T) {
	fake := newFakeTranscoder()
	starts := 0
	s := NewMediaStrategy(func(ctx context.Context) (Transcoder, error) {
		starts++
		return fake, nil
	})

	var progress []int
	req := request(formats.MP3, []byte("audio"), ".ogg", Settings{Compression: CompressionHigh})
	req.Progress = func(p int) { progress = append(progress, p) }

	out, err := s.Convert(context.Background(), req)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.MediaType != formats.OGG || string(out.Data) != "converted:audio" {
		t.Errorf("output = %s %q", out.MediaType, out.Data)
	}
	if !reflect.DeepEqual(progress, []int{25, 50, 100}) {
		t.Errorf("progress = %v", progress)
	}
	if want := []string{"-i", "input.mp3", "-map_metadata", "-1", "-vn", "-b:a", "96k", "output.ogg"}; !reflect.DeepEqual(fake.args[0], want) {
		t.Errorf("args = %v, want %v", fake.args[0], want)
	}
	if len(fake.files) != 0 {
		t.Errorf("working files left behind: %v", fake.files)
	}

	if _, err := s.Convert(context.Background(), request(formats.MP4, []byte("video"), ".webm", DefaultSettings())); err != nil {
		t.Fatalf("second Convert: %v", err)
	}
	if starts != 1 {
		t.Errorf("engine started %d times, want 1", starts)
	}
}

func TestMediaStrategyEngineUnavailable(t *testing.T) {
	attempts := 0
	s := NewMediaStrategy(func(ctx context.Context) (Transcoder, error) {
		attempts++
		return nil, ffmpeg.ErrUnavailable
	})
	for i := 0; i < 2; i++ {
		_, err := s.Convert(context.Background(), request(formats.WAV, []byte("x"), ".mp3", DefaultSettings()))
		if !errors.Is(err, ErrEngineUnavailable) {
			t.Fatalf("err = %v, want EngineUnavailable", err)
		}
	}
	if attempts != 2 {
		t.Errorf("a failed start should be retried, attempts = %d", attempts)
	}
}

func TestMediaStrategyTransformError(t *testing.T) {
	fake := newFakeTranscoder()
	fake.err = &ffmpeg.ExecError{Err: errors.New("exit status 1"), Diagnostic: "input.wav: Invalid data found"}
	s := NewMediaStrategy(func(ctx context.Context) (Transcoder, error) { return fake, nil })

	_, err := s.Convert(context.Background(), request(formats.WAV, []byte("x"), ".mp3", DefaultSettings()))
	if !errors.Is(err, ErrTransform) {
		t.Fatalf("err = %v, want TransformError", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("diagnostic missing from %q", err)
	}
}

func TestMediaArgs(t *testing.T) {
	tests := []struct {
		in, out, target string
		settings        Settings
		want            []string
	}{
		{"input.mp3", "output.ogg", ".ogg", Settings{PreserveMetadata: true, Compression: CompressionNone},
			[]string{"-i", "input.mp3", "-vn", "output.ogg"}},
		{"input.wav", "output.mp3", ".mp3", Settings{PreserveMetadata: true, Compression: CompressionLow},
			[]string{"-i", "input.wav", "-vn", "-b:a", "192k", "output.mp3"}},
		{"input.mp3", "output.wav", ".wav", Settings{PreserveMetadata: true, Compression: CompressionHigh},
			[]string{"-i", "input.mp3", "-vn", "output.wav"}},
		{"input.mp4", "output.webm", ".webm", Settings{PreserveMetadata: true, Compression: CompressionMedium},
			[]string{"-i", "input.mp4", "-crf", "28", "-b:v", "0", "output.webm"}},
		{"input.webm", "output.mov", ".mov", Settings{Compression: CompressionLow},
			[]string{"-i", "input.webm", "-map_metadata", "-1", "-pix_fmt", "yuv420p", "-crf", "23", "output.mov"}},
		{"input.mov", "output.mp4", ".mp4", Settings{PreserveMetadata: true, Compression: CompressionHigh},
			[]string{"-i", "input.mov", "-pix_fmt", "yuv420p", "-crf", "33", "output.mp4"}},
		{"input.mp4", "output.gif", ".gif", Settings{PreserveMetadata: true, Compression: CompressionHigh},
			[]string{"-i", "input.mp4", "-vf", "fps=10,scale=480:-1:flags=lanczos", "-loop", "0", "output.gif"}},
	}
	for _, tt := range tests {
		got := MediaArgs(tt.in, tt.out, tt.target, tt.settings)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("MediaArgs(%s) = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestDocumentStrategy(t *testing.T) {
	s := NewDocumentStrategy(docx.Codec{}, markdown.New(), pdfpage.Composer{})
	ctx := context.Background()
	word, err := docx.WriteParagraph("hello from word")
	if err != nil {
		t.Fatal(err)
	}

	out, err := s.Convert(ctx, request(formats.Markdown, []byte("# Notes\n\nbody"), ".pdf", DefaultSettings()))
	if err != nil || out.MediaType != formats.PDF || !bytes.HasPrefix(out.Data, []byte("%PDF-")) {
		t.Fatalf("md -> pdf = %s, %v", out.MediaType, err)
	}

	out, err = s.Convert(ctx, request(formats.DOCX, word, ".txt", DefaultSettings()))
	if err != nil || string(out.Data) != "hello from word\n\n" || out.MediaType != formats.PlainText {
		t.Errorf("docx -> txt = %q %s, %v", out.Data, out.MediaType, err)
	}
	out, err = s.Convert(ctx, request(formats.DOCX, word, ".md", DefaultSettings()))
	if err != nil || out.MediaType != formats.Markdown {
		t.Errorf("docx -> md = %s, %v", out.MediaType, err)
	}
	out, err = s.Convert(ctx, request(formats.DOCX, word, ".pdf", DefaultSettings()))
	if err != nil || out.MediaType != formats.PDF {
		t.Errorf("docx -> pdf = %s, %v", out.MediaType, err)
	}

	out, err = s.Convert(ctx, request(formats.PlainText, []byte("plain words"), ".docx", DefaultSettings()))
	if err != nil {
		t.Fatalf("txt -> docx: %v", err)
	}
	if text, _ := docx.ExtractText(out.Data); text != "plain words\n\n" {
		t.Errorf("txt -> docx text = %q", text)
	}

	out, err = s.Convert(ctx, request(formats.PDF, []byte("%PDF-1.4"), ".docx", DefaultSettings()))
	if err != nil || out.MediaType != formats.DOCX {
		t.Fatalf("pdf -> docx = %s, %v", out.MediaType, err)
	}
	if text, _ := docx.ExtractText(out.Data); text != PDFExtractionPlaceholder+"\n\n" {
		t.Errorf("pdf -> docx text = %q", text)
	}
	out, err = s.Convert(ctx, request(formats.PDF, []byte("%PDF-1.4"), ".txt", DefaultSettings()))
	if err != nil || string(out.Data) != PDFExtractionPlaceholder {
		t.Errorf("pdf -> txt = %q, %v", out.Data, err)
	}

	for _, tc := range []struct {
		mt     formats.MediaType
		target string
	}{
		{formats.PDF, ".jpg"},
		{formats.Markdown, ".txt"},
		{formats.PlainText, ".pdf"},
	} {
		if _, err := s.Convert(ctx, request(tc.mt, []byte("x"), tc.target, DefaultSettings())); !errors.Is(err, ErrUnsupportedConversion) {
			t.Errorf("%s -> %s: err = %v, want UnsupportedConversion", tc.mt, tc.target, err)
		}
	}

	if _, err := s.Convert(ctx, request(formats.DOCX, []byte("not a zip"), ".txt", DefaultSettings())); !errors.Is(err, ErrDecode) {
		t.Errorf("broken docx: err = %v, want DecodeError", err)
	}
}
