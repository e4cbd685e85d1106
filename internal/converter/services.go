package converter

import (
	"context"

	"github.com/ah-its-andy/sparkconvert/internal/codec/raster"
)

// ImageEncoder re-encodes raster images.
type ImageEncoder interface {
	Encode(ctx context.Context, src []byte, format string, opts raster.Options) (raster.Result, error)
}

// PageComposer builds PDF documents.
type PageComposer interface {
	ImagePage(data []byte, imageType string, width, height int) ([]byte, error)
	TextPages(text string) ([]byte, int, error)
}

// Transcoder is a transcoding engine addressed through fixed working
// filenames.
type Transcoder interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	Remove(names ...string)
	Exec(ctx context.Context, args []string, onRatio func(float64)) error
}

// TranscoderFactory starts a transcoding engine.
type TranscoderFactory func(ctx context.Context) (Transcoder, error)

// WordCodec reads and writes word-processor documents.
type WordCodec interface {
	ExtractText(data []byte) (string, error)
	WriteParagraph(text string) ([]byte, error)
}

// MarkdownRenderer flattens markdown to plain text.
type MarkdownRenderer interface {
	Text(src []byte) (string, error)
}
