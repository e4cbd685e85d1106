package converter

import (
	"github.com/ah-its-andy/sparkconvert/internal/codec/docx"
	"github.com/ah-its-andy/sparkconvert/internal/codec/markdown"
	"github.com/ah-its-andy/sparkconvert/internal/codec/pdfpage"
	"github.com/ah-its-andy/sparkconvert/internal/codec/raster"
)

// Tools locates the external binaries used by the default strategies.
type Tools struct {
	FFmpegBin string
	CWebPBin  string
	TempDir   string
}

// NewDefaultRouter registers the four strategies backed by the bundled
// codecs. The returned media strategy owns the shared transcoding engine and
// should be closed on shutdown.
func NewDefaultRouter(t Tools) (*Router, *MediaStrategy) {
	pages := pdfpage.Composer{}
	media := NewMediaStrategy(FFmpegFactory(t.FFmpegBin, t.TempDir))
	r := NewRouter(
		NewRasterStrategy(raster.New(t.CWebPBin, t.TempDir)),
		NewPageStrategy(pages),
		media,
		NewDocumentStrategy(docx.Codec{}, markdown.New(), pages),
	)
	return r, media
}
