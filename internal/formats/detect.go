package formats

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var aliases = map[string]MediaType{
	"image/jpg":         JPEG,
	"image/pjpeg":       JPEG,
	"audio/mp3":         MP3,
	"audio/x-mp3":       MP3,
	"audio/x-wav":       WAV,
	"audio/wave":        WAV,
	"audio/vnd.wave":    WAV,
	"audio/x-m4a":       M4A,
	"audio/m4a":         M4A,
	"text/x-markdown":   Markdown,
	"video/x-quicktime": QuickTime,
}

// Normalize strips parameters and folds known aliases, so that
// "text/plain; charset=utf-8" becomes "text/plain".
func Normalize(contentType string) MediaType {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		ct = parsed
	} else if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ct = strings.ToLower(ct)
	if mt, ok := aliases[ct]; ok {
		return mt
	}
	return MediaType(ct)
}

// Detect resolves the media type of a named payload. The extension wins when
// it is known; otherwise the content is sniffed. A declared type, when not
// empty or generic, takes precedence over both.
func Detect(name, declared string, head []byte) MediaType {
	if mt := Normalize(declared); mt != "" && mt != OctetStream && Supported(mt) {
		return mt
	}
	ext := NormalizeExt(filepath.Ext(name))
	if ext == ".markdown" {
		return Markdown
	}
	if mt, ok := extMediaTypes[ext]; ok {
		return mt
	}
	if len(head) == 0 {
		return OctetStream
	}
	return sniff(head)
}

func sniff(head []byte) MediaType {
	m := mimetype.Detect(head)
	for _, e := range table {
		if m.Is(string(e.Source)) {
			return e.Source
		}
	}
	for p := m.Parent(); p != nil; p = p.Parent() {
		if p.Is(string(PlainText)) {
			return PlainText
		}
	}
	return Normalize(m.String())
}
