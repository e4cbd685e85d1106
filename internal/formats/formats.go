package formats

import (
	"fmt"
	"strings"
)

// MediaType is a MIME type without parameters, e.g. "image/png".
type MediaType string

const (
	JPEG      MediaType = "image/jpeg"
	PNG       MediaType = "image/png"
	WebP      MediaType = "image/webp"
	GIF       MediaType = "image/gif"
	SVG       MediaType = "image/svg+xml"
	MP4       MediaType = "video/mp4"
	WebM      MediaType = "video/webm"
	QuickTime MediaType = "video/quicktime"
	MP3       MediaType = "audio/mpeg"
	WAV       MediaType = "audio/wav"
	OGG       MediaType = "audio/ogg"
	M4A       MediaType = "audio/mp4"
	PDF       MediaType = "application/pdf"
	DOCX      MediaType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	Markdown  MediaType = "text/markdown"
	PlainText MediaType = "text/plain"

	OctetStream MediaType = "application/octet-stream"
)

// Family groups media types that share a transformation strategy.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyRaster
	FamilyVector
	FamilyVideo
	FamilyAudio
	FamilyPage
	FamilyWord
	FamilyMarkdown
	FamilyText
)

var familyNames = map[Family]string{
	FamilyUnknown:  "unknown",
	FamilyRaster:   "raster",
	FamilyVector:   "vector",
	FamilyVideo:    "video",
	FamilyAudio:    "audio",
	FamilyPage:     "page",
	FamilyWord:     "word",
	FamilyMarkdown: "markdown",
	FamilyText:     "text",
}

func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// IsImage reports whether f is a still-image family.
func (f Family) IsImage() bool { return f == FamilyRaster || f == FamilyVector }

// IsTimed reports whether f is a video or audio family.
func (f Family) IsTimed() bool { return f == FamilyVideo || f == FamilyAudio }

// IsDocument reports whether f is one of the text or document families.
func (f Family) IsDocument() bool {
	switch f {
	case FamilyPage, FamilyWord, FamilyMarkdown, FamilyText:
		return true
	}
	return false
}

// FamilyOf classifies a media type. Unknown types map to FamilyUnknown.
func FamilyOf(mt MediaType) Family {
	switch mt {
	case JPEG, PNG, WebP, GIF:
		return FamilyRaster
	case SVG:
		return FamilyVector
	case MP4, WebM, QuickTime:
		return FamilyVideo
	case MP3, WAV, OGG, M4A:
		return FamilyAudio
	case PDF:
		return FamilyPage
	case DOCX:
		return FamilyWord
	case Markdown:
		return FamilyMarkdown
	case PlainText:
		return FamilyText
	}
	return FamilyUnknown
}

// TargetKind classifies a target extension.
type TargetKind int

const (
	KindUnknown TargetKind = iota
	KindRaster
	KindVector
	KindAnimation
	KindPage
	KindVideo
	KindAudio
	KindWord
	KindMarkdown
	KindText
)

// KindOf classifies a target extension such as ".png". The leading dot is
// optional and case is ignored.
func KindOf(ext string) TargetKind {
	switch NormalizeExt(ext) {
	case ".png", ".jpg", ".webp":
		return KindRaster
	case ".svg":
		return KindVector
	case ".gif":
		return KindAnimation
	case ".pdf":
		return KindPage
	case ".mp4", ".webm", ".mov":
		return KindVideo
	case ".mp3", ".wav", ".ogg", ".m4a":
		return KindAudio
	case ".docx":
		return KindWord
	case ".md":
		return KindMarkdown
	case ".txt":
		return KindText
	}
	return KindUnknown
}

// NormalizeExt lowercases ext, adds a leading dot and folds ".jpeg" to ".jpg".
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ext == ".jpeg" {
		return ".jpg"
	}
	return ext
}

var extMediaTypes = map[string]MediaType{
	".jpg":  JPEG,
	".png":  PNG,
	".webp": WebP,
	".gif":  GIF,
	".svg":  SVG,
	".mp4":  MP4,
	".webm": WebM,
	".mov":  QuickTime,
	".mp3":  MP3,
	".wav":  WAV,
	".ogg":  OGG,
	".m4a":  M4A,
	".pdf":  PDF,
	".docx": DOCX,
	".md":   Markdown,
	".txt":  PlainText,
}

// MediaTypeForExt returns the media type written for a target extension.
func MediaTypeForExt(ext string) MediaType {
	if mt, ok := extMediaTypes[NormalizeExt(ext)]; ok {
		return mt
	}
	return OctetStream
}

// ExtForMediaType returns the canonical file extension for a media type, or ""
// if it is unknown.
func ExtForMediaType(mt MediaType) string {
	switch mt {
	case JPEG:
		return ".jpg"
	case QuickTime:
		return ".mov"
	case Markdown:
		return ".md"
	case PlainText:
		return ".txt"
	}
	for ext, t := range extMediaTypes {
		if t == mt {
			return ext
		}
	}
	return ""
}
