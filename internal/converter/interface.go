package converter

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

// CompressionLevel trades output size against fidelity.
type CompressionLevel string

const (
	CompressionNone   CompressionLevel = "none"
	CompressionLow    CompressionLevel = "low"
	CompressionMedium CompressionLevel = "medium"
	CompressionHigh   CompressionLevel = "high"
)

// ParseCompression parses a level name. Empty input yields medium.
func ParseCompression(s string) (CompressionLevel, error) {
	switch CompressionLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return CompressionMedium, nil
	case CompressionNone:
		return CompressionNone, nil
	case CompressionLow:
		return CompressionLow, nil
	case CompressionMedium:
		return CompressionMedium, nil
	case CompressionHigh:
		return CompressionHigh, nil
	}
	return "", fmt.Errorf("unknown compression level %q", s)
}

// QualityFactor is the raster encoder quality in (0, 1].
func (c CompressionLevel) QualityFactor() float64 {
	switch c {
	case CompressionLow:
		return 0.8
	case CompressionMedium:
		return 0.6
	case CompressionHigh:
		return 0.4
	}
	return 1.0
}

// Settings are copied into every job at creation time.
type Settings struct {
	PreserveMetadata bool             `json:"preserve_metadata"`
	Compression      CompressionLevel `json:"compression"`
}

// DefaultSettings matches what a fresh session starts with.
func DefaultSettings() Settings {
	return Settings{PreserveMetadata: true, Compression: CompressionMedium}
}

// Payload is an immutable source file held in memory.
type Payload struct {
	Name      string
	MediaType formats.MediaType
	Data      []byte
}

// Request is everything a strategy needs for one conversion.
type Request struct {
	Payload  Payload
	Target   string // normalized extension, e.g. ".png"
	Settings Settings
	Progress ProgressSink
	Log      io.Writer // optional diagnostics sink
}

func (r Request) logf(format string, args ...any) {
	if r.Log != nil {
		fmt.Fprintf(r.Log, format+"\n", args...)
	}
}

func (r Request) report(pct int) {
	if r.Progress != nil {
		r.Progress(pct)
	}
}

// Output is a successful conversion result.
type Output struct {
	Data              []byte            `json:"-"`
	MediaType         formats.MediaType `json:"media_type"`
	MetadataPreserved bool              `json:"metadata_preserved"`
	MetadataSummary   string            `json:"metadata_summary,omitempty"`
}

// Strategy is one of the transformation procedures behind the router.
type Strategy interface {
	// Kind identifies the strategy.
	Kind() StrategyKind

	// Convert transforms req.Payload into req.Target. It returns a *Error
	// for every failure.
	Convert(ctx context.Context, req Request) (Output, error)
}

// StrategyInfo describes a registered strategy.
type StrategyInfo struct {
	Name     string   `json:"name"`
	Families []string `json:"families"`
	Targets  []string `json:"targets"`
}
