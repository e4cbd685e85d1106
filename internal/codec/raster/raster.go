// Package raster decodes and re-encodes still images.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	ErrDecode             = errors.New("cannot decode image")
	ErrFormat             = errors.New("unsupported output format")
	ErrEncoderUnavailable = errors.New("encoder unavailable")
)

// Options control a re-encode.
type Options struct {
	Quality      float64 // in (0, 1]
	MaxEdge      int     // longest side after resize, 0 keeps the size
	KeepMetadata bool
}

// Result is an encoded image.
type Result struct {
	Data              []byte
	Width             int
	Height            int
	MetadataPreserved bool
	MetadataSummary   string
}

// WebPEncoder produces WebP bytes. The standard library and x/image only
// decode WebP, so encoding is delegated.
type WebPEncoder interface {
	EncodeWebP(ctx context.Context, img image.Image, quality int) ([]byte, error)
}

// Codec re-encodes raster images.
type Codec struct {
	WebP WebPEncoder
}

// New returns a codec that encodes WebP with the cwebp binary at bin.
func New(bin, tempDir string) *Codec {
	return &Codec{WebP: &CWebP{Bin: bin, TempDir: tempDir}}
}

// Probe returns the decoded format name ("jpeg", "png", "gif", "webp") and
// dimensions without decoding pixels.
func Probe(src []byte) (format string, width, height int, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return format, cfg.Width, cfg.Height, nil
}

// Decode decodes src, applying the EXIF orientation when autoOrient is set.
func Decode(src []byte, autoOrient bool) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(autoOrient))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// ToPNG decodes any supported raster and re-encodes it losslessly as PNG.
func ToPNG(src []byte) ([]byte, error) {
	img, err := Decode(src, true)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode re-encodes src into format, one of "jpg", "png" or "webp".
func (c *Codec) Encode(ctx context.Context, src []byte, format string, opts Options) (Result, error) {
	var res Result

	srcFormat, _, _, err := Probe(src)
	if err != nil {
		return res, err
	}

	meta, metaErr := ReadMetadata(src)
	carry := opts.KeepMetadata && metaErr == nil && meta.carriable() &&
		srcFormat == "jpeg" && (format == "jpg" || format == "png")

	// Without a carried EXIF block the orientation has to live in the pixels.
	img, err := Decode(src, !carry)
	if err != nil {
		return res, err
	}
	if opts.MaxEdge > 0 {
		b := img.Bounds()
		if b.Dx() > opts.MaxEdge || b.Dy() > opts.MaxEdge {
			img = imaging.Fit(img, opts.MaxEdge, opts.MaxEdge, imaging.Lanczos)
		}
	}
	b := img.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()

	quality := qualityPercent(opts.Quality)
	var buf bytes.Buffer
	switch format {
	case "jpg", "jpeg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case "png":
		level := png.DefaultCompression
		if opts.Quality < 1 {
			level = png.BestCompression
		}
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(level))
	case "webp":
		if c.WebP == nil {
			return res, fmt.Errorf("%w: no webp encoder configured", ErrEncoderUnavailable)
		}
		var data []byte
		data, err = c.WebP.EncodeWebP(ctx, img, quality)
		buf.Write(data)
	default:
		return res, fmt.Errorf("%w: %q", ErrFormat, format)
	}
	if err != nil {
		return res, fmt.Errorf("encode %s: %w", format, err)
	}
	res.Data = buf.Bytes()

	if carry {
		switch format {
		case "png":
			res.Data, err = injectPNGExif(res.Data, meta.raw)
		default:
			res.Data, err = injectJPEGExif(res.Data, meta.raw)
		}
		if err != nil {
			return res, fmt.Errorf("carry metadata: %w", err)
		}
		res.MetadataPreserved = true
		res.MetadataSummary = meta.Summary()
	} else if opts.KeepMetadata && metaErr == nil {
		res.MetadataSummary = "metadata not carried into " + format
	}
	return res, nil
}

func qualityPercent(q float64) int {
	if q <= 0 || q > 1 {
		q = 1
	}
	p := int(math.Round(q * 100))
	if p < 1 {
		p = 1
	}
	return p
}
