package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Bounds on the longest side of a rendered SVG, in pixels.
const (
	svgMinEdge = 1024
	svgMaxEdge = 4096
)

// RasterizeSVG renders an SVG document to a transparent PNG. The viewBox
// aspect ratio is kept and the longest side is scaled into
// [svgMinEdge, svgMaxEdge]. Unsupported SVG elements are skipped.
func RasterizeSVG(src []byte) (data []byte, width, height int, err error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(src), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	if vw <= 0 || vh <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: svg declares no size or viewBox", ErrDecode)
	}

	scale := svgScale(math.Max(vw, vh))
	width = max(1, int(math.Round(vw*scale)))
	height = max(1, int(math.Round(vh*scale)))

	icon.SetTarget(0, 0, float64(width), float64(height))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, 0, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), width, height, nil
}

func svgScale(longest float64) float64 {
	switch {
	case longest < svgMinEdge:
		return svgMinEdge / longest
	case longest > svgMaxEdge:
		return svgMaxEdge / longest
	}
	return 1
}

// PNGInterlaced reports whether src is a PNG whose IHDR declares Adam7
// interlacing.
func PNGInterlaced(src []byte) bool {
	// 8-byte signature, IHDR length and type, then width, height, bit depth,
	// color type, compression and filter precede the interlace byte.
	const interlaceOffset = 8 + 8 + 12
	if len(src) <= interlaceOffset || !bytes.HasPrefix(src, []byte("\x89PNG\r\n\x1a\n")) {
		return false
	}
	return src[interlaceOffset] != 0
}
