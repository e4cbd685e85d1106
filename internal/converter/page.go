package converter

import (
	"context"

	"github.com/ah-its-andy/sparkconvert/internal/codec/raster"
	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

// PageStrategy places a still image on a single page document.
type PageStrategy struct {
	Composer PageComposer
}

func NewPageStrategy(c PageComposer) *PageStrategy {
	return &PageStrategy{Composer: c}
}

func (s *PageStrategy) Kind() StrategyKind { return StrategyPage }

func (s *PageStrategy) Convert(ctx context.Context, req Request) (Output, error) {
	const op = "image-to-page"
	if formats.KindOf(req.Target) != formats.KindPage {
		return Output{}, newError(KindUnsupportedConversion, op, nil, "%s is not a page target", req.Target)
	}

	data := req.Payload.Data
	if formats.FamilyOf(req.Payload.MediaType) == formats.FamilyVector {
		req.logf("image-to-page: rasterizing svg")
		rendered, w, h, err := raster.RasterizeSVG(data)
		if err != nil {
			return Output{}, newError(KindDecode, op, err, "")
		}
		return s.compose(ctx, req, rendered, "PNG", w, h)
	}

	format, w, h, err := raster.Probe(data)
	if err != nil {
		return Output{}, newError(KindDecode, op, err, "")
	}

	var imageType string
	switch {
	case format == "jpeg":
		imageType = "JPG"
	case format == "png" && !raster.PNGInterlaced(data):
		imageType = "PNG"
	default:
		req.logf("image-to-page: rendering %s to png", format)
		if data, err = raster.ToPNG(data); err != nil {
			return Output{}, newError(KindDecode, op, err, "")
		}
		imageType = "PNG"
	}
	return s.compose(ctx, req, data, imageType, w, h)
}

func (s *PageStrategy) compose(ctx context.Context, req Request, data []byte, imageType string, w, h int) (Output, error) {
	const op = "image-to-page"
	if err := ctx.Err(); err != nil {
		return Output{}, newError(KindTransform, op, err, "")
	}
	req.report(50)

	pdf, err := s.Composer.ImagePage(data, imageType, w, h)
	if err != nil {
		return Output{}, newError(KindTransform, op, err, "")
	}
	req.logf("image-to-page: embedded %dx%d %s, %d bytes", w, h, imageType, len(pdf))
	return Output{Data: pdf, MediaType: formats.PDF}, nil
}
