package converter

import (
	"context"
	"errors"
	"strings"

	"github.com/ah-its-andy/sparkconvert/internal/codec/raster"
	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

// MaxRasterEdge bounds the longest side of re-encoded images.
const MaxRasterEdge = 1920

// RasterStrategy re-encodes still images between raster formats.
type RasterStrategy struct {
	Encoder ImageEncoder
	MaxEdge int
}

func NewRasterStrategy(enc ImageEncoder) *RasterStrategy {
	return &RasterStrategy{Encoder: enc, MaxEdge: MaxRasterEdge}
}

func (s *RasterStrategy) Kind() StrategyKind { return StrategyRaster }

func (s *RasterStrategy) Convert(ctx context.Context, req Request) (Output, error) {
	const op = "raster"
	target := formats.NormalizeExt(req.Target)

	if formats.FamilyOf(req.Payload.MediaType) == formats.FamilyVector {
		return Output{}, newError(KindNotImplemented, op, nil, "vector sources cannot be rasterized")
	}
	switch formats.KindOf(target) {
	case formats.KindRaster:
	case formats.KindVector:
		return Output{}, newError(KindNotImplemented, op, nil, "vector output is not supported")
	default:
		return Output{}, newError(KindUnsupportedConversion, op, nil, "%s is not a raster target", target)
	}

	opts := raster.Options{
		Quality:      req.Settings.Compression.QualityFactor(),
		MaxEdge:      s.MaxEdge,
		KeepMetadata: req.Settings.PreserveMetadata,
	}
	req.logf("raster: %s -> %s quality=%.1f max_edge=%d keep_metadata=%t",
		req.Payload.MediaType, target, opts.Quality, opts.MaxEdge, opts.KeepMetadata)

	res, err := s.Encoder.Encode(ctx, req.Payload.Data, strings.TrimPrefix(target, "."), opts)
	if err != nil {
		return Output{}, rasterError(op, err)
	}
	req.logf("raster: wrote %dx%d, %d bytes", res.Width, res.Height, len(res.Data))
	if res.MetadataSummary != "" {
		req.logf("raster: %s", res.MetadataSummary)
	}
	return Output{
		Data:              res.Data,
		MediaType:         formats.MediaTypeForExt(target),
		MetadataPreserved: res.MetadataPreserved,
		MetadataSummary:   res.MetadataSummary,
	}, nil
}

func rasterError(op string, err error) *Error {
	switch {
	case errors.Is(err, raster.ErrDecode):
		return newError(KindDecode, op, err, "")
	case errors.Is(err, raster.ErrEncoderUnavailable):
		return newError(KindEngineUnavailable, op, err, "")
	case errors.Is(err, raster.ErrFormat):
		return newError(KindUnsupportedConversion, op, err, "")
	}
	return newError(KindTransform, op, err, "")
}
