package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// CWebP encodes WebP by shelling out to libwebp's cwebp.
type CWebP struct {
	Bin     string
	TempDir string
}

func (c *CWebP) EncodeWebP(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	bin := c.Bin
	if bin == "" {
		bin = "cwebp"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrEncoderUnavailable, bin)
	}

	dir, err := os.MkdirTemp(c.TempDir, "sparkconvert-webp-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.png")
	out := filepath.Join(dir, "output.webp")
	if err := writePNG(in, img); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, "-quiet", "-q", strconv.Itoa(quality), in, "-o", out)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("cwebp failed: %w, output: %s", err, string(output))
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("cwebp did not create output file: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("cwebp produced an empty file")
	}
	return data, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}
