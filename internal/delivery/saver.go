// Package delivery saves converted outputs to the local filesystem.
package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ah-its-andy/sparkconvert/internal/utils"
)

// FileSaver writes outputs into Dir as "<stem>-converted<ext>".
type FileSaver struct {
	Dir string
	// Now is used for collision suffixes; nil means time.Now.
	Now func() time.Time
}

func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{Dir: dir}
}

// Deliver writes data next to a temporary name and renames it into place. An
// existing file is never overwritten; the new one gets a timestamp suffix.
func (s *FileSaver) Deliver(ctx context.Context, sourceName, target string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sparkconvert-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("write output: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	finalPath := s.finalPath(dir, utils.ConvertedName(sourceName, target))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename output: %w", err)
	}
	return finalPath, nil
}

func (s *FileSaver) finalPath(dir, name string) string {
	finalPath := filepath.Join(dir, name)
	if _, err := os.Stat(finalPath); err != nil {
		return finalPath
	}
	// Exists; suffix with a timestamp, then a counter if that is taken too
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	ts := now().Format("20060102T150405")
	finalPath = filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, ts, ext))
	for i := 2; ; i++ {
		if _, err := os.Stat(finalPath); err != nil {
			return finalPath
		}
		finalPath = filepath.Join(dir, fmt.Sprintf("%s_%s_%d%s", base, ts, i, ext))
	}
}
