package utils

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

// WaitFileStable waits until two size readings taken delay apart agree, for
// at most five cycles.
func WaitFileStable(path string, delay time.Duration) error {
	var lastSize int64 = -1
	for i := 0; i < 5; i++ {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		sz := fi.Size()
		if lastSize == sz {
			return nil
		}
		lastSize = sz
		time.Sleep(delay)
	}
	return nil
}

// ConvertedName derives the output filename "<stem>-converted<ext>".
func ConvertedName(sourceName, target string) string {
	base := filepath.Base(sourceName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "file"
	}
	return stem + "-converted" + formats.NormalizeExt(target)
}
