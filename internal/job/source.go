package job

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

// Source is a payload offered for submission. Load is only called once the
// payload has passed the intake checks.
type Source struct {
	Name      string
	MediaType formats.MediaType
	Size      int64
	Load      func() ([]byte, error)
}

// BytesSource wraps an in-memory payload.
func BytesSource(name string, mt formats.MediaType, data []byte) Source {
	return Source{
		Name:      name,
		MediaType: mt,
		Size:      int64(len(data)),
		Load:      func() ([]byte, error) { return data, nil },
	}
}

const sniffLen = 512

// FileSource describes a local file. The media type comes from the extension
// or, failing that, from the first bytes of the file.
func FileSource(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Source{}, err
	}
	if !fi.Mode().IsRegular() {
		return Source{}, fmt.Errorf("%s is not a regular file", path)
	}
	name := filepath.Base(path)
	mt := formats.Detect(name, "", nil)
	if mt == formats.OctetStream {
		head, err := readHead(path)
		if err != nil {
			return Source{}, err
		}
		mt = formats.Detect(name, "", head)
	}
	return Source{
		Name:      name,
		MediaType: mt,
		Size:      fi.Size(),
		Load:      func() ([]byte, error) { return os.ReadFile(path) },
	}, nil
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}
