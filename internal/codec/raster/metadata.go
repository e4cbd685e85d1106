package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

var errNoExif = errors.New("no exif segment")

var exifHeader = []byte("Exif\x00\x00")

// Metadata is the subset of EXIF reported back to callers.
type Metadata struct {
	Orientation int
	Taken       time.Time
	Camera      string

	raw []byte // complete APP1 segment, marker included
}

// ReadMetadata parses the EXIF block of a JPEG.
func ReadMetadata(src []byte) (Metadata, error) {
	var m Metadata
	seg := jpegExifSegment(src)
	if seg == nil {
		return m, errNoExif
	}
	m.raw = seg

	x, err := exif.Decode(bytes.NewReader(src))
	if err != nil {
		return m, fmt.Errorf("decode exif: %w", err)
	}
	if dt, err := x.DateTime(); err == nil {
		m.Taken = dt
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			m.Orientation = v
		}
	}
	var parts []string
	for _, name := range []exif.FieldName{exif.Make, exif.Model} {
		if tag, err := x.Get(name); err == nil {
			if s, err := tag.StringVal(); err == nil && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
	}
	m.Camera = strings.Join(parts, " ")
	return m, nil
}

func (m Metadata) carriable() bool {
	// APP1 payload length is a 16-bit field.
	return len(m.raw) > 4 && len(m.raw) <= 0xFFFF+2
}

// Summary renders a one-line description of the preserved tags.
func (m Metadata) Summary() string {
	var parts []string
	if !m.Taken.IsZero() {
		parts = append(parts, "DateTimeOriginal "+m.Taken.Format("2006:01:02 15:04:05"))
	}
	if m.Orientation > 0 {
		parts = append(parts, fmt.Sprintf("Orientation %d", m.Orientation))
	}
	if m.Camera != "" {
		parts = append(parts, "Camera "+m.Camera)
	}
	if len(parts) == 0 {
		return "EXIF preserved"
	}
	return "EXIF preserved: " + strings.Join(parts, ", ")
}

// jpegExifSegment returns the APP1 EXIF segment of a JPEG, or nil.
func jpegExifSegment(src []byte) []byte {
	if len(src) < 4 || src[0] != 0xFF || src[1] != 0xD8 {
		return nil
	}
	i := 2
	for i+4 <= len(src) {
		if src[i] != 0xFF {
			return nil
		}
		marker := src[i+1]
		if marker == 0xDA || marker == 0xD9 { // start of scan, end of image
			return nil
		}
		n := int(binary.BigEndian.Uint16(src[i+2 : i+4]))
		end := i + 2 + n
		if n < 2 || end > len(src) {
			return nil
		}
		if marker == 0xE1 && bytes.HasPrefix(src[i+4:end], exifHeader) {
			seg := make([]byte, end-i)
			copy(seg, src[i:end])
			return seg
		}
		i = end
	}
	return nil
}

// injectJPEGExif inserts seg right after the SOI marker.
func injectJPEGExif(dst, seg []byte) ([]byte, error) {
	if len(dst) < 2 || dst[0] != 0xFF || dst[1] != 0xD8 {
		return nil, errors.New("output is not a jpeg")
	}
	out := make([]byte, 0, len(dst)+len(seg))
	out = append(out, dst[:2]...)
	out = append(out, seg...)
	out = append(out, dst[2:]...)
	return out, nil
}

// injectPNGExif adds an eXIf chunk after IHDR carrying the TIFF body of seg.
func injectPNGExif(dst, seg []byte) ([]byte, error) {
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	if len(dst) < ihdrEnd || !bytes.Equal(dst[12:16], []byte("IHDR")) {
		return nil, errors.New("output is not a png")
	}
	body := seg[4+len(exifHeader):]

	chunk := make([]byte, 0, 12+len(body))
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(body)))
	chunk = append(chunk, "eXIf"...)
	chunk = append(chunk, body...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))

	out := make([]byte, 0, len(dst)+len(chunk))
	out = append(out, dst[:ihdrEnd]...)
	out = append(out, chunk...)
	out = append(out, dst[ihdrEnd:]...)
	return out, nil
}
