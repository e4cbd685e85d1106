// Package pdfpage composes simple PDF documents: one full-page image, or
// plain text flowed across as many pages as it needs.
package pdfpage

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// A4 in points.
const (
	PageWidth  = 595.28
	PageHeight = 841.89
)

const (
	ImageMargin = 20.0

	TextMargin     = 50.0
	TextFontSize   = 12.0
	TextLineHeight = 16.0
)

var ErrEmptyImage = errors.New("image has no area")

// Rect is a placement on the page in points.
type Rect struct {
	X, Y, W, H float64
}

// FitRect scales an imgW x imgH image to the page width less margins and
// falls back to fitting by height when that overflows. The result is centered.
func FitRect(imgW, imgH, pageW, pageH, margin float64) Rect {
	aspect := imgW / imgH
	w := pageW - 2*margin
	h := w / aspect
	if h > pageH-2*margin {
		h = pageH - 2*margin
		w = h * aspect
	}
	return Rect{X: (pageW - w) / 2, Y: (pageH - h) / 2, W: w, H: h}
}

// Composer builds PDF bytes.
type Composer struct{}

// ImagePage embeds a JPEG or PNG once on a single A4 page. imageType is
// "JPG" or "PNG".
func (Composer) ImagePage(data []byte, imageType string, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyImage
	}
	pdf := newDocument()
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: imageType, ReadDpi: false}
	pdf.RegisterImageOptionsReader("source", opts, bytes.NewReader(data))
	r := FitRect(float64(width), float64(height), PageWidth, PageHeight, ImageMargin)
	pdf.ImageOptions("source", r.X, r.Y, r.W, r.H, false, opts, 0, "")

	return output(pdf)
}

// TextPages lays text out in Helvetica, wrapping at the text width and adding
// a page whenever the next line would cross the bottom margin. It returns the
// document and its page count.
func (Composer) TextPages(text string) ([]byte, int, error) {
	pdf := newDocument()
	pdf.SetMargins(TextMargin, TextMargin, TextMargin)
	pdf.SetAutoPageBreak(false, TextMargin)
	pdf.SetFont("Helvetica", "", TextFontSize)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	width := PageWidth - 2*TextMargin
	bottom := PageHeight - TextMargin
	y := TextMargin
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, para := range strings.Split(text, "\n") {
		lines := [][]byte{nil}
		if strings.TrimSpace(para) != "" {
			lines = pdf.SplitLines([]byte(tr(para)), width)
		}
		for _, line := range lines {
			if y+TextLineHeight > bottom {
				pdf.AddPage()
				y = TextMargin
			}
			pdf.SetXY(TextMargin, y)
			pdf.CellFormat(width, TextLineHeight, string(line), "", 0, "L", false, 0, "")
			y += TextLineHeight
		}
	}

	pages := pdf.PageCount()
	data, err := output(pdf)
	return data, pages, err
}

func newDocument() *fpdf.Fpdf {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	pdf.SetCreator("sparkconvert", true)
	return pdf
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("compose pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
