// Package markdown renders markdown and flattens it to plain text.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts markdown with GitHub-flavoured extensions.
type Renderer struct {
	md goldmark.Markdown
}

func New() *Renderer {
	return &Renderer{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

// HTML renders src to an HTML fragment.
func (r *Renderer) HTML(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Text renders src and strips the markup, leaving one line per block.
func (r *Renderer) Text(src []byte) (string, error) {
	html, err := r.HTML(src)
	if err != nil {
		return "", err
	}
	return StripTags(html)
}

// StripTags returns the text content of an HTML fragment. Block boundaries
// that goldmark emits as newlines are kept; runs of blank lines collapse.
func StripTags(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	text := doc.Text()

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n")), nil
}
