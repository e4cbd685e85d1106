package converter

import (
	"context"

	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

// PDFExtractionPlaceholder is emitted in place of content for every
// page-document conversion. Text extraction from PDF is not implemented.
const PDFExtractionPlaceholder = "PDF text extraction is not available. This document was created without the content of the source file."

// DocumentStrategy converts between word-processor, markdown, plain text and
// page documents.
type DocumentStrategy struct {
	Word     WordCodec
	Markdown MarkdownRenderer
	Pages    PageComposer
}

func NewDocumentStrategy(word WordCodec, md MarkdownRenderer, pages PageComposer) *DocumentStrategy {
	return &DocumentStrategy{Word: word, Markdown: md, Pages: pages}
}

func (s *DocumentStrategy) Kind() StrategyKind { return StrategyDocument }

func (s *DocumentStrategy) Convert(ctx context.Context, req Request) (Output, error) {
	const op = "document"
	src := req.Payload.MediaType
	target := formats.NormalizeExt(req.Target)
	family := formats.FamilyOf(src)
	kind := formats.KindOf(target)

	unsupported := func() (Output, error) {
		return Output{}, newError(KindUnsupportedConversion, op, nil, "%s to %s", src, target)
	}

	switch family {
	case formats.FamilyWord:
		text, err := s.Word.ExtractText(req.Payload.Data)
		if err != nil {
			return Output{}, newError(KindDecode, op, err, "")
		}
		req.logf("document: extracted %d characters", len(text))
		switch kind {
		case formats.KindText, formats.KindMarkdown:
			return Output{Data: []byte(text), MediaType: formats.MediaTypeForExt(target)}, nil
		case formats.KindPage:
			return s.pages(op, req, text)
		}
		return unsupported()

	case formats.FamilyMarkdown:
		if kind != formats.KindPage {
			return unsupported()
		}
		text, err := s.Markdown.Text(req.Payload.Data)
		if err != nil {
			return Output{}, newError(KindDecode, op, err, "")
		}
		return s.pages(op, req, text)

	case formats.FamilyText:
		if kind != formats.KindWord {
			return unsupported()
		}
		data, err := s.Word.WriteParagraph(string(req.Payload.Data))
		if err != nil {
			return Output{}, newError(KindTransform, op, err, "")
		}
		return Output{Data: data, MediaType: formats.DOCX}, nil

	case formats.FamilyPage:
		switch kind {
		case formats.KindWord:
			req.logf("document: pdf extraction not available, writing placeholder")
			data, err := s.Word.WriteParagraph(PDFExtractionPlaceholder)
			if err != nil {
				return Output{}, newError(KindTransform, op, err, "")
			}
			return Output{Data: data, MediaType: formats.DOCX}, nil
		case formats.KindText, formats.KindMarkdown:
			req.logf("document: pdf extraction not available, writing placeholder")
			return Output{Data: []byte(PDFExtractionPlaceholder), MediaType: formats.MediaTypeForExt(target)}, nil
		}
		return unsupported()

	case formats.FamilyUnknown, formats.FamilyRaster, formats.FamilyVector,
		formats.FamilyVideo, formats.FamilyAudio:
	}
	return unsupported()
}

func (s *DocumentStrategy) pages(op string, req Request, text string) (Output, error) {
	req.report(50)
	data, n, err := s.Pages.TextPages(text)
	if err != nil {
		return Output{}, newError(KindTransform, op, err, "")
	}
	req.logf("document: laid out %d page(s)", n)
	return Output{Data: data, MediaType: formats.PDF}, nil
}
