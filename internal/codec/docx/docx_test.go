package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"
)

func TestWriteThenExtract(t *testing.T) {
	data, err := WriteParagraph("Fish & <chips>\tplease")
	if err != nil {
		t.Fatalf("WriteParagraph: %v", err)
	}
	got, err := ExtractText(data)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if want := "Fish & <chips>\tplease\n\n"; got != want {
		t.Errorf("ExtractText = %q, want %q", got, want)
	}
}

func TestExtractParagraphsAndBreaks(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> line</w:t><w:br/><w:t>wrapped</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:tab/><w:t>Second</w:t></w:r></w:p>
</w:body></w:document>`
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/document.xml")
	w.Write([]byte(doc))
	zw.Close()

	got, err := ExtractText(buf.Bytes())
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if want := "First line\nwrapped\n\n\tSecond\n\n"; got != want {
		t.Errorf("ExtractText = %q, want %q", got, want)
	}
}

func TestExtractErrors(t *testing.T) {
	if _, err := ExtractText([]byte("not a zip")); err == nil {
		t.Error("expected error for non-zip input")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.Create("other.xml")
	zw.Close()
	if _, err := ExtractText(buf.Bytes()); !errors.Is(err, ErrNoDocument) {
		t.Errorf("err = %v, want ErrNoDocument", err)
	}
}

func TestWriteEmpty(t *testing.T) {
	data, err := WriteParagraph("")
	if err != nil {
		t.Fatal(err)
	}
	got, err := ExtractText(data)
	if err != nil || got != "" {
		t.Errorf("ExtractText = %q, %v", got, err)
	}
}
