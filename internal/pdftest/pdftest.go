// Package pdftest builds small, well-formed PDF files for tests. Pages carry
// either a Helvetica text layer or nothing at all, which is how an image-only
// scan looks to a text-layer extractor.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const lineWidth = 70

// Page is one page of a generated document. A page with no lines has an
// empty content stream.
type Page struct {
	Lines []string
}

// TextPage wraps text into lines that fit a letter-size page.
func TextPage(text string) Page {
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > lineWidth {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return Page{Lines: lines}
}

// BlankPage returns a page without a text layer.
func BlankPage() Page {
	return Page{}
}

// Build renders pages into PDF bytes with a valid cross-reference table.
func Build(pages ...Page) []byte {
	// Object layout: 1 catalog, 2 pages tree, 3 font, then page/content pairs.
	const fontObj = 3
	nObjs := 3 + 2*len(pages)

	var buf bytes.Buffer
	offsets := make([]int, nObjs+1)
	obj := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj(fontObj, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, p := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i
		obj(pageObj, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			fontObj, contentObj))
		stream := contentStream(p)
		obj(contentObj, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", nObjs+1)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n <= nObjs; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", nObjs+1, xref)
	return buf.Bytes()
}

func contentStream(p Page) string {
	if len(p.Lines) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("BT\n/F1 11 Tf\n14 TL\n72 720 Td\n")
	for _, line := range p.Lines {
		fmt.Fprintf(&b, "(%s ) Tj\nT*\n", escape(line))
	}
	b.WriteString("ET")
	return b.String()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// Write builds a document into dir/name and returns its path.
func Write(t testing.TB, dir, name string, pages ...Page) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(pages...), 0o644); err != nil {
		t.Fatalf("pdftest: write %s: %v", path, err)
	}
	return path
}

// Sentence returns deterministic filler prose of at least n bytes.
func Sentence(n int) string {
	const base = "The quick brown fox jumps over the lazy dog near the river bank. "
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(base)
	}
	return strings.TrimSpace(b.String())
}
