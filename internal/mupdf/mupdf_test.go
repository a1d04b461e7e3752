//go:build integration

package mupdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pdftext/internal/pdftest"
)

func TestTextExtractor_ExtractPages(t *testing.T) {
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "doc.pdf",
		pdftest.TextPage("Invoice for consulting services"),
		pdftest.BlankPage(),
		pdftest.TextPage("Payment due within thirty days"),
	)

	pages, err := NewTextExtractor(nil).ExtractPages(context.Background(), path, 0)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Contains(t, pages[0], "Invoice for consulting")
	assert.Contains(t, pages[2], "thirty days")
}

func TestTextExtractor_MaxPages(t *testing.T) {
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "doc.pdf", pdftest.TextPage("a"), pdftest.TextPage("b"), pdftest.TextPage("c"))

	pages, err := NewTextExtractor(nil).ExtractPages(context.Background(), path, 1)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestTextExtractor_Missing(t *testing.T) {
	_, err := NewTextExtractor(nil).ExtractPages(context.Background(), "/nonexistent/doc.pdf", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mupdf: open")
}

func TestRasterizer_Render(t *testing.T) {
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "doc.pdf", pdftest.TextPage("render me"), pdftest.TextPage("and me"))

	doc, err := NewRasterizer().Open(path)
	require.NoError(t, err)
	defer doc.Close() //nolint:errcheck

	assert.Equal(t, 2, doc.NumPage())

	img, err := doc.Render(0, 72)
	require.NoError(t, err)
	// Letter-sized media box at 72 DPI.
	assert.InDelta(t, 612, img.Bounds().Dx(), 1)
	assert.InDelta(t, 792, img.Bounds().Dy(), 1)

	_, err = doc.Render(5, 72)
	require.Error(t, err)
}
