// Package mupdf adapts github.com/gen2brain/go-fitz (MuPDF bindings) for
// text extraction and page rasterization.
package mupdf

import (
	"context"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pdftext/internal/ocr"
)

// TextExtractor extracts page text through MuPDF's structured-text device.
type TextExtractor struct {
	log *zap.Logger
}

// NewTextExtractor creates a TextExtractor. A nil logger discards output.
func NewTextExtractor(log *zap.Logger) *TextExtractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &TextExtractor{log: log}
}

// Name identifies the backend in logs.
func (e *TextExtractor) Name() string { return "mupdf" }

// ExtractPages returns one entry per page up to maxPages (0 means all).
func (e *TextExtractor) ExtractPages(ctx context.Context, path string, maxPages int) ([]string, error) {
	doc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close() //nolint:errcheck

	n := doc.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	log := e.log.With(zap.String("path", path))
	pages := make([]string, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			log.Warn("mupdf extraction interrupted", zap.Int("page", i+1), zap.Error(ctx.Err()))
			break
		}
		text, err := doc.Text(i)
		if err != nil {
			log.Warn("skipping malformed page", zap.Int("page", i+1), zap.Error(err))
			continue
		}
		pages[i] = text
	}
	return pages, nil
}

// Rasterizer renders pages to images for OCR.
type Rasterizer struct{}

// NewRasterizer creates a Rasterizer.
func NewRasterizer() *Rasterizer {
	return &Rasterizer{}
}

// Open opens path for rendering. The caller must Close the document.
func (Rasterizer) Open(path string) (ocr.RasterDocument, error) {
	doc, err := open(path)
	if err != nil {
		return nil, err
	}
	return &rasterDoc{doc: doc}, nil
}

type rasterDoc struct {
	doc *fitz.Document
}

func (d *rasterDoc) NumPage() int { return d.doc.NumPage() }

func (d *rasterDoc) Render(page int, dpi float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, eris.Wrapf(err, "mupdf: render page %d", page+1)
	}
	return img, nil
}

func (d *rasterDoc) Close() error {
	return d.doc.Close()
}

func open(path string) (*fitz.Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mupdf: open %s", path)
	}
	return doc, nil
}
