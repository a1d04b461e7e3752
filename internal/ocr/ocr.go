// Package ocr rasterizes PDF pages and runs optical character recognition on
// them, one page at a time, under a per-page time limit.
package ocr

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrPageTimeout marks a page whose recognition exceeded the per-page limit.
var ErrPageTimeout = errors.New("ocr: page timed out")

// Rasterizer opens documents for rendering.
type Rasterizer interface {
	Open(path string) (RasterDocument, error)
}

// RasterDocument is an opened document owned by a single ExtractPages call.
type RasterDocument interface {
	NumPage() int
	// Render draws the zero-based page at the given resolution.
	Render(page int, dpi float64) (image.Image, error)
	Close() error
}

// Recognizer turns an encoded PNG image into text.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// Config holds the OCR resource bounds.
type Config struct {
	// DPI is the rasterization resolution.
	DPI float64
	// PageCap limits how many leading pages are recognized.
	PageCap int
	// PerPageTimeout bounds each page's recognition. Zero disables it.
	PerPageTimeout time.Duration
	// MaxDimension caps the width and height of the image handed to the
	// recognizer; larger renders are downscaled.
	MaxDimension int
	// Grayscale converts renders to 8-bit gray before recognition.
	Grayscale bool
	// Languages are Tesseract language codes.
	Languages []string
	// PageSegMode is the Tesseract page segmentation mode.
	PageSegMode int
}

// DefaultConfig returns moderate bounds: 150 DPI, ten pages, thirty seconds
// per page, 2000 px.
func DefaultConfig() Config {
	return Config{
		DPI:            150,
		PageCap:        10,
		PerPageTimeout: 30 * time.Second,
		MaxDimension:   2000,
		Grayscale:      true,
		Languages:      []string{"eng"},
		PageSegMode:    4,
	}
}

// Engine is the raster OCR backend.
type Engine struct {
	cfg    Config
	raster Rasterizer
	rec    Recognizer
	log    *zap.Logger
}

// NewEngine creates an Engine. Zero-valued bounds in cfg fall back to
// DefaultConfig.
func NewEngine(cfg Config, raster Rasterizer, rec Recognizer, log *zap.Logger) (*Engine, error) {
	if raster == nil {
		return nil, eris.New("ocr: rasterizer is required")
	}
	if rec == nil {
		return nil, eris.New("ocr: recognizer is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	if cfg.PageCap <= 0 {
		cfg.PageCap = def.PageCap
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = def.MaxDimension
	}
	return &Engine{cfg: cfg, raster: raster, rec: rec, log: log}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// ExtractPages recognizes up to pageCap pages of path. A non-positive pageCap
// uses the configured cap, and a non-positive perPageTimeout uses the
// configured timeout. Pages that fail or time out are empty entries.
func (e *Engine) ExtractPages(ctx context.Context, path string, pageCap int, perPageTimeout time.Duration) ([]string, error) {
	if pageCap <= 0 {
		pageCap = e.cfg.PageCap
	}
	if perPageTimeout <= 0 {
		perPageTimeout = e.cfg.PerPageTimeout
	}

	doc, err := e.raster.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: open %s", path)
	}
	defer doc.Close() //nolint:errcheck

	n := doc.NumPage()
	if n > pageCap {
		n = pageCap
	}

	log := e.log.With(zap.String("path", path))
	pages := make([]string, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			log.Warn("ocr interrupted", zap.Int("page", i+1), zap.Error(ctx.Err()))
			break
		}
		start := time.Now()
		text, err := e.page(ctx, doc, i, perPageTimeout)
		if err != nil {
			log.Warn("ocr page failed", zap.Int("page", i+1), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			continue
		}
		log.Debug("ocr page done", zap.Int("page", i+1), zap.Int("chars", len(text)), zap.Duration("elapsed", time.Since(start)))
		pages[i] = text
	}
	return pages, nil
}

// page renders, prepares and recognizes one page. The rendered image is only
// referenced inside this call.
func (e *Engine) page(ctx context.Context, doc RasterDocument, i int, timeout time.Duration) (string, error) {
	img, err := doc.Render(i, e.cfg.DPI)
	if err != nil {
		return "", err
	}
	data, err := EncodePNG(Prepare(img, e.cfg.Grayscale, e.cfg.MaxDimension))
	if err != nil {
		return "", err
	}
	return recognizeWithin(ctx, e.rec, data, timeout)
}

// recognizeWithin runs rec under timeout. On timeout the recognition keeps
// running in the background and its result is dropped.
func recognizeWithin(ctx context.Context, rec Recognizer, data []byte, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return rec.Recognize(ctx, data)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := rec.Recognize(ctx, data)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", eris.Wrapf(ErrPageTimeout, "after %s", timeout)
		}
		return "", ctx.Err()
	}
}
