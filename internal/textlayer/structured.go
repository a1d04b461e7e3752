// Package textlayer extracts the embedded text layer of PDF documents,
// page by page, without rendering.
package textlayer

import (
	"context"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Structured reads content streams with github.com/ledongthuc/pdf.
type Structured struct {
	log *zap.Logger
}

// NewStructured creates a Structured extractor. A nil logger discards output.
func NewStructured(log *zap.Logger) *Structured {
	if log == nil {
		log = zap.NewNop()
	}
	return &Structured{log: log}
}

// Name identifies the backend in logs.
func (s *Structured) Name() string { return "ledongthuc" }

// ExtractPages returns one entry per page, in order, up to maxPages (0 means
// all). Pages that fail to decode are logged and left empty.
func (s *Structured) ExtractPages(ctx context.Context, path string, maxPages int) (pages []string, err error) {
	f, r, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	n, err := numPages(r)
	if err != nil {
		return nil, eris.Wrapf(err, "textlayer: page count %s", path)
	}
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	log := s.log.With(zap.String("path", path))
	pages = make([]string, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			log.Warn("structured extraction interrupted", zap.Int("page", i+1), zap.Error(ctx.Err()))
			break
		}
		text, perr := pageText(r, i+1)
		if perr != nil {
			log.Warn("skipping malformed page", zap.Int("page", i+1), zap.Error(perr))
			continue
		}
		pages[i] = text
	}
	return pages, nil
}

// openReader wraps pdf.Open, which panics on some malformed trailers.
func openReader(path string) (f interface{ Close() error }, r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("textlayer: open %s: panic: %v", path, rec)
		}
	}()
	file, rd, oerr := pdf.Open(path)
	if oerr != nil {
		return nil, nil, eris.Wrapf(oerr, "textlayer: open %s", path)
	}
	return file, rd, nil
}

func numPages(r *pdf.Reader) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("panic: %v", rec)
		}
	}()
	return r.NumPage(), nil
}

// pageText resolves fonts per page; resource names like /F1 are only unique
// within a page.
func pageText(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("panic: %v", rec)
		}
	}()
	p := r.Page(num)
	if p.V.IsNull() {
		return "", nil
	}
	fonts := make(map[string]*pdf.Font)
	for _, name := range p.Fonts() {
		font := p.Font(name)
		fonts[name] = &font
	}
	return p.GetPlainText(fonts)
}
