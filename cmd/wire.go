package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pdftext/internal/config"
	"github.com/sells-group/pdftext/internal/db"
	"github.com/sells-group/pdftext/internal/extract"
	"github.com/sells-group/pdftext/internal/mupdf"
	"github.com/sells-group/pdftext/internal/ocr"
	"github.com/sells-group/pdftext/internal/store"
	"github.com/sells-group/pdftext/internal/textlayer"
)

// newOrchestrator builds the extraction cascade from configuration.
func newOrchestrator(c *config.Config, log *zap.Logger) (*extract.Orchestrator, error) {
	rendered, err := renderedBackend(c.Extract, log)
	if err != nil {
		return nil, err
	}

	var ocrStage extract.OCRExtractor
	if c.OCR.Enabled {
		engine, err := ocrEngine(c.OCR, log)
		if err != nil {
			log.Warn("ocr unavailable, continuing without it", zap.Error(err))
		} else {
			ocrStage = engine
			oc := engine.Config()
			log.Debug("ocr enabled",
				zap.Strings("languages", oc.Languages),
				zap.Float64("dpi", oc.DPI),
				zap.Int("page_cap", oc.PageCap),
			)
		}
	}

	structured := textlayer.NewStructured(log.Named("structured"))
	log.Debug("extraction backends",
		zap.String("structured", backendName(structured)),
		zap.String("rendered", backendName(rendered)),
		zap.Bool("ocr", ocrStage != nil),
	)

	textCleaner, ocrCleaner := c.Normalize.Cleaners()
	return extract.New(
		c.Extract.Orchestrator(c.OCR),
		structured,
		rendered,
		ocrStage,
		extract.WithLogger(log.Named("extract")),
		extract.WithCleaner(textCleaner),
		extract.WithOCRCleaner(ocrCleaner),
	), nil
}

// renderedBackend selects the second text-layer backend. It returns a nil
// interface when disabled so the orchestrator skips the stage.
func renderedBackend(c config.ExtractConfig, log *zap.Logger) (extract.PageExtractor, error) {
	switch c.RenderedProvider {
	case "mupdf", "":
		return mupdf.NewTextExtractor(log.Named("mupdf")), nil
	case "pdftotext":
		return textlayer.NewPdfToText(c.PdfToTextPath), nil
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported rendered provider: %s", c.RenderedProvider)
	}
}

// backendName returns the name a text-layer backend reports, or "none".
func backendName(p extract.PageExtractor) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "none"
}

func ocrEngine(c config.OCRConfig, log *zap.Logger) (*ocr.Engine, error) {
	rec, err := newRecognizer(c)
	if err != nil {
		return nil, err
	}
	return ocr.NewEngine(c.Engine(), mupdf.NewRasterizer(), rec, log.Named("ocr"))
}

// initStore opens the run ledger. It returns nil when the driver is "none".
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st = s
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// requireStore is initStore for commands that cannot run without a ledger.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("no run ledger configured (store.driver is none)")
	}
	return st, nil
}
