// Package extract turns a PDF path into normalized text by running the
// text-layer and OCR backends as a priority cascade under a time budget.
package extract

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pdftext/internal/merge"
	"github.com/sells-group/pdftext/internal/pdfdoc"
	"github.com/sells-group/pdftext/internal/textclean"
)

// PageExtractor is a text-layer backend. It returns one entry per page, up to
// maxPages (0 means all), with empty entries for pages without text.
type PageExtractor interface {
	ExtractPages(ctx context.Context, path string, maxPages int) ([]string, error)
}

// OCRExtractor is the raster OCR backend.
type OCRExtractor interface {
	ExtractPages(ctx context.Context, path string, pageCap int, perPageTimeout time.Duration) ([]string, error)
}

// Validator checks a path before any backend opens it.
type Validator func(path string, limits pdfdoc.Limits) (pdfdoc.Info, error)

// Orchestrator runs the extraction cascade. It keeps no per-call state and is
// safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	structured PageExtractor
	rendered   PageExtractor
	ocr        OCRExtractor
	log        *zap.Logger
	cleaner    *textclean.Cleaner
	ocrCleaner *textclean.Cleaner
	validate   Validator
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards output.
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithCleaner sets the normalizer for text-layer output. Unless
// WithOCRCleaner is also given it is used for OCR output too.
func WithCleaner(c *textclean.Cleaner) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.cleaner = c
		}
	}
}

// WithOCRCleaner sets the normalizer for results that include OCR output.
func WithOCRCleaner(c *textclean.Cleaner) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.ocrCleaner = c
		}
	}
}

// WithValidator replaces pdfdoc.Validate.
func WithValidator(v Validator) Option {
	return func(o *Orchestrator) {
		if v != nil {
			o.validate = v
		}
	}
}

// WithClock sets the clock the budget is measured with.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator. Any backend may be nil, in which case its stage
// is skipped.
func New(cfg Config, structured, rendered PageExtractor, ocr OCRExtractor, opts ...Option) *Orchestrator {
	if cfg.Mode == "" {
		cfg.Mode = ModeCascade
	}
	o := &Orchestrator{
		cfg:        cfg,
		structured: structured,
		rendered:   rendered,
		ocr:        ocr,
		log:        zap.NewNop(),
		cleaner:    textclean.Default(),
		validate:   pdfdoc.Validate,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.ocrCleaner == nil {
		o.ocrCleaner = o.cleaner
	}
	return o
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Extract returns normalized text for the PDF at path, or one of the fixed
// diagnostic strings. It never returns an empty string and never panics.
func (o *Orchestrator) Extract(ctx context.Context, path string) string {
	return o.Run(ctx, path).Text
}

// Run is Extract with the outcome exposed.
func (o *Orchestrator) Run(ctx context.Context, path string) (res Result) {
	budget := NewBudget(o.cfg.Timeout, o.now)
	log := o.log.With(zap.String("path", path))
	res.Backend = BackendNone

	defer func() {
		if r := recover(); r != nil {
			log.Error("extraction panicked", zap.Any("panic", r))
			res.Text = NoTextText
			res.Backend = BackendNone
			res.OK = false
			res.Pages = nil
			res.Err = classified(ErrBackendFailure, eris.Errorf("panic: %v", r))
		}
		res.Elapsed = budget.Elapsed()
	}()

	info, err := o.validate(path, o.cfg.limits())
	if err != nil {
		res.Err = validationError(err)
		res.Text = sentinelFor(res.Err)
		log.Warn("input rejected", zap.Error(err))
		return res
	}
	res.PageCount = info.Pages
	res.Capped = info.Capped
	if info.Capped {
		log.Warn("page count exceeds limit, truncating",
			zap.Int("pages", info.Pages),
			zap.Int("limit", info.Effective),
		)
	}

	c := &call{o: o, path: path, pages: info.Effective, budget: budget, log: log, res: &res}
	if o.cfg.Mode == ModeExhaustive {
		c.exhaustive(ctx)
	} else {
		c.cascade(ctx)
	}

	log.Info("extraction finished",
		zap.String("backend", string(res.Backend)),
		zap.Bool("ok", res.OK),
		zap.Int("chars", utf8.RuneCountInString(res.Text)),
		zap.Duration("elapsed", budget.Elapsed()),
	)
	return res
}

type stageFunc func(ctx context.Context) ([]string, error)

// call holds the state of one Run.
type call struct {
	o      *Orchestrator
	path   string
	pages  int
	budget Budget
	log    *zap.Logger
	res    *Result
}

func (c *call) structured() stageFunc {
	if c.o.structured == nil {
		return nil
	}
	return func(ctx context.Context) ([]string, error) {
		return c.o.structured.ExtractPages(ctx, c.path, c.pages)
	}
}

func (c *call) rendered() stageFunc {
	if c.o.rendered == nil {
		return nil
	}
	return func(ctx context.Context) ([]string, error) {
		return c.o.rendered.ExtractPages(ctx, c.path, c.pages)
	}
}

func (c *call) ocr() stageFunc {
	if c.o.ocr == nil {
		return nil
	}
	return func(ctx context.Context) ([]string, error) {
		// OCR checks its context between pages, so it alone gets the
		// remaining budget as a deadline.
		bctx, cancel := c.budget.Context(ctx)
		defer cancel()
		return c.o.ocr.ExtractPages(bctx, c.path, c.o.cfg.ocrPageCap(c.pages), c.o.cfg.OCRPageTimeout)
	}
}

// cascade runs the stages in priority order and stops at the first
// sufficient result.
func (c *call) cascade(ctx context.Context) {
	threshold := c.o.cfg.MergeThreshold
	minChars := c.o.cfg.MinContentChars

	structured := c.stage(ctx, BackendStructured, c.structured(), false)
	if c.accept(BackendStructured, structured, false, minChars) {
		return
	}

	rendered := c.stage(ctx, BackendRendered, c.rendered(), true)
	if rendered != nil {
		merged := merge.Merge(threshold, structured, rendered)
		if c.accept(BackendMerged, merged, false, minChars) {
			return
		}
		if c.accept(BackendRendered, rendered, false, minChars) {
			return
		}
	}

	ocr := c.stage(ctx, BackendOCR, c.ocr(), true)
	if ocr != nil {
		merged := merge.Merge(threshold, structured, rendered, ocr)
		if c.accept(BackendMerged, merged, true, 0) {
			return
		}
		if merge.Filled(merged) == 0 && c.accept(BackendOCR, ocr, true, 0) {
			return
		}
	}

	if c.accept(BackendStructured, structured, false, 0) || c.accept(BackendRendered, rendered, false, 0) {
		return
	}
	c.fail()
}

// exhaustive runs every stage and merges all outputs.
func (c *call) exhaustive(ctx context.Context) {
	structured := c.stage(ctx, BackendStructured, c.structured(), false)
	rendered := c.stage(ctx, BackendRendered, c.rendered(), true)
	ocr := c.stage(ctx, BackendOCR, c.ocr(), true)

	merged := merge.Merge(c.o.cfg.MergeThreshold, structured, rendered, ocr)
	if c.accept(BackendMerged, merged, merge.Filled(ocr) > 0, 0) {
		return
	}
	if c.accept(BackendStructured, structured, false, 0) ||
		c.accept(BackendRendered, rendered, false, 0) ||
		c.accept(BackendOCR, ocr, true, 0) {
		return
	}
	c.fail()
}

// stage runs fn and records a Stage. It returns nil when the stage did not
// run or failed. When checkBudget is set an exhausted budget skips the stage;
// a stage that has started is never cut short by the budget.
func (c *call) stage(ctx context.Context, b Backend, fn stageFunc, checkBudget bool) []string {
	st := Stage{Backend: b}
	defer func() { c.res.Stages = append(c.res.Stages, st) }()

	if fn == nil {
		st.Skipped = "not configured"
		return nil
	}
	if checkBudget && c.budget.Expired() {
		st.Skipped = "budget exhausted"
		st.Err = eris.Wrapf(ErrTimeout, "skipping %s after %s", b, c.budget.Elapsed())
		c.log.Warn("time budget exhausted, skipping stage", zap.String("stage", string(b)), zap.Duration("elapsed", c.budget.Elapsed()))
		return nil
	}

	start := c.o.now()
	pages, err := safeCall(ctx, fn)
	st.Ran = true
	st.Elapsed = c.o.now().Sub(start)
	if err != nil {
		st.Err = classified(ErrBackendFailure, eris.Wrapf(err, "%s backend", b))
		c.log.Warn("backend failed", zap.String("stage", string(b)), zap.Duration("elapsed", st.Elapsed), zap.Error(err))
		return nil
	}

	st.Pages = len(pages)
	st.Filled = merge.Filled(pages)
	st.Chars = charCount(merge.Join(pages))
	c.log.Debug("stage finished",
		zap.String("stage", string(b)),
		zap.Int("pages", st.Pages),
		zap.Int("filled", st.Filled),
		zap.Int("chars", st.Chars),
		zap.Duration("elapsed", st.Elapsed),
	)
	return pages
}

// accept sets the result from pages when their trimmed joined text is longer
// than minChars and survives normalization.
func (c *call) accept(b Backend, pages []string, fromOCR bool, minChars int) bool {
	joined := merge.Join(pages)
	if n := charCount(joined); n == 0 || n <= minChars {
		return false
	}
	cleaner := c.o.cleaner
	if fromOCR {
		cleaner = c.o.ocrCleaner
	}
	text := cleaner.Clean(joined)
	if text == "" {
		c.log.Debug("text removed by normalization", zap.String("backend", string(b)))
		return false
	}
	c.res.Text = text
	c.res.Backend = b
	c.res.OK = true
	c.res.Pages = cleaner.CleanPages(pages)
	c.res.Err = nil
	return true
}

// fail records total failure with the most specific cause.
func (c *call) fail() {
	var ran, failed int
	var timedOut error
	for _, st := range c.res.Stages {
		if errors.Is(st.Err, ErrTimeout) && timedOut == nil {
			timedOut = st.Err
		}
		if st.Ran {
			ran++
			if st.Err != nil {
				failed++
			}
		}
	}

	switch {
	case timedOut != nil:
		c.res.Err = timedOut
	case ran > 0 && failed == ran:
		c.res.Err = eris.Wrap(ErrBackendFailure, "every backend failed")
	default:
		c.res.Err = ErrNoText
	}
	c.res.Text = NoTextText
	c.res.Backend = BackendNone
	c.res.OK = false
	c.res.Pages = nil
}

func safeCall(ctx context.Context, fn stageFunc) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = eris.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func charCount(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
