package extract

import (
	"time"

	"github.com/sells-group/pdftext/internal/pdfdoc"
)

// Mode selects how backends are combined.
type Mode string

const (
	// ModeCascade runs backends in priority order and stops at the first
	// sufficient result.
	ModeCascade Mode = "cascade"
	// ModeExhaustive runs every backend and merges all outputs.
	ModeExhaustive Mode = "exhaustive"
)

// Config bounds one extraction call.
type Config struct {
	// MinContentChars is the rune count the trimmed text of a stage must
	// exceed to end the cascade.
	MinContentChars int
	// MergeThreshold is the rune count a page must exceed to be kept by the
	// merger.
	MergeThreshold int
	// MaxPages caps the pages processed; larger documents are truncated.
	MaxPages int
	// MaxBytes rejects larger files.
	MaxBytes int64
	// Timeout is the global budget. It is checked between stages.
	Timeout time.Duration
	// OCRPageCap limits OCR to the leading pages; it never exceeds MaxPages.
	OCRPageCap int
	// OCRPageTimeout bounds OCR of a single page.
	OCRPageTimeout time.Duration
	Mode           Mode
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MinContentChars: 100,
		MergeThreshold:  50,
		MaxPages:        50,
		MaxBytes:        50 << 20,
		Timeout:         120 * time.Second,
		OCRPageCap:      10,
		OCRPageTimeout:  30 * time.Second,
		Mode:            ModeCascade,
	}
}

func (c Config) limits() pdfdoc.Limits {
	return pdfdoc.Limits{MaxBytes: c.MaxBytes, MaxPages: c.MaxPages}
}

// ocrPageCap returns the OCR cap for a document of pages effective pages.
func (c Config) ocrPageCap(pages int) int {
	if c.OCRPageCap <= 0 || c.OCRPageCap > pages {
		return pages
	}
	return c.OCRPageCap
}
