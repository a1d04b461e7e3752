// Package textclean normalizes raw extracted text: whitespace collapse,
// character filtering and OCR-confusion fixes.
package textclean

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// disallowed matches anything outside letters, digits, underscore,
// whitespace and the punctuation set .,;:!?()-
var disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s.,;:!?()\-]`)

// "|" never survives the strip step, so only the "l" rule changes output.
var ocrConfusions = strings.NewReplacer("|", "I", "l", "I")

// FixMode selects which extractions get the OCR-confusion substitutions.
type FixMode string

const (
	FixAll     FixMode = "all"
	FixOCROnly FixMode = "ocr_only"
	FixNone    FixMode = "none"
)

// Options controls the optional cleaning steps.
type Options struct {
	// FixOCRConfusions replaces "|" and "l" with "I". Lossy on legitimate
	// lowercase l.
	FixOCRConfusions bool
	// FoldWidth maps full- and half-width forms to their canonical width.
	FoldWidth bool
}

// DefaultOptions mirrors the historical behavior: every step enabled.
func DefaultOptions() Options {
	return Options{FixOCRConfusions: true, FoldWidth: true}
}

// Cleaner applies a fixed set of Options. It is immutable and safe for
// concurrent use.
type Cleaner struct {
	opts Options
}

// New creates a Cleaner.
func New(opts Options) *Cleaner {
	return &Cleaner{opts: opts}
}

// Default returns a Cleaner with DefaultOptions.
func Default() *Cleaner {
	return New(DefaultOptions())
}

// ForMode returns a Cleaner configured for text produced by the OCR backend
// (fromOCR) or by a text-layer backend, according to mode.
func ForMode(mode FixMode, foldWidth, fromOCR bool) *Cleaner {
	fix := true
	switch mode {
	case FixNone:
		fix = false
	case FixOCROnly:
		fix = fromOCR
	}
	return New(Options{FixOCRConfusions: fix, FoldWidth: foldWidth})
}

// Options returns the cleaner's options.
func (c *Cleaner) Options() Options { return c.opts }

// Clean normalizes text. The result is never longer (in runes) than the
// input, and Clean(Clean(x)) == Clean(x).
func (c *Cleaner) Clean(text string) string {
	if c.opts.FoldWidth {
		text = width.Fold.String(text)
	}
	text = collapseSpace(text)
	text = disallowed.ReplaceAllString(text, "")
	// Stripping can leave adjacent spaces behind.
	text = collapseSpace(text)
	if c.opts.FixOCRConfusions {
		text = ocrConfusions.Replace(text)
	}
	return strings.TrimSpace(text)
}

// CleanPages cleans each page independently, preserving positions.
func (c *Cleaner) CleanPages(pages []string) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = c.Clean(p)
	}
	return out
}

// Clean normalizes text with DefaultOptions.
func Clean(text string) string {
	return Default().Clean(text)
}

func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
