package extract

import (
	"fmt"
	"strings"
	"time"
)

// Backend tags the source of the returned text.
type Backend string

// Backend tags.
const (
	BackendStructured Backend = "structured"
	BackendRendered   Backend = "rendered"
	BackendOCR        Backend = "ocr"
	BackendMerged     Backend = "merged"
	BackendNone       Backend = "none"
)

// Stage records what one backend did during a call.
type Stage struct {
	Backend Backend `json:"backend" yaml:"backend"`
	// Ran is false when the stage was skipped.
	Ran bool `json:"ran" yaml:"ran"`
	// Skipped explains why the stage did not run.
	Skipped string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	// Pages is the number of entries the backend returned.
	Pages int `json:"pages" yaml:"pages"`
	// Filled is the number of non-empty entries.
	Filled int `json:"filled" yaml:"filled"`
	// Chars is the rune length of the trimmed joined output.
	Chars   int           `json:"chars" yaml:"chars"`
	Err     error         `json:"-" yaml:"-"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Result is the outcome of one extraction call. Text is never empty.
type Result struct {
	Text    string  `json:"text" yaml:"text"`
	Backend Backend `json:"backend" yaml:"backend"`
	// OK is false when Text is one of the diagnostic strings.
	OK bool `json:"ok" yaml:"ok"`
	// Pages holds the normalized text of each processed page.
	Pages []string `json:"pages,omitempty" yaml:"pages,omitempty"`
	// PageCount is the document's page count before capping.
	PageCount int     `json:"page_count" yaml:"page_count"`
	Capped    bool    `json:"capped" yaml:"capped"`
	Stages    []Stage `json:"stages" yaml:"stages"`
	// Err is the classified failure, or nil on success.
	Err     error         `json:"-" yaml:"-"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Kind returns the category of r.Err.
func (r Result) Kind() ErrorKind { return Kind(r.Err) }

// Stage returns the record for backend b, if that stage was reached.
func (r Result) Stage(b Backend) (Stage, bool) {
	for _, s := range r.Stages {
		if s.Backend == b {
			return s, true
		}
	}
	return Stage{}, false
}

var banner = strings.Repeat("=", 50)

// FormatPages renders pages with a numbered banner before each non-empty
// page. Page numbers are 1-based document positions.
func FormatPages(pages []string) string {
	var blocks []string
	for i, text := range pages {
		if text == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("\n%s\nPage %d\n%s\n\n%s\n", banner, i+1, banner, text))
	}
	return strings.Join(blocks, "\n")
}
