package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pdftext/internal/pdfdoc"
)

// Error categories carried by Result.Err.
var (
	ErrInputInvalid     = eris.New("extract: invalid input")
	ErrBackendFailure   = eris.New("extract: backend failure")
	ErrResourceExceeded = eris.New("extract: resource limit exceeded")
	ErrTimeout          = eris.New("extract: time budget exhausted")
	ErrNoText           = eris.New("extract: no text found")
)

// Fixed diagnostic strings returned by Extract in place of text.
const (
	InvalidInputText = "[pdftext] The file could not be read as a PDF document."
	TooLargeText     = "[pdftext] The PDF exceeds the configured size limit."
	NoTextText       = "[pdftext] No text could be extracted from this PDF."
)

// ErrorKind is the coarse category of an extraction error.
type ErrorKind int

// Error kinds, in increasing order of how far extraction got.
const (
	KindNone ErrorKind = iota
	KindInputInvalid
	KindResourceExceeded
	KindBackendFailure
	KindTimeout
	KindNoText
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInputInvalid:
		return "input_invalid"
	case KindResourceExceeded:
		return "resource_exceeded"
	case KindBackendFailure:
		return "backend_failure"
	case KindTimeout:
		return "timeout"
	case KindNoText:
		return "no_text"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Kind classifies err. A nil error is KindNone; an error outside the
// taxonomy is treated as a backend failure.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInputInvalid):
		return KindInputInvalid
	case errors.Is(err, ErrResourceExceeded), errors.Is(err, pdfdoc.ErrTooLarge):
		return KindResourceExceeded
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrNoText):
		return KindNoText
	default:
		return KindBackendFailure
	}
}

// Classify maps text returned by Extract back to an error kind by matching
// the fixed diagnostic strings. Text that matches none is KindNone.
func Classify(text string) ErrorKind {
	switch strings.TrimSpace(text) {
	case InvalidInputText:
		return KindInputInvalid
	case TooLargeText:
		return KindResourceExceeded
	case NoTextText:
		return KindNoText
	default:
		return KindNone
	}
}

// classified tags err with a category so that both errors.Is(err, kind) and
// errors.Is(err, <cause sentinel>) hold.
func classified(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}

// validationError categorizes a pdfdoc validation failure.
func validationError(err error) error {
	if errors.Is(err, pdfdoc.ErrTooLarge) {
		return classified(ErrResourceExceeded, err)
	}
	return classified(ErrInputInvalid, err)
}

// sentinelFor returns the diagnostic text for a failed extraction.
func sentinelFor(err error) string {
	return SentinelText(Kind(err))
}

// SentinelText returns the diagnostic string reported for a failure of kind k.
// Callers that reject input before extraction use it to answer the same way.
func SentinelText(k ErrorKind) string {
	switch k {
	case KindInputInvalid:
		return InvalidInputText
	case KindResourceExceeded:
		return TooLargeText
	default:
		return NoTextText
	}
}
