// Package pdfdoc validates that a path names a readable PDF within the
// configured size and page limits.
package pdfdoc

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
)

// Magic is the header every PDF starts with (possibly after a short preamble).
const Magic = "%PDF-"

// headerWindow is how far into the file the header may appear.
const headerWindow = 1024

// Validation failures. All of them are input errors.
var (
	ErrNotFound    = errors.New("file not found")
	ErrNotRegular  = errors.New("not a regular file")
	ErrEmpty       = errors.New("file is empty")
	ErrTooLarge    = errors.New("file exceeds size limit")
	ErrBadHeader   = errors.New("missing PDF header")
	ErrUnreadable  = errors.New("document cannot be opened")
	ErrNoPages     = errors.New("document has no pages")
	ErrUnreachable = errors.New("file cannot be read")
)

// Limits bounds the documents accepted for extraction.
type Limits struct {
	// MaxBytes rejects larger files. Zero disables the check.
	MaxBytes int64
	// MaxPages caps the pages processed. Larger documents are accepted and
	// truncated. Zero disables the cap.
	MaxPages int
}

// Info describes a validated document.
type Info struct {
	Path  string
	Size  int64
	Pages int
	// Effective is the number of pages that will be processed.
	Effective int
	// Capped reports whether Effective < Pages.
	Capped bool
}

// Validate checks the file at path. Every returned error wraps one of the
// package's sentinel errors.
func Validate(path string, limits Limits) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, eris.Wrapf(ErrNotFound, "pdfdoc: stat %s", path)
		}
		return Info{}, eris.Wrapf(ErrUnreachable, "pdfdoc: stat %s: %v", path, err)
	}
	if !st.Mode().IsRegular() {
		return Info{}, eris.Wrapf(ErrNotRegular, "pdfdoc: %s", path)
	}
	if st.Size() == 0 {
		return Info{}, eris.Wrapf(ErrEmpty, "pdfdoc: %s", path)
	}
	if limits.MaxBytes > 0 && st.Size() > limits.MaxBytes {
		return Info{}, eris.Wrapf(ErrTooLarge, "pdfdoc: %s is %d bytes, limit %d", path, st.Size(), limits.MaxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return Info{}, eris.Wrapf(ErrUnreachable, "pdfdoc: open %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck

	if err := checkHeader(f); err != nil {
		return Info{}, eris.Wrapf(err, "pdfdoc: %s", path)
	}

	pages, err := countPages(f)
	if err != nil {
		return Info{}, eris.Wrapf(ErrUnreadable, "pdfdoc: %s: %v", path, err)
	}
	if pages <= 0 {
		return Info{}, eris.Wrapf(ErrNoPages, "pdfdoc: %s", path)
	}

	info := Info{Path: path, Size: st.Size(), Pages: pages, Effective: pages}
	if limits.MaxPages > 0 && pages > limits.MaxPages {
		info.Effective = limits.MaxPages
		info.Capped = true
	}
	return info, nil
}

func checkHeader(r io.Reader) error {
	buf := make([]byte, headerWindow)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return eris.Wrapf(ErrUnreachable, "read header: %v", err)
	}
	if !bytes.Contains(buf[:n], []byte(Magic)) {
		return ErrBadHeader
	}
	return nil
}

// countPages parses the document with pdfcpu in relaxed mode. pdfcpu can panic
// on adversarial input; that is reported as an error.
func countPages(rs io.ReadSeeker) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pdfcpu panic: %v", r)
		}
	}()
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, eris.Wrap(err, "seek")
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(rs, conf)
}

// HasMagic reports whether data starts with the PDF header. Callers use it
// to screen uploads before invoking extraction.
func HasMagic(data []byte) bool {
	return bytes.HasPrefix(data, []byte(Magic))
}
