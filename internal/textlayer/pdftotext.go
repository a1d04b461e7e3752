package textlayer

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// Name identifies the backend in logs.
func (p *PdfToText) Name() string { return "pdftotext" }

// ExtractPages runs pdftotext -layout on the given PDF and splits stdout on
// the form feed that ends every page.
func (p *PdfToText) ExtractPages(ctx context.Context, pdfPath string, maxPages int) ([]string, error) {
	args := []string{"-layout", "-enc", "UTF-8"}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, pdfPath, "-")
	cmd := exec.CommandContext(ctx, p.binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "textlayer: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return splitPages(stdout.String(), maxPages), nil
}

func splitPages(out string, maxPages int) []string {
	if out == "" {
		return nil
	}
	pages := strings.Split(out, "\f")
	// Output ends with a form feed, leaving one empty trailing element.
	if len(pages) > 1 && pages[len(pages)-1] == "" {
		pages = pages[:len(pages)-1]
	}
	if maxPages > 0 && len(pages) > maxPages {
		pages = pages[:maxPages]
	}
	return pages
}
