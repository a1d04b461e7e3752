//go:build cgo

package main

import (
	"github.com/sells-group/pdftext/internal/config"
	"github.com/sells-group/pdftext/internal/ocr"
	"github.com/sells-group/pdftext/internal/ocr/tesseract"
)

func newRecognizer(c config.OCRConfig) (ocr.Recognizer, error) {
	return tesseract.New(c.Languages, c.PageSegMode, c.DPI), nil
}
