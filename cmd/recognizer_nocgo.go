//go:build !cgo

package main

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/pdftext/internal/config"
	"github.com/sells-group/pdftext/internal/ocr"
)

func newRecognizer(config.OCRConfig) (ocr.Recognizer, error) {
	return nil, eris.New("tesseract requires a cgo build")
}
