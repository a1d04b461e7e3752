//go:build cgo

// Package tesseract implements ocr.Recognizer on top of the Tesseract engine
// via github.com/otiai10/gosseract.
package tesseract

import (
	"context"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"
)

// Recognizer runs Tesseract with a fresh client per image. Clients are not
// safe for concurrent use, so none is shared.
type Recognizer struct {
	languages []string
	psm       int
	dpi       int
}

// New creates a Recognizer. Empty languages default to "eng"; a non-positive
// psm keeps Tesseract's default segmentation.
func New(languages []string, psm int, dpi float64) *Recognizer {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Recognizer{languages: languages, psm: psm, dpi: int(dpi)}
}

// Recognize returns the text Tesseract finds in the encoded image.
func (r *Recognizer) Recognize(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close() //nolint:errcheck

	if err := client.SetLanguage(r.languages...); err != nil {
		return "", eris.Wrapf(err, "tesseract: set language %s", strings.Join(r.languages, "+"))
	}
	if r.psm > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(r.psm)); err != nil {
			return "", eris.Wrapf(err, "tesseract: set page seg mode %d", r.psm)
		}
	}
	if r.dpi > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(r.dpi)); err != nil {
			return "", eris.Wrap(err, "tesseract: set dpi")
		}
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", eris.Wrap(err, "tesseract: set image")
	}

	text, err := client.Text()
	if err != nil {
		return "", eris.Wrap(err, "tesseract: recognize")
	}
	return text, nil
}
