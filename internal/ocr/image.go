package ocr

import (
	"bytes"
	"image"
	"image/png"

	"github.com/rotisserie/eris"
	"golang.org/x/image/draw"
)

// Prepare converts img into the form handed to the recognizer. When gray is
// set the result is an *image.Gray. When either side exceeds maxDim the image
// is scaled down to fit, keeping its aspect ratio. A non-positive maxDim
// disables scaling.
func Prepare(img image.Image, gray bool, maxDim int) image.Image {
	b := img.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), maxDim)
	scaled := w != b.Dx() || h != b.Dy()
	if !gray && !scaled {
		return img
	}

	rect := image.Rect(0, 0, w, h)
	var dst draw.Image
	if gray {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}
	if scaled {
		draw.ApproxBiLinear.Scale(dst, rect, img, b, draw.Src, nil)
	} else {
		draw.Draw(dst, rect, img, b.Min, draw.Src)
	}
	return dst
}

// fitWithin returns w and h scaled down so neither exceeds maxDim.
func fitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, eris.Wrap(err, "ocr: encode png")
	}
	return buf.Bytes(), nil
}
