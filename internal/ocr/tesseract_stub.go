//go:build !ocr

package ocr

import "context"

// TesseractEnabled reports whether Tesseract support was compiled in.
// Rebuild with -tags ocr (and libtesseract installed) to enable it.
const TesseractEnabled = false

type Tesseract struct{}

func NewTesseract(string) *Tesseract { return &Tesseract{} }

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) Recognize(context.Context, []byte) ([]Word, error) {
	return nil, ErrOCRNotEnabled
}
