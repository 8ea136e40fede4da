// Package ocr recovers text from rasterized pages.
//
// Engines return words with pixel boxes. Fallback drives an engine for one
// page at a time: rasterize, recognize, retry once at a higher DPI when the
// yield is too low, and convert the words to layout lines in PDF points.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/config"
)

var (
	// ErrOCRNotEnabled is returned by the Tesseract engine when the binary was
	// built without the "ocr" tag.
	ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

	// ErrLowYield means recognition produced too little text, even after the retry.
	ErrLowYield = errors.New("ocr yield below threshold")
)

// Word is one recognized word. Box is in pixels of the submitted image,
// origin top-left. Confidence is 0-100; 0 means the engine does not report it.
type Word struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// Engine recognizes text in a PNG image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, png []byte) ([]Word, error)
}

// NewEngine builds the engine selected by cfg.OCREngine. "none" returns a nil
// engine and no error.
func NewEngine(cfg config.Config) (Engine, error) {
	switch strings.ToLower(cfg.OCREngine) {
	case "none", "":
		return nil, nil
	case "tesseract":
		return NewTesseract(cfg.OCRLanguage), nil
	case "mistral":
		return NewMistral(cfg.MistralAPIKey, cfg.OCRModel), nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", cfg.OCREngine)
	}
}
