//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEnabled reports whether Tesseract support was compiled in.
const TesseractEnabled = true

// Tesseract runs recognition through libtesseract. A client is created per
// call; gosseract clients are not safe for concurrent use.
type Tesseract struct {
	langs []string
}

func NewTesseract(lang string) *Tesseract {
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{langs: strings.Split(lang, "+")}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize returns word boxes. The cgo call cannot be interrupted, so on
// cancellation the result is abandoned and the worker finishes in the background.
func (t *Tesseract) Recognize(ctx context.Context, png []byte) ([]Word, error) {
	type result struct {
		words []Word
		err   error
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan result, 1)

	go func() {
		words, err := t.recognize(png)
		done <- result{words, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.words, r.err
	}
}

func (t *Tesseract) recognize(png []byte) ([]Word, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.langs...); err != nil {
		return nil, fmt.Errorf("tesseract language: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return nil, fmt.Errorf("tesseract image: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		txt := strings.TrimSpace(b.Word)
		if txt == "" {
			continue
		}
		words = append(words, Word{Text: txt, Box: b.Box, Confidence: b.Confidence})
	}
	return words, nil
}
