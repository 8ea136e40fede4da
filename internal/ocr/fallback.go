package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/layout"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/metrics"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/raster"
)

type Options struct {
	DPI           int
	RetryDPI      int
	MinChars      int
	MinConfidence float64
	MaxPixels     int
}

// Fallback runs OCR for pages whose native text layer is unusable. The
// semaphore is shared by every request in the process.
type Fallback struct {
	engine Engine
	raster raster.Rasterizer
	sem    *semaphore.Weighted
	opts   Options
	layout layout.Config
	log    *zap.Logger
}

func NewFallback(engine Engine, r raster.Rasterizer, sem *semaphore.Weighted, opts Options, log *zap.Logger) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DPI <= 0 {
		opts.DPI = 200
	}
	if opts.RetryDPI < opts.DPI {
		opts.RetryDPI = opts.DPI
	}
	return &Fallback{engine: engine, raster: r, sem: sem, opts: opts, layout: layout.DefaultConfig(), log: log}
}

// Enabled reports whether an engine is configured.
func (f *Fallback) Enabled() bool {
	return f != nil && f.engine != nil && f.raster != nil
}

// PageRequest identifies the page to recognize. Width and Height are the
// page size in points.
type PageRequest struct {
	PDFPath string
	Index   int
	Width   float64
	Height  float64
}

// RecognizePage rasterizes and recognizes one page. When the first pass yields
// fewer than MinChars characters the page is retried exactly once at RetryDPI,
// keeping whichever pass produced more text. A page that stays below MinChars
// returns an empty page and ErrLowYield.
func (f *Fallback) RecognizePage(ctx context.Context, req PageRequest) (layout.Page, error) {
	empty := layout.Page{Index: req.Index, Width: req.Width, Height: req.Height, Columns: 1}
	if !f.Enabled() {
		return empty, ErrOCRNotEnabled
	}
	if f.sem != nil {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			return empty, fmt.Errorf("ocr slot: %w", err)
		}
		defer f.sem.Release(1)
	}

	best, err := f.pass(ctx, req, f.opts.DPI)
	if err != nil {
		metrics.OCRAttempts.WithLabelValues("error").Inc()
		return empty, err
	}
	if best.Chars < f.opts.MinChars && f.opts.RetryDPI > f.opts.DPI {
		metrics.OCRAttempts.WithLabelValues("low_yield").Inc()
		f.log.Debug("ocr retry at higher dpi",
			zap.Int("page", req.Index), zap.Int("chars", best.Chars), zap.Int("dpi", f.opts.RetryDPI))

		retry, err := f.pass(ctx, req, f.opts.RetryDPI)
		switch {
		case err != nil && ctx.Err() != nil:
			metrics.OCRAttempts.WithLabelValues("error").Inc()
			return empty, err
		case err != nil:
			metrics.OCRAttempts.WithLabelValues("error").Inc()
			f.log.Warn("ocr retry failed", zap.Int("page", req.Index), zap.Error(err))
		case retry.Chars > best.Chars:
			best = retry
		}
	}
	if best.Chars < f.opts.MinChars {
		metrics.OCRAttempts.WithLabelValues("low_yield").Inc()
		return empty, fmt.Errorf("page %d: %d chars: %w", req.Index, best.Chars, ErrLowYield)
	}
	metrics.OCRAttempts.WithLabelValues("ok").Inc()
	return best, nil
}

func (f *Fallback) pass(ctx context.Context, req PageRequest, dpi int) (layout.Page, error) {
	img, err := f.raster.Rasterize(ctx, req.PDFPath, req.Index, dpi)
	if err != nil {
		return layout.Page{}, err
	}
	prepared, scale, err := Prepare(img, f.opts.MaxPixels)
	if err != nil {
		return layout.Page{}, err
	}
	words, err := f.engine.Recognize(ctx, prepared)
	if err != nil {
		return layout.Page{}, fmt.Errorf("%s: %w", f.engine.Name(), err)
	}
	runs := WordsToRuns(words, scale, dpi, req.Height, f.opts.MinConfidence)
	return layout.Build(req.Index, runs, req.Width, req.Height, layout.OCR, f.layout), nil
}

// WordsToRuns maps engine pixel boxes to PDF points. scale maps engine pixels
// back to raster pixels; the raster was rendered at dpi. Words with a reported
// confidence below minConfidence are dropped.
func WordsToRuns(words []Word, scale float64, dpi int, pageHeight, minConfidence float64) []layout.Run {
	if scale <= 0 {
		scale = 1
	}
	pt := scale * 72 / float64(dpi)
	runs := make([]layout.Run, 0, len(words))
	for _, w := range words {
		if w.Confidence > 0 && w.Confidence < minConfidence {
			continue
		}
		txt := strings.Join(strings.Fields(CleanText(w.Text)), " ")
		if txt == "" || !hasGlyph(txt) {
			continue
		}
		h := float64(w.Box.Dy()) * pt
		runs = append(runs, layout.Run{
			Text:       txt,
			X:          float64(w.Box.Min.X) * pt,
			Y:          pageHeight - float64(w.Box.Max.Y)*pt,
			W:          float64(w.Box.Dx()) * pt,
			FontSize:   h,
			Confidence: w.Confidence,
		})
	}
	return runs
}

func hasGlyph(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return true
		}
	}
	return false
}

// IsSoft reports whether err is a per-page OCR failure the caller should
// absorb rather than a cancellation of the whole request.
func IsSoft(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
