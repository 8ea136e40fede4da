package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/layout"
)

// fakeRaster renders a blank square page whose edge equals the DPI, so the
// engine can tell passes apart by image size.
type fakeRaster struct {
	mu   sync.Mutex
	dpis []int
	err  error
}

func (r *fakeRaster) Rasterize(_ context.Context, _ string, _ int, dpi int) ([]byte, error) {
	r.mu.Lock()
	r.dpis = append(r.dpis, dpi)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, dpi, dpi))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type fakeEngine struct {
	byWidth map[int][]Word
	err     error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Recognize(_ context.Context, img []byte) ([]Word, error) {
	if e.err != nil {
		return nil, e.err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, err
	}
	return e.byWidth[cfg.Width], nil
}

func line(y int, conf float64, words ...string) []Word {
	var out []Word
	x := 10
	for _, w := range words {
		out = append(out, Word{Text: w, Box: image.Rect(x, y, x+len(w)*8, y+14), Confidence: conf})
		x += len(w)*8 + 6
	}
	return out
}

func goodWords() []Word {
	var ws []Word
	ws = append(ws, line(20, 90, "1.", "Which", "gas", "do", "plants", "absorb?")...)
	ws = append(ws, line(40, 88, "A.", "Oxygen", "B.", "Carbon", "dioxide")...)
	return ws
}

func newTestFallback(r *fakeRaster, e Engine) *Fallback {
	return NewFallback(e, r, semaphore.NewWeighted(1), Options{
		DPI: 200, RetryDPI: 300, MinChars: 20, MinConfidence: 30,
	}, nil)
}

func req() PageRequest {
	return PageRequest{PDFPath: "doc.pdf", Index: 3, Width: 612, Height: 792}
}

func TestRecognizePageFirstPass(t *testing.T) {
	r := &fakeRaster{}
	f := newTestFallback(r, &fakeEngine{byWidth: map[int][]Word{200: goodWords()}})

	page, err := f.RecognizePage(context.Background(), req())
	require.NoError(t, err)
	assert.Equal(t, []int{200}, r.dpis)
	assert.Equal(t, 3, page.Index)
	require.Len(t, page.Lines, 2)
	assert.Equal(t, "1. Which gas do plants absorb?", page.Lines[0].Text)
	assert.Equal(t, layout.OCR, page.Lines[0].Source)
	assert.InDelta(t, 90, page.Lines[0].Confidence, 1e-9)
}

func TestRecognizePageRetriesOnceAtHigherDPI(t *testing.T) {
	r := &fakeRaster{}
	f := newTestFallback(r, &fakeEngine{byWidth: map[int][]Word{
		200: line(20, 80, "blurry"),
		300: goodWords(),
	}})

	page, err := f.RecognizePage(context.Background(), req())
	require.NoError(t, err)
	assert.Equal(t, []int{200, 300}, r.dpis)
	assert.Len(t, page.Lines, 2)
}

func TestRecognizePageLowYieldTwice(t *testing.T) {
	r := &fakeRaster{}
	f := newTestFallback(r, &fakeEngine{byWidth: map[int][]Word{
		200: line(20, 80, "x"),
		300: line(20, 80, "xy"),
	}})

	page, err := f.RecognizePage(context.Background(), req())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLowYield)
	assert.True(t, IsSoft(err))
	assert.Equal(t, []int{200, 300}, r.dpis, "no third attempt")
	assert.Empty(t, page.Lines)
}

func TestRecognizePageEngineError(t *testing.T) {
	r := &fakeRaster{}
	f := newTestFallback(r, &fakeEngine{err: errors.New("engine crashed")})

	_, err := f.RecognizePage(context.Background(), req())
	require.Error(t, err)
	assert.True(t, IsSoft(err))
	assert.Equal(t, []int{200}, r.dpis)
}

func TestRecognizePageDropsLowConfidenceWords(t *testing.T) {
	words := goodWords()
	words = append(words, line(60, 12, "garbage", "noise", "specks", "here")...)
	f := newTestFallback(&fakeRaster{}, &fakeEngine{byWidth: map[int][]Word{200: words}})

	page, err := f.RecognizePage(context.Background(), req())
	require.NoError(t, err)
	assert.Len(t, page.Lines, 2)
	assert.NotContains(t, page.Text(), "garbage")
}

func TestRecognizePageWaitsForSlot(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1))
	f := NewFallback(&fakeEngine{}, &fakeRaster{}, sem, Options{DPI: 200, RetryDPI: 300, MinChars: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.RecognizePage(ctx, req())
	require.Error(t, err)
	assert.False(t, IsSoft(err))
}

func TestRecognizePageWithoutEngine(t *testing.T) {
	f := NewFallback(nil, &fakeRaster{}, nil, Options{}, nil)
	assert.False(t, f.Enabled())
	_, err := f.RecognizePage(context.Background(), req())
	assert.ErrorIs(t, err, ErrOCRNotEnabled)
}

func TestWordsToRuns(t *testing.T) {
	words := []Word{
		{Text: "ok", Box: image.Rect(100, 200, 300, 250), Confidence: 95},
		{Text: "lowconf", Box: image.Rect(0, 0, 10, 10), Confidence: 5},
		{Text: "unknown", Box: image.Rect(0, 0, 10, 10)},
		{Text: "  ", Box: image.Rect(0, 0, 10, 10)},
	}
	runs := WordsToRuns(words, 1, 144, 792, 30)
	require.Len(t, runs, 2)
	assert.Equal(t, "ok", runs[0].Text)
	assert.InDelta(t, 50, runs[0].X, 1e-9)
	assert.InDelta(t, 667, runs[0].Y, 1e-9)
	assert.InDelta(t, 100, runs[0].W, 1e-9)
	assert.InDelta(t, 25, runs[0].FontSize, 1e-9)
	assert.Equal(t, "unknown", runs[1].Text)
}
