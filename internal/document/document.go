// Package document opens uploaded PDFs and hands out their pages.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/layout"
)

var (
	ErrInvalidDocument      = errors.New("invalid document")
	ErrPageRangeOutOfBounds = errors.New("page range out of bounds")
	ErrMalformedPage        = errors.New("malformed page")
)

// minPDFBytes rejects uploads that cannot hold a header, one object and a trailer.
const minPDFBytes = 100

// PageRange restricts processing to pages Start..End, inclusive and 0-indexed.
// End < 0 means "through the last page".
type PageRange struct {
	Start int
	End   int
}

// FullRange covers every page.
func FullRange() PageRange { return PageRange{Start: 0, End: -1} }

// Page is one page's native content.
type Page struct {
	Index  int
	Width  float64
	Height float64
	Runs   []layout.Run
}

// Document is a parsed, read-only PDF. Pages may be read from several
// goroutines at once; each read parses from the shared byte slice.
type Document struct {
	ID         string // sha256 of the bytes
	Size       int64
	TotalPages int
	Range      PageRange // resolved: 0 <= Start <= End < TotalPages

	data []byte

	tmpOnce sync.Once
	tmpDir  string
	tmpPath string
	tmpErr  error
}

// Load validates data and resolves r against the page count. A nil range
// selects the whole document.
func Load(data []byte, r *PageRange) (*Document, error) {
	if err := checkMagic(data); err != nil {
		return nil, err
	}
	reader, err := openReader(data)
	if err != nil {
		return nil, err
	}
	total, err := pageCount(reader)
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: no pages", ErrInvalidDocument)
	}

	rng := FullRange()
	if r != nil {
		rng = *r
	}
	if rng.End < 0 {
		rng.End = total - 1
	}
	if rng.Start < 0 || rng.Start > rng.End {
		return nil, fmt.Errorf("%w: start %d, end %d", ErrPageRangeOutOfBounds, rng.Start, rng.End)
	}
	if rng.End >= total {
		return nil, fmt.Errorf("%w: end %d, document has %d pages", ErrPageRangeOutOfBounds, rng.End, total)
	}

	sum := sha256.Sum256(data)
	return &Document{
		ID:         hex.EncodeToString(sum[:]),
		Size:       int64(len(data)),
		TotalPages: total,
		Range:      rng,
		data:       data,
	}, nil
}

// Indexes returns the selected page indexes in order.
func (d *Document) Indexes() []int {
	out := make([]int, 0, d.Range.End-d.Range.Start+1)
	for i := d.Range.Start; i <= d.Range.End; i++ {
		out = append(out, i)
	}
	return out
}

// Page reads the native text layer of page index (0-indexed).
func (d *Document) Page(index int) (Page, error) {
	if index < 0 || index >= d.TotalPages {
		return Page{}, fmt.Errorf("%w: page %d", ErrPageRangeOutOfBounds, index)
	}
	reader, err := openReader(d.data)
	if err != nil {
		return Page{}, err
	}
	w, h, runs, err := readPage(reader, index+1)
	if err != nil {
		return Page{Index: index, Width: w, Height: h}, fmt.Errorf("page %d: %w", index, err)
	}
	return Page{Index: index, Width: w, Height: h, Runs: runs}, nil
}

func pageCount(reader *pdf.Reader) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidDocument, rec)
		}
	}()
	return reader.NumPage(), nil
}

// readPage loads page num (1-indexed). Page objects resolve lazily and the
// pdf package panics on a malformed one; that becomes ErrMalformedPage.
func readPage(reader *pdf.Reader, num int) (w, h float64, runs []layout.Run, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrMalformedPage, rec)
		}
	}()
	p := reader.Page(num)
	w, h = layout.PageSize(p)
	runs, err = layout.RunsFromPage(p)
	return w, h, runs, err
}

// Path writes the bytes to a private temp file on first use and returns its
// path. External tools (the rasterizer) read from it.
func (d *Document) Path() (string, error) {
	d.tmpOnce.Do(func() {
		dir, err := os.MkdirTemp("", "quizproc-*")
		if err != nil {
			d.tmpErr = fmt.Errorf("temp dir: %w", err)
			return
		}
		path := filepath.Join(dir, "doc.pdf")
		if err := os.WriteFile(path, d.data, 0o600); err != nil {
			_ = os.RemoveAll(dir)
			d.tmpErr = fmt.Errorf("write temp pdf: %w", err)
			return
		}
		d.tmpDir, d.tmpPath = dir, path
	})
	return d.tmpPath, d.tmpErr
}

// Close removes the temp file, if one was written.
func (d *Document) Close() error {
	if d.tmpDir == "" {
		return nil
	}
	return os.RemoveAll(d.tmpDir)
}

func checkMagic(data []byte) error {
	if len(data) < minPDFBytes {
		return fmt.Errorf("%w: file too small (%d bytes)", ErrInvalidDocument, len(data))
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		preview := data[:8]
		return fmt.Errorf("%w: not a PDF (starts with %q)", ErrInvalidDocument, preview)
	}
	return nil
}

// openReader parses the xref table. The pdf package panics on some malformed
// files; that is reported as ErrInvalidDocument.
func openReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r = nil
			err = fmt.Errorf("%w: %v", ErrInvalidDocument, rec)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return r, nil
}
