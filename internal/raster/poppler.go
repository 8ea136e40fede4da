// Package raster renders single PDF pages to PNG with poppler's pdftoppm.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var ErrPopplerMissing = errors.New("pdftoppm not found in PATH")

// Rasterizer renders one 0-indexed page of the PDF at path.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error)
}

type Poppler struct {
	Binary  string        // defaults to "pdftoppm"
	Timeout time.Duration // per page; 0 means the caller's context only
}

func NewPoppler(timeout time.Duration) *Poppler {
	return &Poppler{Binary: "pdftoppm", Timeout: timeout}
}

// Available reports whether the poppler binary can be found.
func (p *Poppler) Available() bool {
	_, err := exec.LookPath(p.binary())
	return err == nil
}

func (p *Poppler) binary() string {
	if p.Binary == "" {
		return "pdftoppm"
	}
	return p.Binary
}

func (p *Poppler) Rasterize(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error) {
	if dpi <= 0 {
		return nil, fmt.Errorf("raster: invalid dpi %d", dpi)
	}
	bin, err := exec.LookPath(p.binary())
	if err != nil {
		return nil, ErrPopplerMissing
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp("", "quizproc-raster-*")
	if err != nil {
		return nil, fmt.Errorf("raster temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(page + 1)
	cmd := exec.CommandContext(ctx, bin,
		"-png",
		"-singlefile",
		"-r", strconv.Itoa(dpi),
		"-f", n,
		"-l", n,
		pdfPath,
		prefix,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("pdftoppm page %d: %w", page, ctxErr)
		}
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}

	png, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: no output: %w", page, err)
	}
	return png, nil
}
