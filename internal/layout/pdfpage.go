package layout

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// US Letter, used when a page carries no usable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// RunsFromPage reads the native text layer of p. Malformed content streams
// make the pdf package panic; that is reported as an error.
func RunsFromPage(p pdf.Page) (runs []Run, err error) {
	defer func() {
		if r := recover(); r != nil {
			runs = nil
			err = fmt.Errorf("content stream: %v", r)
		}
	}()

	if p.V.IsNull() {
		return nil, nil
	}
	content := p.Content()
	runs = make([]Run, 0, len(content.Text))
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		runs = append(runs, Run{
			Text:     t.S,
			X:        t.X,
			Y:        t.Y,
			W:        t.W,
			FontSize: t.FontSize,
		})
	}
	return runs, nil
}

// PageSize returns the MediaBox width and height of p, walking up the page
// tree for inherited boxes.
func PageSize(p pdf.Page) (w, h float64) {
	v := p.V
	for depth := 0; depth < 16 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			w = box.Index(2).Float64() - box.Index(0).Float64()
			h = box.Index(3).Float64() - box.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return defaultPageWidth, defaultPageHeight
}
