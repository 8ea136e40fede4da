// Package pdftest builds small, valid PDF files with a positioned text layer
// for tests. Text uses the standard Courier font with explicit widths so that
// glyph positions survive text extraction.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Text is one string drawn at (X, Y) in points with the given font size.
type Text struct {
	X, Y, Size float64
	S          string
}

// Page is one page. A page without texts has no text layer at all, which is
// what a scanned page looks like to a text extractor.
type Page struct {
	Texts []Text
}

// Doc describes a whole file.
type Doc struct {
	Pages   []Page
	Title   string
	Author  string
	Outline []string // top-level bookmark titles, all pointing at page 1
}

// Lines lays out lines top-down from y=740 at x=72, 11pt, 16pt leading.
func Lines(lines ...string) Page {
	p := Page{}
	y := 740.0
	for _, ln := range lines {
		p.Texts = append(p.Texts, Text{X: 72, Y: y, Size: 11, S: ln})
		y -= 16
	}
	return p
}

// Row lays out cells on one baseline, starting at x=72 with a fixed column pitch.
func Row(y, pitch float64, cells ...string) []Text {
	out := make([]Text, 0, len(cells))
	for i, c := range cells {
		out = append(out, Text{X: 72 + float64(i)*pitch, Y: y, Size: 10, S: c})
	}
	return out
}

// Bytes serializes the document.
func (d Doc) Bytes() []byte {
	w := &writer{}
	w.buf.WriteString("%PDF-1.4\n%\xE2\xE3\xCF\xD3\n")

	// Fixed object numbers: 1 catalog, 2 pages, 3 font, 4 info, 5 outlines root.
	// Pages take two objects each (page + content) from 6, then outline items.
	nPages := len(d.Pages)
	pageObj := PageObject
	firstItem := 6 + 2*nPages

	catalog := "<< /Type /Catalog /Pages 2 0 R"
	if len(d.Outline) > 0 {
		catalog += " /Outlines 5 0 R"
	}
	w.obj(1, catalog+" >>")

	kids := make([]string, nPages)
	for i := range d.Pages {
		kids[i] = fmt.Sprintf("%d 0 R", pageObj(i))
	}
	w.obj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), nPages))

	widths := strings.TrimSpace(strings.Repeat("600 ", 126-32+1))
	w.obj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Courier /Encoding /WinAnsiEncoding "+
		"/FirstChar 32 /LastChar 126 /Widths ["+widths+"] >>")

	w.obj(4, fmt.Sprintf("<< /Title (%s) /Author (%s) /Producer (pdftest) >>", escape(d.Title), escape(d.Author)))

	if len(d.Outline) > 0 {
		last := firstItem + len(d.Outline) - 1
		w.obj(5, fmt.Sprintf("<< /Type /Outlines /First %d 0 R /Last %d 0 R /Count %d >>", firstItem, last, len(d.Outline)))
	} else {
		w.obj(5, "<< /Type /Outlines /Count 0 >>")
	}

	for i, p := range d.Pages {
		var cs bytes.Buffer
		for _, t := range p.Texts {
			size := t.Size
			if size <= 0 {
				size = 11
			}
			fmt.Fprintf(&cs, "BT /F1 %.2f Tf %.2f %.2f Td (%s) Tj ET\n", size, t.X, t.Y, escape(t.S))
		}
		w.obj(pageObj(i), fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", pageObj(i)+1))
		w.stream(pageObj(i)+1, cs.Bytes())
	}

	for i, title := range d.Outline {
		n := firstItem + i
		entry := fmt.Sprintf("<< /Title (%s) /Parent 5 0 R /Dest [%d 0 R /Fit]", escape(title), pageObj(0))
		if i > 0 {
			entry += fmt.Sprintf(" /Prev %d 0 R", n-1)
		}
		if i < len(d.Outline)-1 {
			entry += fmt.Sprintf(" /Next %d 0 R", n+1)
		}
		w.obj(n, entry+" >>")
	}

	return w.finish(1, 4)
}

// PageObject is the object number of page i (0-indexed) in Bytes output.
func PageObject(i int) int { return 6 + 2*i }

// Corrupt breaks the header of object n in place, keeping every xref offset
// valid. Readers fail when they resolve the object, not when they open the file.
func Corrupt(data []byte, n int) []byte {
	out := bytes.Clone(data)
	hdr := []byte(fmt.Sprintf("\n%d 0 obj\n", n))
	if i := bytes.Index(out, hdr); i >= 0 {
		copy(out[i+len(hdr)-4:], "xbj")
	}
	return out
}

type writer struct {
	buf     bytes.Buffer
	offsets map[int]int
	maxObj  int
}

func (w *writer) mark(n int) {
	if w.offsets == nil {
		w.offsets = map[int]int{}
	}
	w.offsets[n] = w.buf.Len()
	if n > w.maxObj {
		w.maxObj = n
	}
}

func (w *writer) obj(n int, body string) {
	w.mark(n)
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", n, body)
}

func (w *writer) stream(n int, data []byte) {
	w.mark(n)
	fmt.Fprintf(&w.buf, "%d 0 obj\n<< /Length %d >>\nstream\n", n, len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
}

func (w *writer) finish(root, info int) []byte {
	xref := w.buf.Len()
	size := w.maxObj + 1
	fmt.Fprintf(&w.buf, "xref\n0 %d\n", size)
	w.buf.WriteString("0000000000 65535 f \n")
	for n := 1; n < size; n++ {
		off, ok := w.offsets[n]
		if !ok {
			w.buf.WriteString("0000000000 65535 f \n")
			continue
		}
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root %d 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, root, info, xref)
	return w.buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
