// Package layout turns positioned text runs (from the PDF text layer or from
// OCR) into lines in reading order.
//
// Coordinates follow the PDF convention: points, origin at the bottom-left,
// Y grows upwards.
package layout

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Provenance records where a line's text came from.
type Provenance string

const (
	Native Provenance = "native"
	OCR    Provenance = "ocr"
)

// BBox is a rectangle in PDF points. Y is the bottom edge.
type BBox struct {
	X, Y          float64
	Width, Height float64
}

func (b BBox) Left() float64   { return b.X }
func (b BBox) Right() float64  { return b.X + b.Width }
func (b BBox) Bottom() float64 { return b.Y }
func (b BBox) Top() float64    { return b.Y + b.Height }

// Union returns the smallest box covering b and o. A zero box is treated as empty.
func (b BBox) Union(o BBox) BBox {
	if b == (BBox{}) {
		return o
	}
	if o == (BBox{}) {
		return b
	}
	l := math.Min(b.Left(), o.Left())
	r := math.Max(b.Right(), o.Right())
	bo := math.Min(b.Bottom(), o.Bottom())
	t := math.Max(b.Top(), o.Top())
	return BBox{X: l, Y: bo, Width: r - l, Height: t - bo}
}

// Run is a positioned piece of text: a glyph from the native layer or a word
// from OCR. X/Y is the baseline origin.
type Run struct {
	Text       string
	X, Y       float64
	W          float64
	FontSize   float64
	Confidence float64 // OCR only, 0-100
}

// Segment is a horizontally isolated piece of a line, e.g. one table cell.
type Segment struct {
	Text   string
	X0, X1 float64
}

// Line is one text block in reading order.
type Line struct {
	Text       string
	BBox       BBox
	Segments   []Segment
	FontSize   float64
	Heading    bool
	Source     Provenance
	Confidence float64 // mean OCR word confidence; 0 for native text
	Column     int
}

// Page is the layout of one page.
type Page struct {
	Index   int
	Width   float64
	Height  float64
	Lines   []Line
	Columns int
	Chars   int // non-space runes across all lines
}

// Density returns non-space characters per square inch of page area.
func (p Page) Density() float64 {
	area := (p.Width * p.Height) / (72 * 72)
	if area <= 0 {
		return 0
	}
	return float64(p.Chars) / area
}

// Text joins all lines with newlines.
func (p Page) Text() string {
	var b strings.Builder
	for i, ln := range p.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(ln.Text)
	}
	return b.String()
}

// Config tunes line building. Distances are multiples of the font size unless
// noted otherwise.
type Config struct {
	RowTolerance     float64 // max baseline drift within one row
	WordGap          float64 // gap that inserts a space
	SegmentGap       float64 // gap that starts a new segment
	MinSegmentGapPt  float64 // absolute floor for SegmentGap, points
	GutterClearRatio float64 // share of rows that must be clear at the gutter
	GutterBothRatio  float64 // share of rows with content on both sides
	MinColumnRows    int
	MinColumnText    float64 // mean segment length (runes) required on each side
	HeadingScale     float64
	HeadingMaxWords  int
}

func DefaultConfig() Config {
	return Config{
		RowTolerance:     0.4,
		WordGap:          0.18,
		SegmentGap:       2.2,
		MinSegmentGapPt:  14,
		GutterClearRatio: 0.85,
		GutterBothRatio:  0.3,
		MinColumnRows:    8,
		MinColumnText:    25,
		HeadingScale:     1.25,
		HeadingMaxWords:  12,
	}
}

type row struct {
	y    float64
	runs []Run
	segs []segment
}

type segment struct {
	Segment
	fontSize float64
	y        float64
	conf     []float64
}

// Build groups runs into lines in reading order. Blank input yields a page
// with no lines.
func Build(index int, runs []Run, width, height float64, src Provenance, cfg Config) Page {
	page := Page{Index: index, Width: width, Height: height, Columns: 1}

	clean := make([]Run, 0, len(runs))
	for _, r := range runs {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		if r.FontSize <= 0 {
			r.FontSize = 10
		}
		clean = append(clean, r)
	}
	if len(clean) == 0 {
		return page
	}

	rows := groupRows(clean, cfg)
	for i := range rows {
		rows[i].segs = splitSegments(rows[i], cfg)
	}

	gutter, ok := findGutter(rows, width, cfg)
	if ok {
		page.Columns = 2
		page.Lines = twoColumnOrder(rows, gutter, src)
	} else {
		page.Lines = make([]Line, 0, len(rows))
		for _, r := range rows {
			page.Lines = append(page.Lines, makeLine(r.segs, src, 0))
		}
	}

	markHeadings(page.Lines, cfg)
	for _, ln := range page.Lines {
		page.Chars += countNonSpace(ln.Text)
	}
	return page
}

func groupRows(runs []Run, cfg Config) []row {
	sorted := make([]Run, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows []row
	for _, r := range sorted {
		tol := math.Max(2, cfg.RowTolerance*r.FontSize)
		if n := len(rows); n > 0 && math.Abs(rows[n-1].y-r.Y) <= tol {
			rows[n-1].runs = append(rows[n-1].runs, r)
			continue
		}
		rows = append(rows, row{y: r.Y, runs: []Run{r}})
	}
	for i := range rows {
		sort.SliceStable(rows[i].runs, func(a, b int) bool { return rows[i].runs[a].X < rows[i].runs[b].X })
	}
	return rows
}

func runWidth(r Run) float64 {
	if r.W > 0 {
		return r.W
	}
	return float64(utf8.RuneCountInString(r.Text)) * 0.5 * r.FontSize
}

func splitSegments(r row, cfg Config) []segment {
	var segs []segment
	var cur *segment
	var b strings.Builder
	prevRight := 0.0

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(b.String())
		if cur.Text != "" {
			segs = append(segs, *cur)
		}
		cur = nil
		b.Reset()
	}

	for _, run := range r.runs {
		gap := run.X - prevRight
		segGap := math.Max(cfg.MinSegmentGapPt, cfg.SegmentGap*run.FontSize)
		if cur != nil && gap > segGap {
			flush()
		}
		if cur == nil {
			cur = &segment{Segment: Segment{X0: run.X}, fontSize: run.FontSize, y: run.Y}
		} else if gap > cfg.WordGap*run.FontSize {
			b.WriteByte(' ')
		}
		b.WriteString(run.Text)
		right := run.X + runWidth(run)
		cur.X1 = math.Max(cur.X1, right)
		cur.fontSize = math.Max(cur.fontSize, run.FontSize)
		if run.Confidence > 0 {
			cur.conf = append(cur.conf, run.Confidence)
		}
		prevRight = math.Max(prevRight, right)
	}
	flush()
	return segs
}

// findGutter looks for a vertical band in the middle of the page that almost
// every row leaves empty while many rows have text on both sides of it.
func findGutter(rows []row, width float64, cfg Config) (float64, bool) {
	if width <= 0 || len(rows) < cfg.MinColumnRows {
		return 0, false
	}

	best, bestClear := 0.0, -1
	for x := width * 0.3; x <= width*0.7; x += 2 {
		clear, both := 0, 0
		for _, r := range rows {
			crosses, left, right := false, false, false
			for _, s := range r.segs {
				switch {
				case s.X0 < x && s.X1 > x:
					crosses = true
				case s.X1 <= x:
					left = true
				default:
					right = true
				}
			}
			if !crosses {
				clear++
				if left && right {
					both++
				}
			}
		}
		if float64(clear) < cfg.GutterClearRatio*float64(len(rows)) ||
			float64(both) < cfg.GutterBothRatio*float64(len(rows)) {
			continue
		}
		if clear > bestClear || (clear == bestClear && math.Abs(x-width/2) < math.Abs(best-width/2)) {
			best, bestClear = x, clear
		}
	}
	if bestClear < 0 {
		return 0, false
	}

	// Tables also leave vertical bands; real columns carry prose on both sides.
	var lSum, rSum, lN, rN float64
	for _, r := range rows {
		for _, s := range r.segs {
			n := float64(utf8.RuneCountInString(s.Text))
			if s.X1 <= best {
				lSum += n
				lN++
			} else if s.X0 >= best {
				rSum += n
				rN++
			}
		}
	}
	if lN == 0 || rN == 0 || lSum/lN < cfg.MinColumnText || rSum/rN < cfg.MinColumnText {
		return 0, false
	}
	return best, true
}

// twoColumnOrder emits left-column lines, then right-column lines, flushing
// at every row that spans the gutter (titles, full-width figures).
func twoColumnOrder(rows []row, gutter float64, src Provenance) []Line {
	var out, left, right []Line
	flush := func() {
		out = append(out, left...)
		out = append(out, right...)
		left, right = left[:0:0], right[:0:0]
	}

	for _, r := range rows {
		var ls, rs []segment
		spans := false
		for _, s := range r.segs {
			switch {
			case s.X0 < gutter && s.X1 > gutter:
				spans = true
			case s.X1 <= gutter:
				ls = append(ls, s)
			default:
				rs = append(rs, s)
			}
		}
		if spans {
			flush()
			out = append(out, makeLine(r.segs, src, 0))
			continue
		}
		if len(ls) > 0 {
			left = append(left, makeLine(ls, src, 0))
		}
		if len(rs) > 0 {
			right = append(right, makeLine(rs, src, 1))
		}
	}
	flush()
	return out
}

func makeLine(segs []segment, src Provenance, column int) Line {
	ln := Line{Source: src, Column: column, Segments: make([]Segment, 0, len(segs))}
	texts := make([]string, 0, len(segs))
	var confs []float64
	for _, s := range segs {
		ln.Segments = append(ln.Segments, s.Segment)
		texts = append(texts, s.Text)
		ln.FontSize = math.Max(ln.FontSize, s.fontSize)
		box := BBox{X: s.X0, Y: s.y - 0.2*s.fontSize, Width: s.X1 - s.X0, Height: s.fontSize}
		ln.BBox = ln.BBox.Union(box)
		confs = append(confs, s.conf...)
	}
	ln.Text = strings.Join(texts, " ")
	if len(confs) > 0 {
		sum := 0.0
		for _, c := range confs {
			sum += c
		}
		ln.Confidence = sum / float64(len(confs))
	}
	return ln
}

func markHeadings(lines []Line, cfg Config) {
	if len(lines) < 3 {
		return
	}
	body := bodyFontSize(lines)
	if body <= 0 {
		return
	}
	for i := range lines {
		words := len(strings.Fields(lines[i].Text))
		if lines[i].FontSize >= cfg.HeadingScale*body && words > 0 && words <= cfg.HeadingMaxWords {
			lines[i].Heading = true
		}
	}
}

// bodyFontSize is the character-weighted median font size.
func bodyFontSize(lines []Line) float64 {
	type fw struct{ size, weight float64 }
	var xs []fw
	total := 0.0
	for _, ln := range lines {
		w := float64(countNonSpace(ln.Text))
		if w == 0 || ln.FontSize <= 0 {
			continue
		}
		xs = append(xs, fw{ln.FontSize, w})
		total += w
	}
	if len(xs) == 0 {
		return 0
	}
	sort.Slice(xs, func(i, j int) bool { return xs[i].size < xs[j].size })
	acc := 0.0
	for _, x := range xs {
		acc += x.weight
		if acc >= total/2 {
			return x.size
		}
	}
	return xs[len(xs)-1].size
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
