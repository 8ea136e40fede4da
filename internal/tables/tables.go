// Package tables finds grid-aligned runs of lines on a page and turns them
// into cell grids.
package tables

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/layout"
)

// Region is one detected table. Rows always has at least two rows of at
// least two cells.
type Region struct {
	Page  int
	BBox  layout.BBox
	Rows  [][]string
	First int // index of the first consumed line
	Last  int // index of the last consumed line
}

// Config tunes detection. Distances in points unless noted.
type Config struct {
	AnchorTolerance float64 // max drift of a column's left edge
	MaxRowGap       float64 // max baseline distance between rows, multiple of font size
	ModalShare      float64 // share of rows that must have the modal cell count
	MaxMeanCell     float64 // runes; longer cells read as prose
	MaxUnanchored   float64 // share of cells allowed off every shared anchor
}

func DefaultConfig() Config {
	return Config{
		AnchorTolerance: 8,
		MaxRowGap:       2.6,
		ModalShare:      0.6,
		MaxMeanCell:     60,
		MaxUnanchored:   0.25,
	}
}

// Rejection reasons reported through Detector.OnReject.
const (
	RejectDegenerate = "degenerate"
	RejectAmbiguous  = "ambiguous"
)

type Detector struct {
	cfg Config
	// OnReject, when set, is called for every candidate that was discarded.
	OnReject func(page int, reason string)
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect is NewDetector(DefaultConfig()).Detect.
func Detect(page int, lines []layout.Line) ([]Region, map[int]bool) {
	return NewDetector(DefaultConfig()).Detect(page, lines)
}

// Detect scans lines in reading order. consumed holds the indexes of lines
// that belong to an emitted region.
func (d *Detector) Detect(page int, lines []layout.Line) ([]Region, map[int]bool) {
	var regions []Region
	consumed := map[int]bool{}

	for i := 0; i < len(lines); {
		if len(lines[i].Segments) < 2 {
			i++
			continue
		}
		j := i + 1
		for j < len(lines) && len(lines[j].Segments) >= 2 && adjacent(lines[j-1], lines[j], d.cfg.MaxRowGap) {
			j++
		}
		if j-i >= 2 {
			if r, reason := d.build(page, lines, i, j); reason == "" {
				regions = append(regions, r)
				for k := i; k < j; k++ {
					consumed[k] = true
				}
			} else if d.OnReject != nil {
				d.OnReject(page, reason)
			}
		}
		i = j
	}
	return regions, consumed
}

func adjacent(a, b layout.Line, maxGap float64) bool {
	if a.Column != b.Column {
		return false
	}
	size := math.Max(a.FontSize, b.FontSize)
	if size <= 0 {
		size = 10
	}
	return math.Abs(a.BBox.Bottom()-b.BBox.Bottom()) <= maxGap*size
}

var (
	optionCell   = regexp.MustCompile(`^\(?[A-Ha-h][.)]\s`)
	questionCell = regexp.MustCompile(`^(?i:q(?:uestion)?\.?\s*)?\d{1,3}[.)]\s`)
	numericCell  = regexp.MustCompile(`^[$€£]?[-+]?[\d.,]*\d[\d.,]*%?$`)
)

func (d *Detector) build(page int, lines []layout.Line, first, end int) (Region, string) {
	rows := lines[first:end]

	anchors := d.anchors(rows)
	if len(anchors) < 2 {
		return Region{}, RejectDegenerate
	}

	total, unanchored, optionLike, runes := 0, 0, 0, 0
	counts := map[int]int{}
	grid := make([][]string, 0, len(rows))
	for _, ln := range rows {
		cells := make([]string, len(anchors))
		for _, s := range ln.Segments {
			total++
			runes += utf8.RuneCountInString(s.Text)
			if optionCell.MatchString(s.Text+" ") || questionCell.MatchString(s.Text+" ") {
				optionLike++
			}
			k, ok := d.column(anchors, s.X0)
			if !ok {
				unanchored++
			}
			if cells[k] != "" {
				cells[k] += " "
			}
			cells[k] += s.Text
		}
		counts[len(ln.Segments)]++
		grid = append(grid, cells)
	}

	// Two-column option layouts ("A. x    B. y") align like tables.
	if optionLike*2 >= total {
		return Region{}, RejectAmbiguous
	}
	if float64(unanchored) > d.cfg.MaxUnanchored*float64(total) {
		return Region{}, RejectAmbiguous
	}
	if float64(runes)/float64(total) > d.cfg.MaxMeanCell {
		return Region{}, RejectAmbiguous
	}
	modal, modalRows := 0, 0
	for n, c := range counts {
		if c > modalRows || (c == modalRows && n > modal) {
			modal, modalRows = n, c
		}
	}
	if modal < 2 || float64(modalRows) < d.cfg.ModalShare*float64(len(rows)) {
		return Region{}, RejectAmbiguous
	}

	grid = dropEmptyColumns(grid)
	if len(grid) < 2 || len(grid[0]) < 2 {
		return Region{}, RejectDegenerate
	}

	box := layout.BBox{}
	for _, ln := range rows {
		box = box.Union(ln.BBox)
	}
	return Region{Page: page, BBox: box, Rows: grid, First: first, Last: end - 1}, ""
}

// anchors clusters segment left edges and keeps clusters that at least two
// rows share.
func (d *Detector) anchors(rows []layout.Line) []float64 {
	type edge struct {
		x   float64
		row int
	}
	var edges []edge
	for r, ln := range rows {
		for _, s := range ln.Segments {
			edges = append(edges, edge{s.X0, r})
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].x < edges[j].x })

	var out []float64
	for i := 0; i < len(edges); {
		j := i
		sum := 0.0
		rowsSeen := map[int]bool{}
		for j < len(edges) && edges[j].x-edges[i].x <= d.cfg.AnchorTolerance {
			sum += edges[j].x
			rowsSeen[edges[j].row] = true
			j++
		}
		if len(rowsSeen) >= 2 {
			out = append(out, sum/float64(j-i))
		}
		i = j
	}
	return out
}

// column returns the anchor a cell starting at x belongs to: the nearest
// anchor within tolerance, else the last anchor to its left.
func (d *Detector) column(anchors []float64, x float64) (int, bool) {
	best, bestDist := 0, math.Inf(1)
	for k, a := range anchors {
		if dist := math.Abs(a - x); dist < bestDist {
			best, bestDist = k, dist
		}
	}
	if bestDist <= d.cfg.AnchorTolerance {
		return best, true
	}
	k := 0
	for i, a := range anchors {
		if a <= x {
			k = i
		}
	}
	return k, false
}

func dropEmptyColumns(grid [][]string) [][]string {
	if len(grid) == 0 {
		return grid
	}
	keep := make([]bool, len(grid[0]))
	for _, row := range grid {
		for c, cell := range row {
			if strings.TrimSpace(cell) != "" {
				keep[c] = true
			}
		}
	}
	out := make([][]string, len(grid))
	for r, row := range grid {
		for c, cell := range row {
			if keep[c] {
				out[r] = append(out[r], cell)
			}
		}
	}
	return out
}

// IsNumeric reports whether a cell holds a number, amount or percentage.
func IsNumeric(cell string) bool {
	return numericCell.MatchString(strings.TrimSpace(cell))
}
