package document

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/layout"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/pdftest"
)

func fivePages() []byte {
	doc := pdftest.Doc{Title: "Sample Quiz"}
	for i := 0; i < 5; i++ {
		doc.Pages = append(doc.Pages, pdftest.Lines(fmt.Sprintf("content of page %d", i)))
	}
	return doc.Bytes()
}

func pageText(t *testing.T, d *Document, i int) string {
	t.Helper()
	p, err := d.Page(i)
	require.NoError(t, err)
	return layout.Build(p.Index, p.Runs, p.Width, p.Height, layout.Native, layout.DefaultConfig()).Text()
}

func TestLoadWholeDocument(t *testing.T) {
	d, err := Load(fivePages(), nil)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 5, d.TotalPages)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, d.Indexes())
	assert.Len(t, d.ID, 64)
	assert.Equal(t, "content of page 3", pageText(t, d, 3))
}

func TestLoadSinglePageRange(t *testing.T) {
	d, err := Load(fivePages(), &PageRange{Start: 2, End: 2})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, []int{2}, d.Indexes())
	assert.Equal(t, "content of page 2", pageText(t, d, 2))
}

func TestLoadOpenEndedRange(t *testing.T) {
	d, err := Load(fivePages(), &PageRange{Start: 3, End: -1})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, d.Indexes())
}

func TestLoadRangeErrors(t *testing.T) {
	data := fivePages()
	cases := []struct {
		name string
		rng  PageRange
	}{
		{"end past last page", PageRange{Start: 0, End: 5}},
		{"start past last page", PageRange{Start: 7, End: -1}},
		{"negative start", PageRange{Start: -1, End: 2}},
		{"start after end", PageRange{Start: 3, End: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(data, &tc.rng)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrPageRangeOutOfBounds), err.Error())
		})
	}
}

func TestLoadRejectsNonPDF(t *testing.T) {
	cases := map[string][]byte{
		"empty":     nil,
		"too small": []byte("%PDF-1.4\n"),
		"html":      []byte("<html>" + string(make([]byte, 200)) + "</html>"),
		"truncated": fivePages()[:300],
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(data, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestPathIsLazyAndRemovedOnClose(t *testing.T) {
	d, err := Load(fivePages(), nil)
	require.NoError(t, err)

	p1, err := d.Path()
	require.NoError(t, err)
	p2, err := d.Path()
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	raw, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, d.Size, int64(len(raw)))

	require.NoError(t, d.Close())
	_, err = os.Stat(p1)
	assert.True(t, os.IsNotExist(err))
}

func TestBlankPageHasNoRuns(t *testing.T) {
	data := pdftest.Doc{Pages: []pdftest.Page{{}, pdftest.Lines("text")}}.Bytes()
	d, err := Load(data, nil)
	require.NoError(t, err)

	p, err := d.Page(0)
	require.NoError(t, err)
	assert.Empty(t, p.Runs)
	assert.Equal(t, 612.0, p.Width)
	assert.Equal(t, 792.0, p.Height)
}

func TestProbe(t *testing.T) {
	doc := pdftest.Doc{
		Title:   "Practice Set",
		Outline: []string{"Part 1", "Part 2"},
		Pages: []pdftest.Page{
			pdftest.Lines("1. First question?", "A. yes", "B. no"),
			pdftest.Lines("2. Second question?", "A. yes", "B. no"),
		},
	}
	info, err := Probe(doc.Bytes(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, info.TotalPages)
	assert.True(t, info.HasTOC)
	assert.Equal(t, 2, info.SampledPages)
	require.Len(t, info.Sample, 2)
	assert.Contains(t, info.Sample[1], "2. Second question?")
}

func TestProbeWithoutOutline(t *testing.T) {
	info, err := Probe(fivePages(), 3)
	require.NoError(t, err)
	assert.False(t, info.HasTOC)
	assert.Equal(t, 3, info.SampledPages)
	assert.Equal(t, 5, info.TotalPages)
}

func TestPageWithMalformedObject(t *testing.T) {
	doc := pdftest.Doc{Pages: []pdftest.Page{
		pdftest.Lines("1. First question?"),
		pdftest.Lines("2. Second question?"),
	}}
	data := pdftest.Corrupt(doc.Bytes(), pdftest.PageObject(1))

	d, err := Load(data, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalPages)
	assert.Equal(t, "1. First question?", pageText(t, d, 0))

	p, err := d.Page(1)
	require.ErrorIs(t, err, ErrMalformedPage)
	assert.Equal(t, 1, p.Index)
	assert.Empty(t, p.Runs)

	info, err := Probe(data, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, info.TotalPages)
	require.Len(t, info.Sample, 1)
	assert.Contains(t, info.Sample[0], "1. First question?")
}

func TestLoadMalformedPageTree(t *testing.T) {
	data := pdftest.Corrupt(fivePages(), 2)
	_, err := Load(data, nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	_, err = Probe(data, 0)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}
