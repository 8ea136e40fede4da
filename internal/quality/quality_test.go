package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/layout"
)

func TestScore(t *testing.T) {
	cases := []struct {
		name      string
		text      string
		needsOCR  bool
		hasReason string
	}{
		{"empty", "   \n ", true, "empty_text"},
		{
			"quiz page",
			"1. Which planet is known as the red planet?\nA. Venus\nB. Mars\nC. Jupiter\nD. Saturn\nAnswer: B\nExplanation: Iron oxide on the surface gives Mars its colour.",
			false, "",
		},
		{"replacement chars", strings.Repeat("\uFFFD\uFFFD x ", 30), true, "garbage_chars"},
		{"few scattered glyphs", "a b c", true, "scrambled_text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Score(tc.text, 10)
			assert.Equal(t, tc.needsOCR, d.NeedsOCR, "quality %.2f reasons %v", d.Quality, d.Reasons)
			if tc.hasReason != "" {
				assert.Contains(t, d.Reasons, tc.hasReason)
			}
			assert.GreaterOrEqual(t, d.Quality, 0.0)
			assert.LessOrEqual(t, d.Quality, 1.0)
		})
	}
}

func TestAssessBlankPage(t *testing.T) {
	a := Assess(layout.Page{Width: 612, Height: 792}, 0.2, 10)
	assert.True(t, a.NeedsOCR)
	assert.Equal(t, 0.0, a.Density)
}

func TestAssessSparseButCleanText(t *testing.T) {
	p := layout.Page{
		Width: 612, Height: 792,
		Lines: []layout.Line{{Text: "The quick brown fox jumps over the lazy dog near the river bank today"}},
		Chars: 10,
	}
	a := Assess(p, 0.5, 10)
	assert.False(t, a.Decision.NeedsOCR)
	assert.True(t, a.NeedsOCR)
	assert.Contains(t, a.Decision.Reasons, "low_density")
}

func TestAssessDensePage(t *testing.T) {
	line := "Photosynthesis converts light energy into chemical energy stored in glucose molecules."
	var lines []layout.Line
	for i := 0; i < 20; i++ {
		lines = append(lines, layout.Line{Text: line})
	}
	p := layout.Page{Width: 612, Height: 792, Lines: lines, Chars: 20 * len(strings.ReplaceAll(line, " ", ""))}
	a := Assess(p, 0.5, 10)
	assert.False(t, a.NeedsOCR, "density %.2f reasons %v", a.Density, a.Decision.Reasons)
}

func TestHasRepeatedRun(t *testing.T) {
	assert.True(t, hasRepeatedRun("Contents ..... 3", 5))
	assert.False(t, hasRepeatedRun("Contents .... 3", 5))
}
