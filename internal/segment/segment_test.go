package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/tables"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

func blocks(page int, text string) []Block {
	var out []Block
	for _, ln := range strings.Split(text, "\n") {
		out = append(out, Block{Page: page, Text: ln})
	}
	return out
}

func kinds(toks []Token) []Kind {
	out := make([]Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeSingleLineQuestion(t *testing.T) {
	toks := Tokenize(blocks(0, "Q.1 What is 2+2? A. 3 B. 4 C. 5 D. 6 Answer: B"))
	assert.Equal(t, []Kind{
		QuestionStart, Text,
		Option, Text, Option, Text, Option, Text, Option, Text,
		Answer, Text, LineBreak,
	}, kinds(toks))
	assert.True(t, toks[0].Explicit)
	assert.Equal(t, 1, toks[0].N)
	assert.Equal(t, "D", toks[8].Label)
}

func TestTokenizeMarkerPositions(t *testing.T) {
	cases := []struct {
		name string
		line string
		want []Kind
	}{
		{"bare number at start", "12. Name the gas", []Kind{QuestionStart, Text, LineBreak}},
		{"bare number mid line is text", "there were 12. of them", []Kind{Text, LineBreak}},
		{"question word needs punctuation mid line", "see Question 4 above", []Kind{Text, LineBreak}},
		{"question word punctuated", "Next, Question 4: why?", []Kind{Text, QuestionStart, Text, LineBreak}},
		{"lower-case option only at line start", "a) first and b) second", []Kind{Option, Text, LineBreak}},
		{"parenthesised option", "(C) copper", []Kind{Option, Text, LineBreak}},
		{"option needs a preceding space", "U.S.A. is big", []Kind{Text, LineBreak}},
		{"section heading", "Section 2: Algebra", []Kind{SectionHeading, LineBreak}},
		{"prose is not a heading", "Part of the cell wall", []Kind{Text, LineBreak}},
		{"explanation", "Explanation: because", []Kind{Explanation, Text, LineBreak}},
		{"remember", "Things to Remember: units", []Kind{Remember, Text, LineBreak}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, kinds(Tokenize(blocks(0, tc.line))))
		})
	}
}

// Single-line question with four options and an answer.
func TestSegmentInlineQuestion(t *testing.T) {
	qs := Segment(blocks(0, "Q.1 What is 2+2? A. 3 B. 4 C. 5 D. 6 Answer: B"))
	require.Len(t, qs, 1)

	q := qs[0]
	assert.Equal(t, "1", q.ID)
	assert.Equal(t, "What is 2+2?", q.Question)
	assert.Equal(t, types.Options{{Label: "A", Text: "3"}, {Label: "B", Text: "4"}, {Label: "C", Text: "5"}, {Label: "D", Text: "6"}}, q.Options)
	require.NotNil(t, q.Correct)
	assert.Equal(t, "B", *q.Correct)
	assert.Empty(t, q.Explanation)
}

// A stem without option markers still becomes a question.
func TestSegmentStemOnly(t *testing.T) {
	qs := Segment(blocks(3, "1. Describe the water cycle in your own words."))
	require.Len(t, qs, 1)
	assert.Equal(t, "Describe the water cycle in your own words.", qs[0].Question)
	assert.Equal(t, types.Options{}, qs[0].Options)
	assert.Nil(t, qs[0].Correct)
	assert.Equal(t, 3, qs[0].Page)
}

func TestSegmentFullBlock(t *testing.T) {
	text := `Chemistry practice set
Name: ________
1. Which gas do plants absorb
during photosynthesis?
A. Oxygen
B. Carbon dioxide
C. Nitrogen
D. Helium
Answer: B. Plants fix carbon.
Option A: oxygen is released, not absorbed.
Things to Remember:
• Light reactions happen in the thylakoid
• The Calvin cycle fixes CO2
2. What is the chemical symbol for gold?
A. Ag
B. Au
Correct answer: Au`
	qs := Segment(blocks(0, text))
	require.Len(t, qs, 2)

	q := qs[0]
	assert.Equal(t, "Which gas do plants absorb during photosynthesis?", q.Question)
	assert.Equal(t, []string{"A", "B", "C", "D"}, q.Options.Labels())
	assert.Equal(t, "Carbon dioxide", mustGet(t, q.Options, "B"))
	assert.Equal(t, "B", q.CorrectLabel())
	assert.Equal(t, "Plants fix carbon. Option A: oxygen is released, not absorbed.", q.Explanation)
	assert.Equal(t, types.Options{{Label: "A", Text: "oxygen is released, not absorbed."}}, q.OptionExplanations)
	assert.Equal(t, []string{"Light reactions happen in the thylakoid", "The Calvin cycle fixes CO2"}, q.ThingsToRemember)

	assert.Equal(t, "What is the chemical symbol for gold?", qs[1].Question)
	assert.Equal(t, "B", qs[1].CorrectLabel(), "answer given as option text")
}

func TestSegmentBareNumberTieBreak(t *testing.T) {
	text := `3. Order these years:
2. 1990 then 1985
A. yes
B. no
4. Next question?`
	qs := Segment(blocks(0, text))
	require.Len(t, qs, 2)
	assert.Equal(t, "Order these years: 2. 1990 then 1985", qs[0].Question)
	assert.Equal(t, "4", qs[1].ID)
}

func TestSegmentNumberedRememberList(t *testing.T) {
	text := `1. First?
A. x
B. y
Answer: A
Remember:
1. bullet one
2. bullet two
continued
2. Second?`
	qs := Segment(blocks(0, text))
	require.Len(t, qs, 2)
	assert.Equal(t, []string{"bullet one", "bullet two continued"}, qs[0].ThingsToRemember)
	assert.Equal(t, "Second?", qs[1].Question)
}

func TestSegmentOptionRules(t *testing.T) {
	t.Run("repeat overwrites in place", func(t *testing.T) {
		qs := Segment(blocks(0, "1. Pick\nA. one\nB. two\nA. uno"))
		require.Len(t, qs, 1)
		assert.Equal(t, types.Options{{Label: "A", Text: "uno"}, {Label: "B", Text: "two"}}, qs[0].Options)
	})
	t.Run("gaps are kept", func(t *testing.T) {
		qs := Segment(blocks(0, "1. Pick\nA. one\nC. three"))
		assert.Equal(t, []string{"A", "C"}, qs[0].Options.Labels())
	})
	t.Run("inline letter that does not continue is text", func(t *testing.T) {
		qs := Segment(blocks(0, "1. Deficiency of which vitamin C. causes scurvy?\nA. lack of vitamin C. in diet\nB. other"))
		require.Len(t, qs, 1)
		assert.Equal(t, "Deficiency of which vitamin C. causes scurvy?", qs[0].Question)
		assert.Equal(t, "lack of vitamin C. in diet", mustGet(t, qs[0].Options, "A"))
	})
	t.Run("lower-case labels", func(t *testing.T) {
		qs := Segment(blocks(0, "1. Pick\na) one\nb) two\nAnswer: (b)"))
		assert.Equal(t, []string{"A", "B"}, qs[0].Options.Labels())
		assert.Equal(t, "B", qs[0].CorrectLabel())
	})
}

func TestSegmentSections(t *testing.T) {
	text := `Section 1
1. a?
2. b?
Section 2
1. c?`
	qs := Segment(blocks(0, text))
	require.Len(t, qs, 3)
	assert.Equal(t, []string{"Section 1", "Section 1", "Section 2"},
		[]string{qs[0].Section, qs[1].Section, qs[2].Section})
}

// An earlier question named inside an explanation is a reference, not a
// new question.
func TestSegmentBackReferenceInExplanation(t *testing.T) {
	cases := []struct {
		name, ref, want string
	}{
		{"unpunctuated", "same method as in Q.1 above, add the numbers.", "same method as in Q.1 above, add the numbers."},
		{"punctuated", "same method as in Q.1. Add the numbers.", "same method as in Q.1. Add the numbers."},
		{"question word", "see Question 1: add the numbers.", "see Question 1: add the numbers."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := "Q.1 What is 1+1?\nA. 1\nB. 2\nAnswer: B\n" +
				"Q.2 What is 2+3?\nA. 5\nB. 6\nAnswer: A\n" +
				"Explanation: " + tc.ref + "\n" +
				"Q.3 What is 3+3?\nA. 6\nB. 7\nAnswer: A"
			qs := Segment(blocks(0, text))
			require.Len(t, qs, 3)
			assert.Equal(t, []string{"1", "2", "3"}, []string{qs[0].ID, qs[1].ID, qs[2].ID})
			assert.Equal(t, tc.want, qs[1].Explanation)
			assert.Equal(t, "What is 3+3?", qs[2].Question)
		})
	}
}

func TestSegmentRepeatedExplicitMarkerNeedsHeading(t *testing.T) {
	qs := Segment(blocks(0, "Question 1: a?\nQuestion 2: b?\nQuestion 1: c?"))
	require.Len(t, qs, 2)
	assert.Equal(t, "b? Question 1: c?", qs[1].Question)

	qs = Segment(blocks(0, "Question 1: a?\nQuestion 2: b?\nSection 2\nQuestion 1: c?"))
	require.Len(t, qs, 3)
	assert.Equal(t, "Section 2", qs[2].Section)
}

func TestSegmentQuestionWithShortAlias(t *testing.T) {
	for _, line := range []string{"Question 3(Q.3) What is 2+2?", "Question 3 (Q3): What is 2+2?"} {
		t.Run(line, func(t *testing.T) {
			toks := Tokenize(blocks(0, line+"\nA. 3\nB. 4\nAnswer: B"))
			assert.Equal(t, QuestionStart, toks[0].Kind)
			assert.Equal(t, Text, toks[1].Kind)

			qs := Segment(blocks(0, line+"\nA. 3\nB. 4\nAnswer: B"))
			require.Len(t, qs, 1)
			assert.Equal(t, "3", qs[0].ID)
			assert.Equal(t, "What is 2+2?", qs[0].Question)
			require.NotNil(t, qs[0].Correct)
			assert.Equal(t, "B", *qs[0].Correct)
		})
	}
}

func TestSegmentKeywordLineInsideStem(t *testing.T) {
	text := `1. Section 5 of the act states
that tenants may appeal.
Section 5 of the act also covers
A. notice periods
B. rent caps
Answer: A
2. Next?`
	qs := Segment(blocks(0, text))
	require.Len(t, qs, 2)
	assert.Equal(t, "Section 5 of the act states that tenants may appeal. Section 5 of the act also covers", qs[0].Question)
	assert.Empty(t, qs[0].Section)
	assert.Equal(t, types.Options{{Label: "A", Text: "notice periods"}, {Label: "B", Text: "rent caps"}}, qs[0].Options)
	assert.Equal(t, "2", qs[1].ID)

	// A keyword line in a large font is still a heading.
	bs := append(blocks(0, "1. a?\nA. x\nB. y"), Block{Page: 0, Text: "Part B", Heading: true})
	bs = append(bs, blocks(0, "some passage text")...)
	qs = Segment(bs)
	require.Len(t, qs, 1)
	assert.Equal(t, types.Options{{Label: "A", Text: "x"}, {Label: "B", Text: "y"}}, qs[0].Options)
}

func TestSegmentLargeFontHeading(t *testing.T) {
	bs := []Block{
		{Page: 0, Text: "Photosynthesis", Heading: true},
		{Page: 0, Text: "1. Where does it happen?"},
		{Page: 1, Text: "Big title mid question", Heading: true},
		{Page: 1, Text: "more stem"},
	}
	qs := Segment(bs)
	require.Len(t, qs, 1)
	assert.Equal(t, "Photosynthesis", qs[0].Section)
	assert.Equal(t, "Where does it happen? Big title mid question more stem", qs[0].Question)
}

func TestSegmentAttachesTables(t *testing.T) {
	region := &tables.Region{Rows: [][]string{{"Name", "Score"}, {"Ann", "90"}}}
	bs := append(blocks(2, "5. Who scored 90?"), Block{Page: 2, Table: region})
	bs = append(bs, blocks(2, "A. Ann\nB. Bob")...)

	qs := Segment(bs)
	require.Len(t, qs, 1)
	assert.True(t, qs[0].HasTable)
	assert.True(t, strings.HasPrefix(qs[0].TableHTML, "<table"))
	assert.Equal(t, []string{"A", "B"}, qs[0].Options.Labels())
}

func TestSegmentTableBeforeQuestionIsHeld(t *testing.T) {
	region := &tables.Region{Rows: [][]string{{"x", "1"}, {"y", "2"}}}
	bs := append([]Block{{Page: 0, Table: region}}, blocks(0, "1. Which is larger?")...)
	qs := Segment(bs)
	require.Len(t, qs, 1)
	assert.True(t, qs[0].HasTable)
}

func TestSegmentSpansPages(t *testing.T) {
	bs := append(blocks(0, "1. Long stem"), blocks(1, "A. x\nB. y\n2. Next")...)
	qs := Segment(bs)
	require.Len(t, qs, 2)
	assert.Equal(t, 0, qs[0].Page)
	assert.Equal(t, 1, qs[1].Page)
}

func TestSegmentNoMarkers(t *testing.T) {
	assert.Empty(t, Segment(blocks(0, "Just a cover page\nwith no questions")))
	assert.Empty(t, Segment(nil))
}

func TestNormalizeAnswer(t *testing.T) {
	opts := types.Options{{Label: "A", Text: "Paris"}, {Label: "B", Text: "London"}, {Label: "C", Text: "Rome"}}
	cases := []struct {
		raw, label, rest string
	}{
		{"B", "B", ""},
		{"b", "B", ""},
		{"(C)", "C", ""},
		{"C. Because it is", "C", "Because it is"},
		{"paris.", "A", ""},
		{"E", "E", ""},
		{"Something else", "Something else", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		label, rest := NormalizeAnswer(tc.raw, opts)
		assert.Equal(t, tc.label, label, tc.raw)
		assert.Equal(t, tc.rest, rest, tc.raw)
	}
}

func TestOptionExplanations(t *testing.T) {
	opts := types.Options{{Label: "A", Text: "x"}, {Label: "B", Text: "y"}, {Label: "C", Text: "z"}}
	got := OptionExplanations("B is correct because y. C is incorrect since z is odd. Option F: ignored", opts)
	assert.Equal(t, types.Options{
		{Label: "B", Text: "B is correct because y."},
		{Label: "C", Text: "C is incorrect since z is odd."},
	}, got)
	assert.Nil(t, OptionExplanations("No per-option commentary here.", opts))
}

func TestCountQuestionMarkers(t *testing.T) {
	assert.Equal(t, 3, CountQuestionMarkers("1. a\nA. x\n2. b\nQ3 c"))
	assert.Equal(t, 0, CountQuestionMarkers("cover page"))
}

func mustGet(t *testing.T, o types.Options, label string) string {
	t.Helper()
	v, ok := o.Get(label)
	require.True(t, ok, label)
	return v
}
