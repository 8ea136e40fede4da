package mathdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

func TestDetectPositive(t *testing.T) {
	cases := []struct {
		name, text, want string
	}{
		{"arithmetic", "What is 2+2?", "2+2"},
		{"equation", "Solve for x = 5 in the system", "x = 5"},
		{"exponent between letters", "Expand a^b carefully", "a^b"},
		{"display tex", "Evaluate $$\\int_0^1 x dx$$ now", "$$\\int_0^1 x dx$$"},
		{"inline tex", "Let $x^2$ be positive", "$x^2$"},
		{"paren tex", "Given \\(a+b\\) find", "\\(a+b\\)"},
		{"environment", "\\begin{equation}E=mc^2\\end{equation}", "\\begin{equation}E=mc^2\\end{equation}"},
		{"symbols", "If x ≤ y and y ≠ 0", "≤"},
		{"multiplication sign", "Compute 6 × 7", "6 × 7"},
		{"fraction", "What is 3/4 of 12?", "3/4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Detect(tc.text)
			assert.True(t, r.HasMath)
			assert.Contains(t, r.Expressions, tc.want)
		})
	}
}

func TestDetectNegative(t *testing.T) {
	for _, text := range []string{
		"Which city is the capital of France?",
		"It cost $5 and $10 at the shop",
		"The war lasted from 1939-1945.",
		"The treaty was signed on 12/05/2020.",
		"Born 1/2/1999 in Leeds",
		"Pick a or b",
		"Choose either A - B or C",
		"",
	} {
		r := Detect(text)
		assert.False(t, r.HasMath, text)
		assert.Empty(t, r.Expressions, text)
	}
}

func TestDetectSingleSymbolIsNotEnough(t *testing.T) {
	assert.False(t, Detect("Temperatures ≥ freezing").HasMath)
}

func TestDetectDeduplicates(t *testing.T) {
	r := Detect("2+2 and again 2+2")
	assert.Equal(t, []string{"2+2"}, r.Expressions)
}

func TestAnnotateCoversOptions(t *testing.T) {
	q := types.Question{
		Question: "Which value is the answer?",
		Options:  types.Options{{Label: "A", Text: "3"}, {Label: "B", Text: "x = 4"}},
	}
	Annotate(&q)
	assert.True(t, q.ContainsMath)
	assert.Equal(t, []string{"x = 4"}, q.MathExpressions)

	plain := types.Question{Question: "Name a colour", Options: types.Options{{Label: "A", Text: "red"}}}
	Annotate(&plain)
	assert.False(t, plain.ContainsMath)
	assert.Nil(t, plain.MathExpressions)
}
