// Package quality decides whether a page's native text layer is usable or
// whether the page should be sent to OCR.
package quality

import (
	"math"
	"strings"
	"unicode"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/layout"
)

// Decision is the text-quality verdict for one page of text.
type Decision struct {
	Quality   float64
	NeedsOCR  bool
	MaybeOCR  bool
	Reasons   []string
	WordCount int
}

// Assessment combines the layout density with the text heuristics.
type Assessment struct {
	Decision Decision
	Density  float64 // non-space chars per square inch
	NeedsOCR bool
}

// Assess routes a page: OCR when the native layer is too sparse for the page
// area or when the text itself looks like extraction garbage. A page with no
// text at all always needs OCR.
func Assess(p layout.Page, minDensity float64, minWords int) Assessment {
	d := Score(p.Text(), minWords)
	a := Assessment{Decision: d, Density: p.Density()}
	a.NeedsOCR = d.NeedsOCR || a.Density < minDensity
	if a.Density < minDensity && !d.NeedsOCR {
		a.Decision.Reasons = append(a.Decision.Reasons, "low_density")
	}
	return a
}

func CountWords(s string) int {
	return len(strings.Fields(s))
}

type features struct {
	words        int
	alpha        float64
	digit        float64
	punct        float64
	space        float64
	garbage      float64
	lines        int
	avgLineLen   float64
	shortLines   float64
	uniqueWords  float64
	repeated     bool
	scrambled    float64
	bullets      float64
	hasEquations bool
}

func extract(clean string) features {
	total := float64(len([]rune(clean)))
	lines := splitLines(clean)
	avg, short := lineStats(lines)
	return features{
		words:        CountWords(clean),
		alpha:        float64(countIf(clean, unicode.IsLetter)) / total,
		digit:        float64(countIf(clean, unicode.IsDigit)) / total,
		punct:        float64(countIf(clean, unicode.IsPunct)) / total,
		space:        float64(countIf(clean, unicode.IsSpace)) / total,
		garbage:      float64(countGarbage(clean)) / total,
		lines:        len(lines),
		avgLineLen:   avg,
		shortLines:   short,
		uniqueWords:  uniqueWordRatio(clean),
		repeated:     hasRepeatedRun(clean, 5),
		scrambled:    singleCharWordRatio(clean),
		bullets:      bulletRatio(lines),
		hasEquations: equationLike(clean),
	}
}

// Score rates plain text from 0 (garbage) to 1 (clean prose). Quiz pages are
// full of short option lines and numbers, so structure softens the
// word-count and alpha penalties.
func Score(text string, minWords int) Decision {
	clean := normalize(text)
	if clean == "" {
		return Decision{NeedsOCR: true, Reasons: []string{"empty_text"}}
	}
	f := extract(clean)
	structured := f.bullets > 0.3 || f.hasEquations

	score := 1.0
	var reasons []string
	penalize := func(reason string, amount float64) {
		score -= amount
		reasons = append(reasons, reason)
	}
	reward := func(reason string, amount float64) {
		score += amount
		reasons = append(reasons, reason)
	}

	if f.words < minWords {
		p := 0.45
		if f.words < minWords/2 {
			p = 0.60
		}
		if structured {
			p *= 0.5
		}
		penalize("low_word_count", p)
	}
	if f.alpha < 0.25 {
		p := 0.35
		if f.alpha < 0.15 {
			p = 0.50
		}
		if f.digit > 0.20 {
			p *= 0.6
		}
		penalize("low_alpha_ratio", p)
	}
	if f.garbage > 0.01 {
		penalize("garbage_chars", math.Min(0.50, f.garbage*50))
	}
	if f.lines > 0 && f.shortLines > 0.75 && f.avgLineLen < 12 && f.alpha < 0.40 {
		penalize("fragmented_lines", 0.25)
	}
	if f.words > 50 && f.uniqueWords < 0.20 {
		penalize("low_unique_words", 0.15)
	}
	if f.repeated {
		penalize("repeated_patterns", 0.20)
	}
	if f.scrambled > 0.30 {
		penalize("scrambled_text", 0.25)
	}
	if f.punct > 0.50 && f.alpha < 0.20 {
		penalize("excessive_punctuation", 0.20)
	}
	if f.space > 0.60 || (f.words > 10 && f.space < 0.05) {
		penalize("abnormal_spacing", 0.15)
	}

	if f.digit > 0.25 && f.alpha > 0.15 && f.words >= minWords/2 {
		reward("numeric_heavy", 0.10)
	}
	if f.alpha > 0.60 && f.words >= minWords && f.uniqueWords > 0.30 {
		reward("good_prose", 0.10)
	}
	if f.bullets > 0.2 || f.hasEquations {
		reward("structured_content", 0.15)
	}
	if f.alpha > 0.40 && f.digit > 0.10 && f.words >= minWords {
		reward("mixed_content", 0.10)
	}

	score = math.Max(0, math.Min(1, score))
	needs := score < 0.50
	return Decision{
		Quality:   score,
		NeedsOCR:  needs,
		MaybeOCR:  !needs && score < 0.70,
		Reasons:   reasons,
		WordCount: f.words,
	}
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	s = strings.Join(lines, "\n")
	for strings.Contains(s, "\n\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}

func splitLines(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

func lineStats(lines []string) (avg, shortRatio float64) {
	if len(lines) == 0 {
		return 0, 0
	}
	short, sum := 0, 0
	for _, ln := range lines {
		l := len([]rune(ln))
		sum += l
		if l < 15 {
			short++
		}
	}
	return float64(sum) / float64(len(lines)), float64(short) / float64(len(lines))
}

func uniqueWordRatio(s string) float64 {
	ws := strings.Fields(strings.ToLower(s))
	if len(ws) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		set[w] = struct{}{}
	}
	return float64(len(set)) / float64(len(ws))
}

// hasRepeatedRun reports n or more identical consecutive runes, e.g. dot leaders.
func hasRepeatedRun(s string, n int) bool {
	count := 0
	var last rune = -1
	for _, r := range s {
		if r == last {
			count++
			if count >= n {
				return true
			}
			continue
		}
		count, last = 1, r
	}
	return false
}

// singleCharWordRatio is high when extraction split words into letters.
func singleCharWordRatio(s string) float64 {
	words := strings.Fields(s)
	if len(words) == 0 {
		return 0
	}
	n := 0
	for _, w := range words {
		if len([]rune(w)) == 1 {
			n++
		}
	}
	return float64(n) / float64(len(words))
}

func countIf(s string, pred func(rune) bool) int {
	n := 0
	for _, r := range s {
		if pred(r) {
			n++
		}
	}
	return n
}

func countGarbage(s string) int {
	return countIf(s, func(r rune) bool {
		return r == '\uFFFD' || (unicode.IsControl(r) && r != '\n' && r != '\t')
	})
}

func bulletRatio(lines []string) float64 {
	if len(lines) == 0 {
		return 0
	}
	n := 0
	for _, line := range lines {
		rs := []rune(line)
		switch {
		case strings.ContainsRune("•◦▪–-", rs[0]):
			n++
		case len(rs) > 2 && (unicode.IsDigit(rs[0]) || unicode.IsLetter(rs[0])) && (rs[1] == '.' || rs[1] == ')'):
			n++
		}
	}
	return float64(n) / float64(len(lines))
}

var mathSymbols = []string{
	"=", "≈", "≠", "±", "×", "÷", "∑", "∫", "∂", "√",
	"α", "β", "γ", "θ", "λ", "π", "σ", "Δ", "Ω",
	"∈", "∉", "⊂", "⊃", "∪", "∩", "∀", "∃",
}

func equationLike(text string) bool {
	distinct := 0
	for _, sym := range mathSymbols {
		if strings.Contains(text, sym) {
			distinct++
			if distinct >= 3 {
				return true
			}
		}
	}
	if len(text) > 100 && strings.Count(text, "=") > 5 {
		return true
	}
	braces := strings.Count(text, "{") + strings.Count(text, "[") + strings.Count(text, "(")
	return len(text) > 100 && braces > 10
}
