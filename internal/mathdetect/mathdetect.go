// Package mathdetect flags text that carries mathematical notation.
// It prefers missing an expression to flagging prose.
package mathdetect

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

type Result struct {
	HasMath     bool
	Expressions []string
}

var (
	texBlockRes = []*regexp.Regexp{
		regexp.MustCompile(`(?s)\$\$.+?\$\$`),
		regexp.MustCompile(`(?s)\\\(.+?\\\)`),
		regexp.MustCompile(`(?s)\\\[.+?\\\]`),
		regexp.MustCompile(`(?s)\\begin\{(?:equation|align)\*?\}.*?\\end\{(?:equation|align)\*?\}`),
	}
	inlineTexRe = regexp.MustCompile(`\$([^$\n]+?)\$`)
	texSignalRe = regexp.MustCompile(`[\\^_={}]`)
	letterOpRe  = regexp.MustCompile(`[A-Za-z].*[+\-*/<>]|[+\-*/<>].*[A-Za-z]`)

	operand   = `(?:\d+(?:\.\d+)?|\b[A-Za-z]\b)`
	chainRe   = regexp.MustCompile(operand + `(?:\s*[+\-*/^=×÷≤≥≠≈]\s*` + operand + `)+`)
	dateRe    = regexp.MustCompile(`^\d{1,4}/\d{1,2}/\d{2,4}$`)
	strongOps = "+*/^=×÷≤≥≠≈"
)

var symbols = map[rune]bool{}

func init() {
	for _, r := range "√∑∫∂∇∞±×÷≤≥≠≈∏∈∉⊂⊆∪∩⇒∀∃∝" {
		symbols[r] = true
	}
}

// Detect scans text and returns the expressions it found, in order of
// appearance and without repeats.
func Detect(text string) Result {
	var exprs []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			exprs = append(exprs, s)
		}
	}

	rest := text
	for _, re := range texBlockRes {
		for _, m := range re.FindAllString(rest, -1) {
			add(m)
		}
		rest = re.ReplaceAllString(rest, " ")
	}
	for _, m := range inlineTexRe.FindAllStringSubmatch(rest, -1) {
		if looksLikeTeX(m[1]) {
			add(m[0])
		}
	}
	rest = inlineTexRe.ReplaceAllString(rest, " ")

	if words := symbolWords(rest); words != nil {
		for _, w := range words {
			add(w)
		}
	}
	for _, m := range chainRe.FindAllString(rest, -1) {
		if qualifies(m) {
			add(m)
		}
	}
	return Result{HasMath: len(exprs) > 0, Expressions: exprs}
}

// Annotate runs Detect over the stem and every option and records the
// outcome on q.
func Annotate(q *types.Question) {
	parts := make([]string, 0, len(q.Options)+1)
	parts = append(parts, q.Question)
	for _, o := range q.Options {
		parts = append(parts, o.Text)
	}
	r := Detect(strings.Join(parts, "\n"))
	q.ContainsMath = r.HasMath
	q.MathExpressions = r.Expressions
}

// looksLikeTeX separates "$x^2$" from "$5 and $".
func looksLikeTeX(body string) bool {
	if body != strings.TrimSpace(body) {
		return false
	}
	if texSignalRe.MatchString(body) {
		return true
	}
	if len(body) == 1 && unicode.IsLetter(rune(body[0])) {
		return true
	}
	return letterOpRe.MatchString(body)
}

// symbolWords returns the words holding math symbols when at least two
// distinct symbols occur in text.
func symbolWords(text string) []string {
	distinct := map[rune]bool{}
	for _, r := range text {
		if symbols[r] {
			distinct[r] = true
		}
	}
	if len(distinct) < 2 {
		return nil
	}
	var out []string
	for _, w := range strings.Fields(text) {
		if strings.IndexFunc(w, func(r rune) bool { return symbols[r] }) >= 0 {
			out = append(out, w)
		}
	}
	return out
}

// qualifies keeps chains with a real operator and a numeric side, or an
// exponent or equation between letters. "1990-1995", "12/05/2020" and "a-b"
// fail.
func qualifies(chain string) bool {
	if !strings.ContainsAny(chain, strongOps) || dateRe.MatchString(chain) {
		return false
	}
	if strings.ContainsAny(chain, "0123456789") {
		return true
	}
	return strings.ContainsAny(chain, "^=")
}
