package segment

import (
	"regexp"
	"strings"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

var (
	answerLabelRe = regexp.MustCompile(`(?s)^(\(?)([A-Ja-j])\)?([.):,;\-]|\s|$)\s*(.*)$`)
	optExplainRe  = regexp.MustCompile(`\bOption\s+([A-J])\s*[:.)\-]\s*` +
		`|\(?\b([A-J])\)?\s+is\s+(?:the\s+)?(?:correct|incorrect|wrong|right)\b`)
)

// NormalizeAnswer maps the text after an answer marker to an option label.
// It returns the label and any trailing text. When no label can be read the
// trimmed raw text is returned as the answer.
//
//	"B"            -> "B"
//	"(c) because…" -> "C", "because…"
//	"Paris"        -> "A" when option A is "Paris"
func NormalizeAnswer(raw string, opts types.Options) (label, rest string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	if m := answerLabelRe.FindStringSubmatch(raw); m != nil {
		l := strings.ToUpper(m[2])
		rest = strings.TrimSpace(m[4])
		strong := m[1] != "" || (m[3] != "" && strings.TrimSpace(m[3]) != "") || rest == ""
		upper := m[2] == l
		switch {
		case opts.Has(l) && (strong || upper):
			return l, rest
		case strong && (upper || rest == ""):
			// Dangling or option-less letter; kept so the caller can decide.
			return l, rest
		}
	}
	want := trimAnswer(raw)
	for _, o := range opts {
		if strings.EqualFold(trimAnswer(o.Text), want) {
			return o.Label, ""
		}
	}
	return raw, ""
}

func trimAnswer(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".;: ")
}

// OptionExplanations splits an explanation into per-option commentary, e.g.
// "Option B: ..." or "C is incorrect because ...". Labels not among opts are
// ignored. It returns nil when nothing was found.
func OptionExplanations(explanation string, opts types.Options) types.Options {
	ms := optExplainRe.FindAllStringSubmatchIndex(explanation, -1)
	var out types.Options
	for i, m := range ms {
		var label string
		start := m[1]
		if m[2] >= 0 {
			label = explanation[m[2]:m[3]]
		} else {
			label = explanation[m[4]:m[5]]
			start = m[0]
		}
		end := len(explanation)
		if i+1 < len(ms) {
			end = ms[i+1][0]
		}
		if len(opts) > 0 && !opts.Has(label) {
			continue
		}
		text := strings.TrimSpace(explanation[start:end])
		if text == "" {
			continue
		}
		out = out.Set(label, text)
	}
	return out
}

// CountQuestionMarkers estimates how many questions text holds by running
// the full segmenter over its lines.
func CountQuestionMarkers(text string) int {
	lines := strings.Split(text, "\n")
	blocks := make([]Block, 0, len(lines))
	for _, ln := range lines {
		blocks = append(blocks, Block{Text: ln})
	}
	return len(Segment(blocks))
}
