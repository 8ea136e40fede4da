// Package segment turns page-ordered lines into quiz questions.
//
// Lines are first tokenized into structural markers (question numbers,
// option labels, answer and explanation keywords, section headings) and body
// text. A finite state machine then walks the token stream once; markers it
// cannot accept in the current state fall back to plain text.
package segment

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/tables"
)

type Kind int

const (
	Text Kind = iota
	QuestionStart
	Option
	Answer
	Explanation
	Remember
	SectionHeading
	Table
	LineBreak
)

var kindNames = [...]string{"Text", "QuestionStart", "Option", "Answer", "Explanation", "Remember", "SectionHeading", "Table", "LineBreak"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Token is one unit of the stream. Raw is the source text the token was
// read from, used when the machine demotes a marker to text.
type Token struct {
	Kind      Kind
	Raw       string
	Text      string // body text, or the heading name for SectionHeading
	N         int    // question number
	Explicit  bool   // "Question 3", "Q.3", "Q3" rather than a bare "3."
	Label     string // upper-case option label
	LineStart bool
	Heading   bool // Text from a large-font line
	Page      int
	Table     *tables.Region
}

// Block is one line of page text, or one table standing in for the lines it
// replaced, in reading order.
type Block struct {
	Page    int
	Text    string
	Heading bool
	Table   *tables.Region
}

var (
	explicitRe = regexp.MustCompile(`(?i)\b(?:(question)[ \t]+(\d{1,3})|q\.?[ \t]?(\d{1,3}))\b[.:)]?`)
	bareRe     = regexp.MustCompile(`^(\d{1,3})[.)]\s`)
	answerRe   = regexp.MustCompile(`(?i)\b(?:the\s+correct\s+(?:answer|choice|option)\s+is|the\s+answer\s+is|correct\s+answer\s*[:\-]|answer\s*[:\-]|ans\s*[.:\-]|correct\s*:)\s*:?`)
	explainRe  = regexp.MustCompile(`(?i)\b(?:explanation|solution|rationale)\s*[:\-]`)
	rememberRe = regexp.MustCompile(`(?i)\b(?:things\s+to\s+remember|key\s+points?|remember|note)\s*[:\-]`)
	sectionRe  = regexp.MustCompile(`^(?:Section|SECTION|Reading|READING|Passage|PASSAGE|Part|PART|Chapter|CHAPTER|Topic|TOPIC|Unit|UNIT)` +
		`(?:\s+(?:Passage|PASSAGE|Comprehension|COMPREHENSION))?` +
		`(?:\s*(?:\d+|[IVXLC]+|[A-Z])\b|\s*[:\-]\s*\S)`)

	// "(Q.3)" right after "Question 3" restates the same marker.
	aliasRe = regexp.MustCompile(`^[ \t]*\([ \t]*[Qq]\.?[ \t]?(\d{1,3})[ \t]*\)[.:]?`)
)

const maxHeadingWords = 12

// Tokenize converts blocks to tokens. Every text block ends with a LineBreak.
func Tokenize(blocks []Block) []Token {
	var out []Token
	for _, b := range blocks {
		if b.Table != nil {
			out = append(out, Token{Kind: Table, Page: b.Page, Table: b.Table, LineStart: true})
			continue
		}
		line := strings.TrimSpace(b.Text)
		if line == "" {
			continue
		}
		for _, t := range tokenizeLine(line, b.Heading) {
			t.Page = b.Page
			out = append(out, t)
		}
		out = append(out, Token{Kind: LineBreak, Page: b.Page})
	}
	promoteHeadings(out)
	return out
}

type span struct {
	start, end int
	tok        Token
}

func tokenizeLine(line string, heading bool) []Token {
	if sectionRe.MatchString(line) && len(strings.Fields(line)) <= maxHeadingWords {
		name := strings.TrimRight(line, " :.-")
		return []Token{{Kind: SectionHeading, Raw: line, Text: name, LineStart: true, Heading: heading}}
	}

	var spans []span
	covered := 0
	for _, m := range explicitRe.FindAllStringSubmatchIndex(line, -1) {
		if m[0] < covered {
			continue
		}
		numStart, numEnd := m[4], m[5]
		if m[2] < 0 {
			numStart, numEnd = m[6], m[7]
		}
		n, _ := strconv.Atoi(line[numStart:numEnd])
		end := m[1]
		if m[2] >= 0 {
			if a := aliasRe.FindStringSubmatchIndex(line[end:]); a != nil {
				if an, _ := strconv.Atoi(line[end+a[2] : end+a[3]]); an == n {
					end += a[1]
				}
			}
		}
		// Mid-line markers ("see Q.1 above") only count when punctuated.
		if m[0] > 0 && !strings.ContainsAny(line[end-1:end], ".:)") {
			continue
		}
		covered = end
		spans = append(spans, span{m[0], end, Token{Kind: QuestionStart, N: n, Explicit: true}})
	}
	if m := bareRe.FindStringSubmatchIndex(line); m != nil {
		n, _ := strconv.Atoi(line[m[2]:m[3]])
		spans = append(spans, span{m[0], m[1] - 1, Token{Kind: QuestionStart, N: n}})
	}
	for _, m := range answerRe.FindAllStringIndex(line, -1) {
		spans = append(spans, span{m[0], m[1], Token{Kind: Answer}})
	}
	for _, m := range explainRe.FindAllStringIndex(line, -1) {
		spans = append(spans, span{m[0], m[1], Token{Kind: Explanation}})
	}
	for _, m := range rememberRe.FindAllStringIndex(line, -1) {
		spans = append(spans, span{m[0], m[1], Token{Kind: Remember}})
	}
	spans = append(spans, optionSpans(line)...)

	// Earliest wins; on equal starts the earlier-collected kind wins.
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var out []Token
	pos := 0
	emitText := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, Token{Kind: Text, Raw: s, Text: s, LineStart: len(out) == 0, Heading: heading})
		}
	}
	for _, s := range spans {
		if s.start < pos {
			continue
		}
		emitText(line[pos:s.start])
		t := s.tok
		t.Raw = strings.TrimSpace(line[s.start:s.end])
		t.LineStart = s.start == 0
		out = append(out, t)
		pos = s.end
	}
	emitText(line[pos:])
	return out
}

// optionSpans finds "A." "B)" "(C)" after whitespace, and lower-case
// "a." "a)" "(a)" at the start of the line.
func optionSpans(line string) []span {
	var out []span
	isSpace := func(b byte) bool { return b == ' ' || b == '\t' }
	for i := 0; i < len(line); i++ {
		if i > 0 && !isSpace(line[i-1]) {
			continue
		}
		var label byte
		var end int
		switch {
		case line[i] == '(' && i+2 < len(line) && line[i+2] == ')' && isLabel(line[i+1], i == 0):
			label, end = line[i+1], i+3
			if end < len(line) && !isSpace(line[end]) {
				continue
			}
		case i+2 < len(line) && isLabel(line[i], i == 0) && (line[i+1] == '.' || line[i+1] == ')') && isSpace(line[i+2]):
			label, end = line[i], i+2
		default:
			continue
		}
		if label >= 'a' {
			label -= 'a' - 'A'
		}
		out = append(out, span{i, end, Token{Kind: Option, Label: string(label)}})
	}
	return out
}

func isLabel(b byte, lineStart bool) bool {
	if b >= 'A' && b <= 'J' {
		return true
	}
	return lineStart && b >= 'a' && b <= 'j'
}

// promoteHeadings turns a large-font text line that is directly followed by
// a question start into a section heading.
func promoteHeadings(toks []Token) {
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.Kind != Text || !t.Heading || !t.LineStart {
			continue
		}
		// the heading must be the whole line
		if i+1 >= len(toks) || toks[i+1].Kind != LineBreak {
			continue
		}
		if i+2 < len(toks) && toks[i+2].Kind == QuestionStart && toks[i+2].LineStart &&
			len(strings.Fields(t.Text)) <= maxHeadingWords {
			toks[i].Kind = SectionHeading
			toks[i].Text = strings.TrimRight(t.Text, " :.-")
		}
	}
}
