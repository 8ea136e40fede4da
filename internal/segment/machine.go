package segment

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/tables"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

type state int

const (
	seeking state = iota
	inStem
	inOptions
	inAnswer
	inExplanation
	inRemember
)

type draft struct {
	n       int
	page    int
	section string

	stem     []string
	opts     types.Options
	optLabel string
	optText  []string

	answer      []string
	explanation []string
	remember    []string
	tables      []*tables.Region
}

type machine struct {
	st          state
	cur         *draft
	out         []types.Question
	section     string
	lastOrdinal int
	lastBullet  int
	lineStart   bool
	pending     []*tables.Region
}

// Segment tokenizes blocks and runs the question machine over them.
func Segment(blocks []Block) []types.Question {
	return Run(Tokenize(blocks))
}

// Run consumes a token stream and returns the questions in document order.
// Question.Section is set from the most recent heading; questions before
// the first heading carry an empty section.
func Run(toks []Token) []types.Question {
	m := &machine{lineStart: true}
	for i, t := range toks {
		if t.Kind == SectionHeading && !m.acceptsHeading(t, leadsToQuestion(toks, i)) {
			t.Kind, t.Text = Text, t.Raw
		}
		m.step(t)
	}
	m.finish()
	return m.out
}

func (m *machine) step(t Token) {
	switch t.Kind {
	case SectionHeading:
		m.finish()
		m.section = t.Text
		m.lastOrdinal = 0
		m.st = seeking
	case QuestionStart:
		m.question(t)
	case Option:
		m.option(t)
	case Answer:
		switch m.st {
		case inStem, inOptions:
			m.flushOption()
			m.st = inAnswer
		case inAnswer:
			if len(m.cur.answer) > 0 {
				m.text(t.Raw)
			}
		case inExplanation, inRemember:
			m.text(t.Raw)
		}
	case Explanation:
		switch m.st {
		case inStem, inOptions, inAnswer:
			m.closeAnswer()
			m.st = inExplanation
		case inRemember:
			m.text(t.Raw)
		}
	case Remember:
		switch m.st {
		case inAnswer, inExplanation:
			m.closeAnswer()
			m.st = inRemember
			m.lastBullet = 0
		case inStem, inOptions:
			m.text(t.Raw)
		}
	case Table:
		if m.cur == nil || m.st == seeking {
			m.pending = append(m.pending, t.Table)
		} else {
			m.cur.tables = append(m.cur.tables, t.Table)
		}
	case LineBreak:
		if m.st == inAnswer && len(m.cur.answer) > 0 {
			m.closeAnswer()
			m.st = inExplanation
		}
		m.lineStart = true
		return
	case Text:
		m.text(t.Text)
	}
	m.lineStart = false
}

// acceptsHeading keeps "Section 5 of the act states" inside a wrapped stem.
// Keyword headings count while seeking, when set in a large font, or when
// the next line opens a question.
func (m *machine) acceptsHeading(t Token, leads bool) bool {
	return m.st == seeking || t.Heading || leads
}

func leadsToQuestion(toks []Token, i int) bool {
	for j := i + 1; j < len(toks); j++ {
		switch toks[j].Kind {
		case LineBreak, Table:
			continue
		case QuestionStart:
			return toks[j].LineStart
		}
		return false
	}
	return false
}

// question opens a new question only when the ordinal moves forward, so
// "as in Q.1." inside an explanation stays text. A heading resets the count.
func (m *machine) question(t Token) {
	accept := t.N > m.lastOrdinal
	if m.st == inRemember && !t.Explicit && t.LineStart {
		// A numbered list under "Remember:" continues while it counts up.
		if (m.lastBullet > 0 && t.N == m.lastBullet+1) || (!accept && m.lastBullet == 0) {
			m.lastBullet = t.N
			m.cur.remember = append(m.cur.remember, "")
			return
		}
	}
	if !accept || (!t.Explicit && !t.LineStart) {
		m.text(t.Raw)
		return
	}
	m.finish()
	m.cur = &draft{n: t.N, page: t.Page, section: m.section, tables: m.pending}
	m.pending = nil
	m.lastOrdinal = t.N
	m.st = inStem
}

func (m *machine) option(t Token) {
	switch m.st {
	case seeking:
		return
	case inStem:
		if t.Label != "A" {
			m.text(t.Raw)
			return
		}
		m.st = inOptions
	case inOptions:
		last := m.cur.optLabel
		next := len(last) == 1 && t.Label[0] == last[0]+1
		forward := t.Label > last && (t.LineStart || next)
		repeat := t.LineStart && (m.cur.opts.Has(t.Label) || t.Label == last)
		if !forward && !repeat {
			m.text(t.Raw)
			return
		}
		m.flushOption()
	default:
		m.text(t.Raw)
		return
	}
	m.cur.optLabel = t.Label
	m.cur.optText = nil
	// Reserve the slot so the label keeps its first position when repeated.
	if !m.cur.opts.Has(t.Label) {
		m.cur.opts = m.cur.opts.Set(t.Label, "")
	}
}

func (m *machine) text(s string) {
	if s == "" {
		return
	}
	d := m.cur
	switch m.st {
	case inStem:
		d.stem = append(d.stem, s)
	case inOptions:
		d.optText = append(d.optText, s)
	case inAnswer:
		d.answer = append(d.answer, s)
	case inExplanation:
		d.explanation = append(d.explanation, s)
	case inRemember:
		m.bullet(s)
	}
}

func (m *machine) bullet(s string) {
	d := m.cur
	if m.lineStart {
		if b := strings.TrimLeft(s, "•-*–▪ "); b != s {
			d.remember = append(d.remember, strings.TrimSpace(b))
			return
		}
		r := []rune(s)[0]
		if len(d.remember) == 0 || !unicode.IsLower(r) {
			if n := len(d.remember); n > 0 && d.remember[n-1] == "" {
				d.remember[n-1] = s
				return
			}
			d.remember = append(d.remember, s)
			return
		}
	}
	if len(d.remember) == 0 {
		d.remember = append(d.remember, s)
		return
	}
	last := &d.remember[len(d.remember)-1]
	*last = strings.TrimSpace(*last + " " + s)
}

func (m *machine) flushOption() {
	d := m.cur
	if d == nil || d.optLabel == "" {
		return
	}
	d.opts = d.opts.Set(d.optLabel, join(d.optText))
	d.optLabel = ""
	d.optText = nil
}

// closeAnswer settles the answer line. Text after the label joins the
// explanation.
func (m *machine) closeAnswer() {
	d := m.cur
	m.flushOption()
	if d == nil || len(d.answer) == 0 {
		return
	}
	raw := join(d.answer)
	d.answer = nil
	label, rest := NormalizeAnswer(raw, d.opts)
	if label == "" {
		return
	}
	d.answer = []string{label}
	if rest != "" {
		d.explanation = append([]string{rest}, d.explanation...)
	}
}

func (m *machine) finish() {
	d := m.cur
	if d == nil {
		return
	}
	if m.st == inAnswer {
		m.closeAnswer()
	}
	m.flushOption()
	m.cur = nil
	m.st = seeking

	q := types.Question{
		ID:          strconv.Itoa(d.n),
		Question:    join(d.stem),
		Options:     d.opts,
		Explanation: join(d.explanation),
		Section:     d.section,
		Page:        d.page,
	}
	if q.Options == nil {
		q.Options = types.Options{}
	}
	if len(d.answer) > 0 {
		c := d.answer[0]
		q.Correct = &c
	}
	if q.Explanation != "" {
		q.OptionExplanations = OptionExplanations(q.Explanation, q.Options)
	}
	for _, r := range d.remember {
		if r = strings.TrimSpace(r); r != "" {
			q.ThingsToRemember = append(q.ThingsToRemember, r)
		}
	}
	if len(d.tables) > 0 {
		q.HasTable = true
		var b strings.Builder
		for _, t := range d.tables {
			b.WriteString(t.HTML())
		}
		q.TableHTML = b.String()
	}
	m.out = append(m.out, q)
}

func join(parts []string) string {
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
