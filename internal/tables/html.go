package tables

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTML renders the grid as a table element. Cell text is escaped by the
// renderer. The first row becomes a header when none of its cells is numeric
// and it either shouts (an all-caps cell) or sits above numeric data.
func (r Region) HTML() string {
	if len(r.Rows) == 0 {
		return ""
	}
	table := element(atom.Table,
		html.Attribute{Key: "class", Val: "quiz-table"},
		html.Attribute{Key: "border", Val: "1"},
	)

	body := r.Rows
	if hasHeader(r.Rows) {
		thead := element(atom.Thead)
		thead.AppendChild(row(r.Rows[0], atom.Th))
		table.AppendChild(thead)
		body = r.Rows[1:]
	}
	tbody := element(atom.Tbody)
	for _, cells := range body {
		tbody.AppendChild(row(cells, atom.Td))
	}
	table.AppendChild(tbody)

	var buf bytes.Buffer
	if err := html.Render(&buf, table); err != nil {
		return ""
	}
	return buf.String()
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func row(cells []string, cellAtom atom.Atom) *html.Node {
	tr := element(atom.Tr)
	for _, c := range cells {
		var cell *html.Node
		if cellAtom == atom.Td && IsNumeric(c) {
			cell = element(cellAtom, html.Attribute{Key: "align", Val: "right"})
		} else {
			cell = element(cellAtom)
		}
		cell.AppendChild(&html.Node{Type: html.TextNode, Data: c})
		tr.AppendChild(cell)
	}
	return tr
}

func hasHeader(rows [][]string) bool {
	if len(rows) < 2 {
		return false
	}
	shouts := false
	for _, c := range rows[0] {
		if IsNumeric(c) {
			return false
		}
		if isUpper(c) {
			shouts = true
		}
	}
	if shouts {
		return true
	}
	for _, r := range rows[1:] {
		for _, c := range r {
			if IsNumeric(c) {
				return true
			}
		}
	}
	return false
}

func isUpper(s string) bool {
	letters := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters && strings.TrimSpace(s) != ""
}
