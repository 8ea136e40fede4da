package format

import (
	"fmt"
	"strings"
)

// Page is the text of one page; Number is 1-indexed.
type Page struct {
	Number int
	Text   string
}

// Pages numbers texts from 1.
func Pages(texts []string) []Page {
	out := make([]Page, len(texts))
	for i, t := range texts {
		out[i] = Page{Number: i + 1, Text: t}
	}
	return out
}

// Combine joins non-empty page texts with sep, optionally prefixing each with
// a "## Page N" header.
func Combine(pages []Page, sep string, includePageNums bool) string {
	var b strings.Builder
	first := true
	for _, p := range pages {
		txt := strings.TrimSpace(p.Text)
		if txt == "" {
			continue
		}
		if !first {
			b.WriteString(sep)
		}
		first = false
		if includePageNums {
			fmt.Fprintf(&b, "## Page %d\n\n", p.Number)
		}
		b.WriteString(txt)
	}
	return strings.TrimSpace(b.String())
}
