// Package sections groups questions under the headings they appeared under.
package sections

import "github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"

// DefaultName holds questions that come before the first heading.
const DefaultName = "General"

// Classify groups consecutive questions that share a Section name. It returns
// nil when no question carries a section, so callers can omit sections
// entirely. Questions with an empty name are filed under DefaultName and
// their Section field is updated to match.
func Classify(qs []types.Question) []types.Section {
	found := false
	for _, q := range qs {
		if q.Section != "" {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	var out []types.Section
	for i := range qs {
		if qs[i].Section == "" {
			qs[i].Section = DefaultName
		}
		name := qs[i].Section
		if n := len(out); n == 0 || out[n-1].Name != name {
			out = append(out, types.Section{Name: name})
		}
		s := &out[len(out)-1]
		s.QuestionIDs = append(s.QuestionIDs, qs[i].ID)
		s.QuestionIndexes = append(s.QuestionIndexes, i)
		s.QuestionCount++
	}
	return out
}
