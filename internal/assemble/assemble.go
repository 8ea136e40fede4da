// Package assemble turns raw segmenter output into the questions returned to
// callers: it enforces answer consistency, annotates math and rebuilds the
// section index.
package assemble

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/mathdetect"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/metrics"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/sections"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

type Result struct {
	Questions []types.Question
	Sections  []types.Section
	Dropped   int // empty blocks removed
	Cleared   int // dangling correct answers removed
	MathFound int // questions containing math
	Tables    int // questions with a table attached
}

type Assembler struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{log: log}
}

// Assemble validates qs in order and returns the final list. The input slice
// is not modified.
func (a *Assembler) Assemble(qs []types.Question) Result {
	var res Result
	ids := map[string]int{}
	out := make([]types.Question, 0, len(qs))

	for _, q := range qs {
		if empty(q) {
			res.Dropped++
			metrics.Anomalies.WithLabelValues(metrics.AnomalyEmptyBlock).Inc()
			a.log.Debug("dropping empty question block", zap.String("id", q.ID), zap.Int("page", q.Page))
			continue
		}
		q.Options = q.Options.Sorted()
		q.ValidationIssues = nil

		if c := q.Correct; c != nil && dangling(*c, q.Options) {
			a.log.Warn("clearing correct answer not among options",
				zap.String("id", q.ID),
				zap.Int("page", q.Page),
				zap.String("correct", *c),
				zap.Strings("labels", q.Options.Labels()),
			)
			metrics.Anomalies.WithLabelValues(metrics.AnomalyDanglingCorrect).Inc()
			q.ValidationIssues = append(q.ValidationIssues, fmt.Sprintf("correct answer %q is not among the options", *c))
			q.Correct = nil
			res.Cleared++
		}
		q.ValidationIssues = append(q.ValidationIssues, issues(q)...)

		mathdetect.Annotate(&q)
		if q.ContainsMath {
			res.MathFound++
		}
		if q.HasTable {
			res.Tables++
		}

		q.ID = uniqueID(ids, q.ID, len(out)+1)
		out = append(out, q)
	}

	res.Questions = out
	res.Sections = sections.Classify(res.Questions)
	return res
}

func empty(q types.Question) bool {
	return strings.TrimSpace(q.Question) == "" &&
		len(q.Options) == 0 &&
		q.Correct == nil &&
		strings.TrimSpace(q.Explanation) == "" &&
		!q.HasTable
}

// dangling reports an answer that cannot be resolved against the options. A
// free-text answer to a question without options is kept; a bare label is not.
func dangling(correct string, opts types.Options) bool {
	if len(opts) > 0 {
		return !opts.Has(correct)
	}
	return len(correct) == 1 && correct[0] >= 'A' && correct[0] <= 'J'
}

func issues(q types.Question) []string {
	var out []string
	if strings.TrimSpace(q.Question) == "" {
		out = append(out, "question text is empty")
	}
	switch n := len(q.Options); {
	case n == 1:
		out = append(out, "question has only 1 option")
	case n >= 2 && q.Correct == nil:
		out = append(out, "no correct answer found")
	}
	return out
}

func uniqueID(seen map[string]int, id string, ordinal int) string {
	if id == "" {
		id = strconv.Itoa(ordinal)
	}
	seen[id]++
	if n := seen[id]; n > 1 {
		return id + "-" + strconv.Itoa(n)
	}
	return id
}
