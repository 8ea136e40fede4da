package assemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

func ptr(s string) *string { return &s }

func TestAssembleClearsDanglingCorrect(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := New(zap.New(core))

	res := a.Assemble([]types.Question{{
		ID:       "1",
		Question: "Pick one",
		Options:  types.Options{{Label: "B", Text: "two"}, {Label: "A", Text: "one"}},
		Correct:  ptr("E"),
	}})
	require.Len(t, res.Questions, 1)

	q := res.Questions[0]
	assert.Nil(t, q.Correct)
	assert.Equal(t, []string{"A", "B"}, q.Options.Labels(), "labels re-sorted")
	assert.Equal(t, 1, res.Cleared)
	assert.Contains(t, q.ValidationIssues, `correct answer "E" is not among the options`)
	assert.Contains(t, q.ValidationIssues, "no correct answer found")
	assert.Equal(t, 1, logs.FilterMessage("clearing correct answer not among options").Len())
}

func TestAssembleKeepsFreeTextAnswer(t *testing.T) {
	res := New(nil).Assemble([]types.Question{
		{ID: "1", Question: "Capital of France?", Options: types.Options{}, Correct: ptr("Paris")},
		{ID: "2", Question: "Stem only", Options: types.Options{}, Correct: ptr("C")},
	})
	require.Len(t, res.Questions, 2)
	assert.Equal(t, "Paris", res.Questions[0].CorrectLabel())
	assert.Nil(t, res.Questions[1].Correct)
	assert.Empty(t, res.Questions[0].ValidationIssues)
}

func TestAssembleDropsEmptyBlocksAndReindexesSections(t *testing.T) {
	res := New(nil).Assemble([]types.Question{
		{ID: "1", Question: "First?", Section: "Part A"},
		{ID: "2", Section: "Part A"},
		{ID: "3", Question: "Third?", Section: "Part B"},
	})
	require.Len(t, res.Questions, 2)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Sections, 2)
	assert.Equal(t, []int{0}, res.Sections[0].QuestionIndexes)
	assert.Equal(t, []int{1}, res.Sections[1].QuestionIndexes)
	assert.Equal(t, []string{"3"}, res.Sections[1].QuestionIDs)
}

func TestAssembleNoSections(t *testing.T) {
	res := New(nil).Assemble([]types.Question{{ID: "1", Question: "x?"}})
	assert.Nil(t, res.Sections)
}

func TestAssembleValidationIssues(t *testing.T) {
	res := New(nil).Assemble([]types.Question{
		{ID: "1", Question: "Only one", Options: types.Options{{Label: "A", Text: "x"}}},
		{ID: "2", Options: types.Options{{Label: "A", Text: "x"}, {Label: "B", Text: "y"}}, Correct: ptr("A")},
	})
	assert.Equal(t, []string{"question has only 1 option"}, res.Questions[0].ValidationIssues)
	assert.Equal(t, []string{"question text is empty"}, res.Questions[1].ValidationIssues)
}

func TestAssembleAnnotatesMathAndTables(t *testing.T) {
	res := New(nil).Assemble([]types.Question{
		{ID: "1", Question: "What is 2+2?", Options: types.Options{{Label: "A", Text: "4"}, {Label: "B", Text: "5"}}, Correct: ptr("A")},
		{ID: "2", Question: "Who scored most?", HasTable: true, TableHTML: "<table></table>"},
	})
	assert.True(t, res.Questions[0].ContainsMath)
	assert.Equal(t, 1, res.MathFound)
	assert.Equal(t, 1, res.Tables)
}

func TestAssembleUniqueIDs(t *testing.T) {
	res := New(nil).Assemble([]types.Question{
		{ID: "1", Question: "a"}, {ID: "1", Question: "b"}, {Question: "c"},
	})
	assert.Equal(t, "1", res.Questions[0].ID)
	assert.Equal(t, "1-2", res.Questions[1].ID)
	assert.Equal(t, "3", res.Questions[2].ID)
}
