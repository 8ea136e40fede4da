package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

func TestClassifyNoHeadings(t *testing.T) {
	qs := []types.Question{{ID: "1"}, {ID: "2"}}
	assert.Nil(t, Classify(qs))
	assert.Empty(t, qs[0].Section)
}

func TestClassifyGroupsAndDefaults(t *testing.T) {
	qs := []types.Question{
		{ID: "1"},
		{ID: "2", Section: "Reading Passage 1"},
		{ID: "3", Section: "Reading Passage 1"},
		{ID: "4", Section: "Part B"},
	}
	got := Classify(qs)
	require.Len(t, got, 3)

	assert.Equal(t, types.Section{Name: DefaultName, QuestionIDs: []string{"1"}, QuestionIndexes: []int{0}, QuestionCount: 1}, got[0])
	assert.Equal(t, []int{1, 2}, got[1].QuestionIndexes)
	assert.Equal(t, 2, got[1].QuestionCount)
	assert.Equal(t, "Part B", got[2].Name)
	assert.Equal(t, DefaultName, qs[0].Section)
}

func TestClassifyEveryQuestionOnce(t *testing.T) {
	qs := []types.Question{
		{ID: "1", Section: "A"}, {ID: "2", Section: "B"}, {ID: "3", Section: "A"},
	}
	got := Classify(qs)
	total := 0
	seen := map[int]bool{}
	for _, s := range got {
		total += s.QuestionCount
		for _, i := range s.QuestionIndexes {
			assert.False(t, seen[i])
			seen[i] = true
		}
	}
	assert.Equal(t, len(qs), total)
	// A heading that repeats later opens a new group.
	assert.Len(t, got, 3)
}
