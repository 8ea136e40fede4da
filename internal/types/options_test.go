package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsMarshalKeepsOrder(t *testing.T) {
	opts := Options{}.Set("A", "3").Set("B", "4").Set("C", "5").Set("D", "6")

	b, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.Equal(t, `{"A":"3","B":"4","C":"5","D":"6"}`, string(b))
}

func TestOptionsSetOverwritesInPlace(t *testing.T) {
	opts := Options{}.Set("A", "first").Set("B", "b").Set("A", "second")

	assert.Equal(t, []string{"A", "B"}, opts.Labels())
	got, ok := opts.Get("A")
	require.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestOptionsEscapesText(t *testing.T) {
	opts := Options{{Label: "A", Text: `say "hi" <b>`}}
	b, err := json.Marshal(opts)
	require.NoError(t, err)

	var back map[string]string
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, `say "hi" <b>`, back["A"])
}

func TestNilOptionsMarshalAsEmptyObject(t *testing.T) {
	q := Question{Question: "stem only"}
	b, err := json.Marshal(q)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.JSONEq(t, `{}`, string(raw["options"]))
	assert.Equal(t, "null", string(raw["correct"]))
	_, hasExpl := raw["option_explanations"]
	assert.False(t, hasExpl)
}

func TestOptionsUnmarshalPreservesOrder(t *testing.T) {
	var opts Options
	require.NoError(t, json.Unmarshal([]byte(`{"B":"x","A":"y"}`), &opts))
	assert.Equal(t, []string{"B", "A"}, opts.Labels())
	assert.Equal(t, []string{"A", "B"}, opts.Sorted().Labels())

	require.NoError(t, json.Unmarshal([]byte(`null`), &opts))
	assert.Nil(t, opts)

	assert.Error(t, json.Unmarshal([]byte(`["A"]`), &opts))
}
