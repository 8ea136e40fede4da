package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombine(t *testing.T) {
	pages := Pages([]string{"  first  ", "", "third"})

	assert.Equal(t, "first\n\nthird", Combine(pages, "\n\n", false))
	assert.Equal(t, "## Page 1\n\nfirst\n---\n## Page 3\n\nthird", Combine(pages, "\n---\n", true))
	assert.Equal(t, "", Combine(nil, "\n", true))
}
