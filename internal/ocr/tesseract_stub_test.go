//go:build !ocr

package ocr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTesseractStub(t *testing.T) {
	assert.False(t, TesseractEnabled)
	_, err := NewTesseract("eng").Recognize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrOCRNotEnabled)
}
