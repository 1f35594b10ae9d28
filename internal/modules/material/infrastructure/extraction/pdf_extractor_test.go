package extraction

import (
	"errors"
	"testing"

	"EduLink/internal/modules/material/domain/material"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.False(t, IsPDF([]byte("PK\x03\x04")))
	assert.False(t, IsPDF(nil))
}

func TestExtractPDFRejectsNonPDF(t *testing.T) {
	_, err := ExtractPDF([]byte("hello world"))
	require.Error(t, err)

	var corrupt *material.CorruptDocumentError
	assert.True(t, errors.As(err, &corrupt))
	assert.False(t, material.IsTransient(err))
}

func TestExtractPDFRejectsEmpty(t *testing.T) {
	_, err := ExtractPDF(nil)
	require.Error(t, err)

	var corrupt *material.CorruptDocumentError
	assert.True(t, errors.As(err, &corrupt))
}

func TestNormalizeCollapsesBlankLines(t *testing.T) {
	in := "  第一段  \n\n\n\n第二段\n\n第三段  "
	out := Normalize("mat_test", in)
	assert.Equal(t, "第一段\n\n第二段\n\n第三段", out)
}

func TestNormalizeTrimsDocument(t *testing.T) {
	assert.Equal(t, "abc", Normalize("mat_test", "\n\n  abc  \n\n"))
}

func TestAlnumRatio(t *testing.T) {
	assert.InDelta(t, 1.0, alnumRatio("abc123"), 1e-9)
	assert.InDelta(t, 0.5, alnumRatio("ab!?"), 1e-9)
	assert.Zero(t, alnumRatio("   "))
}
