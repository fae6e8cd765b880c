package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSeries(t *testing.T) {
	assert.Equal(t, "1", NormalizeSeries("1/12"))
	assert.Equal(t, "7", NormalizeSeries(" 7 /12"))
	assert.Equal(t, "2.5", NormalizeSeries("2.5/12"))
	assert.Equal(t, "3", NormalizeSeries("3"))
	assert.Equal(t, MissingKey, NormalizeSeries(""))
	assert.Equal(t, MissingKey, NormalizeSeries("0/12"))
	assert.Equal(t, MissingKey, NormalizeSeries("anual"))
}

func TestNormalizeDocument(t *testing.T) {
	assert.Equal(t, "POL-123", NormalizeDocument("POL-123"))
	assert.Equal(t, MissingKey, NormalizeDocument(""))
	assert.Equal(t, MissingKey, NormalizeDocument("   "))
}

func TestDashedDocumentSegment(t *testing.T) {
	assert.Equal(t, "0012345678", DashedDocumentSegment("040-0012345678"))
	assert.Equal(t, "0012345678", DashedDocumentSegment("040-0012345678-9"))
	assert.Equal(t, "0012345678", DashedDocumentSegment("0012345678"))
	assert.Equal(t, MissingKey, DashedDocumentSegment(""))
}

func TestNumericDocumentSegment(t *testing.T) {
	// Zero-padded and plain renditions collapse to the same key.
	assert.Equal(t, "12345678", NumericDocumentSegment("040-0012345678"))
	assert.Equal(t, "12345678", NumericDocumentSegment("12345678"))
	assert.Equal(t, "12345678", NumericDocumentSegment("0012345678"))
	assert.Equal(t, "ABC", NumericDocumentSegment("040-ABC"))
	assert.Equal(t, MissingKey, NumericDocumentSegment(""))
}

func TestNormalizeEndorsement(t *testing.T) {
	assert.Equal(t, "0", NormalizeEndorsement(""))
	assert.Equal(t, "0", NormalizeEndorsement("  "))
	assert.Equal(t, "5", NormalizeEndorsement("5"))
	assert.Equal(t, "005", NormalizeEndorsement("005"))
}

func TestClassPrefix(t *testing.T) {
	assert.Equal(t, "AB ", ClassPrefix(" AB "))
	assert.Equal(t, "", ClassPrefix(""))
	assert.Equal(t, "", ClassPrefix("   "))
}

func TestNumericallyEqual(t *testing.T) {
	assert.True(t, numericallyEqual("5", "5"))
	assert.True(t, numericallyEqual("005", "5"))
	assert.True(t, numericallyEqual("0", " 0 "))
	assert.False(t, numericallyEqual("5", "6"))
	assert.False(t, numericallyEqual("A1", "A2"))
	assert.True(t, numericallyEqual("A1", "A1"))
}

func TestIsTolerable(t *testing.T) {
	assert.True(t, IsTolerable(500, 498, 2))
	assert.True(t, IsTolerable(498, 500, 2))
	assert.False(t, IsTolerable(500, 480, 2))
	assert.True(t, IsTolerable(-100, -99, 2))

	// Two zero amounts have no defined relative difference.
	assert.False(t, IsTolerable(0, 0, 2))
}

func TestIsTolerableSymmetric(t *testing.T) {
	pairs := [][2]float64{
		{500, 498}, {498, 500}, {0, 10}, {10, 0},
		{-50, -49}, {1234.56, 1210}, {0.01, 0.0102},
	}
	for _, p := range pairs {
		assert.Equal(t, IsTolerable(p[0], p[1], 2), IsTolerable(p[1], p[0], 2),
			"IsTolerable must be symmetric for %v", p)
	}
}
