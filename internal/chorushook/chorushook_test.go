package chorushook

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sonicgrid/cuematrix/internal/model"
)

func TestDetectReturnsNilWithoutRequiredFeatures(t *testing.T) {
	assert.Nil(t, Detect(&model.FeatureBundle{}))
}

func TestNormalizeMapsToUnitRange(t *testing.T) {
	out := normalize([]float64{1, 2, 3, 4})
	assert.Equal(t, 0.0, out[0])
	assert.InDelta(t, 1.0, out[3], 1e-9)
}

func TestNormalizeConstantIsZero(t *testing.T) {
	for _, v := range normalize([]float64{4, 4, 4}) {
		assert.Equal(t, 0.0, v)
	}
}

func TestAbsDiffShortInputIsNil(t *testing.T) {
	assert.Nil(t, absDiff([]float64{1}))
}

func TestAllFarEnough(t *testing.T) {
	existing := []float64{10, 20}
	assert.True(t, allFarEnough(30, existing, 8))
	assert.False(t, allFarEnough(25, existing, 8))
}

func TestFilterAboveKeepsOnlyQualifyingPeaks(t *testing.T) {
	x := []float64{0, 5, 1, 8}
	out := filterAbove([]int{1, 2, 3}, x, 5.0)
	assert.Equal(t, []int{1, 3}, out)
}

func TestSnapToBeatSnapsForward(t *testing.T) {
	assert.Equal(t, 4.0, snapToBeat(3.2, []float64{0, 2, 4, 6}))
}

func TestMaxOfIgnoresNegatives(t *testing.T) {
	assert.Equal(t, 5.0, maxOf([]float64{-3, 5, 2}))
}

func TestMedianDiffOfTwoPointsIsTheirGap(t *testing.T) {
	assert.Equal(t, 2.0, medianDiff([]float64{1, 3}))
}
