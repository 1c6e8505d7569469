package energygap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sonicgrid/cuematrix/internal/model"
)

func TestDetectReturnsNilWithoutRequiredFeatures(t *testing.T) {
	assert.Nil(t, Detect(&model.FeatureBundle{}))
}

func TestNormalizeMapsToUnitRange(t *testing.T) {
	out := normalize([]float64{2, 4, 6, 8})
	assert.InDelta(t, 0.0, out[0], 1e-6)
	assert.InDelta(t, 1.0, out[3], 1e-9)
}

func TestNormalizeConstantSeriesIsZero(t *testing.T) {
	out := normalize([]float64{5, 5, 5})
	for _, v := range out {
		assert.Equal(t, 0.0, v)
	}
}

func TestAbsDiffShortSeriesIsNil(t *testing.T) {
	assert.Nil(t, absDiff([]float64{1}))
	assert.Nil(t, absDiff(nil))
}

func TestAbsDiffComputesConsecutiveMagnitudes(t *testing.T) {
	out := absDiff([]float64{1, 3, 0, -2})
	assert.Equal(t, []float64{2, 3, 2}, out)
}

func TestMedianDiffOnShortSeriesIsZero(t *testing.T) {
	assert.Equal(t, 0.0, medianDiff([]float64{1}))
}

func TestMedianDiffEvenLengthAverages(t *testing.T) {
	// diffs: 1,2,3,4 -> median (2+3)/2
	assert.Equal(t, 2.5, medianDiff([]float64{0, 1, 3, 6, 10}))
}

func TestSnapToBeatSnapsForwardWhenPossible(t *testing.T) {
	beats := []float64{0, 1, 2, 3, 4}
	assert.Equal(t, 2.0, snapToBeat(1.5, beats))
}

func TestSnapToBeatSnapsToNearestWhenPastLastBeat(t *testing.T) {
	beats := []float64{0, 1, 2}
	assert.Equal(t, 2.0, snapToBeat(10, beats))
}

func TestSnapToBeatWithNoBeatsReturnsInput(t *testing.T) {
	assert.Equal(t, 5.0, snapToBeat(5, nil))
}

func TestBuildNameSingularAndOrdinal(t *testing.T) {
	assert.Equal(t, "Build", buildName(1))
	assert.Equal(t, "Build 2", buildName(2))
}
