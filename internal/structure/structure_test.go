package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sonicgrid/cuematrix/internal/model"
)

func TestDetectFallsBackWithoutChroma(t *testing.T) {
	segs := Detect(&model.FeatureBundle{Duration: 120})
	assert.Len(t, segs, 3)
	assert.Equal(t, "intro", segs[0].Type)
	assert.Equal(t, "outro", segs[2].Type)
}

func TestDetectFallsBackWithTooFewBeats(t *testing.T) {
	fb := &model.FeatureBundle{
		Chroma512: make([][]float64, 12),
		BeatTimes: []float64{0, 1, 2},
		Duration:  60,
	}
	segs := Detect(fb)
	assert.Len(t, segs, 3)
}

func TestMedianOfOddAndEven(t *testing.T) {
	assert.Equal(t, 2.0, medianOf([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, medianOf([]float64{1, 2, 3, 4}))
	assert.Equal(t, 0.0, medianOf(nil))
}

func TestCosineDistanceIdenticalVectorsIsZero(t *testing.T) {
	a := []float64{1, 2, 3}
	assert.InDelta(t, 0.0, cosineDistance(a, a), 1e-9)
}

func TestCosineDistanceOrthogonalVectorsIsOne(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}
	assert.InDelta(t, 1.0, cosineDistance(a, b), 1e-9)
}

func TestCosineDistanceZeroVectorFallsBackToOne(t *testing.T) {
	assert.Equal(t, 1.0, cosineDistance([]float64{0, 0}, []float64{0, 0}))
}

func TestPadReflectPreservesCenter(t *testing.T) {
	m := [][]float64{{1, 2}, {3, 4}}
	padded := padReflect(m, 1)
	assert.Len(t, padded, 4)
	assert.Equal(t, 1.0, padded[1][1])
	assert.Equal(t, 4.0, padded[2][2])
}

func TestFilterByHeightKeepsOnlyAbove(t *testing.T) {
	env := []float64{0.1, 0.9, 0.4, 0.8}
	out := filterByHeight([]int{0, 1, 2, 3}, env, 0.5)
	assert.Equal(t, []int{1, 3}, out)
}

func TestSortedKeysOrdersAscending(t *testing.T) {
	m := map[int]bool{5: true, 1: true, 3: true}
	assert.Equal(t, []int{1, 3, 5}, sortedKeys(m))
}

func TestGroupByChromaSimilarityGroupsIdenticalVectors(t *testing.T) {
	a := []float64{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	b := []float64{0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	labels, names := groupByChromaSimilarity([][]float64{a, a, b})
	assert.Equal(t, labels[0], labels[1])
	assert.NotEqual(t, labels[0], labels[2])
	assert.Equal(t, []string{"A", "B"}, names)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, round2(1.2345))
	assert.Equal(t, 1.24, round2(1.2358))
}

func TestSyncChromaToBeatsTooFewFramesIsNil(t *testing.T) {
	assert.Nil(t, syncChromaToBeats(make([][]float64, 12), []int{0}, 44100, 512))
}

func TestSyncChromaToBeatsAggregatesByMedian(t *testing.T) {
	chroma := make([][]float64, 12)
	for pc := range chroma {
		chroma[pc] = []float64{1, 2, 3, 100}
	}
	out := syncChromaToBeats(chroma, []int{0, 3}, 44100, 512)
	assert.Len(t, out, 12)
	assert.Equal(t, 1, len(out[0]))
	assert.Equal(t, 2.0, out[0][0])
}

func TestSegmentRMSWithoutFeatureIsZero(t *testing.T) {
	fb := &model.FeatureBundle{SampleRate: 44100}
	assert.Equal(t, 0.0, segmentRMS(fb, 0, 1))
}

func TestFallbackStructureEnforcesMinimumDuration(t *testing.T) {
	segs := fallbackStructure(2.0)
	assert.Equal(t, 10.0, segs[2].End)
}
