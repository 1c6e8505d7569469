package energyprofile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonicgrid/cuematrix/internal/model"
)

func TestLinearToDBFloorsNearSilence(t *testing.T) {
	assert.Equal(t, -120.0, linearToDB(0))
	assert.InDelta(t, 0.0, linearToDB(1), 1e-9)
}

func TestToEnergyScaleMapsToOneToTen(t *testing.T) {
	curve, times := toEnergyScale([]float64{0, 0.5, 1.0}, 44100, 512)
	require.Len(t, curve, 3)
	assert.InDelta(t, 1.0, curve[0], 1e-9)
	assert.InDelta(t, 10.0, curve[2], 1e-9)
	assert.Len(t, times, 3)
}

func TestToEnergyScaleFlatSeriesIsFloor(t *testing.T) {
	curve, _ := toEnergyScale([]float64{0, 0, 0}, 44100, 512)
	for _, v := range curve {
		assert.Equal(t, 1.0, v)
	}
}

func TestNearestIndexPicksClosestTime(t *testing.T) {
	times := []float64{0, 1, 2, 3}
	assert.Equal(t, 2, nearestIndex(times, 2.1))
}

func TestCueEnergyLookupEmptyCurveIsNil(t *testing.T) {
	assert.Nil(t, cueEnergyLookup(nil, nil, nil))
}

func TestBuildWithoutRMSOnSilenceLeavesLUFSUnset(t *testing.T) {
	track := &model.Track{PCM: make([]float64, 44100*3), SampleRate: 44100, Duration: 3}
	profile := Build(track, &model.FeatureBundle{}, nil)
	assert.Nil(t, profile.Curve)
	// silence never clears the absolute gate, so LUFS stays unset
	assert.Nil(t, profile.IntegratedLUFS)
}

func TestAudioStatsOnSilence(t *testing.T) {
	track := &model.Track{PCM: make([]float64, 1000), SampleRate: 44100}
	stats := AudioStats(track)
	assert.Equal(t, -120.0, stats.PeakDBFS)
	assert.Equal(t, -120.0, stats.RMSDBFS)
	assert.Nil(t, stats.LUFS)
}

func TestAudioStatsOnFullScaleSignal(t *testing.T) {
	pcm := make([]float64, 44100)
	for i := range pcm {
		pcm[i] = math.Sin(2 * math.Pi * 1000 * float64(i) / 44100)
	}
	track := &model.Track{PCM: pcm, SampleRate: 44100}
	stats := AudioStats(track)
	assert.InDelta(t, 0.0, stats.PeakDBFS, 0.5)
}
