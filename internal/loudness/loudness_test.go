package loudness

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func silence(n int) []float64 {
	return make([]float64, n)
}

func fullScaleSine(n, sr int, freq float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sr))
	}
	return out
}

func TestIntegratedOnSilenceIsNegativeInfinity(t *testing.T) {
	lufs, curve, times := Integrated(silence(44100*2), 44100)
	assert.True(t, math.IsInf(lufs, -1))
	assert.Nil(t, curve)
	assert.Nil(t, times)
}

func TestIntegratedOnShortSignalIsNegativeInfinity(t *testing.T) {
	lufs, _, _ := Integrated(fullScaleSine(100, 44100, 1000), 44100)
	assert.True(t, math.IsInf(lufs, -1))
}

func TestIntegratedLouderSignalScoresHigher(t *testing.T) {
	sr := 44100
	quiet := make([]float64, sr*3)
	loud := fullScaleSine(sr*3, sr, 1000)
	for i, v := range loud {
		quiet[i] = v * 0.1
	}
	quietLUFS, _, _ := Integrated(quiet, sr)
	loudLUFS, _, _ := Integrated(loud, sr)
	assert.Greater(t, loudLUFS, quietLUFS)
}

func TestIntegratedProducesACurveAlignedWithTimes(t *testing.T) {
	sr := 44100
	samples := fullScaleSine(sr*3, sr, 1000)
	_, curve, times := Integrated(samples, sr)
	if assert.NotEmpty(t, curve) {
		assert.Equal(t, len(curve), len(times))
		assert.True(t, times[0] == 0 || times[0] >= 0)
	}
}

func TestGainToTargetIsZeroForSilentTrack(t *testing.T) {
	assert.Equal(t, 0.0, GainToTarget(math.Inf(-1), -14))
}

func TestGainToTargetBringsTrackToTarget(t *testing.T) {
	gain := GainToTarget(-20, -14)
	assert.InDelta(t, 6.0, gain, 1e-9)
}

func TestWeightPreservesSampleCount(t *testing.T) {
	samples := fullScaleSine(1000, 44100, 440)
	weighted := Weight(samples, 44100)
	assert.Len(t, weighted, len(samples))
}
