package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRMSOfSilenceIsZero(t *testing.T) {
	samples := make([]float64, 4096)
	out := RMS(samples, 1024, 512)
	assert.NotEmpty(t, out)
	for _, v := range out {
		assert.Equal(t, 0.0, v)
	}
}

func TestRMSTooShortIsNil(t *testing.T) {
	assert.Nil(t, RMS(make([]float64, 100), 1024, 512))
}

func TestRMSOfConstantSignalMatchesAmplitude(t *testing.T) {
	samples := make([]float64, 2048)
	for i := range samples {
		samples[i] = 1.0
	}
	out := RMS(samples, 1024, 512)
	for _, v := range out {
		assert.InDelta(t, 1.0, v, 1e-9)
	}
}

func TestHannWindowEndpointsAreZero(t *testing.T) {
	w := HannWindow(8)
	assert.InDelta(t, 0.0, w[0], 1e-9)
	assert.InDelta(t, 0.0, w[7], 1e-9)
	assert.Greater(t, w[4], 0.9)
}

func TestHannWindowSizeOneIsUnity(t *testing.T) {
	w := HannWindow(1)
	assert.Equal(t, []float64{1}, w)
}

func TestFramesToTimeAndBack(t *testing.T) {
	times := FramesToTime([]int{0, 10, 20}, 44100, 512)
	assert.InDelta(t, 0.0, times[0], 1e-9)
	assert.InDelta(t, 10*512.0/44100, times[1], 1e-9)

	frames := TimesToFrames(times, 44100, 512)
	assert.Equal(t, []int{0, 10, 20}, frames)
}

func TestFrameToTime(t *testing.T) {
	assert.InDelta(t, 512.0/44100, FrameToTime(1, 44100, 512), 1e-9)
}

func TestResampleUpsamplesPreservesEndpoints(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	out := Resample(x, 2.0)
	assert.Len(t, out, 8)
	assert.InDelta(t, 0.0, out[0], 1e-9)
	assert.InDelta(t, 3.0, out[7], 1e-9)
}

func TestResampleInvalidFactorIsNil(t *testing.T) {
	assert.Nil(t, Resample([]float64{1, 2, 3}, 0))
	assert.Nil(t, Resample(nil, 1.0))
}

func TestGaussianSmooth1DPreservesLength(t *testing.T) {
	x := []float64{0, 10, 0, 10, 0, 10, 0}
	out := GaussianSmooth1D(x, 1.5)
	assert.Len(t, out, len(x))
	// smoothing should reduce the peak-to-trough swing
	assert.Less(t, math.Abs(out[1]-out[2]), math.Abs(x[1]-x[2]))
}

func TestGaussianSmooth1DZeroSigmaIsIdentity(t *testing.T) {
	x := []float64{1, 2, 3}
	out := GaussianSmooth1D(x, 0)
	assert.Equal(t, x, out)
}

func TestSpectralFlatnessTonalIsLow(t *testing.T) {
	// a single dominant bin per frame looks tonal: flatness near 0.
	mag := [][]float64{{10, 0.001, 0.001, 0.001}}
	out := SpectralFlatness(mag)
	assert.Less(t, out[0], 0.3)
}

func TestSpectralFlatnessFlatSpectrumIsHigh(t *testing.T) {
	mag := [][]float64{{1, 1, 1, 1}}
	out := SpectralFlatness(mag)
	assert.InDelta(t, 1.0, out[0], 1e-6)
}

func TestDetectOnsetsFindsIsolatedPeak(t *testing.T) {
	env := []float64{0, 0, 0, 5, 0, 0, 0, 0, 0, 0}
	peaks := DetectOnsets(env, 2, 1.5)
	assert.Contains(t, peaks, 3)
}

func TestDetectOnsetsEmptyEnvelope(t *testing.T) {
	assert.Nil(t, DetectOnsets(nil, 2, 1.5))
}

func TestAutocorrelatePeaksAtZeroLag(t *testing.T) {
	x := []float64{1, -1, 1, -1, 1, -1, 1, -1}
	ac := Autocorrelate(x, 4)
	for lag := 1; lag < len(ac); lag++ {
		assert.LessOrEqual(t, ac[lag], ac[0]+1e-9)
	}
}

func TestOnsetStrengthShortInputIsZeroed(t *testing.T) {
	out := OnsetStrength([][]float64{{1, 2}})
	assert.Equal(t, []float64{0}, out)
}
