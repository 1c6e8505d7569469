package tempodetect

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sonicgrid/cuematrix/internal/model"
)

func TestDetectFallsBackTo120WithNoFeatures(t *testing.T) {
	result := Detect(&model.FeatureBundle{})
	assert.Equal(t, 120, result.BPM)
}

func TestMedianOfOddAndEvenLengths(t *testing.T) {
	assert.Equal(t, 3.0, medianOf([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, medianOf([]float64{1, 2, 3, 4}))
}

// periodicEnvelope builds a synthetic onset-strength-shaped signal with a
// sharp pulse every periodFrames frames, giving dsp.EstimateTempo and
// dsp.Autocorrelate genuine periodic structure to lock onto instead of a
// flat or random fixture that would pass regardless of the estimator's
// internals.
func periodicEnvelope(bpm float64, sr, hop, frames int) []float64 {
	periodFrames := 60.0 * float64(sr) / float64(hop) / bpm
	out := make([]float64, frames)
	for f := 0; f < frames; f++ {
		phase := math.Mod(float64(f), periodFrames)
		if phase < 1.0 {
			out[f] = 1.0
		} else {
			out[f] = 0.05
		}
	}
	return out
}

func TestOnsetPriorMedianBPMUsesHop512Envelope(t *testing.T) {
	fb := &model.FeatureBundle{
		OnsetEnv512: periodicEnvelope(128, 44100, 512, 2000),
		SampleRate:  44100,
	}
	bpm := onsetPriorMedianBPM(fb)
	assert.Greater(t, bpm, 0.0)
}

func TestOnsetPriorMedianBPMNilWithoutHop512(t *testing.T) {
	fb := &model.FeatureBundle{SampleRate: 44100}
	assert.Equal(t, 0.0, onsetPriorMedianBPM(fb))
}

func TestBandEnergySumsOnlyBinsInRange(t *testing.T) {
	freqBins := []float64{0, 10, 50, 150, 300, 500}
	mag := [][]float64{
		{1, 2, 3, 4, 5, 6},
		{10, 20, 30, 40, 50, 60},
	}
	// Only bins at index 2 (50Hz) and 3 (150Hz) fall in [20, 250].
	out := bandEnergy(mag, freqBins, 20, 250)
	assert.Equal(t, []float64{3 + 4, 30 + 40}, out)
}

func TestSpectralPeriodicityBPMUsesSTFTMagBandSum(t *testing.T) {
	freqBins := make([]float64, 1025)
	for i := range freqBins {
		freqBins[i] = float64(i) * 44100.0 / 2048.0
	}
	env := periodicEnvelope(130, 44100, 512, 2000)
	mag := make([][]float64, len(env))
	for f, v := range env {
		row := make([]float64, len(freqBins))
		for b, hz := range freqBins {
			if hz >= 20 && hz <= 250 {
				row[b] = v
			}
		}
		mag[f] = row
	}
	fb := &model.FeatureBundle{STFTMag: mag, FreqBins: freqBins, SampleRate: 44100}
	bpm := spectralPeriodicityBPM(fb)
	assert.Greater(t, bpm, 0.0)
}

func TestSpectralPeriodicityBPMNilWithoutFreqBins(t *testing.T) {
	fb := &model.FeatureBundle{STFTMag: [][]float64{{1, 2}}, SampleRate: 44100}
	assert.Equal(t, 0.0, spectralPeriodicityBPM(fb))
}

func TestPercussiveNarrowBPMUsesNarrowPrior(t *testing.T) {
	fb := &model.FeatureBundle{
		OnsetEnvPerc512: periodicEnvelope(124, 44100, 512, 2000),
		SampleRate:      44100,
	}
	bpm := percussiveNarrowBPM(fb)
	if bpm > 0 {
		assert.GreaterOrEqual(t, bpm, 90.0)
		assert.LessOrEqual(t, bpm, 150.0)
	}
}

func TestMultiScaleBPMPoolsAllScalesIntoMedian(t *testing.T) {
	env := periodicEnvelope(128, 44100, 256, 4000)
	bpm := multiScaleBPM(env, 44100, 256)
	assert.Greater(t, bpm, 0.0)
}

// TestVoteAndSnapBoostsOctaveAgreement gives three estimates that only
// agree after halving/doubling (86, 87, 172 - the last is double the
// other two's octave) plus a weak, unrelated outlier. The boosted-octave
// vote must still converge on the ~86-87 cluster rather than being pulled
// toward the outlier or the raw unresolved average.
func TestVoteAndSnapBoostsOctaveAgreement(t *testing.T) {
	bpm := voteAndSnap([]float64{86, 87, 172, 188}, []float64{0.45, 0.25, 0.15, 0.15})
	assert.InDelta(t, 87, bpm, 4)
}

func TestVoteAndSnapSingleEstimatePassesThrough(t *testing.T) {
	bpm := voteAndSnap([]float64{128}, []float64{1.0})
	assert.Equal(t, 128, bpm)
}

func TestSnapToCommonSnapsWithinTolerance(t *testing.T) {
	assert.Equal(t, 128, snapToCommon(128.3))
	assert.Equal(t, 140, snapToCommon(139.6))
}

func TestSnapToCommonLeavesFarValuesAlone(t *testing.T) {
	assert.Equal(t, 160, snapToCommon(160.0))
}

func TestCorrectOctaveDoublesSuspiciouslySlowResult(t *testing.T) {
	assert.Equal(t, 130, correctOctave(65))
}

func TestCorrectOctaveHalvesSuspiciouslyFastResult(t *testing.T) {
	assert.Equal(t, 95, correctOctave(190))
}

func TestCorrectOctaveLeavesOrdinaryTempoAlone(t *testing.T) {
	assert.Equal(t, 128, correctOctave(128))
}
