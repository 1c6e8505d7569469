package beatstage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sonicgrid/cuematrix/internal/model"
	"github.com/sonicgrid/cuematrix/internal/tempodetect"
)

func beatTimes(n int, interval float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * interval
	}
	return out
}

func TestBuildSynthesizesWhenTooFewBeats(t *testing.T) {
	fb := &model.FeatureBundle{BeatTimes: beatTimes(3, 0.5), Duration: 10}
	bg := Build(fb, tempodetect.Result{BPM: 120})
	assert.True(t, bg.Synthesized)
	assert.Equal(t, 120, bg.BPM)
	assert.NotEmpty(t, bg.Beats)
}

func TestBuildUsesTrackedBeatsWhenEnough(t *testing.T) {
	times := beatTimes(16, 0.5)
	fb := &model.FeatureBundle{BeatTimes: times, BeatFrames: make([]int, 16)}
	bg := Build(fb, tempodetect.Result{BPM: 120})
	assert.False(t, bg.Synthesized)
	assert.Equal(t, times, bg.Beats)
}

func TestSynthesizeFallsBackTo120WhenBPMInvalid(t *testing.T) {
	fb := &model.FeatureBundle{Duration: 4}
	bg := synthesize(fb, tempodetect.Result{BPM: 0})
	assert.Equal(t, 120, bg.BPM)
}

func TestSynthesizeGridSpacingMatchesBPM(t *testing.T) {
	fb := &model.FeatureBundle{Duration: 4}
	bg := synthesize(fb, tempodetect.Result{BPM: 120})
	assert.InDelta(t, 0.5, bg.Beats[1]-bg.Beats[0], 1e-9)
}

func TestMedianOfHandlesEmpty(t *testing.T) {
	assert.Equal(t, 0.0, medianOf(nil))
}

func TestFirstStrongBeatWithoutRMSReturnsFirstBeat(t *testing.T) {
	fb := &model.FeatureBundle{BeatTimes: []float64{1.0, 2.0}, BeatFrames: []int{0, 1}}
	assert.Equal(t, 1.0, firstStrongBeat(fb))
}

func TestFirstStrongBeatNoBeatsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, firstStrongBeat(&model.FeatureBundle{}))
}
