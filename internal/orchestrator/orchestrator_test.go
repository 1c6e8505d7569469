package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonicgrid/cuematrix/internal/model"
	"github.com/sonicgrid/cuematrix/internal/tracelog"
)

func TestValidTimeRejectsOutOfRange(t *testing.T) {
	assert.True(t, validTime(5, 100))
	assert.False(t, validTime(-1, 100))
	assert.False(t, validTime(150, 100))
	assert.True(t, validTime(5, 0), "duration 0 means unknown, don't reject")
}

func TestStandardizeFillsDefaults(t *testing.T) {
	out := standardize([]model.CuePoint{{Type: "drop", Time: 10}}, "energy_gap")
	require.Len(t, out, 1)
	assert.Equal(t, "drop", out[0].Name)
	assert.Equal(t, 0.6, out[0].Confidence)
	assert.Equal(t, "energy_gap", out[0].Reason)
	assert.Equal(t, "energy_gap", out[0].Stage)
}

func TestHasTypeAndFirstTimeOf(t *testing.T) {
	cues := []model.CuePoint{{Type: "intro", Time: 2}, {Type: "drop", Time: 40}}
	assert.True(t, hasType(cues, "intro"))
	assert.False(t, hasType(cues, "outro"))
	assert.Equal(t, 2.0, firstTimeOf(cues, "intro"))
	assert.Equal(t, 0.0, firstTimeOf(cues, "outro"))
}

func TestNearestBeatPicksClosest(t *testing.T) {
	beats := []float64{0, 1, 2, 3}
	assert.Equal(t, 2.0, nearestBeat(2.4, beats))
	assert.Equal(t, 5.0, nearestBeat(5, nil))
}

func TestNearestBarSnapsToFourBeatBoundary(t *testing.T) {
	beats := []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5}
	// nearest beat to 0.4 is index 0 (t=0), which is already a bar boundary
	assert.Equal(t, 0.0, nearestBar(0.4, beats, 120))
	// nearest beat to 2.1 is index 4 (t=2.0), index 4 rounds to bar index 4
	assert.Equal(t, 2.0, nearestBar(2.1, beats, 120))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 3.0, clamp(1, 3, 10))
	assert.Equal(t, 10.0, clamp(20, 3, 10))
	assert.Equal(t, 5.0, clamp(5, 3, 10))
}

func TestPercentileMedianOfFour(t *testing.T) {
	assert.InDelta(t, 2.5, percentile([]float64{1, 2, 3, 4}, 50), 1e-9)
	assert.Equal(t, 0.0, percentile(nil, 50))
}

func TestIsDropOutroPair(t *testing.T) {
	assert.True(t, isDropOutroPair("drop", "outro"))
	assert.True(t, isDropOutroPair("outro", "drop"))
	assert.False(t, isDropOutroPair("drop", "chorus"))
}

func TestResolveConflictsPrefersHigherPriority(t *testing.T) {
	cues := []model.CuePoint{
		{Type: "section", Time: 10, Confidence: 0.65},
		{Type: "drop", Time: 10.5, Confidence: 0.6},
	}
	resolved := resolveConflicts(cues, 3.0, tracelog.NewTrace())
	require.Len(t, resolved, 1)
	assert.Equal(t, "drop", resolved[0].Type)
}

func TestResolveConflictsKeepsDropAndOutroApart(t *testing.T) {
	cues := []model.CuePoint{
		{Type: "drop", Time: 100, Confidence: 0.8},
		{Type: "outro", Time: 100.2, Confidence: 0.8},
	}
	resolved := resolveConflicts(cues, 5.0, tracelog.NewTrace())
	require.Len(t, resolved, 2)
	assert.GreaterOrEqual(t, resolved[1].Time-resolved[0].Time, 0.5)
}

func TestDedupAndSpaceKeepsHigherConfidence(t *testing.T) {
	cues := []model.CuePoint{
		{Type: "a", Time: 10, Confidence: 0.5},
		{Type: "b", Time: 11, Confidence: 0.9},
	}
	out := dedupAndSpace(cues, 5.0)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Type)
}

func TestDedupAndSpaceKeepsFarApartCues(t *testing.T) {
	cues := []model.CuePoint{
		{Type: "a", Time: 10, Confidence: 0.5},
		{Type: "b", Time: 50, Confidence: 0.9},
	}
	out := dedupAndSpace(cues, 5.0)
	assert.Len(t, out, 2)
}

func TestRunAddsSmartIntroAndOutroWhenMissing(t *testing.T) {
	track := &model.Track{Duration: 200}
	fb := &model.FeatureBundle{SampleRate: 44100}
	result := Run(Input{
		Track:    track,
		Features: fb,
		Beatgrid: model.Beatgrid{BPM: 120, Beats: beatsAt(200, 120)},
	})
	assert.True(t, hasType(result.Cues, "intro"))
	assert.True(t, hasType(result.Cues, "outro"))
}

func TestRunDiscardsCuesPastTrackDuration(t *testing.T) {
	track := &model.Track{Duration: 60}
	result := Run(Input{
		Track:      track,
		Features:   &model.FeatureBundle{SampleRate: 44100},
		ChorusHook: []model.CuePoint{{Type: "chorus", Time: 500, Confidence: 0.9}},
		Beatgrid:   model.Beatgrid{BPM: 120, Beats: beatsAt(60, 120)},
	})
	for _, c := range result.Cues {
		assert.LessOrEqual(t, c.Time, 60.0)
	}
}

func beatsAt(duration float64, bpm float64) []float64 {
	step := 60.0 / bpm
	var beats []float64
	for t := 0.0; t < duration; t += step {
		beats = append(beats, t)
	}
	return beats
}
