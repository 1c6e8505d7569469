// Package beatstage assembles the final Beatgrid (component D) from the
// tempo detector's BPM and the feature bundle's raw beat track, applying
// a first-strong-beat offset and synthesizing a uniform grid when beat
// tracking failed to produce usable output.
package beatstage

import (
	"github.com/sonicgrid/cuematrix/internal/model"
	"github.com/sonicgrid/cuematrix/internal/tempodetect"
)

// minUsableBeats is the fewest beat timestamps BeatTrack must have
// produced before its output is trusted over a synthesized grid.
const minUsableBeats = 8

// Build assembles a Beatgrid from the feature bundle and tempo result.
func Build(fb *model.FeatureBundle, tempo tempodetect.Result) model.Beatgrid {
	if len(fb.BeatTimes) >= minUsableBeats {
		return model.Beatgrid{
			BPM:             tempo.BPM,
			Beats:           fb.BeatTimes,
			FirstStrongBeat: firstStrongBeat(fb),
			Synthesized:     false,
		}
	}
	return synthesize(fb, tempo)
}

// firstStrongBeat picks the earliest tracked beat whose local RMS energy
// is at or above the track's median RMS, treating it as the first audible
// downbeat-aligned hit rather than a quiet leading artifact.
func firstStrongBeat(fb *model.FeatureBundle) float64 {
	if len(fb.BeatTimes) == 0 {
		return 0
	}
	if fb.RMS512 == nil {
		return fb.BeatTimes[0]
	}
	median := medianOf(fb.RMS512)
	hop := 512
	for i, t := range fb.BeatTimes {
		frame := fb.BeatFrames[i]
		idx := frame * 512 / hop
		if idx >= 0 && idx < len(fb.RMS512) && fb.RMS512[idx] >= median {
			return t
		}
	}
	return fb.BeatTimes[0]
}

func medianOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// synthesize builds a uniform beat grid at the detected BPM starting from
// time zero, used when the onset-driven beat tracker could not produce a
// confident sequence (e.g. heavily ambient or rubato material).
func synthesize(fb *model.FeatureBundle, tempo tempodetect.Result) model.Beatgrid {
	bpm := tempo.BPM
	if bpm <= 0 {
		bpm = 120
	}
	interval := 60.0 / float64(bpm)
	var beats []float64
	for t := 0.0; t < fb.Duration; t += interval {
		beats = append(beats, t)
	}
	return model.Beatgrid{
		BPM:             bpm,
		Beats:           beats,
		FirstStrongBeat: 0,
		Synthesized:     true,
	}
}
