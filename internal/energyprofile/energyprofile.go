// Package energyprofile implements the Energy Profile stage (component
// H): a smoothed 1-10 energy curve over time derived from RMS, per-cue
// energy lookups for the final cue list, and the integrated/curve LUFS
// readings from internal/loudness. This package centralizes the
// rms-to-1-10 mapping (also used inline by internal/structure) into one
// pass over the feature bundle.
package energyprofile

import (
	"fmt"
	"math"

	"github.com/sonicgrid/cuematrix/internal/dsp"
	"github.com/sonicgrid/cuematrix/internal/loudness"
	"github.com/sonicgrid/cuematrix/internal/model"
)

const targetLUFS = -14.0

// Build assembles the EnergyProfile for a track given its feature bundle
// and the final merged cue list.
func Build(track *model.Track, fb *model.FeatureBundle, cues []model.CuePoint) model.EnergyProfile {
	profile := model.EnergyProfile{}

	if fb.RMS512 != nil {
		smooth := dsp.GaussianSmooth1D(fb.RMS512, 8)
		curve, curveTimes := toEnergyScale(smooth, fb.SampleRate, 512)
		profile.Curve = curve
		profile.CurveTimes = curveTimes
		profile.CueEnergy = cueEnergyLookup(cues, curve, curveTimes)
	}

	integrated, lufsCurve, lufsTimes := loudness.Integrated(track.PCM, track.SampleRate)
	if !math.IsInf(integrated, -1) {
		v := integrated
		profile.IntegratedLUFS = &v
		gain := loudness.GainToTarget(integrated, targetLUFS)
		profile.GainToTarget = &gain
		profile.LUFSCurve = lufsCurve
		profile.LUFSCurveTimes = lufsTimes
	}

	return profile
}

// AudioStats derives peak/RMS dBFS plus (when loudness succeeded)
// integrated LUFS for the whole track.
func AudioStats(track *model.Track) model.AudioStats {
	peak := 0.0
	sumSq := 0.0
	for _, v := range track.PCM {
		if a := math.Abs(v); a > peak {
			peak = a
		}
		sumSq += v * v
	}
	rms := math.Sqrt(sumSq / float64(len(track.PCM)))

	stats := model.AudioStats{
		PeakDBFS: linearToDB(peak),
		RMSDBFS:  linearToDB(rms),
	}
	integrated, _, _ := loudness.Integrated(track.PCM, track.SampleRate)
	if !math.IsInf(integrated, -1) {
		stats.LUFS = &integrated
	}
	return stats
}

func linearToDB(v float64) float64 {
	if v <= 1e-12 {
		return -120.0
	}
	return 20 * math.Log10(v)
}

// toEnergyScale maps smoothed RMS to a 1-10 scale and a parallel time axis.
func toEnergyScale(rms []float64, sr, hop int) ([]float64, []float64) {
	maxVal := 0.0
	for _, v := range rms {
		if v > maxVal {
			maxVal = v
		}
	}
	curve := make([]float64, len(rms))
	for i, v := range rms {
		if maxVal > 1e-10 {
			curve[i] = 1.0 + (v/maxVal)*9.0
		} else {
			curve[i] = 1.0
		}
	}
	times := dsp.FramesToTime(arangeInts(len(rms)), sr, hop)
	return curve, times
}

func arangeInts(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// cueEnergyLookup samples the energy curve at each cue's time, keyed by
// "<type>@<time>" to disambiguate repeated cue types.
func cueEnergyLookup(cues []model.CuePoint, curve, curveTimes []float64) map[string]float64 {
	if len(curve) == 0 {
		return nil
	}
	out := make(map[string]float64, len(cues))
	for _, c := range cues {
		idx := nearestIndex(curveTimes, c.Time)
		key := fmt.Sprintf("%s@%.3f", c.Type, c.Time)
		out[key] = curve[idx]
	}
	return out
}

func nearestIndex(times []float64, t float64) int {
	best, bestDist := 0, math.MaxFloat64
	for i, ti := range times {
		if d := math.Abs(ti - t); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
