// Package chorushook implements the Chorus/Hook Stage (component F):
// harmonic centroid motion, spectral contrast spikes, an RMS-bump vote,
// and beat-grid snapping combine into a multi-instance chorus/hook cue
// list. Ported from
// original_source/src/backend/pipeline/chorus_hook_stage.py.
package chorushook

import (
	"fmt"
	"math"

	"github.com/sonicgrid/cuematrix/internal/dsp"
	"github.com/sonicgrid/cuematrix/internal/model"
)

const hop = 512

// Detect returns the chorus/hook cue points for a track.
func Detect(fb *model.FeatureBundle) []model.CuePoint {
	choruses, hooks := detect(fb)

	var cues []model.CuePoint
	for i, t := range choruses {
		instance := i + 1
		name := "Chorus"
		if len(choruses) > 1 {
			name = fmt.Sprintf("Chorus %d", instance)
		}
		conf := 0.85 - float64(i)*0.05
		if conf < 0.70 {
			conf = 0.70
		}
		cues = append(cues, model.CuePoint{
			Name: name, Type: "chorus", Time: t, Confidence: conf,
			Reason: "chorus_hook_ai", Stage: "chorus_hook", Instance: instance,
		})
	}
	for i, t := range hooks {
		instance := i + 1
		name := "Hook"
		if len(hooks) > 1 {
			name = fmt.Sprintf("Hook %d", instance)
		}
		conf := 0.80 - float64(i)*0.05
		if conf < 0.65 {
			conf = 0.65
		}
		cues = append(cues, model.CuePoint{
			Name: name, Type: "hook", Time: t, Confidence: conf,
			Reason: "chorus_hook_ai", Stage: "chorus_hook", Instance: instance,
		})
	}
	return cues
}

func detect(fb *model.FeatureBundle) (choruses, hooks []float64) {
	if fb.YHarm == nil || fb.RMS512 == nil {
		return nil, nil
	}

	centroidSmooth := dsp.GaussianSmooth1D(centroidFromHarmonic(fb), 3)
	centroidDiff := absDiff(centroidSmooth)

	contrastEnergy := meanContrast(fb)
	contrastSmooth := dsp.GaussianSmooth1D(contrastEnergy, 4)
	contrastDiff := absDiff(contrastSmooth)

	novelty := contrastDiff

	rmsSmooth := dsp.GaussianSmooth1D(fb.RMS512, 4)
	rmsDiff := absDiff(rmsSmooth)

	cd := normalize(centroidDiff)
	ce := normalize(contrastDiff)
	nv := normalize(novelty)
	rd := normalize(rmsDiff)

	n := minLen(len(cd), len(ce), len(nv), len(rd))
	if n < 20 {
		return nil, nil
	}

	score := make([]float64, n)
	for i := 0; i < n; i++ {
		score[i] = cd[i] + ce[i] + 0.6*nv[i] + 0.4*rd[i]
	}
	scoreTimes := dsp.FramesToTime(arangeInts(n), fb.SampleRate, hop)

	bpm := 120.0
	if len(fb.BeatTimes) > 2 {
		medianIBI := medianDiff(fb.BeatTimes)
		if medianIBI > 0 {
			bpm = 60.0 / medianIBI
		}
	}
	barSeconds := 4.0 * 60.0 / math.Max(bpm, 60.0)
	minChorusTime := math.Max(10.0, 4.0*barSeconds)
	minGap := math.Max(8.0, 8.0*barSeconds)

	secondsPerFrame := float64(hop) / float64(fb.SampleRate)
	peakDistance := int(minGap / secondsPerFrame)
	if peakDistance < 6 {
		peakDistance = 6
	}

	maxScore := maxOf(score)
	peaks := dsp.DetectOnsets(score, peakDistance, 0) // height filtered below
	peaks = filterAbove(peaks, score, 0.55*maxScore)
	if len(peaks) == 0 {
		return nil, nil
	}

	chorusThreshold := 0.70 * maxScore
	hookThreshold := 0.50 * maxScore

	for _, p := range peaks {
		t := scoreTimes[p]
		s := score[p]
		if t < minChorusTime {
			continue
		}
		if s >= chorusThreshold {
			if allFarEnough(t, choruses, minGap) {
				choruses = append(choruses, t)
			}
		} else if s >= hookThreshold {
			if allFarEnough(t, hooks, minGap) && allFarEnough(t, choruses, minGap*0.5) {
				hooks = append(hooks, t)
			}
		}
	}

	for i, t := range choruses {
		choruses[i] = snapToBeat(t, fb.BeatTimes)
	}
	for i, t := range hooks {
		hooks[i] = snapToBeat(t, fb.BeatTimes)
	}
	return choruses, hooks
}

func centroidFromHarmonic(fb *model.FeatureBundle) []float64 {
	if fb.SpectralCentroid512 != nil {
		return fb.SpectralCentroid512
	}
	return fb.YHarm
}

func meanContrast(fb *model.FeatureBundle) []float64 {
	return fb.SpectralContrast512
}

func absDiff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = math.Abs(x[i] - x[i-1])
	}
	return out
}

func normalize(x []float64) []float64 {
	if len(x) == 0 {
		return x
	}
	mn, mx := x[0], x[0]
	for _, v := range x {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	rng := mx - mn
	out := make([]float64, len(x))
	if rng < 1e-12 {
		return out
	}
	for i, v := range x {
		out[i] = (v - mn) / (rng + 1e-12)
	}
	return out
}

func minLen(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func arangeInts(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func medianDiff(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	diffs := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		diffs[i-1] = x[i] - x[i-1]
	}
	return medianOf(diffs)
}

func medianOf(x []float64) float64 {
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

func maxOf(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		if v > m {
			m = v
		}
	}
	return m
}

func filterAbove(peaks []int, x []float64, threshold float64) []int {
	var out []int
	for _, p := range peaks {
		if x[p] >= threshold {
			out = append(out, p)
		}
	}
	return out
}

func allFarEnough(t float64, existing []float64, minGap float64) bool {
	for _, e := range existing {
		if math.Abs(t-e) < minGap {
			return false
		}
	}
	return true
}

func snapToBeat(t float64, beats []float64) float64 {
	if len(beats) == 0 {
		return t
	}
	for _, b := range beats {
		if b >= t {
			return b
		}
	}
	best, bestDist := beats[0], math.Abs(beats[0]-t)
	for _, b := range beats {
		if d := math.Abs(b - t); d < bestDist {
			bestDist = d
			best = b
		}
	}
	return best
}
