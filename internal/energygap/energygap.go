// Package energygap implements the Energy-Gap Stage (component G): a
// multi-feature valley score (RMS, spectral flatness, harmonic flux,
// spectral-contrast novelty) locates bridge/breakdown cues, extended
// beyond the single-bridge original into multi-instance valley detection
// plus a build-detection pass that flags rising-energy runs leading into
// a high-energy peak. Grounded on
// original_source/src/backend/pipeline/bridge_energy_gap.py; the
// multi-instance and build logic follows the same shape as
// internal/structure's repeat/build classification since the original
// script only ever located a single bridge via argmax.
package energygap

import (
	"fmt"
	"math"
	"sort"

	"github.com/sonicgrid/cuematrix/internal/dsp"
	"github.com/sonicgrid/cuematrix/internal/model"
)

const (
	hop = 512

	breakdownRMSCeiling = 0.25
	bridgeRMSCeiling    = 0.55

	valleyHeightFraction     = 0.3
	valleyProminenceFraction = 0.15
)

// Detect returns bridge and build cue points for a track.
func Detect(fb *model.FeatureBundle) []model.CuePoint {
	if fb.RMS512 == nil || fb.SpectralFlatness512 == nil || fb.YHarm == nil {
		return nil
	}

	rmsSmooth := dsp.GaussianSmooth1D(fb.RMS512, 4)
	rmsN := normalize(rmsSmooth)

	flatSmooth := dsp.GaussianSmooth1D(fb.SpectralFlatness512, 5)
	inverted := make([]float64, len(flatSmooth))
	for i, v := range flatSmooth {
		inverted[i] = 1.0 - v
	}
	flatN := normalize(inverted)

	centroidSmooth := dsp.GaussianSmooth1D(centroidSeries(fb), 3)
	centDiff := padRight(absDiff(centroidSmooth), 1)
	centN := normalize(centDiff)

	contrastSmooth := dsp.GaussianSmooth1D(contrastSeries(fb), 4)
	novelty := padLeft(absDiff(contrastSmooth), 1)
	novN := normalize(novelty)

	n := minLen(len(rmsN), len(flatN), len(centN), len(novN))
	if n == 0 {
		return nil
	}
	valleyScore := make([]float64, n)
	for i := 0; i < n; i++ {
		valleyScore[i] = (1.0 - rmsN[i]) + flatN[i] + (1.0 - centN[i]) + (1.0 - novN[i])
	}
	valleyScore = normalize(valleyScore)

	times := dsp.FramesToTime(arangeInts(n), fb.SampleRate, hop)
	duration := fb.Duration

	lo := math.Max(8.0, duration*0.18)
	hi := duration * 0.75

	bpm := 120.0
	if len(fb.BeatTimes) > 2 {
		if ibi := medianDiff(fb.BeatTimes); ibi > 0 {
			bpm = 60.0 / ibi
		}
	}
	barSeconds := 4.0 * 60.0 / math.Max(bpm, 60.0)
	minSpacingSeconds := math.Max(8.0, 8.0*barSeconds)
	framesPerSec := float64(fb.SampleRate) / float64(hop)
	minSpacing := int(minSpacingSeconds * framesPerSec)
	if minSpacing < 4 {
		minSpacing = 4
	}

	var candidates []int
	for _, p := range findValleyPeaks(valleyScore, minSpacing, valleyHeightFraction, valleyProminenceFraction) {
		if times[p] > lo && times[p] < hi {
			candidates = append(candidates, p)
		}
	}

	var cues []model.CuePoint
	for i, p := range candidates {
		t := snapToBeat(times[p], fb.BeatTimes)
		cueType := "bridge"
		if p < len(rmsN) {
			switch {
			case rmsN[p] < breakdownRMSCeiling:
				cueType = "breakdown"
			case rmsN[p] <= bridgeRMSCeiling:
				cueType = "bridge"
			}
		}
		base := "Bridge"
		if cueType == "breakdown" {
			base = "Breakdown"
		}
		name := base
		if len(candidates) > 1 {
			name = fmt.Sprintf("%s %d", base, i+1)
		}
		conf := 0.80 - float64(i)*0.05
		if conf < 0.60 {
			conf = 0.60
		}
		cues = append(cues, model.CuePoint{
			Name: name, Type: cueType, Time: t, Confidence: conf,
			Reason: "energy_gap_ai", Stage: "energy_gap", Instance: i + 1,
		})
	}

	cues = append(cues, detectBuilds(fb, rmsSmooth, times)...)
	return cues
}

// detectBuilds flags runs of at least four bars where RMS rises
// monotonically into the top energy quartile, emitting one cue per run at
// its start, snapped forward to the next beat.
func detectBuilds(fb *model.FeatureBundle, rmsSmooth, times []float64) []model.CuePoint {
	if len(rmsSmooth) == 0 {
		return nil
	}
	sorted := append([]float64(nil), rmsSmooth...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	p75 := sorted[int(0.75*float64(len(sorted)-1))]

	bpm := 120.0
	if len(fb.BeatTimes) > 2 {
		ibi := medianDiff(fb.BeatTimes)
		if ibi > 0 {
			bpm = 60.0 / ibi
		}
	}
	barSeconds := 4.0 * 60.0 / math.Max(bpm, 60.0)
	minBuildSeconds := 4.0 * barSeconds
	framesPerSec := float64(fb.SampleRate) / float64(hop)
	minBuildFrames := int(minBuildSeconds * framesPerSec)

	var cues []model.CuePoint
	instance := 0
	runStart := -1
	for i := 1; i < len(rmsSmooth); i++ {
		rising := rmsSmooth[i] >= rmsSmooth[i-1]
		if rising && runStart == -1 {
			runStart = i - 1
		}
		if !rising || i == len(rmsSmooth)-1 {
			if runStart != -1 {
				runEnd := i
				if rmsSmooth[runEnd] >= p75 && runEnd-runStart >= minBuildFrames {
					instance++
					start := snapToBeat(times[runStart], fb.BeatTimes)
					cues = append(cues, model.CuePoint{
						Name: buildName(instance), Type: "build", Time: start,
						Confidence: 0.65, Reason: "energy_gap_ai", Stage: "energy_gap", Instance: instance,
					})
				}
			}
			runStart = -1
		}
	}
	return cues
}

// findValleyPeaks picks local maxima in score that clear heightFrac of the
// global max in absolute height and prominenceFrac of it in topographic
// prominence, enforcing minSpacing frames between survivors by keeping the
// taller peak in each cluster. This is a global-max-relative criterion,
// unlike dsp.DetectOnsets's local-mean-relative threshold, and matches how
// the original script located candidate valleys with scipy's find_peaks.
func findValleyPeaks(score []float64, minSpacing int, heightFrac, prominenceFrac float64) []int {
	maxScore := maxOf(score)
	if maxScore <= 0 {
		return nil
	}
	heightThresh := heightFrac * maxScore
	promThresh := prominenceFrac * maxScore

	var candidates []int
	for i := 1; i < len(score)-1; i++ {
		if score[i] <= score[i-1] || score[i] <= score[i+1] {
			continue
		}
		if score[i] < heightThresh {
			continue
		}
		if prominence(score, i) < promThresh {
			continue
		}
		candidates = append(candidates, i)
	}

	sort.Slice(candidates, func(a, b int) bool { return score[candidates[a]] > score[candidates[b]] })
	var kept []int
	for _, c := range candidates {
		ok := true
		for _, k := range kept {
			if absInt(c-k) < minSpacing {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}
	sort.Ints(kept)
	return kept
}

// prominence is the height of score[i] above the higher of the two
// "key cols" reached by descending left and right until a taller point
// (or the series boundary) is found.
func prominence(score []float64, i int) float64 {
	h := score[i]
	leftMin := h
	for j := i - 1; j >= 0; j-- {
		if score[j] > h {
			break
		}
		if score[j] < leftMin {
			leftMin = score[j]
		}
	}
	rightMin := h
	for j := i + 1; j < len(score); j++ {
		if score[j] > h {
			break
		}
		if score[j] < rightMin {
			rightMin = score[j]
		}
	}
	return h - math.Max(leftMin, rightMin)
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

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func buildName(instance int) string {
	if instance == 1 {
		return "Build"
	}
	return fmt.Sprintf("Build %d", instance)
}

func centroidSeries(fb *model.FeatureBundle) []float64 {
	if fb.SpectralCentroid512 != nil {
		return fb.SpectralCentroid512
	}
	return fb.YHarm
}

func contrastSeries(fb *model.FeatureBundle) []float64 {
	if fb.SpectralContrast512 != nil {
		return fb.SpectralContrast512
	}
	return fb.RMS512
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
	if rng <= 1e-9 {
		return out
	}
	for i, v := range x {
		out[i] = (v - mn) / (rng + 1e-12)
	}
	return out
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

func padRight(x []float64, n int) []float64 {
	return append(append([]float64(nil), x...), make([]float64, n)...)
}

func padLeft(x []float64, n int) []float64 {
	return append(make([]float64, n), x...)
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
	sorted := append([]float64(nil), diffs...)
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
