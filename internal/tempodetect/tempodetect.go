// Package tempodetect implements the Tempo Detector (component C): four
// independent BPM estimators voted together, following the same
// weighted-voting shape as internal/keydetect but operating on onset
// strength and spectral periodicity rather than chroma.
package tempodetect

import (
	"math"
	"sort"

	"github.com/sonicgrid/cuematrix/internal/dsp"
	"github.com/sonicgrid/cuematrix/internal/model"
)

const (
	minBPM = 60.0
	maxBPM = 200.0

	octaveBoostFull = 1.0
	octaveBoostHalf = 0.6
	snapTolerance   = 1.5
)

// sourceWeights follow Detect's estimator order (onset-prior median,
// spectral periodicity, percussive narrow-prior, multi-scale): the
// percussive estimator carries the most weight, the onset-prior median
// the second most, and the other two share the remainder equally.
var sourceWeights = []float64{0.25, 0.15, 0.45, 0.15}

// Result is the tempo detector's output.
type Result struct {
	BPM int
}

// Detect runs all four estimators and combines them by weighted,
// half/double-aware voting, snapping the winner to the nearest common
// dance tempo. It falls back to 120 BPM if every estimator fails.
func Detect(fb *model.FeatureBundle) Result {
	var bpms []float64
	var weights []float64

	if bpm := onsetPriorMedianBPM(fb); bpm > 0 {
		bpms = append(bpms, bpm)
		weights = append(weights, sourceWeights[0])
	}
	if bpm := spectralPeriodicityBPM(fb); bpm > 0 {
		bpms = append(bpms, bpm)
		weights = append(weights, sourceWeights[1])
	}
	if bpm := percussiveNarrowBPM(fb); bpm > 0 {
		bpms = append(bpms, bpm)
		weights = append(weights, sourceWeights[2])
	}
	if fb.OnsetEnv256 != nil {
		if bpm := multiScaleBPM(fb.OnsetEnv256, fb.SampleRate, 256); bpm > 0 {
			bpms = append(bpms, bpm)
			weights = append(weights, sourceWeights[3])
		}
	}

	if len(bpms) == 0 {
		return Result{BPM: 120}
	}
	return Result{BPM: voteAndSnap(bpms, weights)}
}

// onsetPriorMedianBPM smooths the hop-512 onset envelope and estimates
// tempo under four overlapping prior ranges, returning the median of
// whichever candidates succeed so a single range's octave error doesn't
// dominate the primary estimator.
func onsetPriorMedianBPM(fb *model.FeatureBundle) float64 {
	if fb.OnsetEnv512 == nil {
		return 0
	}
	smooth := dsp.GaussianSmooth1D(fb.OnsetEnv512, 1)
	priors := [][2]float64{{60, 100}, {100, 140}, {120, 180}, {140, 200}}
	var candidates []float64
	for _, p := range priors {
		_, bpm := dsp.EstimateTempo(smooth, fb.SampleRate, 512, p[0], p[1])
		if bpm > 0 {
			candidates = append(candidates, bpm)
		}
	}
	if len(candidates) == 0 {
		return 0
	}
	return medianOf(candidates)
}

// spectralPeriodicityBPM sums STFT magnitude in the 20-250Hz band (where
// kick and bass periodicity lives), autocorrelates the resulting energy
// envelope, and explicitly peak-picks the strongest lag beyond a 0.3s
// minimum that clears 30% of the autocorrelation's global peak, rather
// than deferring to the generic tempo estimator's bare BPM-range search.
func spectralPeriodicityBPM(fb *model.FeatureBundle) float64 {
	if fb.STFTMag == nil || fb.FreqBins == nil || fb.SampleRate == 0 {
		return 0
	}
	band := bandEnergy(fb.STFTMag, fb.FreqBins, 20, 250)
	if len(band) < 4 {
		return 0
	}
	smooth := dsp.GaussianSmooth1D(band, 2)

	framesPerSec := float64(fb.SampleRate) / 512.0
	maxLag := int(framesPerSec * 60 / minBPM)
	if maxLag >= len(smooth) {
		maxLag = len(smooth) - 1
	}
	if maxLag < 1 {
		return 0
	}
	ac := dsp.Autocorrelate(smooth, maxLag)

	minLag := int(0.3 * framesPerSec)
	if minLag < 1 {
		minLag = 1
	}
	maxAC := 0.0
	for _, v := range ac {
		if v > maxAC {
			maxAC = v
		}
	}
	threshold := 0.3 * maxAC

	bestLag, bestVal := 0, -math.MaxFloat64
	for lag := minLag; lag < len(ac); lag++ {
		if ac[lag] < threshold {
			continue
		}
		if ac[lag] > bestVal {
			bestVal = ac[lag]
			bestLag = lag
		}
	}
	if bestLag == 0 {
		return 0
	}
	bpm := 60 * framesPerSec / float64(bestLag)
	if bpm < minBPM || bpm > maxBPM {
		return 0
	}
	return bpm
}

// bandEnergy sums STFT magnitude across every bin whose center frequency
// falls within [loHz, hiHz], producing a scalar-per-frame energy envelope.
func bandEnergy(mag [][]float64, freqBins []float64, loHz, hiHz float64) []float64 {
	var bins []int
	for b, f := range freqBins {
		if f >= loHz && f <= hiHz {
			bins = append(bins, b)
		}
	}
	out := make([]float64, len(mag))
	for fr, row := range mag {
		sum := 0.0
		for _, b := range bins {
			if b < len(row) {
				sum += row[b]
			}
		}
		out[fr] = sum
	}
	return out
}

// percussiveNarrowBPM estimates tempo from the percussive onset envelope
// under a narrow prior centered on the common 120 BPM dance tempo, which
// resolves octave errors the wide-range estimators are prone to on tracks
// with strong sub-beat percussive energy.
func percussiveNarrowBPM(fb *model.FeatureBundle) float64 {
	if fb.OnsetEnvPerc512 == nil {
		return 0
	}
	_, bpm := dsp.EstimateTempo(fb.OnsetEnvPerc512, fb.SampleRate, 512, 90, 150)
	return bpm
}

// multiScaleBPM resamples the onset envelope at three time scales,
// estimates tempo at each, and pools every successful candidate into a
// single median rather than keeping only the highest-confidence scale, so
// a resampling artifact at one scale can't dominate the vote.
func multiScaleBPM(onsetEnv []float64, sr, hop int) float64 {
	var candidates []float64
	for _, scale := range []float64{1.0, 1.5, 2.0} {
		resampled := dsp.Resample(onsetEnv, scale)
		effectiveHop := float64(hop) / scale
		_, bpm := dsp.EstimateTempo(resampled, sr, int(effectiveHop), minBPM, maxBPM)
		if bpm > 0 {
			candidates = append(candidates, bpm)
		}
	}
	if len(candidates) == 0 {
		return 0
	}
	return medianOf(candidates)
}

// voteAndSnap combines the four estimates by boosted octave voting: each
// estimate casts a full-strength vote at its own BPM and reduced-strength
// votes at half and double, so estimators that disagree only by octave
// still reinforce a common integer BPM bucket. The winning bucket is then
// refined to the weighted average of every raw estimate (and its
// octave-shifted copies) within snapTolerance of it, snapped to the
// nearest common dance tempo, and finally corrected for gross
// doubling/halving errors.
func voteAndSnap(bpms, weights []float64) int {
	scores := map[int]float64{}
	for i, b := range bpms {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		for _, m := range []struct {
			factor, boost float64
		}{{1.0, octaveBoostFull}, {0.5, octaveBoostHalf}, {2.0, octaveBoostHalf}} {
			v := b * m.factor
			if v < minBPM || v > maxBPM {
				continue
			}
			bucket := int(math.Round(v))
			scores[bucket] += w * m.boost
		}
	}
	if len(scores) == 0 {
		return int(math.Round(bpms[0]))
	}

	buckets := make([]int, 0, len(scores))
	for k := range scores {
		buckets = append(buckets, k)
	}
	sort.Slice(buckets, func(i, j int) bool { return scores[buckets[i]] > scores[buckets[j]] })
	winner := buckets[0]

	sum, total := 0.0, 0.0
	for i, b := range bpms {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		for _, factor := range []float64{1.0, 0.5, 2.0} {
			v := b * factor
			if math.Abs(v-float64(winner)) <= snapTolerance {
				sum += v * w
				total += w
			}
		}
	}
	refined := float64(winner)
	if total > 0 {
		refined = sum / total
	}

	return correctOctave(snapToCommon(refined))
}

// snapToCommon rounds to the nearest common dance tempo within
// snapTolerance BPM, or to the plain nearest integer otherwise.
func snapToCommon(bpm float64) int {
	bestCommon, bestDist := 0, math.MaxFloat64
	for _, c := range commonTempos {
		if d := math.Abs(bpm - float64(c)); d < bestDist {
			bestDist = d
			bestCommon = c
		}
	}
	if bestDist <= snapTolerance {
		return bestCommon
	}
	return int(math.Round(bpm))
}

// correctOctave conservatively doubles a suspiciously slow result or
// halves a suspiciously fast one when doing so lands back in the common
// dance-tempo range, catching octave errors the voting stage missed.
func correctOctave(bpm int) int {
	if bpm < 70 {
		if doubled := bpm * 2; doubled >= 90 && doubled <= 180 {
			return doubled
		}
	}
	if bpm > 180 {
		if halved := bpm / 2; halved >= 70 && halved <= 150 {
			return halved
		}
	}
	return bpm
}

var commonTempos = []int{
	90, 95, 100, 110, 115, 118, 120, 122, 124, 125, 126, 127,
	128, 129, 130, 131, 132, 133, 135, 138, 140, 145, 150,
}

func medianOf(x []float64) float64 {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
