package dsp

import "math"

// EstimateTempo derives a BPM estimate from an onset strength envelope via
// autocorrelation, restricting the search to the [minBPM, maxBPM] range
// and returning both the estimated period in frames and its BPM.
func EstimateTempo(onsetEnv []float64, sr, hop int, minBPM, maxBPM float64) (periodFrames int, bpm float64) {
	if len(onsetEnv) < 4 {
		return 0, 0
	}
	framesPerSec := float64(sr) / float64(hop)
	minLag := int(math.Ceil(framesPerSec * 60 / maxBPM))
	maxLag := int(framesPerSec * 60 / minBPM)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(onsetEnv) {
		maxLag = len(onsetEnv) - 1
	}
	if maxLag <= minLag {
		return 0, 0
	}
	ac := Autocorrelate(onsetEnv, maxLag)

	best, bestVal := minLag, -math.MaxFloat64
	for lag := minLag; lag <= maxLag; lag++ {
		if ac[lag] > bestVal {
			bestVal = ac[lag]
			best = lag
		}
	}
	if best == 0 || bestVal <= 0 {
		return 0, 0
	}
	return best, 60 * framesPerSec / float64(best)
}

// BeatTrack derives a sequence of beat frame indices from an onset
// envelope given a target period in frames, via dynamic programming that
// rewards onset strength at roughly periodic spacing.
func BeatTrack(onsetEnv []float64, periodFrames int) []int {
	n := len(onsetEnv)
	if n == 0 || periodFrames <= 0 {
		return nil
	}
	const tightness = 100.0
	score := make([]float64, n)
	backlink := make([]int, n)
	for i := range backlink {
		backlink[i] = -1
	}
	searchWindow := periodFrames
	for i := 0; i < n; i++ {
		best, bestJ := -math.MaxFloat64, -1
		lo := i - 2*searchWindow
		if lo < 0 {
			lo = 0
		}
		for j := lo; j < i; j++ {
			dt := float64(i - j)
			dev := math.Log(dt/float64(periodFrames)+1e-12) * math.Log(dt/float64(periodFrames)+1e-12)
			txCost := -tightness * dev
			cand := score[j] + txCost
			if cand > best {
				best = cand
				bestJ = j
			}
		}
		if bestJ == -1 {
			score[i] = onsetEnv[i]
		} else {
			score[i] = onsetEnv[i] + best
		}
		backlink[i] = bestJ
	}

	// Start from the highest-scoring tail frame and walk backlinks.
	tail, tailVal := 0, -math.MaxFloat64
	for i, v := range score {
		if v > tailVal {
			tailVal = v
			tail = i
		}
	}
	var beats []int
	for i := tail; i != -1; i = backlink[i] {
		beats = append(beats, i)
	}
	// Reverse into chronological order.
	for l, r := 0, len(beats)-1; l < r; l, r = l+1, r-1 {
		beats[l], beats[r] = beats[r], beats[l]
	}
	return beats
}
