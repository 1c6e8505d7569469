// Package keydetect implements the Key Detector (component B): five
// independent key-correlation variants voted together into a single
// Camelot-notated key, grounded on the Krumhansl-Schmuckler key-profile
// correlation in original_source/src/backend/tools/key_detection.py,
// generalized from that file's two-method hybrid into five weighted
// voters operating on the feature bundle's multi-resolution chromagrams.
package keydetect

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sonicgrid/cuematrix/internal/dsp"
	"github.com/sonicgrid/cuematrix/internal/model"
)

const (
	preEmphasisSmoothSigma = 1.0
	harmonicFloor          = 0.1
	minWindowSeconds       = 8.0
	maxWindowSeconds       = 20.0
	windowDurationFraction = 0.15
)

var pitchNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// camelotWheel maps "<pitch><major|minor>" to Camelot notation; A = minor,
// B = major, the industry-standard convention used by the original tool.
var camelotWheel = map[string]string{
	"C_major": "8B", "C#_major": "3B", "D_major": "10B", "D#_major": "5B", "E_major": "12B", "F_major": "7B",
	"F#_major": "2B", "G_major": "9B", "G#_major": "4B", "A_major": "11B", "A#_major": "6B", "B_major": "1B",
	"C_minor": "5A", "C#_minor": "12A", "D_minor": "7A", "D#_minor": "2A", "E_minor": "9A", "F_minor": "4A",
	"F#_minor": "11A", "G_minor": "6A", "G#_minor": "1A", "A_minor": "8A", "A#_minor": "3A", "B_minor": "10A",
}

var majorProfile = normalizeProfile([]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88})
var minorProfile = normalizeProfile([]float64{6.33, 2.68, 3.69, 5.38, 2.60, 3.67, 2.58, 4.95, 2.63, 3.71, 3.28, 3.73})

// temperleyMajorProfile and temperleyMinorProfile are Temperley's 1999
// revision of the Krumhansl-Schmuckler profiles, used by the
// multi-resolution variant as an independent second opinion rather than
// correlating against the same Krumhansl weights every other variant uses.
var temperleyMajorProfile = normalizeProfile([]float64{5.0, 2.0, 3.5, 2.0, 4.5, 4.0, 2.0, 4.5, 2.0, 3.5, 1.5, 4.0})
var temperleyMinorProfile = normalizeProfile([]float64{5.0, 2.0, 3.5, 4.5, 2.0, 4.0, 2.0, 4.5, 3.5, 2.0, 1.5, 4.0})

func normalizeProfile(p []float64) []float64 {
	norm := 0.0
	for _, v := range p {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = v / norm
	}
	return out
}

// vote is one variant's best guess plus its confidence.
type vote struct {
	camelot    string
	confidence float64
}

// sourceWeights decrease from first to last (the last two each 0.7 times
// the one before): the enhanced-chroma correlator is trusted most, the
// beat-synchronous variant least since it depends on beat tracking
// succeeding.
var sourceWeights = []float64{0.38, 0.32, 0.18, 0.12 * 0.7, 0.12 * 0.7 * 0.7}

// Result is the key detector's output.
type Result struct {
	Camelot    string
	Mode       string // "major" or "minor"
	Confidence float64
}

// Detect runs all five correlator variants against the feature bundle and
// combines them by weighted vote. On total failure (no chroma available
// at all) it returns the documented fallback: 8A / minor / 0.5.
func Detect(fb *model.FeatureBundle) Result {
	votes := []vote{
		enhancedChromaVote(fb),
		harmonicVote(fb),
		multiResolutionVote(fb),
		windowedMajorityVote(fb),
		beatSynchronousVote(fb),
	}

	best, conf := weightedVote(votes, sourceWeights)
	if best == "" {
		return Result{Camelot: "8A", Mode: "minor", Confidence: 0.5}
	}
	mode := "major"
	if best[len(best)-1] == 'A' {
		mode = "minor"
	}
	return Result{Camelot: best, Mode: mode, Confidence: conf}
}

// enhancedChromaVote is the primary estimator: pre-emphasized chroma is
// smoothed along time to suppress frame-to-frame jitter, averaged across
// time weighted by frame energy squared so loud, harmonically stable
// passages dominate over quiet or transient ones, then matched against
// the Krumhansl profiles with a genuine Pearson correlation rather than a
// plain dot product, which rewards shape agreement regardless of overall
// chroma magnitude.
func enhancedChromaVote(fb *model.FeatureBundle) vote {
	if fb.ChromaPreEmph512 == nil || fb.RMS512 == nil || len(fb.ChromaPreEmph512) != 12 {
		return vote{}
	}
	smoothed := make([][]float64, 12)
	for pc, row := range fb.ChromaPreEmph512 {
		smoothed[pc] = dsp.GaussianSmooth1D(row, preEmphasisSmoothSigma)
	}
	n := minInt(len(smoothed[0]), len(fb.RMS512))
	if n == 0 {
		return vote{}
	}
	weights := make([]float64, n)
	totalWeight := 0.0
	for i := 0; i < n; i++ {
		weights[i] = fb.RMS512[i] * fb.RMS512[i]
		totalWeight += weights[i]
	}
	if totalWeight <= 0 {
		return vote{}
	}
	vec := make([]float64, 12)
	for pc := 0; pc < 12; pc++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += smoothed[pc][i] * weights[i]
		}
		vec[pc] = sum / totalWeight
	}
	return pearsonCorrelate(vec, majorProfile, minorProfile)
}

// harmonicVote correlates the hop-1024 harmonic-only chromagram, floored
// then geometrically averaged across time so a handful of loud transient
// frames can't outweigh a longer, quieter, harmonically stable stretch.
func harmonicVote(fb *model.FeatureBundle) vote {
	if fb.ChromaHarm1024 == nil {
		return vote{}
	}
	return correlate(dsp.GeoMeanChroma(fb.ChromaHarm1024, harmonicFloor))
}

// correlate finds the best-correlating major/minor Krumhansl profile
// rotation against a 12-bin chroma vector via plain dot product.
func correlate(chroma []float64) vote {
	return correlateProfiles(chroma, majorProfile, minorProfile)
}

// correlateProfiles is correlate generalized to an arbitrary pair of
// major/minor profiles, so the multi-resolution variant can vote against
// an alternate profile set instead of always reusing the Krumhansl one.
func correlateProfiles(chroma []float64, majorP, minorP []float64) vote {
	if chroma == nil {
		return vote{}
	}
	bestKey, bestConf := "", -1.0
	for i := 0; i < 12; i++ {
		corrMajor := dotRolled(chroma, majorP, i)
		corrMinor := dotRolled(chroma, minorP, i)
		if corrMajor > bestConf {
			bestConf = corrMajor
			bestKey = camelotWheel[pitchNames[i]+"_major"]
		}
		if corrMinor > bestConf {
			bestConf = corrMinor
			bestKey = camelotWheel[pitchNames[i]+"_minor"]
		}
	}
	return vote{camelot: bestKey, confidence: clamp01(bestConf)}
}

// pearsonCorrelate is correlateProfiles but scores each rotation with a
// genuine Pearson correlation coefficient (via gonum/stat) instead of a
// raw dot product, which matters once the input chroma is energy-weighted
// and no longer unit-normalized per frame.
func pearsonCorrelate(chroma []float64, majorP, minorP []float64) vote {
	if chroma == nil {
		return vote{}
	}
	bestKey, bestConf := "", -math.MaxFloat64
	for i := 0; i < 12; i++ {
		rotMajor := rollProfile(majorP, i)
		rotMinor := rollProfile(minorP, i)
		corrMajor := stat.Correlation(chroma, rotMajor, nil)
		corrMinor := stat.Correlation(chroma, rotMinor, nil)
		if corrMajor > bestConf {
			bestConf = corrMajor
			bestKey = camelotWheel[pitchNames[i]+"_major"]
		}
		if corrMinor > bestConf {
			bestConf = corrMinor
			bestKey = camelotWheel[pitchNames[i]+"_minor"]
		}
	}
	if bestKey == "" {
		return vote{}
	}
	return vote{camelot: bestKey, confidence: clamp01((bestConf + 1) / 2)}
}

func dotRolled(chroma, profile []float64, shift int) float64 {
	sum := 0.0
	for i := 0; i < 12; i++ {
		sum += chroma[i] * profile[(i-shift+12)%12]
	}
	return sum
}

func rollProfile(profile []float64, shift int) []float64 {
	out := make([]float64, 12)
	for i := 0; i < 12; i++ {
		out[i] = profile[(i-shift+12)%12]
	}
	return out
}

// multiResolutionVote blends the 256, 512, 1024, and 2048-hop
// chromagrams into a single vector weighted by each resolution's mean
// spectral centroid, so resolutions carrying more high-frequency harmonic
// content pull the blend toward themselves, then matches it against the
// Temperley profile as an independent second opinion from the Krumhansl
// profile every other variant uses.
func multiResolutionVote(fb *model.FeatureBundle) vote {
	type resolution struct {
		chroma   [][]float64
		centroid []float64
	}
	resolutions := []resolution{
		{fb.Chroma256, fb.SpectralCentroid256},
		{fb.Chroma512, fb.SpectralCentroid512},
		{fb.Chroma1024, fb.SpectralCentroid1024},
		{fb.Chroma2048, fb.SpectralCentroid2048},
	}
	vec := make([]float64, 12)
	totalWeight := 0.0
	for _, r := range resolutions {
		if r.chroma == nil || r.centroid == nil || len(r.chroma) != 12 {
			continue
		}
		mean := dsp.MeanChroma(r.chroma)
		w := meanOf(r.centroid)
		if w <= 0 {
			continue
		}
		for pc := 0; pc < 12; pc++ {
			vec[pc] += mean[pc] * w
		}
		totalWeight += w
	}
	if totalWeight <= 0 {
		return vote{}
	}
	for pc := range vec {
		vec[pc] /= totalWeight
	}
	return correlateProfiles(vec, temperleyMajorProfile, temperleyMinorProfile)
}

// windowedMajorityVote correlates overlapping windows of roughly
// 8-20 seconds (15% of the track's duration, clamped) and combines them
// into an RMS-weighted vote, so loud, harmonically clear windows count
// for more than quiet or transitional ones instead of every window
// counting equally.
func windowedMajorityVote(fb *model.FeatureBundle) vote {
	if fb.Chroma512 == nil || fb.SampleRate == 0 {
		return vote{}
	}
	windowSeconds := fb.Duration * windowDurationFraction
	if windowSeconds < minWindowSeconds {
		windowSeconds = minWindowSeconds
	}
	if windowSeconds > maxWindowSeconds {
		windowSeconds = maxWindowSeconds
	}
	framesPerWindow := int(windowSeconds * float64(fb.SampleRate) / 512)
	if framesPerWindow < 1 {
		framesPerWindow = 1
	}
	hopFrames := framesPerWindow / 3
	if hopFrames < 1 {
		hopFrames = 1
	}
	numFrames := len(fb.Chroma512[0])
	scores := map[string]float64{}
	totalWeight := 0.0
	for start := 0; start < numFrames; start += hopFrames {
		end := start + framesPerWindow
		if end > numFrames {
			end = numFrames
		}
		if end <= start {
			break
		}
		sub := sliceChroma(fb.Chroma512, start, end)
		v := correlate(dsp.MeanChroma(sub))
		if v.camelot != "" {
			weight := meanOf(fb.RMS512[minInt(start, len(fb.RMS512)):minInt(end, len(fb.RMS512))])
			if weight <= 0 {
				weight = 1e-6
			}
			scores[v.camelot] += weight * v.confidence
			totalWeight += weight
		}
		if end == numFrames {
			break
		}
	}
	if totalWeight <= 0 {
		return vote{}
	}
	bestKey, bestScore := "", -1.0
	for k, s := range scores {
		if s > bestScore {
			bestScore = s
			bestKey = k
		}
	}
	return vote{camelot: bestKey, confidence: clamp01(bestScore / totalWeight)}
}

func sliceChroma(chroma [][]float64, start, end int) [][]float64 {
	out := make([][]float64, len(chroma))
	for i, row := range chroma {
		s, e := start, end
		if s >= len(row) {
			out[i] = nil
			continue
		}
		if e > len(row) {
			e = len(row)
		}
		out[i] = row[s:e]
	}
	return out
}

// beatSynchronousVote aggregates the harmonic-only chromagram to one
// vector per beat interval by median (robust against a single loud
// percussive frame inside the interval), then combines those per-beat
// vectors into a single vector by median across beats before correlating,
// rather than averaging, which a handful of off-key transition beats
// could otherwise skew.
func beatSynchronousVote(fb *model.FeatureBundle) vote {
	if fb.ChromaHarm512 == nil || len(fb.BeatFrames) < 2 || len(fb.ChromaHarm512) != 12 {
		return vote{}
	}
	beatSync := syncChromaToBeatsMedian(fb.ChromaHarm512, fb.BeatFrames)
	if beatSync == nil {
		return vote{}
	}
	vec := medianChroma(beatSync)
	return correlate(vec)
}

func syncChromaToBeatsMedian(chroma [][]float64, beatFrames []int) [][]float64 {
	numFrames := len(chroma[0])
	numBeats := len(beatFrames) - 1
	if numBeats <= 0 {
		return nil
	}
	out := make([][]float64, 12)
	for pc := range out {
		out[pc] = make([]float64, 0, numBeats)
	}
	any := false
	for i := 0; i < numBeats; i++ {
		start, end := beatFrames[i], beatFrames[i+1]
		if start < 0 {
			start = 0
		}
		if end > numFrames {
			end = numFrames
		}
		if end <= start {
			continue
		}
		any = true
		for pc := 0; pc < 12; pc++ {
			window := append([]float64(nil), chroma[pc][start:end]...)
			out[pc] = append(out[pc], medianOf(window))
		}
	}
	if !any {
		return nil
	}
	return out
}

func medianChroma(chroma [][]float64) []float64 {
	out := make([]float64, len(chroma))
	for pc, row := range chroma {
		out[pc] = medianOf(row)
	}
	return out
}

func medianOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func meanOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// weightedVote combines votes by confidence-weighted, source-weighted
// tallying per distinct Camelot key and returns the winner and its
// aggregate confidence in [0, 1].
func weightedVote(votes []vote, weights []float64) (string, float64) {
	scores := map[string]float64{}
	total := 0.0
	for i, v := range votes {
		if v.camelot == "" {
			continue
		}
		w := 0.1
		if i < len(weights) {
			w = weights[i]
		}
		scores[v.camelot] += w * v.confidence
		total += w
	}
	if len(scores) == 0 || total == 0 {
		return "", 0
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return scores[keys[i]] > scores[keys[j]] })
	best := keys[0]
	return best, clamp01(scores[best] / total)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CompatibleKeys returns the harmonically compatible Camelot keys:
// the two adjacent wheel numbers in the same mode, plus the parallel
// mode at the same number.
func CompatibleKeys(camelot string) []string {
	if len(camelot) < 2 {
		return nil
	}
	mode := camelot[len(camelot)-1:]
	var num int
	for _, c := range camelot[:len(camelot)-1] {
		num = num*10 + int(c-'0')
	}
	adj := func(offset int) string {
		n := ((num-1+offset)%12 + 12) % 12
		return itoa(n+1) + mode
	}
	other := "A"
	if mode == "A" {
		other = "B"
	}
	return []string{adj(-1), adj(1), itoa(num) + other}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
