// Package structure implements the Structure Stage (component E):
// beat-synchronous chroma self-similarity and checkerboard novelty
// detection of song sections (intro, verse, chorus, bridge, breakdown,
// build, outro) with repeat-group and multi-instance labeling. Ported
// directly from original_source/src/backend/pipeline/structure_stage.py,
// replacing librosa's recurrence_matrix/chroma_cqt/beat-sync helpers with
// internal/dsp primitives and gonum/stat percentiles.
package structure

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sonicgrid/cuematrix/internal/dsp"
	"github.com/sonicgrid/cuematrix/internal/model"
)

const checkerboardKernel = 16

// Detect builds the song structure segments from the feature bundle.
func Detect(fb *model.FeatureBundle) []model.Segment {
	if fb.Chroma512 == nil || len(fb.BeatTimes) < 8 {
		return fallbackStructure(fb.Duration)
	}

	beatSync := syncChromaToBeats(fb.Chroma512, fb.BeatFrames, fb.SampleRate, 512)
	if len(beatSync) == 0 || len(beatSync[0]) < 4 {
		return fallbackStructure(fb.Duration)
	}

	rec := recurrenceAffinity(beatSync)
	novelty := checkerboardNovelty(rec, checkerboardKernel)
	noveltySmooth := dsp.GaussianSmooth1D(novelty, 1.5)

	minDist := int(float64(len(noveltySmooth)) * 0.03)
	if minDist < 4 {
		minDist = 4
	}
	height := 0.0
	if len(noveltySmooth) > 10 {
		height = stat.Quantile(0.55, stat.Empirical, append([]float64(nil), noveltySmooth...), nil)
	}
	peaks := dsp.DetectOnsets(noveltySmooth, minDist, 1.0)
	peaks = filterByHeight(peaks, noveltySmooth, height)

	nBeats := len(beatSync[0])
	if nBeats > len(fb.BeatTimes) {
		nBeats = len(fb.BeatTimes)
	}
	boundaryBeats := map[int]bool{0: true, nBeats - 1: true}
	for _, p := range peaks {
		if p < nBeats {
			boundaryBeats[p] = true
		}
	}
	sortedBoundaries := sortedKeys(boundaryBeats)

	var boundaryTimes []float64
	seen := map[float64]bool{}
	for _, bi := range sortedBoundaries {
		clamped := bi
		if clamped >= len(fb.BeatTimes) {
			clamped = len(fb.BeatTimes) - 1
		}
		snapped := int(math.Round(float64(clamped)/4)) * 4
		if snapped < 0 {
			snapped = 0
		}
		if snapped >= len(fb.BeatTimes) {
			snapped = len(fb.BeatTimes) - 1
		}
		t := fb.BeatTimes[snapped]
		if !seen[t] {
			seen[t] = true
			boundaryTimes = append(boundaryTimes, t)
		}
	}
	sort.Float64s(boundaryTimes)
	if len(boundaryTimes) == 0 {
		return fallbackStructure(fb.Duration)
	}
	if boundaryTimes[0] > 1.0 {
		boundaryTimes = append([]float64{0.0}, boundaryTimes...)
	}
	if boundaryTimes[len(boundaryTimes)-1] < fb.Duration-2.0 {
		boundaryTimes = append(boundaryTimes, fb.Duration)
	}

	segs, segChromas := buildSegments(fb, boundaryTimes)
	if len(segs) == 0 {
		return fallbackStructure(fb.Duration)
	}

	groupLabels, groupNames := groupByChromaSimilarity(segChromas)
	return labelSegments(segs, groupLabels, groupNames)
}

type rawSegment struct {
	start, end, duration, rms float64
}

// syncChromaToBeats aggregates chroma frames within each beat interval by
// median, mirroring librosa.util.sync(..., aggregate=np.median).
func syncChromaToBeats(chroma [][]float64, beatFrames []int, sr, hop int) [][]float64 {
	if len(beatFrames) < 2 {
		return nil
	}
	numBeats := len(beatFrames) - 1
	out := make([][]float64, 12)
	for pc := range out {
		out[pc] = make([]float64, numBeats)
	}
	numFrames := len(chroma[0])
	for i := 0; i < numBeats; i++ {
		start, end := beatFrames[i], beatFrames[i+1]
		if start < 0 {
			start = 0
		}
		if end > numFrames {
			end = numFrames
		}
		if end <= start {
			end = start + 1
		}
		for pc := 0; pc < 12; pc++ {
			var window []float64
			for f := start; f < end && f < numFrames; f++ {
				window = append(window, chroma[pc][f])
			}
			out[pc][i] = medianOf(window)
		}
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

// recurrenceAffinity builds a symmetric self-similarity matrix over beat
// columns using a Gaussian affinity kernel on cosine distance, standing
// in for librosa.segment.recurrence_matrix(mode='affinity').
func recurrenceAffinity(beatSync [][]float64) [][]float64 {
	numBeats := len(beatSync[0])
	vectors := make([][]float64, numBeats)
	for i := 0; i < numBeats; i++ {
		v := make([]float64, 12)
		for pc := 0; pc < 12; pc++ {
			v[pc] = beatSync[pc][i]
		}
		vectors[i] = v
	}
	rec := make([][]float64, numBeats)
	for i := range rec {
		rec[i] = make([]float64, numBeats)
	}
	for i := 0; i < numBeats; i++ {
		for j := i; j < numBeats; j++ {
			d := cosineDistance(vectors[i], vectors[j])
			affinity := math.Exp(-d * d / 0.5)
			rec[i][j] = affinity
			rec[j][i] = affinity
		}
	}
	return rec
}

func cosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom < 1e-12 {
		return 1.0
	}
	return 1.0 - dot/denom
}

// checkerboardNovelty convolves a checkerboard kernel along the
// recurrence matrix diagonal, matching structure_stage.py's
// _checkerboard_novelty exactly in shape.
func checkerboardNovelty(rec [][]float64, kernelSize int) []float64 {
	n := len(rec)
	if n == 0 {
		return nil
	}
	k := kernelSize
	if n < k {
		k = n / 2
		if k < 2 {
			k = 2
		}
	}
	half := k / 2
	kernel := make([][]float64, k)
	for i := range kernel {
		kernel[i] = make([]float64, k)
		for j := range kernel[i] {
			kernel[i][j] = 1
		}
	}
	for i := 0; i < half; i++ {
		for j := 0; j < half; j++ {
			kernel[i][j] = -1
		}
	}
	for i := half; i < k; i++ {
		for j := half; j < k; j++ {
			kernel[i][j] = -1
		}
	}

	padded := padReflect(rec, half)
	novelty := make([]float64, n)
	for i := 0; i < n; i++ {
		ii := i + half
		sum := 0.0
		for di := -half; di < half; di++ {
			for dj := -half; dj < half; dj++ {
				sum += padded[ii+di][ii+dj] * kernel[di+half][dj+half]
			}
		}
		novelty[i] = sum
	}
	maxAbs := 0.0
	for _, v := range novelty {
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs > 0 {
		for i := range novelty {
			novelty[i] /= maxAbs
		}
	}
	for i := range novelty {
		if novelty[i] < 0 {
			novelty[i] = 0
		}
	}
	return novelty
}

// padReflect pads a square matrix on all sides by pad using reflection,
// matching numpy.pad(mode='reflect').
func padReflect(m [][]float64, pad int) [][]float64 {
	n := len(m)
	size := n + 2*pad
	out := make([][]float64, size)
	for i := range out {
		out[i] = make([]float64, size)
	}
	reflect := func(i, n int) int {
		if n == 1 {
			return 0
		}
		for i < 0 || i >= n {
			if i < 0 {
				i = -i
			}
			if i >= n {
				i = 2*(n-1) - i
			}
		}
		return i
	}
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			out[i][j] = m[reflect(i-pad, n)][reflect(j-pad, n)]
		}
	}
	return out
}

func filterByHeight(peaks []int, env []float64, height float64) []int {
	var out []int
	for _, p := range peaks {
		if env[p] >= height {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func buildSegments(fb *model.FeatureBundle, boundaryTimes []float64) ([]rawSegment, [][]float64) {
	var segs []rawSegment
	var chromas [][]float64
	hop := 512
	for i := 0; i < len(boundaryTimes)-1; i++ {
		start, end := boundaryTimes[i], boundaryTimes[i+1]
		dur := end - start
		if dur < 1.0 {
			continue
		}
		startFrame := int(start * float64(fb.SampleRate) / float64(hop))
		endFrame := int(end * float64(fb.SampleRate) / float64(hop))
		if endFrame > len(fb.Chroma512[0]) {
			endFrame = len(fb.Chroma512[0])
		}
		if endFrame <= startFrame {
			continue
		}
		segChroma := make([]float64, 12)
		for pc := 0; pc < 12; pc++ {
			sum := 0.0
			for f := startFrame; f < endFrame; f++ {
				sum += fb.Chroma512[pc][f]
			}
			segChroma[pc] = sum / float64(endFrame-startFrame)
		}

		rms := segmentRMS(fb, start, end)
		segs = append(segs, rawSegment{start: start, end: end, duration: dur, rms: rms})
		chromas = append(chromas, segChroma)
	}
	return segs, chromas
}

func segmentRMS(fb *model.FeatureBundle, start, end float64) float64 {
	if fb.RMS512 == nil {
		return 0
	}
	hop := 512
	startIdx := int(start * float64(fb.SampleRate) / float64(hop))
	endIdx := int(end * float64(fb.SampleRate) / float64(hop))
	if endIdx > len(fb.RMS512) {
		endIdx = len(fb.RMS512)
	}
	if endIdx <= startIdx {
		return 0
	}
	sum := 0.0
	for i := startIdx; i < endIdx; i++ {
		sum += fb.RMS512[i] * fb.RMS512[i]
	}
	return math.Sqrt(sum / float64(endIdx-startIdx))
}

// groupByChromaSimilarity clusters segments whose mean chroma cosine
// similarity exceeds 0.85 into the same repeat group, labeled A, B, C...
func groupByChromaSimilarity(chromas [][]float64) ([]int, []string) {
	n := len(chromas)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	var names []string
	current := 0
	for i := 0; i < n; i++ {
		if labels[i] >= 0 {
			continue
		}
		labels[i] = current
		idx := current
		if idx > 25 {
			idx = 25
		}
		names = append(names, string(rune('A'+idx)))
		for j := i + 1; j < n; j++ {
			if labels[j] >= 0 {
				continue
			}
			sim := 1.0 - cosineDistance(chromas[i], chromas[j])
			if sim > 0.85 {
				labels[j] = current
			}
		}
		current++
	}
	return labels, names
}

func labelSegments(segs []rawSegment, groupLabels []int, groupNames []string) []model.Segment {
	n := len(segs)
	rmsValues := make([]float64, n)
	for i, s := range segs {
		rmsValues[i] = s.rms
	}
	sortedRMS := append([]float64(nil), rmsValues...)
	sort.Float64s(sortedRMS)
	p25 := stat.Quantile(0.25, stat.Empirical, sortedRMS, nil)
	p50 := stat.Quantile(0.50, stat.Empirical, sortedRMS, nil)
	p75 := stat.Quantile(0.75, stat.Empirical, sortedRMS, nil)

	groupCounts := map[int]int{}
	for _, g := range groupLabels {
		groupCounts[g]++
	}
	repeated := map[int]bool{}
	for g, c := range groupCounts {
		if c >= 2 {
			repeated[g] = true
		}
	}

	rmsMax := 0.0
	for _, v := range rmsValues {
		if v > rmsMax {
			rmsMax = v
		}
	}

	typeInstance := map[string]int{}
	out := make([]model.Segment, 0, n)
	for i, s := range segs {
		grp := groupLabels[i]
		rms := s.rms
		isFirst := i == 0
		isLast := i == n-1
		isRepeated := repeated[grp]

		var segType string
		switch {
		case isFirst && rms < p50:
			segType = "intro"
		case isLast && rms < p50:
			segType = "outro"
		case isRepeated && rms >= p75:
			segType = "chorus"
		case isRepeated && rms < p50:
			segType = "verse"
		case !isRepeated && rms < p25:
			segType = "breakdown"
		case !isRepeated && rms < p50:
			segType = "bridge"
		case rms >= p75:
			segType = "chorus"
		default:
			segType = "verse"
		}

		if i < n-1 {
			nextRMS := segs[i+1].rms
			if rms < p50 && nextRMS >= p75 && s.duration >= 4.0 && s.duration <= 32.0 {
				segType = "build"
			}
		}

		typeInstance[segType]++
		instance := typeInstance[segType]

		energy := 1.0
		if rmsMax > 1e-10 {
			energy = math.Round((1.0+(rms/(rmsMax+1e-10))*9.0)*10) / 10
		}

		conf := 0.70
		if isRepeated {
			conf += 0.10
		}
		if math.Abs(rms-p50) > (p75-p25)*0.5 {
			conf += 0.08
		}
		if conf > 0.95 {
			conf = 0.95
		}

		group := "?"
		if grp < len(groupNames) {
			group = groupNames[grp]
		}

		out = append(out, model.Segment{
			Type:        segType,
			Start:       round2(s.start),
			End:         round2(s.end),
			Duration:    round2(s.duration),
			Instance:    instance,
			Energy:      energy,
			Confidence:  round2(conf),
			RepeatGroup: group,
		})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// fallbackStructure returns the minimal three-segment structure used when
// beat tracking or chroma sync fails outright.
func fallbackStructure(duration float64) []model.Segment {
	dur := duration
	if dur < 10.0 {
		dur = 10.0
	}
	return []model.Segment{
		{Type: "intro", Start: 0, End: math.Min(30, dur*0.15), Duration: math.Min(30, dur*0.15), Instance: 1, Energy: 3.0, Confidence: 0.5, RepeatGroup: "X"},
		{Type: "verse", Start: math.Min(30, dur*0.15), End: dur * 0.85, Duration: dur * 0.70, Instance: 1, Energy: 5.0, Confidence: 0.5, RepeatGroup: "Y"},
		{Type: "outro", Start: dur * 0.85, End: dur, Duration: dur * 0.15, Instance: 1, Energy: 3.0, Confidence: 0.5, RepeatGroup: "Z"},
	}
}
