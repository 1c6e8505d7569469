// Package loudness implements ITU-R BS.1770-style integrated loudness
// measurement (LUFS): a two-stage K-weighting filter (a high-frequency
// shelf plus a high-pass), 400ms gated-block mean-square energy, and the
// standard absolute (-70 LUFS) plus relative (-10 LU) gating passes.
//
// No example repo or other_examples/ file in the retrieval pack implements
// loudness measurement in any form (BS.1770, EBU R128, or otherwise), so
// this package is the one part of the pipeline built entirely against the
// published algorithm rather than against a pack example; see DESIGN.md
// for the corresponding standard-library justification entry.
package loudness

import "math"

// biquad is a direct-form II transposed second-order IIR section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	z1, z2             float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

// kWeightingFilters builds the pre-filter (high-frequency shelf) and the
// RLB high-pass filter from BS.1770's published design equations,
// re-derived per sample rate via the bilinear transform so the filters
// stay correct away from the reference 48kHz.
func kWeightingFilters(sr float64) (shelf, highpass *biquad) {
	// Stage 1: high-frequency shelving filter (+4 dB above ~1.5kHz).
	fc := 1681.9744509555319
	gain := 3.99984385397
	q := 0.7071752369554193

	k := math.Tan(math.Pi * fc / sr)
	vh := math.Pow(10, gain/20)
	vb := math.Pow(vh, 0.4996667741545416)

	a0 := 1 + k/q + k*k
	shelf = &biquad{
		b0: (vh + vb*k/q + k*k) / a0,
		b1: 2 * (k*k - vh) / a0,
		b2: (vh - vb*k/q + k*k) / a0,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}

	// Stage 2: RLB high-pass filter (~38Hz).
	fc2 := 38.13547087613982
	q2 := 0.5003270373238773
	k2 := math.Tan(math.Pi * fc2 / sr)
	a02 := 1 + k2/q2 + k2*k2
	highpass = &biquad{
		b0: 1,
		b1: -2,
		b2: 1,
		a1: 2 * (k2*k2 - 1) / a02,
		a2: (1 - k2/q2 + k2*k2) / a02,
	}
	return shelf, highpass
}

// Weight applies the K-weighting filter chain to a mono signal and
// returns the weighted signal as a new slice; samples is not modified.
func Weight(samples []float64, sr int) []float64 {
	shelf, highpass := kWeightingFilters(float64(sr))
	out := make([]float64, len(samples))
	for i, x := range samples {
		out[i] = highpass.process(shelf.process(x))
	}
	return out
}

const (
	blockSeconds   = 0.4
	overlapPercent = 0.75
	absoluteGate   = -70.0
	relativeGate   = -10.0
)

// Integrated computes the integrated LUFS loudness of a mono track and,
// as a byproduct, a coarser LUFS-over-time curve sampled once per
// ungated block, matching the EnergyProfile.LUFSCurve shape.
func Integrated(samples []float64, sr int) (integratedLUFS float64, curve []float64, curveTimes []float64) {
	weighted := Weight(samples, sr)
	blockSize := int(blockSeconds * float64(sr))
	if blockSize <= 0 || len(weighted) < blockSize {
		return math.Inf(-1), nil, nil
	}
	hop := int(float64(blockSize) * (1 - overlapPercent))
	if hop < 1 {
		hop = 1
	}

	var blockPower []float64
	var blockTimes []float64
	for start := 0; start+blockSize <= len(weighted); start += hop {
		sum := 0.0
		for i := start; i < start+blockSize; i++ {
			sum += weighted[i] * weighted[i]
		}
		meanSquare := sum / float64(blockSize)
		blockPower = append(blockPower, meanSquare)
		blockTimes = append(blockTimes, float64(start)/float64(sr))
	}
	if len(blockPower) == 0 {
		return math.Inf(-1), nil, nil
	}

	curve = make([]float64, len(blockPower))
	for i, p := range blockPower {
		curve[i] = powerToLUFS(p)
	}
	curveTimes = blockTimes

	// Absolute gate: discard blocks below -70 LUFS.
	var gated []float64
	for _, p := range blockPower {
		if powerToLUFS(p) > absoluteGate {
			gated = append(gated, p)
		}
	}
	if len(gated) == 0 {
		return math.Inf(-1), nil, nil
	}
	ungatedMean := meanOf(gated)
	relativeThreshold := powerToLUFS(ungatedMean) + relativeGate

	var finalGated []float64
	for _, p := range gated {
		if powerToLUFS(p) > relativeThreshold {
			finalGated = append(finalGated, p)
		}
	}
	if len(finalGated) == 0 {
		finalGated = gated
	}
	return powerToLUFS(meanOf(finalGated)), curve, curveTimes
}

func powerToLUFS(meanSquare float64) float64 {
	if meanSquare <= 0 {
		return math.Inf(-1)
	}
	return -0.691 + 10*math.Log10(meanSquare)
}

func meanOf(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// GainToTarget returns the gain (dB) needed to bring integratedLUFS to
// targetLUFS, the common -14 LUFS streaming-normalization reference.
func GainToTarget(integratedLUFS, targetLUFS float64) float64 {
	if math.IsInf(integratedLUFS, -1) {
		return 0
	}
	return targetLUFS - integratedLUFS
}
