package dsp

import "math"

// Chroma computes a 12-bin pitch-class chromagram from an STFT magnitude
// spectrogram by folding each frequency bin into its nearest pitch class
// relative to A440 (adjusted by tuning, in semitones), weighting by bin
// energy: a constant-Q-style mapping that stands in for a true CQT
// chromagram. Each output frame is L2-normalized.
func Chroma(mag [][]float64, sr, fftSize int, tuning float64) [][]float64 {
	if len(mag) == 0 {
		return nil
	}
	numBins := len(mag[0])
	binHz := func(b int) float64 { return float64(b) * float64(sr) / float64(fftSize) }

	pitchClass := make([]int, numBins)
	for b := 0; b < numBins; b++ {
		hz := binHz(b)
		if hz < 20 {
			pitchClass[b] = -1
			continue
		}
		midi := 69 + 12*math.Log2(hz/440.0) - tuning
		pc := int(math.Round(midi)) % 12
		if pc < 0 {
			pc += 12
		}
		pitchClass[b] = pc
	}

	chroma := make([][]float64, 12)
	for i := range chroma {
		chroma[i] = make([]float64, len(mag))
	}
	for f, row := range mag {
		for b, v := range row {
			pc := pitchClass[b]
			if pc < 0 {
				continue
			}
			chroma[pc][f] += v * v // energy weighting
		}
		// L2 normalize this frame across the 12 pitch classes.
		norm := 0.0
		for pc := 0; pc < 12; pc++ {
			norm += chroma[pc][f] * chroma[pc][f]
		}
		norm = math.Sqrt(norm)
		if norm > 1e-12 {
			for pc := 0; pc < 12; pc++ {
				chroma[pc][f] /= norm
			}
		}
	}
	return chroma
}

// EstimateTuning estimates a small deviation (in semitones) of the track's
// tuning from A440 by histogramming the fractional pitch of the strongest
// spectral peak in each STFT frame.
func EstimateTuning(mag [][]float64, sr, fftSize int) float64 {
	if len(mag) == 0 {
		return 0
	}
	const nBins = 30 // 1/30-semitone bins across +/-0.5 semitone
	hist := make([]float64, nBins)
	for _, row := range mag {
		maxIdx, maxVal := 0, 0.0
		for b, v := range row {
			if v > maxVal {
				maxVal = v
				maxIdx = b
			}
		}
		if maxIdx == 0 || maxVal <= 0 {
			continue
		}
		hz := float64(maxIdx) * float64(sr) / float64(fftSize)
		if hz < 20 {
			continue
		}
		midi := 69 + 12*math.Log2(hz/440.0)
		frac := midi - math.Round(midi) // in [-0.5, 0.5)
		bin := int((frac + 0.5) * float64(nBins))
		if bin < 0 {
			bin = 0
		}
		if bin >= nBins {
			bin = nBins - 1
		}
		hist[bin] += maxVal
	}
	best, bestVal := 0, -1.0
	for i, v := range hist {
		if v > bestVal {
			bestVal = v
			best = i
		}
	}
	return float64(best)/float64(nBins) - 0.5
}

// MeanChroma averages a chromagram across time into a single 12-vector.
func MeanChroma(chroma [][]float64) []float64 {
	if len(chroma) == 0 {
		return nil
	}
	out := make([]float64, len(chroma))
	for pc, row := range chroma {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		if len(row) > 0 {
			out[pc] = sum / float64(len(row))
		}
	}
	return out
}

// GeoMeanChroma computes the geometric mean of each pitch class across
// time, after flooring values at floorVal (used by the harmonic key
// detection method).
func GeoMeanChroma(chroma [][]float64, floorVal float64) []float64 {
	if len(chroma) == 0 {
		return nil
	}
	out := make([]float64, len(chroma))
	for pc, row := range chroma {
		if len(row) == 0 {
			continue
		}
		logSum := 0.0
		for _, v := range row {
			if v < floorVal {
				v = floorVal
			}
			logSum += math.Log(v)
		}
		out[pc] = math.Exp(logSum / float64(len(row)))
	}
	return out
}
