package dsp

import "math"

// RMS computes the per-frame root-mean-square amplitude directly from
// time-domain samples, hopped the same way the STFT is, so RMS and
// spectrogram frames line up index-for-index.
func RMS(samples []float64, frameSize, hop int) []float64 {
	if frameSize <= 0 || hop <= 0 || len(samples) < frameSize {
		return nil
	}
	numFrames := (len(samples)-frameSize)/hop + 1
	out := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		start := i * hop
		sum := 0.0
		for j := 0; j < frameSize && start+j < len(samples); j++ {
			v := samples[start+j]
			sum += v * v
		}
		out[i] = math.Sqrt(sum / float64(frameSize))
	}
	return out
}

// SpectralCentroid computes the per-frame spectral centroid (Hz) from a
// magnitude spectrogram.
func SpectralCentroid(mag [][]float64, sr, fftSize int) []float64 {
	if len(mag) == 0 {
		return nil
	}
	out := make([]float64, len(mag))
	for f, row := range mag {
		var weighted, total float64
		for b, v := range row {
			hz := float64(b) * float64(sr) / float64(fftSize)
			weighted += hz * v
			total += v
		}
		if total > 1e-12 {
			out[f] = weighted / total
		}
	}
	return out
}

// SpectralContrast computes the per-frame difference (in dB) between peak
// and valley energy within numBands roughly log-spaced sub-bands,
// averaged across bands into a single contrast value per frame.
func SpectralContrast(mag [][]float64, sr, fftSize, numBands int) []float64 {
	if len(mag) == 0 {
		return nil
	}
	numBins := len(mag[0])
	edges := make([]int, numBands+1)
	nyquist := float64(sr) / 2
	for i := range edges {
		frac := float64(i) / float64(numBands)
		hz := 20 * math.Pow(nyquist/20, frac)
		edges[i] = int(hz * float64(fftSize) / float64(sr))
		if edges[i] >= numBins {
			edges[i] = numBins - 1
		}
	}
	out := make([]float64, len(mag))
	for f, row := range mag {
		var contrastSum float64
		var bandCount int
		for bnd := 0; bnd < numBands; bnd++ {
			lo, hi := edges[bnd], edges[bnd+1]
			if hi <= lo {
				continue
			}
			peak, valley := 0.0, math.MaxFloat64
			for b := lo; b < hi; b++ {
				if row[b] > peak {
					peak = row[b]
				}
				if row[b] < valley {
					valley = row[b]
				}
			}
			peak += 1e-10
			valley += 1e-10
			contrastSum += 20 * math.Log10(peak/valley)
			bandCount++
		}
		if bandCount > 0 {
			out[f] = contrastSum / float64(bandCount)
		}
	}
	return out
}

// SpectralFlatness computes the per-frame ratio of geometric to arithmetic
// mean spectral energy (the Wiener entropy), in [0, 1], where values near
// 1 indicate noise-like content and values near 0 indicate tonal content.
func SpectralFlatness(mag [][]float64) []float64 {
	if len(mag) == 0 {
		return nil
	}
	out := make([]float64, len(mag))
	for f, row := range mag {
		logSum, sum := 0.0, 0.0
		n := 0
		for _, v := range row {
			p := v*v + 1e-12
			logSum += math.Log(p)
			sum += p
			n++
		}
		if n == 0 {
			continue
		}
		geoMean := math.Exp(logSum / float64(n))
		arithMean := sum / float64(n)
		if arithMean > 1e-12 {
			out[f] = geoMean / arithMean
		}
	}
	return out
}
