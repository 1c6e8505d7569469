package dsp

import "math"

// melFilterbank builds a triangular mel-scaled filterbank with numFilters
// filters spanning 0 Hz to Nyquist, mapped onto numBins linear FFT bins.
func melFilterbank(numFilters, numBins, sr, fftSize int) [][]float64 {
	hzToMel := func(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
	melToHz := func(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

	nyquist := float64(sr) / 2
	melLo, melHi := hzToMel(0), hzToMel(nyquist)

	points := make([]float64, numFilters+2)
	for i := range points {
		mel := melLo + (melHi-melLo)*float64(i)/float64(numFilters+1)
		points[i] = melToHz(mel)
	}
	binPoints := make([]int, len(points))
	for i, hz := range points {
		binPoints[i] = int(math.Floor((float64(fftSize) + 1) * hz / float64(sr)))
	}

	filters := make([][]float64, numFilters)
	for m := 0; m < numFilters; m++ {
		filters[m] = make([]float64, numBins)
		left, center, right := binPoints[m], binPoints[m+1], binPoints[m+2]
		for b := left; b < center && b < numBins; b++ {
			if center > left {
				filters[m][b] = float64(b-left) / float64(center-left)
			}
		}
		for b := center; b < right && b < numBins; b++ {
			if right > center {
				filters[m][b] = float64(right-b) / float64(right-center)
			}
		}
	}
	return filters
}

// dctII computes the first numCoeffs orthonormal DCT-II coefficients of x.
func dctII(x []float64, numCoeffs int) []float64 {
	n := len(x)
	out := make([]float64, numCoeffs)
	for k := 0; k < numCoeffs; k++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += x[i] * math.Cos(math.Pi/float64(n)*(float64(i)+0.5)*float64(k))
		}
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		out[k] = sum * scale
	}
	return out
}

// MFCC computes numCoeffs mel-frequency cepstral coefficients per frame
// from a magnitude spectrogram, using a 40-filter mel bank and a log-power
// compression stage before the DCT, following the standard MFCC recipe.
func MFCC(mag [][]float64, sr, fftSize, numCoeffs int) [][]float64 {
	if len(mag) == 0 {
		return nil
	}
	const numFilters = 40
	numBins := len(mag[0])
	bank := melFilterbank(numFilters, numBins, sr, fftSize)

	out := make([][]float64, len(mag))
	for f, row := range mag {
		melEnergies := make([]float64, numFilters)
		for m, filt := range bank {
			sum := 0.0
			for b, w := range filt {
				if w == 0 {
					continue
				}
				sum += w * row[b] * row[b]
			}
			if sum < 1e-10 {
				sum = 1e-10
			}
			melEnergies[m] = math.Log(sum)
		}
		out[f] = dctII(melEnergies, numCoeffs)
	}
	return out
}
