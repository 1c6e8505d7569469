package dsp

import "math"

// OnsetStrength computes a spectral-flux onset strength envelope: the
// half-wave rectified frame-to-frame increase in log-magnitude energy,
// summed across frequency bins. This is the standard onset envelope used
// by the tempo estimators and the feature bundle's beat tracking.
func OnsetStrength(mag [][]float64) []float64 {
	if len(mag) < 2 {
		return make([]float64, len(mag))
	}
	logMag := make([][]float64, len(mag))
	for f, row := range mag {
		logMag[f] = make([]float64, len(row))
		for b, v := range row {
			logMag[f][b] = math.Log1p(v * 1000)
		}
	}
	out := make([]float64, len(mag))
	for f := 1; f < len(logMag); f++ {
		sum := 0.0
		for b := range logMag[f] {
			d := logMag[f][b] - logMag[f-1][b]
			if d > 0 {
				sum += d
			}
		}
		out[f] = sum
	}
	out[0] = out[1]
	return out
}

// PercussiveOnsetStrength is like OnsetStrength but restricted to the
// percussive component of a harmonic/percussive-separated spectrogram,
// used by the percussive-onset tempo estimator.
func PercussiveOnsetStrength(percussiveMag [][]float64) []float64 {
	return OnsetStrength(percussiveMag)
}

// DetectOnsets picks local maxima in an onset strength envelope that
// exceed meanFactor times the local mean within a window of minSpacing
// frames, returning their frame indices.
func DetectOnsets(onsetEnv []float64, minSpacing int, meanFactor float64) []int {
	if len(onsetEnv) == 0 {
		return nil
	}
	var peaks []int
	for i := 1; i < len(onsetEnv)-1; i++ {
		if onsetEnv[i] <= onsetEnv[i-1] || onsetEnv[i] <= onsetEnv[i+1] {
			continue
		}
		lo, hi := i-minSpacing, i+minSpacing
		if lo < 0 {
			lo = 0
		}
		if hi >= len(onsetEnv) {
			hi = len(onsetEnv) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += onsetEnv[j]
		}
		mean := sum / float64(hi-lo+1)
		if onsetEnv[i] > mean*meanFactor {
			if len(peaks) > 0 && i-peaks[len(peaks)-1] < minSpacing {
				if onsetEnv[i] > onsetEnv[peaks[len(peaks)-1]] {
					peaks[len(peaks)-1] = i
				}
				continue
			}
			peaks = append(peaks, i)
		}
	}
	return peaks
}

// Autocorrelate computes the unbiased autocorrelation of x up to maxLag.
func Autocorrelate(x []float64, maxLag int) []float64 {
	n := len(x)
	if maxLag >= n {
		maxLag = n - 1
	}
	out := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag; lag++ {
		sum := 0.0
		for i := 0; i+lag < n; i++ {
			sum += x[i] * x[i+lag]
		}
		out[lag] = sum / float64(n-lag)
	}
	return out
}
