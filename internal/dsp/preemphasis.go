package dsp

// PreEmphasis applies a first-order high-pass filter y[n] = x[n] -
// alpha*x[n-1], boosting high frequencies before the key detector's
// enhanced-chroma estimator runs its STFT, which otherwise favors the
// low end where bass and kick energy dominate.
func PreEmphasis(samples []float64, alpha float64) []float64 {
	if len(samples) == 0 {
		return nil
	}
	out := make([]float64, len(samples))
	out[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		out[i] = samples[i] - alpha*samples[i-1]
	}
	return out
}
