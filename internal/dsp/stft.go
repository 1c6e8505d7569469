// Package dsp provides the DSP primitives the pipeline needs: STFT,
// chroma, MFCC, RMS, spectral descriptors, onset strength, beat tracking,
// HPSS, resampling, and tuning estimation, all as pure-Go routines backed
// by gonum's FFT. No CGO or vendored DSP library ships with this module.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// STFTConfig describes one short-time Fourier transform configuration.
type STFTConfig struct {
	FFTSize int
	HopSize int
}

// STFT computes the magnitude spectrogram, returned as [frames][bins].
func STFT(samples []float64, cfg STFTConfig) [][]float64 {
	if cfg.FFTSize <= 0 || cfg.HopSize <= 0 || len(samples) < cfg.FFTSize {
		return nil
	}
	window := HannWindow(cfg.FFTSize)
	fft := fourier.NewFFT(cfg.FFTSize)

	numFrames := (len(samples)-cfg.FFTSize)/cfg.HopSize + 1
	if numFrames <= 0 {
		return nil
	}
	numBins := cfg.FFTSize/2 + 1

	out := make([][]float64, numFrames)
	frame := make([]float64, cfg.FFTSize)
	for i := 0; i < numFrames; i++ {
		start := i * cfg.HopSize
		for j := range frame {
			frame[j] = 0
		}
		for j := 0; j < cfg.FFTSize && start+j < len(samples); j++ {
			frame[j] = samples[start+j] * window[j]
		}
		coeffs := fft.Coefficients(nil, frame)
		row := make([]float64, numBins)
		scale := 2.0 / float64(cfg.FFTSize)
		for b := 0; b < numBins; b++ {
			s := scale
			if b == 0 || b == numBins-1 {
				s = 1.0 / float64(cfg.FFTSize)
			}
			re, im := real(coeffs[b]), imag(coeffs[b])
			row[b] = math.Sqrt(re*re+im*im) * s
		}
		out[i] = row
	}
	return out
}

// HannWindow returns a symmetric Hann window of the given size (both
// endpoints are zero).
func HannWindow(size int) []float64 {
	w := make([]float64, size)
	if size == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}

// FramesToTime converts frame indices to seconds given hop size and sample rate.
func FramesToTime(frames []int, sr, hop int) []float64 {
	out := make([]float64, len(frames))
	for i, f := range frames {
		out[i] = float64(f*hop) / float64(sr)
	}
	return out
}

// TimesToFrames converts times in seconds to frame indices given hop size and sample rate.
func TimesToFrames(times []float64, sr, hop int) []int {
	out := make([]int, len(times))
	for i, t := range times {
		out[i] = int(math.Round(t * float64(sr) / float64(hop)))
	}
	return out
}

// FrameToTime converts a single frame index to seconds.
func FrameToTime(frame, sr, hop int) float64 {
	return float64(frame*hop) / float64(sr)
}

// Resample performs linear-interpolation resampling by factor, returning
// len(x)*factor samples.
// This is a simplified stand-in for the "resample" DSP primitive; the
// pipeline only ever resamples small onset-envelope arrays for the
// multi-scale tempo estimator, where linear interpolation is adequate.
func Resample(x []float64, factor float64) []float64 {
	if factor <= 0 || len(x) == 0 {
		return nil
	}
	n := int(float64(len(x)) * factor)
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	for i := range out {
		srcPos := float64(i) / factor
		i0 := int(math.Floor(srcPos))
		i1 := i0 + 1
		frac := srcPos - float64(i0)
		var v0, v1 float64
		if i0 >= 0 && i0 < len(x) {
			v0 = x[i0]
		}
		if i1 >= 0 && i1 < len(x) {
			v1 = x[i1]
		} else {
			v1 = v0
		}
		out[i] = v0 + (v1-v0)*frac
	}
	return out
}

// GaussianSmooth1D applies a 1-D Gaussian smoothing filter with std-dev sigma.
func GaussianSmooth1D(x []float64, sigma float64) []float64 {
	if sigma <= 0 || len(x) == 0 {
		return append([]float64(nil), x...)
	}
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	out := make([]float64, len(x))
	for i := range x {
		acc := 0.0
		for k := -radius; k <= radius; k++ {
			idx := i + k
			if idx < 0 {
				idx = 0
			}
			if idx >= len(x) {
				idx = len(x) - 1
			}
			acc += x[idx] * kernel[k+radius]
		}
		out[i] = acc
	}
	return out
}
