// Package features implements the Feature Cache (component A): it runs
// every DSP primitive in internal/dsp once per track and assembles the
// results into a model.FeatureBundle that every detector stage reads
// from, so no detector ever re-runs an STFT or re-decodes audio.
package features

import (
	"fmt"

	"github.com/sonicgrid/cuematrix/internal/dsp"
	"github.com/sonicgrid/cuematrix/internal/errs"
	"github.com/sonicgrid/cuematrix/internal/model"
)

const (
	hpssKernel       = 17
	hpssMargin       = 8.0
	preEmphasisAlpha = 0.97
)

// Compute builds the full FeatureBundle for a decoded track. Individual
// features that fail to compute are recorded via FeatureBundle.Failed and
// left nil rather than aborting the whole bundle; only a track shorter
// than one second is a hard failure, surfaced before this is ever called.
func Compute(track *model.Track) (*model.FeatureBundle, error) {
	if track.Duration < 1.0 {
		return nil, fmt.Errorf("%w: %.3fs", errs.ErrInsufficientAudio, track.Duration)
	}

	fb := &model.FeatureBundle{
		SampleRate: track.SampleRate,
		Duration:   track.Duration,
	}

	mag512 := safeSTFT(fb, "stft_512", track.PCM, dsp.STFTConfig{FFTSize: 2048, HopSize: 512})
	if mag512 != nil {
		fb.STFTMag = mag512
		fb.FreqBins = binFrequencies(len(mag512[0]), track.SampleRate, 2048)
		fb.Tuning = dsp.EstimateTuning(mag512, track.SampleRate, 2048)

		preEmph := dsp.PreEmphasis(track.PCM, preEmphasisAlpha)
		magPreEmph512 := safeSTFT(fb, "stft_512_preemph", preEmph, dsp.STFTConfig{FFTSize: 2048, HopSize: 512})
		if magPreEmph512 != nil {
			fb.ChromaPreEmph512 = dsp.Chroma(magPreEmph512, track.SampleRate, 2048, fb.Tuning)
		} else {
			fb.Failed("chroma_512_preemph")
		}
	}

	mag256 := safeSTFT(fb, "stft_256", track.PCM, dsp.STFTConfig{FFTSize: 1024, HopSize: 256})
	mag1024 := safeSTFT(fb, "stft_1024", track.PCM, dsp.STFTConfig{FFTSize: 4096, HopSize: 1024})
	mag2048 := safeSTFT(fb, "stft_2048", track.PCM, dsp.STFTConfig{FFTSize: 8192, HopSize: 2048})

	if mag256 != nil {
		fb.Chroma256 = dsp.Chroma(mag256, track.SampleRate, 1024, fb.Tuning)
		fb.SpectralCentroid256 = dsp.SpectralCentroid(mag256, track.SampleRate, 1024)
		fb.OnsetEnv256 = dsp.OnsetStrength(mag256)
	} else {
		fb.Failed("chroma_256")
		fb.Failed("spectral_centroid_256")
		fb.Failed("onset_env_256")
	}

	if mag512 != nil {
		fb.Chroma512 = dsp.Chroma(mag512, track.SampleRate, 2048, fb.Tuning)
		fb.SpectralCentroid512 = dsp.SpectralCentroid(mag512, track.SampleRate, 2048)
		fb.OnsetEnv512 = dsp.OnsetStrength(mag512)
		fb.MFCC512 = dsp.MFCC(mag512, track.SampleRate, 2048, 13)

		harm, perc := dsp.HPSS(mag512, hpssKernel, hpssMargin)
		fb.YHarm = collapseToTime(harm)
		fb.YPerc = collapseToTime(perc)
		fb.OnsetEnvPerc512 = dsp.PercussiveOnsetStrength(perc)
		fb.ChromaHarm512 = dsp.Chroma(harm, track.SampleRate, 2048, fb.Tuning)
		fb.SpectralContrast512 = dsp.SpectralContrast(mag512, track.SampleRate, 2048, 6)
		fb.SpectralFlatness512 = dsp.SpectralFlatness(mag512)
	} else {
		fb.Failed("chroma_512")
		fb.Failed("spectral_centroid_512")
		fb.Failed("onset_env_512")
		fb.Failed("mfcc_512")
		fb.Failed("hpss")
	}

	if mag1024 != nil {
		fb.Chroma1024 = dsp.Chroma(mag1024, track.SampleRate, 4096, fb.Tuning)
		fb.SpectralCentroid1024 = dsp.SpectralCentroid(mag1024, track.SampleRate, 4096)
		harm1024, _ := dsp.HPSS(mag1024, hpssKernel, hpssMargin)
		fb.ChromaHarm1024 = dsp.Chroma(harm1024, track.SampleRate, 4096, fb.Tuning)
	} else {
		fb.Failed("chroma_1024")
		fb.Failed("spectral_centroid_1024")
	}

	if mag2048 != nil {
		fb.Chroma2048 = dsp.Chroma(mag2048, track.SampleRate, 8192, fb.Tuning)
		fb.SpectralCentroid2048 = dsp.SpectralCentroid(mag2048, track.SampleRate, 8192)
	} else {
		fb.Failed("chroma_2048")
		fb.Failed("spectral_centroid_2048")
	}

	fb.RMS512 = safeRMS(fb, "rms_512", track.PCM, 2048, 512)
	fb.RMS1024 = safeRMS(fb, "rms_1024", track.PCM, 4096, 1024)

	computeBeatgrid(fb, track)

	return fb, nil
}

// safeSTFT recovers from any panic in the gonum FFT path (e.g. a track
// too short for the configured FFT size) and records the feature as
// failed rather than letting one bad feature abort the whole bundle.
func safeSTFT(fb *model.FeatureBundle, name string, samples []float64, cfg dsp.STFTConfig) (mag [][]float64) {
	defer func() {
		if r := recover(); r != nil {
			fb.Failed(name)
			mag = nil
		}
	}()
	mag = dsp.STFT(samples, cfg)
	if mag == nil {
		fb.Failed(name)
	}
	return mag
}

func safeRMS(fb *model.FeatureBundle, name string, samples []float64, frameSize, hop int) (out []float64) {
	defer func() {
		if r := recover(); r != nil {
			fb.Failed(name)
			out = nil
		}
	}()
	out = dsp.RMS(samples, frameSize, hop)
	if out == nil {
		fb.Failed(name)
	}
	return out
}

func computeBeatgrid(fb *model.FeatureBundle, track *model.Track) {
	if fb.OnsetEnv512 == nil {
		fb.Failed("beat_track")
		fb.Tempo = 120
		return
	}
	_, bpm := dsp.EstimateTempo(fb.OnsetEnv512, track.SampleRate, 512, 60, 200)
	if bpm <= 0 {
		fb.Failed("tempo_estimate")
		fb.Tempo = 120
		return
	}
	fb.Tempo = bpm

	periodFrames := int(60.0 * float64(track.SampleRate) / 512.0 / bpm)
	if periodFrames < 1 {
		periodFrames = 1
	}
	beatFrames := dsp.BeatTrack(fb.OnsetEnv512, periodFrames)
	if len(beatFrames) == 0 {
		fb.Failed("beat_track")
		return
	}
	fb.BeatFrames = beatFrames
	fb.BeatTimes = dsp.FramesToTime(beatFrames, track.SampleRate, 512)
}

// binFrequencies returns the center frequency (Hz) of each linear FFT bin.
func binFrequencies(numBins, sr, fftSize int) []float64 {
	out := make([]float64, numBins)
	for i := range out {
		out[i] = float64(i) * float64(sr) / float64(fftSize)
	}
	return out
}

// collapseToTime sums a magnitude spectrogram's energy per frame, used to
// produce a scalar-per-frame harmonic/percussive energy signal from the
// HPSS component spectrograms.
func collapseToTime(mag [][]float64) []float64 {
	out := make([]float64, len(mag))
	for f, row := range mag {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		out[f] = sum
	}
	return out
}
