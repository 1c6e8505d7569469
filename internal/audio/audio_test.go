package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonicgrid/cuematrix/internal/errs"
)

// buildWAV assembles a minimal 16-bit PCM mono RIFF/WAVE buffer containing
// the given samples at the given sample rate.
func buildWAV(samples []int16, sampleRate uint32) []byte {
	dataSize := len(samples) * 2
	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], sampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return buf
}

func TestDecodeWAVRoundTripsSamples(t *testing.T) {
	samples := []int16{0, 16384, -16384, 32767}
	buf := buildWAV(samples, 44100)
	out, sr, err := decodeWAV(buf)
	require.NoError(t, err)
	assert.Equal(t, 44100, sr)
	require.Len(t, out, len(samples))
	assert.InDelta(t, 0.5, out[1], 1e-3)
	assert.InDelta(t, -0.5, out[2], 1e-3)
}

func TestDecodeWAVTooShortErrors(t *testing.T) {
	_, _, err := decodeWAV([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestLoadRIFForAIFFRejectsUnknownContainer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bogus.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a riff file at all"), 0o644))
	_, _, err := loadRIFForAIFF(path)
	assert.Error(t, err)
}

func TestLoadWAVFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	samples := make([]int16, 44100*2) // 2 seconds, satisfies the 1s minimum
	for i := range samples {
		samples[i] = int16((i % 100) * 300)
	}
	require.NoError(t, os.WriteFile(path, buildWAV(samples, 44100), 0o644))

	track, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, track.SampleRate)
	assert.Greater(t, track.Duration, 1.0)
	assert.InDelta(t, 1.0, maxAbs(track.PCM), 1e-6)
}

func TestLoadRejectsTooShortAudio(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiny.wav")
	samples := make([]int16, 100)
	require.NoError(t, os.WriteFile(path, buildWAV(samples, 44100), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, errs.ErrInsufficientAudio)
}

func maxAbs(samples []float64) float64 {
	peak := 0.0
	for _, v := range samples {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

func TestNormalizePeakScalesToUnity(t *testing.T) {
	samples := []float64{0.5, -2.0, 1.0}
	normalizePeak(samples)
	assert.InDelta(t, 0.25, samples[0], 1e-9)
	assert.InDelta(t, -1.0, samples[1], 1e-9)
}

func TestNormalizePeakSilenceIsUntouched(t *testing.T) {
	samples := []float64{0, 0, 0}
	normalizePeak(samples)
	assert.Equal(t, []float64{0, 0, 0}, samples)
}

func TestDecodeIEEE80UnbiasedExponentAndMantissa(t *testing.T) {
	// biased exponent 0x3FFF (actual exponent 0) with an explicit leading-1
	// mantissa of 2^63 decodes to exactly 1.0.
	b := []byte{0x3F, 0xFF, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	assert.InDelta(t, 1.0, decodeIEEE80(b), 1e-9)
}

func TestDecodeIEEE80TooShortFallsBackTo44100(t *testing.T) {
	assert.Equal(t, 44100.0, decodeIEEE80([]byte{1, 2, 3}))
}

func TestReadLAMEEncoderDelayMissingHeaderFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nolame.mp3")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))
	assert.Equal(t, defaultEncoderDelay, readLAMEEncoderDelay(path))
}

func TestReadLAMEEncoderDelayMissingFileFallsBack(t *testing.T) {
	assert.Equal(t, defaultEncoderDelay, readLAMEEncoderDelay("/nonexistent/path.mp3"))
}
