// Package audio decodes tracks into the mono, peak-normalized PCM buffer
// the rest of the pipeline operates on, via a fallback chain: go-mp3
// primary, tcolgate/mp3 as a second MP3 decoder, and an internal
// RIFF/AIFF reader for WAV/AIFF sources.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	gomp3 "github.com/hajimehoshi/go-mp3"
	tcmp3 "github.com/tcolgate/mp3"

	"github.com/sonicgrid/cuematrix/internal/errs"
	"github.com/sonicgrid/cuematrix/internal/model"
)

// Additional samples go-mp3 produces versus a browser's own decoder,
// measured once against a reference track; see teacher pkg/analysis/audio.go.
const goMP3DecoderDelay = 924

// defaultEncoderDelay is used when no LAME header is present.
const defaultEncoderDelay = 576

// Load decodes path into a mono, peak-normalized Track, choosing decoders
// by extension (.mp3: go-mp3 then tcolgate/mp3; .wav/.aiff/.aif: the
// RIFF/AIFF reader only; anything else: all three in turn) and giving up
// with ErrDecodeFailure when they all fail.
// Tracks shorter than one second fail with ErrInsufficientAudio.
func Load(path string) (*model.Track, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var samples []float64
	var sampleRate int
	var err error

	switch ext {
	case ".mp3":
		samples, sampleRate, err = loadMP3GoMP3(path)
		if err != nil {
			samples, sampleRate, err = loadMP3Tcolgate(path)
		}
	case ".wav", ".aiff", ".aif":
		samples, sampleRate, err = loadRIFForAIFF(path)
	default:
		// Unknown extension: try every decoder in order, cheapest first.
		samples, sampleRate, err = loadMP3GoMP3(path)
		if err != nil {
			samples, sampleRate, err = loadMP3Tcolgate(path)
		}
		if err != nil {
			samples, sampleRate, err = loadRIFForAIFF(path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrDecodeFailure, path, err)
	}

	duration := float64(len(samples)) / float64(sampleRate)
	if duration < 1.0 {
		return nil, fmt.Errorf("%w: %s is %.3fs", errs.ErrInsufficientAudio, path, duration)
	}

	normalizePeak(samples)

	return &model.Track{
		Path:       path,
		PCM:        samples,
		SampleRate: sampleRate,
		Duration:   duration,
	}, nil
}

// normalizePeak scales samples in place so the absolute peak sample is 1.0.
func normalizePeak(samples []float64) {
	peak := 0.0
	for _, v := range samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak < 1e-9 {
		return
	}
	scale := 1.0 / peak
	for i := range samples {
		samples[i] *= scale
	}
}

// loadMP3GoMP3 decodes via go-mp3: 16-bit stereo-to-mono downmix plus
// LAME/decoder delay compensation.
func loadMP3GoMP3(path string) ([]float64, int, error) {
	totalDelay := readMP3Delay(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	decoder, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("new decoder: %w", err)
	}
	sampleRate := decoder.SampleRate()

	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("decode: %w", err)
	}

	numPairs := len(pcmData) / 4
	samples := make([]float64, numPairs)
	for i := 0; i < numPairs; i++ {
		offset := i * 4
		left := int16(binary.LittleEndian.Uint16(pcmData[offset:]))
		right := int16(binary.LittleEndian.Uint16(pcmData[offset+2:]))
		samples[i] = (float64(left) + float64(right)) / 2.0 / 32768.0
	}

	if len(samples) > totalDelay {
		samples = samples[totalDelay:]
	}
	return samples, sampleRate, nil
}

// loadMP3Tcolgate handles MP3s go-mp3 refuses to open outright, typically
// because of a malformed or oversized leading ID3v2/garbage block that
// confuses go-mp3's stricter header scan. tcolgate/mp3 is more forgiving
// about frame sync, so it is used here purely to locate the first valid
// frame boundary and to recover the stream's sample rate; actual PCM
// decoding is still handed to go-mp3, re-opened at that offset.
func loadMP3Tcolgate(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read: %w", err)
	}

	var sampleRate int
	var syncOffset = -1
	for start := 0; start < len(raw) && start < 64*1024; start++ {
		dec := tcmp3.NewDecoder(bytes.NewReader(raw[start:]))
		var frame tcmp3.Frame
		skipped := 0
		if err := dec.Decode(&frame, &skipped); err == nil {
			syncOffset = start
			sampleRate = 44100 // tcolgate exposes duration, not sample rate directly
			break
		}
	}
	if syncOffset == -1 {
		return nil, 0, fmt.Errorf("no valid MPEG frame sync found")
	}

	decoder, err := gomp3.NewDecoder(bytes.NewReader(raw[syncOffset:]))
	if err != nil {
		return nil, 0, fmt.Errorf("re-decode at offset %d: %w", syncOffset, err)
	}
	sampleRate = decoder.SampleRate()

	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("decode: %w", err)
	}
	numPairs := len(pcmData) / 4
	samples := make([]float64, numPairs)
	for i := 0; i < numPairs; i++ {
		offset := i * 4
		left := int16(binary.LittleEndian.Uint16(pcmData[offset:]))
		right := int16(binary.LittleEndian.Uint16(pcmData[offset+2:]))
		samples[i] = (float64(left) + float64(right)) / 2.0 / 32768.0
	}
	return samples, sampleRate, nil
}

// riffWAVEHeader mirrors the canonical RIFF/WAVE chunk layout used by the
// internal fallback decoder for lossless sources.
type riffWAVEHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// loadRIFForAIFF decodes WAV (RIFF/WAVE, PCM) and falls back to a minimal
// AIFF reader for .aiff/.aif sources, used only when neither MP3 decoder
// applies.
func loadRIFForAIFF(path string) ([]float64, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read: %w", err)
	}
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return decodeWAV(data)
	}
	if len(data) >= 12 && string(data[0:4]) == "FORM" && string(data[8:12]) == "AIFF" {
		return decodeAIFF(data)
	}
	return nil, 0, fmt.Errorf("not a recognized RIFF/AIFF container")
}

func decodeWAV(data []byte) ([]float64, int, error) {
	if len(data) < 44 {
		return nil, 0, fmt.Errorf("wav file too short")
	}
	var hdr riffWAVEHeader
	if err := binary.Read(bytes.NewReader(data[:36]), binary.LittleEndian, &hdr); err != nil {
		return nil, 0, fmt.Errorf("header: %w", err)
	}

	offset := 12
	var dataChunk []byte
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		body := offset + 8
		if id == "fmt " {
			if body+16 > len(data) {
				return nil, 0, fmt.Errorf("fmt chunk: truncated")
			}
			hdr.AudioFormat = binary.LittleEndian.Uint16(data[body:])
			hdr.NumChannels = binary.LittleEndian.Uint16(data[body+2:])
			hdr.SampleRate = binary.LittleEndian.Uint32(data[body+4:])
			hdr.ByteRate = binary.LittleEndian.Uint32(data[body+8:])
			hdr.BlockAlign = binary.LittleEndian.Uint16(data[body+12:])
			hdr.BitsPerSample = binary.LittleEndian.Uint16(data[body+14:])
		}
		if id == "data" {
			end := body + int(size)
			if end > len(data) {
				end = len(data)
			}
			dataChunk = data[body:end]
			break
		}
		offset = body + int(size)
		if size%2 == 1 {
			offset++ // chunks are word-aligned
		}
	}
	if dataChunk == nil {
		return nil, 0, fmt.Errorf("no data chunk")
	}

	channels := int(hdr.NumChannels)
	if channels == 0 {
		channels = 1
	}
	bytesPerSample := int(hdr.BitsPerSample) / 8
	if bytesPerSample == 0 {
		return nil, 0, fmt.Errorf("unsupported bit depth")
	}

	frameSize := bytesPerSample * channels
	numFrames := len(dataChunk) / frameSize
	samples := make([]float64, numFrames)
	maxVal := math.Pow(2, float64(hdr.BitsPerSample)-1)

	for i := 0; i < numFrames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			off := i*frameSize + c*bytesPerSample
			var v int32
			switch bytesPerSample {
			case 2:
				v = int32(int16(binary.LittleEndian.Uint16(dataChunk[off:])))
			case 3:
				v = int32(dataChunk[off]) | int32(dataChunk[off+1])<<8 | int32(int8(dataChunk[off+2]))<<16
			case 4:
				v = int32(binary.LittleEndian.Uint32(dataChunk[off:]))
			}
			sum += float64(v)
		}
		samples[i] = (sum / float64(channels)) / maxVal
	}
	return samples, int(hdr.SampleRate), nil
}

// decodeAIFF decodes big-endian linear-PCM AIFF "COMM"/"SSND" chunks.
func decodeAIFF(data []byte) ([]float64, int, error) {
	offset := 12
	var channels int
	var bitsPerSample int
	var sampleRate int
	var soundData []byte

	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.BigEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}
		switch id {
		case "COMM":
			if end-body >= 18 {
				channels = int(binary.BigEndian.Uint16(data[body : body+2]))
				bitsPerSample = int(binary.BigEndian.Uint16(data[body+6 : body+8]))
				sampleRate = int(decodeIEEE80(data[body+8 : body+18]))
			}
		case "SSND":
			if end-body >= 8 {
				soundData = data[body+8 : end] // skip offset+blockSize fields
			}
		}
		offset = body + size
		if size%2 == 1 {
			offset++
		}
	}
	if soundData == nil || channels == 0 || bitsPerSample == 0 {
		return nil, 0, fmt.Errorf("incomplete AIFF chunks")
	}

	bytesPerSample := bitsPerSample / 8
	frameSize := bytesPerSample * channels
	numFrames := len(soundData) / frameSize
	samples := make([]float64, numFrames)
	maxVal := math.Pow(2, float64(bitsPerSample)-1)

	for i := 0; i < numFrames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			off := i*frameSize + c*bytesPerSample
			var v int32
			switch bytesPerSample {
			case 2:
				v = int32(int16(binary.BigEndian.Uint16(soundData[off:])))
			case 3:
				v = int32(soundData[off])<<16 | int32(soundData[off+1])<<8 | int32(soundData[off+2])
				if v&0x800000 != 0 {
					v -= 1 << 24
				}
			}
			sum += float64(v)
		}
		samples[i] = (sum / float64(channels)) / maxVal
	}
	return samples, sampleRate, nil
}

// decodeIEEE80 decodes the 80-bit IEEE-754 extended float AIFF uses for
// its sample-rate field.
func decodeIEEE80(b []byte) float64 {
	if len(b) < 10 {
		return 44100
	}
	sign := 1.0
	if b[0]&0x80 != 0 {
		sign = -1.0
	}
	exponent := int(binary.BigEndian.Uint16(b[0:2])&0x7FFF) - 16383
	mantissa := binary.BigEndian.Uint64(b[2:10])
	return sign * float64(mantissa) * math.Pow(2, float64(exponent-63))
}

// readMP3Delay reads the total delay to skip for an MP3 file: LAME
// encoder delay (from the Xing/LAME header) plus the go-mp3 decoder's
// own fixed delay.
func readMP3Delay(path string) int {
	return readLAMEEncoderDelay(path) + goMP3DecoderDelay
}

func readLAMEEncoderDelay(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return defaultEncoderDelay
	}
	defer f.Close()

	buf := make([]byte, 4096)
	n, err := f.Read(buf)
	if err != nil || n < 200 {
		return defaultEncoderDelay
	}
	buf = buf[:n]

	lameIdx := bytes.Index(buf, []byte("LAME"))
	if lameIdx == -1 {
		return defaultEncoderDelay
	}
	delayOffset := lameIdx + 21
	if delayOffset+3 > len(buf) {
		return defaultEncoderDelay
	}
	b := buf[delayOffset : delayOffset+3]
	delay := (int(b[0]) << 4) | (int(b[1]) >> 4)
	if delay < 0 || delay > 4096 {
		return defaultEncoderDelay
	}
	return delay
}
