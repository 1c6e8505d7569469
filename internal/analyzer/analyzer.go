// Package analyzer is the Analyzer Facade (component K): the single
// entry point that decodes a file, builds its feature bundle, fans the
// detector stages out over a bounded worker pool (mirroring
// pipeline.py's ThreadPoolExecutor(max_workers=7) in
// original_source/src/backend/pipeline/pipeline.py), merges their cues
// through the orchestrator and hot-cue assigner, derives the waveform,
// phrase and loop markers, and assembles the final AnalysisResult.
package analyzer

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sonicgrid/cuematrix/internal/audio"
	"github.com/sonicgrid/cuematrix/internal/beatstage"
	"github.com/sonicgrid/cuematrix/internal/chorushook"
	"github.com/sonicgrid/cuematrix/internal/energygap"
	"github.com/sonicgrid/cuematrix/internal/energyprofile"
	"github.com/sonicgrid/cuematrix/internal/errs"
	"github.com/sonicgrid/cuematrix/internal/features"
	"github.com/sonicgrid/cuematrix/internal/hotcue"
	"github.com/sonicgrid/cuematrix/internal/keydetect"
	"github.com/sonicgrid/cuematrix/internal/model"
	"github.com/sonicgrid/cuematrix/internal/orchestrator"
	"github.com/sonicgrid/cuematrix/internal/structure"
	"github.com/sonicgrid/cuematrix/internal/tempodetect"
	"github.com/sonicgrid/cuematrix/internal/tracelog"
	"github.com/sonicgrid/cuematrix/internal/workerpool"
)

const minDurationSeconds = 1.0
const waveformPoints = 1500

// validate checks every AnalysisResult against its struct tags before it
// reaches a cache or caller, the one place in the pipeline the whole
// assembled record is validated at once (stage-level invariants are
// enforced inline, e.g. orchestrator's validTime).
var validate = validator.New()

// Cache is the subset of internal/cache's Store the facade needs; nil
// disables caching entirely. Defined here (rather than imported) so the
// facade does not depend on the cache package's SQLite driver.
type Cache interface {
	Get(path string) (*model.AnalysisResult, bool)
	Set(path string, result *model.AnalysisResult) error
}

// Facade holds the tunables the Analyzer Facade needs across calls.
type Facade struct {
	StagePoolSize int
	Cache         Cache
}

// New returns a Facade with the given per-analysis stage pool size.
func New(stagePoolSize int) *Facade {
	if stagePoolSize < 1 {
		stagePoolSize = 7
	}
	return &Facade{StagePoolSize: stagePoolSize}
}

// Analyze runs the full pipeline for a single file, returning a cache
// hit when available.
func (f *Facade) Analyze(path string) (*model.AnalysisResult, error) {
	if f.Cache != nil {
		if result, ok := f.Cache.Get(path); ok {
			return result, nil
		}
	}

	start := time.Now()

	track, err := audio.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDecodeFailure, err)
	}
	if track.Duration < minDurationSeconds {
		return nil, fmt.Errorf("%w: %.3fs", errs.ErrInsufficientAudio, track.Duration)
	}

	fb, err := features.Compute(track)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrFeatureComputation, err)
	}

	var (
		keyResult    keydetect.Result
		tempoResult  tempodetect.Result
		segments     []model.Segment
		chorusHook   []model.CuePoint
		energyGap    []model.CuePoint
		beatgrid     model.Beatgrid
		energyStats  model.AudioStats
	)

	// Tempo must resolve before the beat grid, and the beat grid before
	// any stage that snaps to it, so those two run on the calling
	// goroutine; everything else is independent of all but the feature
	// bundle and fans out across the stage pool.
	tempoResult = tempodetect.Detect(fb)
	beatgrid = beatstage.Build(fb, tempoResult)

	stages := []workerpool.Stage{
		{Name: "key", Run: func() error {
			keyResult = keydetect.Detect(fb)
			return nil
		}},
		{Name: "structure", Run: func() error {
			segments = structure.Detect(fb)
			return nil
		}},
		{Name: "chorus_hook", Run: func() error {
			chorusHook = chorushook.Detect(fb)
			return nil
		}},
		{Name: "energy_gap", Run: func() error {
			energyGap = energygap.Detect(fb)
			return nil
		}},
		{Name: "audio_stats", Run: func() error {
			energyStats = energyprofile.AudioStats(track)
			return nil
		}},
	}
	stageErrs := workerpool.Run(stages, f.StagePoolSize)
	for name, err := range stageErrs {
		if err != nil {
			tracelog.Logger.Printf("path=%s stage=%s error=%v", path, name, err)
		}
	}

	waveform := generateWaveform(track)

	orchResult := orchestrator.Run(orchestrator.Input{
		Track:      track,
		Features:   fb,
		ChorusHook: chorusHook,
		EnergyGap:  energyGap,
		Beatgrid:   beatgrid,
	})

	hotCues := hotcue.Assign(orchResult.Cues)
	energy := energyprofile.Build(track, fb, orchResult.Cues)

	phrases := phraseMarkers(fb, beatgrid, track.Duration)
	loops := loopMarkers(fb, beatgrid)

	result := &model.AnalysisResult{
		RunID:          uuid.NewString(),
		FilePath:       path,
		Duration:       track.Duration,
		SampleRate:     track.SampleRate,
		WaveformData:   waveform,
		AudioStats:     energyStats,
		Key:            keyResult.Camelot,
		KeyMode:        keyResult.Mode,
		KeyConfidence:  keyResult.Confidence,
		BPM:            clampBPM(tempoResult.BPM),
		CuePoints:      orchResult.Cues,
		SongStructure:  segments,
		EnergyAnalysis: energy,
		HarmonicMixing: model.HarmonicMixing{Key: keyResult.Camelot, CompatibleKeys: keydetect.CompatibleKeys(keyResult.Camelot)},
		PhraseMarkers:  phrases,
		LoopMarkers:    loops,
		Downbeats:      downbeats(beatgrid.Beats),
		HotCues:        hotCues,
		Beatgrid:       beatgrid,
		AnalysisMS:     time.Since(start).Milliseconds(),
	}

	if err := validate.Struct(result); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrOrchestratorValidation, err)
	}

	if f.Cache != nil {
		if err := f.Cache.Set(path, result); err != nil {
			tracelog.Logger.Printf("path=%s cache write failed: %v", path, err)
		}
	}
	return result, nil
}

// Quick runs only the cheap stages (key, tempo, waveform) for the
// `--quick` CLI mode.
func (f *Facade) Quick(path string) (*model.QuickResult, error) {
	track, err := audio.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDecodeFailure, err)
	}
	if track.Duration < minDurationSeconds {
		return nil, fmt.Errorf("%w: %.3fs", errs.ErrInsufficientAudio, track.Duration)
	}
	fb, err := features.Compute(track)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrFeatureComputation, err)
	}

	keyResult := keydetect.Detect(fb)
	tempoResult := tempodetect.Detect(fb)
	waveform := generateWaveform(track)

	return &model.QuickResult{
		BPM:           clampBPM(tempoResult.BPM),
		Key:           keyResult.Camelot,
		KeyConfidence: keyResult.Confidence,
		WaveformData:  waveform,
		Duration:      track.Duration,
		SampleRate:    track.SampleRate,
	}, nil
}

func clampBPM(bpm int) int {
	if bpm < 60 {
		return 60
	}
	if bpm > 200 {
		return 200
	}
	return bpm
}

func downbeats(beats []float64) []float64 {
	var out []float64
	for i := 0; i < len(beats); i += 4 {
		out = append(out, beats[i])
	}
	return out
}

// generateWaveform bins the decoded PCM into ~1500 RMS windows,
// normalized to [0, 1].
func generateWaveform(track *model.Track) *model.Waveform {
	if len(track.PCM) == 0 {
		return nil
	}
	windowSize := len(track.PCM) / waveformPoints
	if windowSize < 1 {
		windowSize = 1
	}
	var points []float64
	maxVal := 0.0
	for start := 0; start < len(track.PCM); start += windowSize {
		end := start + windowSize
		if end > len(track.PCM) {
			end = len(track.PCM)
		}
		sumSq := 0.0
		for i := start; i < end; i++ {
			sumSq += track.PCM[i] * track.PCM[i]
		}
		rms := math.Sqrt(sumSq / float64(end-start))
		points = append(points, rms)
		if rms > maxVal {
			maxVal = rms
		}
	}
	if maxVal > 1e-12 {
		for i := range points {
			points[i] /= maxVal
		}
	}
	return &model.Waveform{Points: points}
}

// phraseBarThresholds maps a phrase length in bars to the minimum
// cosine-distance novelty required to accept a boundary at that length:
// shorter phrase lengths use a lower bar since they recur far more often
// than genuine structural breaks.
var phraseBarThresholds = map[int]float64{8: 0.30, 16: 0.36, 32: 0.46}

// phraseMarkers walks 8-, 16-, and 32-bar boundaries and keeps the ones
// where the MFCC mean vector changes enough across the boundary to look
// like a genuine phrase break rather than a repeat.
func phraseMarkers(fb *model.FeatureBundle, bg model.Beatgrid, duration float64) []float64 {
	if fb.MFCC512 == nil || len(fb.MFCC512) == 0 {
		return nil
	}
	bpm := float64(bg.BPM)
	if bpm <= 0 {
		bpm = 120
	}
	barSeconds := 4.0 * 60.0 / bpm
	hop := 512
	framesPerSec := float64(fb.SampleRate) / float64(hop)

	numFrames := len(fb.MFCC512[0])
	var markers []float64
	seen := map[int]bool{}

	bars := []int{8, 16, 32}
	sort.Ints(bars)
	for _, nBars := range bars {
		threshold := phraseBarThresholds[nBars]
		period := float64(nBars) * barSeconds
		windowFrames := int(period * framesPerSec / 2)
		if windowFrames < 1 {
			continue
		}
		for t := period; t < duration-15; t += period {
			frame := int(t * framesPerSec)
			if frame-windowFrames < 0 || frame+windowFrames >= numFrames {
				continue
			}
			before := mfccMean(fb.MFCC512, frame-windowFrames, frame)
			after := mfccMean(fb.MFCC512, frame, frame+windowFrames)
			novelty := 1.0 - cosineSimilarity(before, after)
			roundedFrame := int(t)
			if novelty >= threshold && t > 15 && !seen[roundedFrame] {
				seen[roundedFrame] = true
				markers = append(markers, round3(t))
			}
		}
	}
	sort.Float64s(markers)
	return markers
}

// loopMarkers searches candidate loop lengths (in bars) for windows
// whose first and second half have near-identical MFCC content, a
// strong signal the region loops cleanly, keeping the top 8
// non-overlapping candidates by similarity.
func loopMarkers(fb *model.FeatureBundle, bg model.Beatgrid) []model.LoopMarker {
	if fb.MFCC512 == nil || len(fb.MFCC512) == 0 || len(bg.Beats) < 8 {
		return nil
	}
	bpm := float64(bg.BPM)
	if bpm <= 0 {
		bpm = 120
	}
	barSeconds := 4.0 * 60.0 / bpm
	hop := 512
	framesPerSec := float64(fb.SampleRate) / float64(hop)
	numFrames := len(fb.MFCC512[0])

	var candidates []model.LoopMarker
	for _, nBars := range []int{1, 2, 4, 8, 16} {
		barLen := float64(nBars) * barSeconds
		halfFrames := int(barLen * framesPerSec / 2)
		if halfFrames < 1 {
			continue
		}
		threshold := 0.64 + float64(nBars)/100.0
		stepFrames := halfFrames
		for startFrame := 0; startFrame+2*halfFrames < numFrames; startFrame += stepFrames {
			firstHalf := mfccMean(fb.MFCC512, startFrame, startFrame+halfFrames)
			secondHalf := mfccMean(fb.MFCC512, startFrame+halfFrames, startFrame+2*halfFrames)
			sim := cosineSimilarity(firstHalf, secondHalf)
			if sim >= threshold {
				startSec := float64(startFrame) / framesPerSec
				endSec := float64(startFrame+2*halfFrames) / framesPerSec
				candidates = append(candidates, model.LoopMarker{
					Start: round3(startSec), End: round3(endSec),
					BarLength: float64(nBars), Similarity: round3(sim),
				})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Similarity > candidates[j].Similarity })

	var kept []model.LoopMarker
	for _, c := range candidates {
		overlaps := false
		for _, k := range kept {
			if c.Start < k.End && k.Start < c.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
		if len(kept) >= 8 {
			break
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

func mfccMean(mfcc [][]float64, startFrame, endFrame int) []float64 {
	numCoeffs := len(mfcc)
	out := make([]float64, numCoeffs)
	count := 0
	for f := startFrame; f < endFrame; f++ {
		for c := 0; c < numCoeffs; c++ {
			if f < len(mfcc[c]) {
				out[c] += mfcc[c][f]
			}
		}
		count++
	}
	if count == 0 {
		return out
	}
	for c := range out {
		out[c] /= float64(count)
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	dot, na, nb := 0.0, 0.0, 0.0
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na <= 0 || nb <= 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
