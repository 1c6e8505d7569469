// Package model holds the data types shared across the analysis pipeline:
// the decoded track, the per-track feature bundle, cue points, structural
// segments, hot-cue assignments, and the final analysis result.
package model

import "fmt"

// Track is a decoded, mono, peak-normalized audio buffer plus its provenance.
type Track struct {
	Path       string
	PCM        []float64
	SampleRate int
	Duration   float64 // seconds
}

// FeatureBundle is the mapping from feature name to dense numeric array
// computed once per track (component A). Individual entries may be nil
// when the underlying feature failed to compute; downstream stages must
// branch on absence rather than panic.
type FeatureBundle struct {
	YHarm []float64
	YPerc []float64

	STFTMag  [][]float64 // frames x bins
	FreqBins []float64

	Chroma256  [][]float64 // 12 x frames
	Chroma512  [][]float64
	Chroma1024 [][]float64
	Chroma2048 [][]float64

	ChromaHarm512  [][]float64
	ChromaHarm1024 [][]float64

	// ChromaPreEmph512 is chroma computed from a pre-emphasized (high
	// frequencies boosted) version of the mix, used by the key detector's
	// enhanced-chroma estimator.
	ChromaPreEmph512 [][]float64

	SpectralCentroid256  []float64
	SpectralCentroid512  []float64
	SpectralCentroid1024 []float64
	SpectralCentroid2048 []float64

	OnsetEnv256     []float64
	OnsetEnv512     []float64
	OnsetEnvPerc512 []float64

	SpectralContrast512 []float64
	SpectralFlatness512 []float64

	MFCC512 [][]float64 // frames x 13

	RMS512  []float64
	RMS1024 []float64

	BeatTimes  []float64
	BeatFrames []int
	Tempo      float64
	Tuning     float64

	SampleRate int
	Duration   float64

	// FailedFeatures records the names of any features that could not be
	// computed, for diagnostics.
	FailedFeatures []string
}

// Failed records that a feature could not be computed.
func (fb *FeatureBundle) Failed(name string) {
	fb.FailedFeatures = append(fb.FailedFeatures, name)
}

// CuePoint is a single named, timed detection emitted by one of the
// detector stages, later merged by the orchestrator.
type CuePoint struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Time       float64 `json:"time"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Stage      string  `json:"stage"`
	Instance   int     `json:"instance,omitempty"`
}

// CueTypes is the closed set of cue type strings accepted by the orchestrator.
var CueTypes = map[string]bool{
	"intro": true, "outro": true, "drop": true, "chorus": true, "hook": true,
	"breakdown": true, "bridge": true, "build": true, "pre_chorus": true,
	"vocal": true, "verse": true, "phrase": true, "section": true,
}

// Segment is a contiguous structural section of the track.
type Segment struct {
	Type        string  `json:"type"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Duration    float64 `json:"duration"`
	Instance    int     `json:"instance"`
	Energy      float64 `json:"energy"`
	Confidence  float64 `json:"confidence"`
	RepeatGroup string  `json:"repeat_group"`
}

// HotCueSlot is one of the eight DJ hot-cue slots A through H.
type HotCueSlot string

const (
	SlotA HotCueSlot = "A"
	SlotB HotCueSlot = "B"
	SlotC HotCueSlot = "C"
	SlotD HotCueSlot = "D"
	SlotE HotCueSlot = "E"
	SlotF HotCueSlot = "F"
	SlotG HotCueSlot = "G"
	SlotH HotCueSlot = "H"
)

// AllSlots lists the eight hot-cue slots in order.
var AllSlots = []HotCueSlot{SlotA, SlotB, SlotC, SlotD, SlotE, SlotF, SlotG, SlotH}

// HotCueAssignment binds a single cue to a hot-cue slot.
type HotCueAssignment struct {
	Slot HotCueSlot `json:"slot"`
	Cue  CuePoint   `json:"cue"`
}

// EnergyProfile bundles the three energy views produced by component H.
type EnergyProfile struct {
	CueEnergy      map[string]float64 `json:"cue_energy,omitempty"` // keyed by "type@time"
	Curve          []float64          `json:"curve"`
	CurveTimes     []float64          `json:"curve_times"`
	LUFSCurve      []float64          `json:"lufs_curve,omitempty"`
	LUFSCurveTimes []float64          `json:"lufs_curve_times,omitempty"`
	IntegratedLUFS *float64           `json:"integrated_lufs,omitempty"`
	GainToTarget   *float64           `json:"gain_to_target,omitempty"`
}

// AudioStats carries basic loudness/peak metrics for the decoded track.
type AudioStats struct {
	PeakDBFS float64  `json:"peak_dbfs"`
	RMSDBFS  float64  `json:"rms_dbfs"`
	LUFS     *float64 `json:"lufs,omitempty"`
}

// Waveform is a downsampled peak/RMS view for UI rendering.
type Waveform struct {
	Points []float64 `json:"points"`
}

// Beatgrid is the ordered list of beat times plus the tempo used to derive it.
type Beatgrid struct {
	BPM              int       `json:"bpm"`
	Beats            []float64 `json:"beats"`
	FirstStrongBeat  float64   `json:"first_strong_beat"`
	Synthesized      bool      `json:"synthesized"`
}

// HarmonicMixing lists Camelot-compatible keys for the detected key.
type HarmonicMixing struct {
	Key             string   `json:"key"`
	CompatibleKeys  []string `json:"compatible_keys"`
}

// AnalysisResult is the full, JSON-serializable output of one analysis run.
type AnalysisResult struct {
	RunID      string  `json:"run_id" validate:"required,uuid4"`
	FilePath   string  `json:"file_path" validate:"required"`
	Duration   float64 `json:"duration" validate:"gte=0"`
	SampleRate int     `json:"sample_rate" validate:"gt=0"`

	WaveformData *Waveform  `json:"waveform_data,omitempty"`
	AudioStats   AudioStats `json:"audio_stats"`

	Key           string  `json:"key" validate:"required"`
	KeyMode       string  `json:"key_mode" validate:"required,oneof=major minor"`
	KeyConfidence float64 `json:"key_confidence" validate:"gte=0,lte=1"`

	BPM int `json:"bpm" validate:"gte=60,lte=200"`

	CuePoints     []CuePoint         `json:"cue_points"`
	SongStructure []Segment          `json:"song_structure"`
	EnergyAnalysis EnergyProfile     `json:"energy_analysis"`
	HarmonicMixing HarmonicMixing    `json:"harmonic_mixing"`
	PhraseMarkers []float64          `json:"phrase_markers"`
	LoopMarkers   []LoopMarker       `json:"loop_markers"`
	Downbeats     []float64          `json:"downbeats"`
	HotCues       []HotCueAssignment `json:"hotcues"`
	Beatgrid      Beatgrid           `json:"beatgrid"`

	AnalysisMS int64 `json:"analysis_ms"`
}

// LoopMarker is a candidate loop region discovered by self-similarity.
type LoopMarker struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	BarLength  float64 `json:"bar_length"`
	Similarity float64 `json:"similarity"`
}

// QuickResult is the trimmed payload returned by `--quick` mode.
type QuickResult struct {
	BPM           int       `json:"bpm"`
	Key           string    `json:"key"`
	KeyConfidence float64   `json:"key_confidence"`
	WaveformData  *Waveform `json:"waveform_data,omitempty"`
	Duration      float64   `json:"duration"`
	SampleRate    int       `json:"sample_rate"`
}

// ErrorRecord is the JSON shape for all user-visible failures.
type ErrorRecord struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e ErrorRecord) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CacheEntry is the persisted row written by the Result Cache.
type CacheEntry struct {
	Path         string
	Mtime        float64
	AnalysisJSON string
	WaveformBlob []byte
	CreatedAt    int64
}
