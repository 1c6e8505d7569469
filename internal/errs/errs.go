// Package errs defines the sentinel error kinds used across the pipeline:
// every user-visible failure resolves to one of these codes.
package errs

import "errors"

var (
	// ErrDecodeFailure means every decode path (primary + fallbacks) failed.
	ErrDecodeFailure = errors.New("DecodeFailure")

	// ErrInsufficientAudio means the decoded track is under 1.0s.
	ErrInsufficientAudio = errors.New("InsufficientAudio")

	// ErrFeatureComputation marks a single feature failure; callers store
	// nil for the feature and continue rather than propagate this error.
	ErrFeatureComputation = errors.New("FeatureComputationFailure")

	// ErrStageFailure marks a detector stage that panicked or returned an
	// error; the facade logs it and the stage contributes no cues.
	ErrStageFailure = errors.New("StageFailure")

	// ErrOrchestratorValidation marks a cue discarded for invalid timing.
	ErrOrchestratorValidation = errors.New("OrchestratorValidation")

	// ErrCacheUnavailable means the result cache could not be opened.
	ErrCacheUnavailable = errors.New("CacheUnavailable")

	// ErrAnalysisTimeout is returned per-file by the batch runner.
	ErrAnalysisTimeout = errors.New("AnalysisTimeout")

	// ErrInterrupted is emitted when a process signal tears down a batch run.
	ErrInterrupted = errors.New("Interrupted")
)

// Code returns the canonical error code string for a sentinel error,
// falling back to "AnalysisFailed" for anything unrecognized.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrDecodeFailure):
		return "DecodeFailure"
	case errors.Is(err, ErrInsufficientAudio):
		return "InsufficientAudio"
	case errors.Is(err, ErrFeatureComputation):
		return "FeatureComputationFailure"
	case errors.Is(err, ErrStageFailure):
		return "StageFailure"
	case errors.Is(err, ErrOrchestratorValidation):
		return "OrchestratorValidation"
	case errors.Is(err, ErrCacheUnavailable):
		return "CacheUnavailable"
	case errors.Is(err, ErrAnalysisTimeout):
		return "AnalysisTimeout"
	case errors.Is(err, ErrInterrupted):
		return "Interrupted"
	default:
		return "AnalysisFailed"
	}
}
