package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrDecodeFailure, "DecodeFailure"},
		{ErrInsufficientAudio, "InsufficientAudio"},
		{ErrFeatureComputation, "FeatureComputationFailure"},
		{ErrStageFailure, "StageFailure"},
		{ErrOrchestratorValidation, "OrchestratorValidation"},
		{ErrCacheUnavailable, "CacheUnavailable"},
		{ErrAnalysisTimeout, "AnalysisTimeout"},
		{ErrInterrupted, "Interrupted"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Code(c.err))
	}
}

func TestCodeUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("decoding %s: %w", "track.mp3", ErrDecodeFailure)
	assert.Equal(t, "DecodeFailure", Code(wrapped))
}

func TestCodeFallsBackForUnknownErrors(t *testing.T) {
	assert.Equal(t, "AnalysisFailed", Code(fmt.Errorf("something else")))
}
