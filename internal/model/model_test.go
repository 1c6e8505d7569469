package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureBundleFailedAppends(t *testing.T) {
	fb := &FeatureBundle{}
	fb.Failed("chroma_512")
	fb.Failed("tempo_estimate")
	assert.Equal(t, []string{"chroma_512", "tempo_estimate"}, fb.FailedFeatures)
}

func TestErrorRecordFormatsCodeAndMessage(t *testing.T) {
	err := ErrorRecord{Code: "DecodeFailure", Message: "bad header"}
	assert.Equal(t, "DecodeFailure: bad header", err.Error())
}
