package tracelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTraceStartsEmpty(t *testing.T) {
	tr := NewTrace()
	assert.Empty(t, tr.Lines())
}

func TestTraceAddFormatsAndAccumulates(t *testing.T) {
	tr := NewTrace()
	tr.Add("snapped %s to %.2fs", "drop", 12.5)
	tr.Add("discarded %d cues", 3)
	assert.Equal(t, []string{"snapped drop to 12.50s", "discarded 3 cues"}, tr.Lines())
}
