package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterForDispatchesByExtension(t *testing.T) {
	w, err := WriterFor("/music/track.mp3")
	require.NoError(t, err)
	assert.IsType(t, MP3Writer{}, w)
}

func TestWriterForRejectsUnsupportedFormats(t *testing.T) {
	for _, ext := range []string{"flac", "wav", "m4a"} {
		_, err := WriterFor("/music/track." + ext)
		assert.Error(t, err, "expected no writer for .%s", ext)
	}
}

func TestWriterForIsCaseInsensitive(t *testing.T) {
	w, err := WriterFor("/music/track.MP3")
	require.NoError(t, err)
	assert.IsType(t, MP3Writer{}, w)
}
