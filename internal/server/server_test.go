package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonicgrid/cuematrix/internal/cache"
)

func openTestStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIsAudioFileRecognizesSupportedExtensions(t *testing.T) {
	assert.True(t, isAudioFile(".mp3"))
	assert.True(t, isAudioFile(".WAV"))
	assert.False(t, isAudioFile(".txt"))
}

func TestWalkAudioFilesFindsOnlyAudio(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp3"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	found, err := walkAudioFiles(dir)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, filepath.Join(dir, "a.mp3"), found[0])
}

func TestListTracksReturnsUncachedEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("x"), 0o644))

	s := New(nil, openTestStore(t), dir)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tracks", nil)
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"song"`)
	assert.Contains(t, rec.Body.String(), `"cached":false`)
}

func TestGetAnalysisRejectsPathTraversal(t *testing.T) {
	s := New(nil, openTestStore(t), t.TempDir())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tracks/../../etc/passwd", nil)
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServeAudioRejectsNonAudioExtension(t *testing.T) {
	s := New(nil, openTestStore(t), t.TempDir())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/audio/track.txt", nil)
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServeAudioRejectsPathTraversal(t *testing.T) {
	s := New(nil, openTestStore(t), t.TempDir())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/audio/../secret.mp3", nil)
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
