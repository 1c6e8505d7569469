// Package server exposes an Echo-based HTTP API over a directory of
// audio: it serves AnalysisResult JSON and waveform data straight out
// of internal/cache, analyzing on demand when a track has never been
// cached.
package server

import (
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sonicgrid/cuematrix/internal/analyzer"
	"github.com/sonicgrid/cuematrix/internal/cache"
)

// Server exposes the analysis cache over HTTP.
type Server struct {
	facade   *analyzer.Facade
	cache    *cache.Store
	musicDir string
	echo     *echo.Echo
}

// New builds a Server rooted at musicDir, analyzing through facade and
// reading/writing results through store.
func New(facade *analyzer.Facade, store *cache.Store, musicDir string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{facade: facade, cache: store, musicDir: musicDir, echo: e}

	e.GET("/api/tracks", s.listTracks)
	e.GET("/api/tracks/*", s.getAnalysis)
	e.GET("/api/audio/*", s.serveAudio)

	return s
}

// Run starts the HTTP server on addr (e.g. ":8080").
func (s *Server) Run(addr string) error {
	return s.echo.Start(addr)
}

// trackSummary is the listing payload for one file under musicDir.
type trackSummary struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Cached bool   `json:"cached"`
}

func (s *Server) listTracks(c echo.Context) error {
	var tracks []trackSummary

	entries, err := walkAudioFiles(s.musicDir)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for _, p := range entries {
		rel := strings.TrimPrefix(p, s.musicDir+string(filepath.Separator))
		_, cached := s.cache.Get(p)
		tracks = append(tracks, trackSummary{
			Name:   strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)),
			Path:   rel,
			Cached: cached,
		})
	}
	return c.JSON(http.StatusOK, tracks)
}

// getAnalysis returns the cached AnalysisResult for a track, running the
// facade on a cache miss.
func (s *Server) getAnalysis(c echo.Context) error {
	rel, err := url.PathUnescape(c.Param("*"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path encoding")
	}
	if strings.Contains(rel, "..") {
		return echo.NewHTTPError(http.StatusForbidden, "invalid path")
	}
	fullPath := filepath.Join(s.musicDir, rel)

	result, err := s.facade.Analyze(fullPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// serveAudio streams the raw audio file, for the browser's <audio> tag.
func (s *Server) serveAudio(c echo.Context) error {
	rel, err := url.PathUnescape(c.Param("*"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path encoding")
	}
	if strings.Contains(rel, "..") {
		return echo.NewHTTPError(http.StatusForbidden, "invalid path")
	}
	fullPath := filepath.Join(s.musicDir, rel)
	if !isAudioFile(filepath.Ext(fullPath)) {
		return echo.NewHTTPError(http.StatusForbidden, "file type not allowed")
	}
	return c.File(fullPath)
}

func isAudioFile(ext string) bool {
	switch strings.ToLower(ext) {
	case ".mp3", ".m4a", ".aac", ".wav", ".flac", ".ogg", ".aiff":
		return true
	default:
		return false
	}
}

// walkAudioFiles lists every supported audio file under dir.
func walkAudioFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isAudioFile(filepath.Ext(path)) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
