// Package tags writes analysis results back into a track's metadata and
// reads existing tags for display. Only the MP3 path has a concrete,
// dependency-backed writer (ID3v2.4 via bogem/id3v2/v2); MP4/FLAC/WAV
// writers are not implemented here (see DESIGN.md). Reading is
// format-agnostic via dhowden/tag.
package tags

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"

	"github.com/sonicgrid/cuematrix/internal/model"
)

// Tags is the analysis-derived metadata written back to an audio file.
type Tags struct {
	Key      string
	Camelot  string
	BPM      int
	Energy   float64
	HotCues  []model.HotCueAssignment // at most 8 slots, A-H
}

// TagWriter writes analysis-derived metadata into a file's tag container.
type TagWriter interface {
	WriteTags(path string, t Tags) error
}

// TagReader reads pre-existing tag metadata out of a file.
type TagReader interface {
	ReadTags(path string) (ReadResult, error)
}

// ReadResult is the subset of tag fields the pipeline cares about.
type ReadResult struct {
	Title  string
	Artist string
	Album  string
	Year   int
}

// MP3Writer writes ID3v2.4 frames: TKEY (camelot key), TBPM (integer
// BPM), and a TXXX user-defined frame per hot cue plus one for energy.
type MP3Writer struct{}

// WriteTags opens path's existing ID3v2 tag (creating one if absent),
// sets the standard TKEY/TBPM frames, and adds a user-defined TXXX
// frame per hot cue (capped at 8) plus one for the energy rating.
func (MP3Writer) WriteTags(path string, t Tags) error {
	tg, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open %s for tagging: %w", path, err)
	}
	defer tg.Close()

	tg.SetDefaultEncoding(id3v2.EncodingUTF8)
	tg.AddTextFrame("TKEY", id3v2.EncodingUTF8, t.Camelot)
	tg.AddTextFrame("TBPM", id3v2.EncodingUTF8, strconv.Itoa(t.BPM))

	tg.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    id3v2.EncodingUTF8,
		Description: "ENERGY",
		Value:       fmt.Sprintf("%.1f", t.Energy),
	})

	cues := t.HotCues
	if len(cues) > 8 {
		cues = cues[:8]
	}
	for _, h := range cues {
		tg.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
			Encoding:    id3v2.EncodingUTF8,
			Description: fmt.Sprintf("CUE_%s", h.Slot),
			Value:       fmt.Sprintf("%s|%.3f|%s", h.Cue.Type, h.Cue.Time, h.Cue.Name),
		})
	}

	if err := tg.Save(); err != nil {
		return fmt.Errorf("save tags for %s: %w", path, err)
	}
	return nil
}

// Reader reads basic tag metadata via dhowden/tag, which covers MP3,
// FLAC, OGG, and the M4A/M4B/M4P/ALAC family without per-format code.
type Reader struct{}

// ReadTags opens path and extracts title/artist/album/year.
func (Reader) ReadTags(path string) (ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReadResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return ReadResult{}, fmt.Errorf("read tags from %s: %w", path, err)
	}
	return ReadResult{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Year:   m.Year(),
	}, nil
}

// WriterFor returns the concrete TagWriter for path's extension, or an
// error naming the unsupported format (MP4/FLAC/WAV writers are out of
// scope; see DESIGN.md).
func WriterFor(path string) (TagWriter, error) {
	ext := strings.ToLower(path[strings.LastIndex(path, ".")+1:])
	switch ext {
	case "mp3":
		return MP3Writer{}, nil
	default:
		return nil, fmt.Errorf("no tag writer implemented for .%s files", ext)
	}
}
