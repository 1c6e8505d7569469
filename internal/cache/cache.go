// Package cache implements the Result Cache (component L): a SQLite-
// backed key/value store keyed by absolute file path, validated against
// the file's modification time, storing the serialized AnalysisResult
// plus its waveform as a separate BLOB. Grounded on the sql.Open/WAL/
// PRAGMA idiom in
// _examples/ParkWardRR-cartomix-Web-Based-DJ-Copilot/internal/storage/db.go,
// adapted from that repo's migration-driven schema to this package's
// single fixed table.
package cache

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sonicgrid/cuematrix/internal/errs"
	"github.com/sonicgrid/cuematrix/internal/model"
	"github.com/sonicgrid/cuematrix/internal/tracelog"
)

const mtimeTolerance = 0.001 // seconds; sub-millisecond mtime drift is still fresh

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	path       TEXT PRIMARY KEY,
	mtime      REAL NOT NULL,
	analysis   TEXT NOT NULL,
	waveform   BLOB,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_mtime ON cache_entries(mtime);
`

// Store is the SQLite-backed result cache.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache database at dbPath, in
// WAL journal mode with a 64MB page cache and a ~260MB memory-mapped
// read window.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", errs.ErrCacheUnavailable, dbPath, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA cache_size=-65536",    // 64MB of page cache (negative = KiB)
		"PRAGMA mmap_size=272629760", // ~260MB memory-mapped read window
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", errs.ErrCacheUnavailable, p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %v", errs.ErrCacheUnavailable, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached AnalysisResult for path iff the file still
// exists and its mtime matches the stored mtime within tolerance.
// Any failure (missing row, stat error, unmarshal error) degrades
// silently to a cache miss rather than propagating to the caller.
func (s *Store) Get(path string) (*model.AnalysisResult, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	currentMtime := float64(info.ModTime().UnixNano()) / 1e9

	var storedMtime float64
	var analysisJSON string
	var waveformBlob []byte
	row := s.db.QueryRow(`SELECT mtime, analysis, waveform FROM cache_entries WHERE path = ?`, path)
	if err := row.Scan(&storedMtime, &analysisJSON, &waveformBlob); err != nil {
		return nil, false
	}
	if math.Abs(storedMtime-currentMtime) >= mtimeTolerance {
		return nil, false
	}

	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(analysisJSON), &result); err != nil {
		tracelog.Logger.Printf("cache: corrupt entry for %s: %v", path, err)
		return nil, false
	}
	if len(waveformBlob) > 0 {
		result.WaveformData = &model.Waveform{Points: decodeWaveform(waveformBlob)}
	}
	return &result, true
}

// Set serializes result as JSON text, extracts its waveform into a
// little-endian float32 BLOB, and commits both in a single transaction.
func (s *Store) Set(path string, result *model.AnalysisResult) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", errs.ErrCacheUnavailable, path, err)
	}
	mtime := float64(info.ModTime().UnixNano()) / 1e9

	analysisJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", errs.ErrCacheUnavailable, path, err)
	}
	var waveformBlob []byte
	if result.WaveformData != nil {
		waveformBlob = encodeWaveform(result.WaveformData.Points)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", errs.ErrCacheUnavailable, err)
	}
	if err := insertEntry(tx, path, mtime, analysisJSON, waveformBlob); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Item is a single entry for SetMany.
type Item struct {
	Path   string
	Result *model.AnalysisResult
}

// SetMany bulk-inserts items under a single commit.
func (s *Store) SetMany(items []Item) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", errs.ErrCacheUnavailable, err)
	}
	for _, item := range items {
		info, err := os.Stat(item.Path)
		if err != nil {
			continue // skip entries whose source file vanished mid-batch
		}
		mtime := float64(info.ModTime().UnixNano()) / 1e9
		analysisJSON, err := json.Marshal(item.Result)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: marshal %s: %v", errs.ErrCacheUnavailable, item.Path, err)
		}
		var waveformBlob []byte
		if item.Result.WaveformData != nil {
			waveformBlob = encodeWaveform(item.Result.WaveformData.Points)
		}
		if err := insertEntry(tx, item.Path, mtime, analysisJSON, waveformBlob); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func insertEntry(tx *sql.Tx, path string, mtime float64, analysisJSON, waveformBlob []byte) error {
	_, err := tx.Exec(
		`INSERT INTO cache_entries (path, mtime, analysis, waveform, created_at)
		 VALUES (?, ?, ?, ?, strftime('%s','now'))
		 ON CONFLICT(path) DO UPDATE SET mtime=excluded.mtime, analysis=excluded.analysis,
		 	waveform=excluded.waveform, created_at=excluded.created_at`,
		path, mtime, string(analysisJSON), waveformBlob,
	)
	if err != nil {
		return fmt.Errorf("%w: insert %s: %v", errs.ErrCacheUnavailable, path, err)
	}
	return nil
}

// Remove deletes the cache entry for path, if any.
func (s *Store) Remove(path string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("%w: remove %s: %v", errs.ErrCacheUnavailable, path, err)
	}
	return nil
}

// Clear deletes every cache entry.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM cache_entries`)
	if err != nil {
		return fmt.Errorf("%w: clear: %v", errs.ErrCacheUnavailable, err)
	}
	return nil
}

// Stats reports the entry count and the total size of the analysis and
// waveform columns, for diagnostics.
type Stats struct {
	Entries   int
	TotalSize int64
}

func (s *Store) Stats() (Stats, error) {
	var stats Stats
	row := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(LENGTH(analysis) + COALESCE(LENGTH(waveform), 0)), 0) FROM cache_entries`)
	if err := row.Scan(&stats.Entries, &stats.TotalSize); err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %v", errs.ErrCacheUnavailable, err)
	}
	return stats, nil
}

func encodeWaveform(points []float64) []byte {
	buf := make([]byte, 4*len(points))
	for i, p := range points {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(p)))
	}
	return buf
}

func decodeWaveform(blob []byte) []float64 {
	n := len(blob) / 4
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		out[i] = float64(math.Float32frombits(bits))
	}
	return out
}
