// CLI for DJ-grade music analysis: single-file analysis, directory
// batch analysis, and a web server for browsing cached results.
package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sonicgrid/cuematrix/internal/analyzer"
	"github.com/sonicgrid/cuematrix/internal/batch"
	"github.com/sonicgrid/cuematrix/internal/cache"
	"github.com/sonicgrid/cuematrix/internal/config"
	"github.com/sonicgrid/cuematrix/internal/errs"
	"github.com/sonicgrid/cuematrix/internal/server"
	"github.com/sonicgrid/cuematrix/internal/tracelog"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "cuematrix",
	Short: "DJ-grade music analysis: key, BPM, structure, cues, and hot cues",
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a single audio file and print its AnalysisResult as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quick, _ := cmd.Flags().GetBool("quick")
		return runAnalyze(args[0], quick)
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <directory>",
	Short: "Analyze every audio file in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return runBatch(args[0], force)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve <directory>",
	Short: "Serve cached analysis results and audio over HTTP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return runServe(args[0], addr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file")

	analyzeCmd.Flags().Bool("quick", false, "return only {bpm, key, key_confidence, waveform_data, duration, sample_rate}")
	batchCmd.Flags().BoolP("force", "f", false, "re-analyze files even when a fresh cache entry exists")
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")

	rootCmd.AddCommand(analyzeCmd, batchCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the process exit code: 0 OK, 1
// validation/exception, 2 analysis failed, 130 on interrupt.
func exitCodeFor(err error) int {
	switch errs.Code(err) {
	case "Interrupted":
		return 130
	case "DecodeFailure", "InsufficientAudio", "FeatureComputationFailure",
		"StageFailure", "OrchestratorValidation", "AnalysisTimeout":
		return 2
	default:
		return 1
	}
}

func buildFacade() (*analyzer.Facade, *cache.Store, error) {
	cfg := config.Load(cfgPath)
	config.ApplyDSPThreads(cfg)

	f := analyzer.New(cfg.StagePoolSize)

	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o755); err != nil {
		tracelog.Logger.Printf("could not create cache dir: %v", err)
		return f, nil, nil
	}
	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		tracelog.Logger.Printf("cache unavailable, continuing without it: %v", err)
		return f, nil, nil
	}
	f.Cache = store
	return f, store, nil
}

func runAnalyze(path string, quick bool) error {
	f, store, err := buildFacade()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	if quick {
		result, err := f.Quick(path)
		if err != nil {
			return err
		}
		return printJSON(result)
	}

	result, err := f.Analyze(path)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runBatch(dir string, force bool) error {
	f, store, err := buildFacade()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	paths, err := collectAudioFiles(dir)
	if err != nil {
		return err
	}
	if force && store != nil {
		for _, p := range paths {
			_ = store.Remove(p)
		}
	}

	progress := func(done, total int, path string) {
		fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", done, total, filepath.Base(path))
	}
	results, sigExit := batch.RunInterruptible(f, paths, 0, progress)
	if sigExit != 0 {
		fmt.Fprintln(os.Stderr, "batch analysis interrupted by signal")
		os.Exit(sigExit)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "error: %s: %v\n", r.Path, r.Err)
			continue
		}
	}
	fmt.Fprintf(os.Stderr, "batch complete: %d ok, %d failed\n", len(results)-failed, failed)
	return nil
}

func runServe(dir, addr string) error {
	f, store, err := buildFacade()
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("%w: cache required to serve", errs.ErrCacheUnavailable)
	}
	defer store.Close()

	srv := server.New(f, store, dir)
	fmt.Fprintf(os.Stderr, "serving %s on %s\n", dir, addr)
	return srv.Run(addr)
}

func collectAudioFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".mp3", ".m4a", ".aac", ".wav", ".flac", ".ogg", ".aiff":
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
