// Package batch implements the batch runner: an adaptive-size worker
// pool over a queue of files, a 300s per-file timeout, and graceful
// signal handling.
package batch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/sonicgrid/cuematrix/internal/analyzer"
	"github.com/sonicgrid/cuematrix/internal/errs"
	"github.com/sonicgrid/cuematrix/internal/model"
	"github.com/sonicgrid/cuematrix/internal/tracelog"
)

const defaultPerFileTimeout = 300 * time.Second

// FileResult is one file's outcome from a batch run.
type FileResult struct {
	Path   string
	Result *model.AnalysisResult
	Err    error
}

// PoolSize picks the worker count for a queue of n files: 2 workers
// past 20 queued files (so a very large batch doesn't starve other
// processes on the box), 4 past 5, else min(n, cores, 4) for small
// batches where spinning up more workers than files is pointless.
func PoolSize(n int) int {
	switch {
	case n > 20:
		return 2
	case n > 5:
		return 4
	default:
		size := n
		if cores := runtime.NumCPU(); cores < size {
			size = cores
		}
		if size > 4 {
			size = 4
		}
		if size < 1 {
			size = 1
		}
		return size
	}
}

// ProgressFunc is invoked after each file completes.
type ProgressFunc func(done, total int, path string)

// Run analyzes every path using the given facade, bounded by an
// adaptive worker pool and a per-file timeout, reporting progress as
// files complete. It returns one FileResult per input path, in
// completion order.
func Run(ctx context.Context, f *analyzer.Facade, paths []string, perFileTimeout time.Duration, progress ProgressFunc) []FileResult {
	if perFileTimeout <= 0 {
		perFileTimeout = defaultPerFileTimeout
	}
	size := PoolSize(len(paths))
	sem := make(chan struct{}, size)

	results := make([]FileResult, 0, len(paths))
	var mu sync.Mutex
	var wg sync.WaitGroup
	done := 0

	for _, path := range paths {
		path := path
		select {
		case <-ctx.Done():
			mu.Lock()
			results = append(results, FileResult{Path: path, Err: fmt.Errorf("%w: cancelled before start", errs.ErrInterrupted)})
			done++
			mu.Unlock()
			continue
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			fileCtx, cancel := context.WithTimeout(ctx, perFileTimeout)
			defer cancel()

			result, err := analyzeWithTimeout(fileCtx, f, path)

			mu.Lock()
			results = append(results, FileResult{Path: path, Result: result, Err: err})
			done++
			if progress != nil {
				progress(done, len(paths), path)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// analyzeWithTimeout runs f.Analyze on its own goroutine so a hung
// decode or DSP stage cannot block the caller past perFileTimeout; the
// goroutine is abandoned (not killed) on timeout, matching Go's lack of
// a safe way to preempt a running goroutine.
func analyzeWithTimeout(ctx context.Context, f *analyzer.Facade, path string) (*model.AnalysisResult, error) {
	type outcome struct {
		result *model.AnalysisResult
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := f.Analyze(path)
		ch <- outcome{result, err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", errs.ErrAnalysisTimeout, path)
	}
}

// RunInterruptible runs Run with SIGINT/SIGTERM handling: on signal, it
// cancels the batch's context so in-flight per-file timeouts fire
// promptly, marks every not-yet-started path Interrupted, and returns
// the process exit code the CLI should use (128+signal).
func RunInterruptible(f *analyzer.Facade, paths []string, perFileTimeout time.Duration, progress ProgressFunc) ([]FileResult, int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	exitCode := 0
	go func() {
		sig := <-sigCh
		tracelog.Logger.Printf("batch: received signal %v, shutting down", sig)
		switch sig {
		case syscall.SIGINT:
			exitCode = 128 + int(syscall.SIGINT)
		case syscall.SIGTERM:
			exitCode = 128 + int(syscall.SIGTERM)
		}
		cancel()
	}()

	results := Run(ctx, f, paths, perFileTimeout, progress)
	return results, exitCode
}
