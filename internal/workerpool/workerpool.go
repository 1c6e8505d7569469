// Package workerpool runs a fixed set of named detector stages
// concurrently, bounded to a configured pool size: one task per stage
// (chorus/hook, bridge, structure, key, tempo, ...), collecting results
// as they complete and logging but not failing the run when an
// individual stage panics or errors.
package workerpool

import (
	"fmt"
	"sync"

	"github.com/sonicgrid/cuematrix/internal/tracelog"
)

// Stage is one named unit of work submitted to the pool.
type Stage struct {
	Name string
	Run  func() error
}

// Run executes stages concurrently, at most size at a time, and returns
// once every stage has completed or panicked. A panicking stage is
// recovered, logged, and recorded as its own error rather than aborting
// the other stages.
func Run(stages []Stage, size int) map[string]error {
	if size < 1 {
		size = 1
	}
	sem := make(chan struct{}, size)
	results := make(map[string]error, len(stages))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, stage := range stages {
		stage := stage
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := runRecovered(stage)
			mu.Lock()
			results[stage.Name] = err
			mu.Unlock()
			if err != nil {
				tracelog.Logger.Printf("stage %q failed: %v", stage.Name, err)
			}
		}()
	}
	wg.Wait()
	return results
}

func runRecovered(stage Stage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name, r)
		}
	}()
	return stage.Run()
}
