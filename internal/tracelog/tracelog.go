// Package tracelog provides the textual merge/replace/snap trace the cue
// orchestrator appends to while resolving conflicts, plus a thin wrapper
// around the standard logger for everything else in the pipeline.
package tracelog

import (
	"fmt"
	"log"
	"os"
)

// Logger writes timestamped diagnostic lines for the rest of the pipeline.
var Logger = log.New(os.Stderr, "cuematrix: ", log.LstdFlags)

// Trace accumulates human-readable lines describing every merge,
// replacement, snap, adjustment, synthesis, and discard the orchestrator
// performs.
type Trace struct {
	lines []string
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{}
}

// Add appends a formatted line to the trace.
func (t *Trace) Add(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

// Lines returns the accumulated trace lines.
func (t *Trace) Lines() []string {
	return t.lines
}
