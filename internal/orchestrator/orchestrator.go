// Package orchestrator implements the Cue Orchestrator (component I):
// the conflict-aware merge of every detector stage's raw cues into one
// validated, snapped, de-duplicated cue list. The priority ladder,
// BPM-adaptive conflict window, bar/beat snapping, and final spacing
// pass follow a reference pipeline line for line (see DESIGN.md for the
// stages that pipeline fans out to that this module does not reproduce).
// This orchestrator merges the two stages this pipeline does implement,
// chorus/hook and energy-gap, plus its own smart intro/outro energy
// detection, in the same merge/validate/snap shape.
package orchestrator

import (
	"math"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/sonicgrid/cuematrix/internal/dsp"
	"github.com/sonicgrid/cuematrix/internal/model"
	"github.com/sonicgrid/cuematrix/internal/tracelog"
)

// priorityOrder ranks cue types from most to least authoritative when
// two cues land within the same conflict window.
var priorityOrder = []string{
	"drop", "outro", "chorus", "hook", "breakdown", "build",
	"bridge", "pre_chorus", "intro", "vocal", "section",
}

var snapTypes = mapset.NewSet("intro", "drop", "chorus", "hook", "bridge", "outro", "breakdown", "build")
var barSnapTypes = mapset.NewSet("intro", "outro", "drop", "breakdown")

// groups mirrors pipeline.py's GROUPS constant; it is not yet consulted
// by the merge logic below (neither is it in the original beyond
// definition) but is kept as the named vocabulary future conflict rules
// can build on, matching pipeline.py's own unused-but-declared GROUPS.
var groups = map[string]mapset.Set[string]{
	"intro_group":  mapset.NewSet("intro", "mix_in"),
	"outro_group":  mapset.NewSet("outro", "mix_out"),
	"vocal_group":  mapset.NewSet("vocal", "verse"),
	"chorus_group": mapset.NewSet("chorus", "hook"),
	"energy_group": mapset.NewSet("drop", "bridge", "breakdown", "build", "pre_chorus"),
	"misc_group":   mapset.NewSet("section"),
}

func priorityIndex(cueType string) int {
	for i, t := range priorityOrder {
		if t == cueType {
			return i
		}
	}
	return len(priorityOrder) + 1
}

// Input bundles everything the orchestrator needs from the stages that
// ran upstream.
type Input struct {
	Track      *model.Track
	Features   *model.FeatureBundle
	ChorusHook []model.CuePoint
	EnergyGap  []model.CuePoint
	Beatgrid   model.Beatgrid
}

// Result is the orchestrator's output plus its diagnostic trace.
type Result struct {
	Cues  []model.CuePoint
	Trace *tracelog.Trace
}

// Run merges, validates, resolves conflicts for, and snaps the final cue
// list.
func Run(in Input) Result {
	trace := tracelog.NewTrace()
	duration := in.Track.Duration
	beatgrid := in.Beatgrid.Beats
	bpm := float64(in.Beatgrid.BPM)
	if bpm <= 0 {
		bpm = 120
	}
	barSec := 60.0 / bpm * 4.0

	var raw []model.CuePoint
	for _, c := range standardize(in.ChorusHook, "chorus_hook") {
		raw = append(raw, c)
		trace.Add("stage=chorus_hook add %s@%.2fs conf=%.2f", c.Type, c.Time, c.Confidence)
	}
	for _, c := range standardize(in.EnergyGap, "energy_gap") {
		raw = append(raw, c)
		trace.Add("stage=energy_gap add %s@%.2fs conf=%.2f", c.Type, c.Time, c.Confidence)
	}

	var valid []model.CuePoint
	for _, c := range raw {
		if !validTime(c.Time, duration) {
			trace.Add("discard invalid time: %s@%.2fs", c.Type, c.Time)
			continue
		}
		if (c.Type == "breakdown" || c.Type == "bridge") && c.Time < 8.0 {
			trace.Add("discard early energy cue (<8s): %s@%.2fs", c.Type, c.Time)
			continue
		}
		valid = append(valid, c)
	}

	if !hasType(valid, "intro") {
		introTime := smartIntroTime(in.Features, beatgrid, bpm)
		valid = append(valid, model.CuePoint{Name: "Mix In", Type: "intro", Time: introTime, Confidence: 0.7, Reason: "smart_energy", Stage: "orchestrator"})
		trace.Add("added smart intro at %.2fs", introTime)
	}
	if !hasType(valid, "outro") {
		outroTime := smartOutroTime(in.Features, duration, beatgrid, bpm)
		valid = append(valid, model.CuePoint{Name: "Mix Out", Type: "outro", Time: outroTime, Confidence: 0.7, Reason: "smart_energy", Stage: "orchestrator"})
		trace.Add("added smart outro at %.2fs", outroTime)
	}

	introTime := firstTimeOf(valid, "intro")
	for i := range valid {
		if valid[i].Type == "drop" && valid[i].Time <= introTime+barSec {
			old := valid[i].Time
			valid[i].Time = introTime + barSec + 0.1
			trace.Add("adjust drop from %.2fs -> %.2fs (intro+1bar)", old, valid[i].Time)
		}
		if valid[i].Type == "outro" && valid[i].Time <= introTime+barSec {
			old := valid[i].Time
			valid[i].Time = introTime + barSec + 4.0
			trace.Add("adjust outro from %.2fs -> %.2fs (intro+1bar)", old, valid[i].Time)
		}
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Time < valid[j].Time })

	barSeconds := 4.0 * 60.0 / math.Max(bpm, 60.0)
	window := clamp(2.0*barSeconds, 3.0, 10.0)

	resolved := resolveConflicts(valid, window, trace)
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Time < resolved[j].Time })

	snapped := snapCues(resolved, beatgrid, bpm, trace)

	var final []model.CuePoint
	for _, c := range snapped {
		if validTime(c.Time, duration) {
			final = append(final, c)
		}
	}
	adaptiveSpacing := clamp(2.0*barSeconds, 3.0, 10.0)
	final = dedupAndSpace(final, adaptiveSpacing)

	return Result{Cues: final, Trace: trace}
}

func standardize(cues []model.CuePoint, stage string) []model.CuePoint {
	out := make([]model.CuePoint, len(cues))
	for i, c := range cues {
		std := c
		if std.Name == "" {
			std.Name = std.Type
		}
		if std.Confidence == 0 {
			std.Confidence = 0.6
		}
		if std.Reason == "" {
			std.Reason = stage
		}
		std.Stage = stage
		out[i] = std
	}
	return out
}

func validTime(t float64, duration float64) bool {
	if math.IsNaN(t) || t < 0 {
		return false
	}
	if duration > 0 && t > duration {
		return false
	}
	return true
}

func hasType(cues []model.CuePoint, cueType string) bool {
	for _, c := range cues {
		if c.Type == cueType {
			return true
		}
	}
	return false
}

func firstTimeOf(cues []model.CuePoint, cueType string) float64 {
	for _, c := range cues {
		if c.Type == cueType {
			return c.Time
		}
	}
	return 0
}

func nearestBeat(t float64, beatgrid []float64) float64 {
	if len(beatgrid) == 0 {
		return t
	}
	best, bestDist := beatgrid[0], math.Abs(beatgrid[0]-t)
	for _, b := range beatgrid {
		if d := math.Abs(b - t); d < bestDist {
			bestDist = d
			best = b
		}
	}
	return best
}

// nearestBar snaps to the nearest 4-beat boundary, approximating a
// downbeat when no independent downbeat detector is available.
func nearestBar(t float64, beatgrid []float64, bpm float64) float64 {
	if len(beatgrid) == 0 || bpm <= 0 {
		return t
	}
	idx := 0
	bestDist := math.Abs(beatgrid[0] - t)
	for i, b := range beatgrid {
		if d := math.Abs(b - t); d < bestDist {
			bestDist = d
			idx = i
		}
	}
	barIdx := int(math.Round(float64(idx)/4)) * 4
	if barIdx < 0 {
		barIdx = 0
	}
	if barIdx >= len(beatgrid) {
		barIdx = len(beatgrid) - 1
	}
	return beatgrid[barIdx]
}

// smartIntroTime finds the first point energy exceeds 10% of the 80th
// percentile RMS, snapped to the nearest bar.
func smartIntroTime(fb *model.FeatureBundle, beatgrid []float64, bpm float64) float64 {
	if fb == nil || fb.RMS1024 == nil {
		return 0
	}
	threshold := percentile(fb.RMS1024, 80) * 0.10
	times := dsp.FramesToTime(arangeInts(len(fb.RMS1024)), fb.SampleRate, 1024)
	for i, v := range fb.RMS1024 {
		if v > threshold {
			t := times[i]
			if len(beatgrid) > 0 && bpm > 0 {
				t = nearestBar(t, beatgrid, bpm)
			}
			return math.Max(0, t)
		}
	}
	return 0
}

// smartOutroTime finds the first point from 60% onward where energy
// drops below 15% of the 80th percentile RMS, snapped to the nearest bar.
func smartOutroTime(fb *model.FeatureBundle, duration float64, beatgrid []float64, bpm float64) float64 {
	fallback := math.Max(0, duration-12.0)
	if fb == nil || fb.RMS1024 == nil {
		return fallback
	}
	threshold := percentile(fb.RMS1024, 80) * 0.15
	times := dsp.FramesToTime(arangeInts(len(fb.RMS1024)), fb.SampleRate, 1024)
	startIdx := int(float64(len(fb.RMS1024)) * 0.60)
	for i := startIdx; i < len(fb.RMS1024); i++ {
		if fb.RMS1024[i] < threshold {
			t := times[i]
			if len(beatgrid) > 0 && bpm > 0 {
				t = nearestBar(t, beatgrid, bpm)
			}
			return math.Max(0, t)
		}
	}
	return fallback
}

func percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	idx := p / 100.0 * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func arangeInts(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// resolveConflicts walks the time-sorted valid cue list, merging any pair
// within window seconds of each other: a cue above 0.75 confidence beats
// one at or below it, otherwise priority, then confidence, then earlier
// time decide. Drop/outro pairs are not merged but kept 0.5s apart.
func resolveConflicts(valid []model.CuePoint, window float64, trace *tracelog.Trace) []model.CuePoint {
	var resolved []model.CuePoint
	for _, c := range valid {
		if len(resolved) == 0 {
			resolved = append(resolved, c)
			continue
		}
		last := resolved[len(resolved)-1]
		if math.Abs(c.Time-last.Time) >= window {
			resolved = append(resolved, c)
			continue
		}

		if isDropOutroPair(c.Type, last.Type) {
			if c.Type == "drop" {
				c.Time = math.Min(c.Time, last.Time-0.5)
			} else {
				c.Time = math.Max(c.Time, last.Time+0.5)
			}
			trace.Add("separate drop/outro around %.2fs", last.Time)
			resolved = append(resolved, c)
			continue
		}

		switch {
		case c.Confidence > 0.75 && last.Confidence <= 0.75:
			trace.Add("keep high-confidence %s over %s", c.Type, last.Type)
			resolved[len(resolved)-1] = c
		case last.Confidence > 0.75 && c.Confidence <= 0.75:
			trace.Add("keep high-confidence %s over %s", last.Type, c.Type)
		default:
			pLast, pC := priorityIndex(last.Type), priorityIndex(c.Type)
			switch {
			case pC < pLast:
				trace.Add("priority win %s over %s at ~%.2fs", c.Type, last.Type, c.Time)
				resolved[len(resolved)-1] = c
			case pC > pLast:
				trace.Add("priority keep %s over %s at ~%.2fs", last.Type, c.Type, c.Time)
			case c.Confidence > last.Confidence:
				trace.Add("confidence win %.2f>%.2f at ~%.2fs", c.Confidence, last.Confidence, c.Time)
				resolved[len(resolved)-1] = c
			case c.Confidence < last.Confidence:
				trace.Add("confidence keep %.2f>%.2f at ~%.2fs", last.Confidence, c.Confidence, c.Time)
			case c.Time < last.Time:
				trace.Add("time tiebreaker earlier %.2f replaces %.2f", c.Time, last.Time)
				resolved[len(resolved)-1] = c
			}
		}
	}
	return resolved
}

func isDropOutroPair(a, b string) bool {
	set := mapset.NewSet(a, b)
	return set.Equal(mapset.NewSet("drop", "outro"))
}

// snapCues snaps major structural cues to the nearest bar (falling back
// to a beat snap if the bar is implausibly far away) and every other
// snap-eligible type to the nearest beat.
func snapCues(cues []model.CuePoint, beatgrid []float64, bpm float64, trace *tracelog.Trace) []model.CuePoint {
	out := make([]model.CuePoint, len(cues))
	for i, cue := range cues {
		if len(beatgrid) == 0 {
			out[i] = cue
			continue
		}
		t := cue.Time
		switch {
		case barSnapTypes.Contains(cue.Type):
			tSnapped := nearestBar(t, beatgrid, bpm)
			if math.Abs(t-tSnapped) < 2.0 {
				trace.Add("snap-bar %s %.2f -> %.2f", cue.Type, t, tSnapped)
				cue.Time = tSnapped
			} else {
				tBeat := nearestBeat(t, beatgrid)
				trace.Add("snap-beat %s %.2f -> %.2f (bar too far)", cue.Type, t, tBeat)
				cue.Time = tBeat
			}
		case snapTypes.Contains(cue.Type):
			tSnapped := nearestBeat(t, beatgrid)
			trace.Add("snap %s %.2f -> %.2f", cue.Type, t, tSnapped)
			cue.Time = tSnapped
		}
		out[i] = cue
	}
	return out
}

// dedupAndSpace enforces a minimum spacing between cues, keeping the
// higher-confidence cue of any pair closer than minSpacing.
func dedupAndSpace(cues []model.CuePoint, minSpacing float64) []model.CuePoint {
	sorted := append([]model.CuePoint(nil), cues...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	var pruned []model.CuePoint
	for _, c := range sorted {
		if len(pruned) > 0 && math.Abs(c.Time-pruned[len(pruned)-1].Time) < minSpacing {
			if c.Confidence > pruned[len(pruned)-1].Confidence {
				pruned[len(pruned)-1] = c
			}
			continue
		}
		pruned = append(pruned, c)
	}
	return pruned
}

// Groups exposes the cue-type group vocabulary for callers that need it
// (e.g. diagnostics or future conflict rules).
func Groups() map[string]mapset.Set[string] {
	return groups
}
