// Package hotcue implements the Hot-Cue Assigner (component J): eight
// DJ hot-cue slots (A-H) picked from the orchestrator's merged cue list
// by type alias, position, and confidence, with minimum-spacing backfill.
// Ported directly from
// original_source/src/backend/pipeline/hotcue_stage.py.
package hotcue

import (
	"sort"
	"strings"

	"github.com/sonicgrid/cuematrix/internal/model"
)

const minSpacing = 6.0

var aliases = map[string][]string{
	"intro":     {"intro", "mix_in", "mixin"},
	"vocal":     {"vocal", "verse", "vox", "lead_vocal"},
	"chorus":    {"chorus", "hook"},
	"build":     {"build", "buildup", "build_up", "pre_chorus"},
	"drop":      {"drop", "energy_peak", "climax"},
	"breakdown": {"breakdown", "bridge"},
	"outro":     {"outro", "mix_out", "mixout"},
}

// Assign picks hot cue slots A through H from a merged, time-sorted cue
// list.
func Assign(cues []model.CuePoint) []model.HotCueAssignment {
	sorted := append([]model.CuePoint(nil), cues...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	if len(sorted) == 0 {
		return nil
	}

	duration := 0.0
	for _, c := range sorted {
		if c.Time > duration {
			duration = c.Time
		}
	}
	duration += 0.01

	intros := pickAll(sorted, "intro")
	vocals := pickAll(sorted, "vocal")
	choruses := pickAll(sorted, "chorus")
	builds := pickAll(sorted, "build")
	drops := pickAll(sorted, "drop")
	breakdowns := pickAll(sorted, "breakdown")
	outros := pickAll(sorted, "outro")
	phrases := pickPhrases(sorted)

	used := make(map[int]bool)
	var hot []model.HotCueAssignment

	appendSlot := func(slot model.HotCueSlot, idx int) {
		used[idx] = true
		hot = append(hot, model.HotCueAssignment{Slot: slot, Cue: sorted[idx]})
	}
	chosenCues := func() []model.CuePoint {
		out := make([]model.CuePoint, len(hot))
		for i, h := range hot {
			out[i] = h.Cue
		}
		return out
	}

	// A = Intro (Mix In)
	firstIntroIdx := -1
	switch {
	case len(intros) > 0:
		firstIntroIdx = intros[0]
	case len(phrases) > 0:
		firstIntroIdx = phrases[0]
	default:
		firstIntroIdx = 0
	}
	if firstIntroIdx >= 0 {
		appendSlot(model.SlotA, firstIntroIdx)
	}

	// Pick the main drop: highest-scoring candidate within the 35-60%
	// window of the track, falling back to any drop.
	firstDropIdx := -1
	if len(drops) > 0 {
		midStart, midEnd := duration*0.35, duration*0.60
		var midDrops []int
		for _, idx := range drops {
			if sorted[idx].Time >= midStart && sorted[idx].Time <= midEnd {
				midDrops = append(midDrops, idx)
			}
		}
		pool := midDrops
		if len(pool) == 0 {
			pool = drops
		}
		bestIdx, bestScore := pool[0], -1.0
		for _, idx := range pool {
			t := sorted[idx].Time
			conf := sorted[idx].Confidence
			if conf == 0 {
				conf = 0.7
			}
			center := (midStart + midEnd) / 2
			half := (midEnd-midStart)/2 + 1e-6
			posBonus := 1.0 - absF(center-t)/half
			score := conf*0.7 + posBonus*0.3
			if score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}
		firstDropIdx = bestIdx
	}

	// B = First Vocal / Verse
	bCand := -1
	if len(vocals) > 0 {
		if firstDropIdx >= 0 {
			before := firstBefore(sorted, vocals, sorted[firstDropIdx].Time)
			if len(before) > 0 {
				bCand = before[0]
			} else {
				bCand = vocals[0]
			}
		} else {
			bCand = vocals[0]
		}
	}
	if bCand == -1 && len(choruses) > 0 {
		bCand = choruses[0]
	}
	if bCand >= 0 {
		pick := chooseWithSpacing(sorted, []int{bCand}, chosenCues())
		if pick >= 0 {
			appendSlot(model.SlotB, pick)
		}
	}

	// C = First Chorus
	cCand := -1
	if len(choruses) > 0 {
		cCand = choruses[0]
	} else if len(vocals) > 1 {
		cCand = vocals[1]
	}
	if cCand >= 0 {
		pick := chooseWithSpacing(sorted, []int{cCand}, chosenCues())
		if pick >= 0 {
			appendSlot(model.SlotC, pick)
		}
	}

	// D = First Build / Buildup
	dCand := -1
	if len(builds) > 0 {
		dCand = builds[0]
	} else if firstDropIdx >= 0 {
		var beforeDrop []int
		for i, c := range sorted {
			if c.Time < sorted[firstDropIdx].Time-4.0 {
				beforeDrop = append(beforeDrop, i)
			}
		}
		if len(beforeDrop) > 0 {
			dCand = beforeDrop[len(beforeDrop)-1]
		}
	}
	if dCand >= 0 {
		pick := chooseWithSpacing(sorted, []int{dCand}, chosenCues())
		if pick >= 0 {
			appendSlot(model.SlotD, pick)
		}
	}

	// E = Main Drop
	if firstDropIdx >= 0 {
		pick := chooseWithSpacing(sorted, []int{firstDropIdx}, chosenCues())
		if pick >= 0 {
			appendSlot(model.SlotE, pick)
		}
	} else if len(choruses) > 0 {
		fallback := choruses[len(choruses)-1]
		pick := chooseWithSpacing(sorted, []int{fallback}, chosenCues())
		if pick >= 0 {
			appendSlot(model.SlotE, pick)
		}
	}

	// F = First Breakdown
	if len(breakdowns) > 0 {
		pick := chooseWithSpacing(sorted, []int{breakdowns[0]}, chosenCues())
		if pick >= 0 {
			appendSlot(model.SlotF, pick)
		}
	}

	// G = Second Chorus (or second drop)
	gCand := -1
	if len(choruses) > 1 {
		gCand = choruses[1]
	} else if len(drops) > 1 {
		gCand = drops[1]
	}
	if gCand >= 0 {
		pick := chooseWithSpacing(sorted, []int{gCand}, chosenCues())
		if pick >= 0 {
			appendSlot(model.SlotG, pick)
		}
	}

	// H = Outro (Mix Out)
	hCand := -1
	switch {
	case len(outros) > 0:
		hCand = outros[len(outros)-1]
	case len(phrases) > 0:
		hCand = phrases[len(phrases)-1]
	default:
		hCand = len(sorted) - 1
	}
	if hCand >= 0 {
		pick := chooseWithSpacing(sorted, []int{hCand}, chosenCues())
		if pick >= 0 {
			appendSlot(model.SlotH, pick)
		}
	}

	// Backfill any unfilled slots from remaining high-confidence anchors.
	if len(hot) < 8 {
		filledSlots := map[model.HotCueSlot]bool{}
		for _, h := range hot {
			filledSlots[h.Slot] = true
		}
		var remaining []int
		for i := range sorted {
			if !used[i] {
				remaining = append(remaining, i)
			}
		}
		sort.Slice(remaining, func(i, j int) bool {
			ci, cj := sorted[remaining[i]], sorted[remaining[j]]
			if ci.Confidence != cj.Confidence {
				return ci.Confidence > cj.Confidence
			}
			return ci.Time < cj.Time
		})
		for _, slot := range model.AllSlots {
			if filledSlots[slot] {
				continue
			}
			pick := chooseWithSpacing(sorted, remaining, chosenCues())
			if pick < 0 {
				break
			}
			appendSlot(slot, pick)
			filtered := remaining[:0]
			for _, idx := range remaining {
				if idx != pick {
					filtered = append(filtered, idx)
				}
			}
			remaining = filtered
			if len(hot) >= 8 {
				break
			}
		}
	}

	order := map[model.HotCueSlot]int{}
	for i, s := range model.AllSlots {
		order[s] = i
	}
	sort.Slice(hot, func(i, j int) bool { return order[hot[i].Slot] < order[hot[j].Slot] })
	return hot
}

func pickAll(cues []model.CuePoint, target string) []int {
	var out []int
	for i, c := range cues {
		if matches(c.Type, target) {
			out = append(out, i)
		}
	}
	return out
}

func pickPhrases(cues []model.CuePoint) []int {
	var out []int
	for i, c := range cues {
		t := strings.ToLower(c.Type)
		if t == "phrase" || t == "section" {
			out = append(out, i)
		}
	}
	return out
}

func matches(cueType, target string) bool {
	cueType = strings.ToLower(strings.TrimSpace(cueType))
	for _, a := range aliases[target] {
		if cueType == a {
			return true
		}
	}
	return false
}

func firstBefore(cues []model.CuePoint, indices []int, t float64) []int {
	var out []int
	for _, idx := range indices {
		if cues[idx].Time < t {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return cues[out[i]].Time < cues[out[j]].Time })
	return out
}

// chooseWithSpacing returns the first candidate index at least minSpacing
// seconds from every already-chosen cue, or -1 if none qualifies.
func chooseWithSpacing(cues []model.CuePoint, candidates []int, chosen []model.CuePoint) int {
	for _, idx := range candidates {
		t := cues[idx].Time
		ok := true
		for _, c := range chosen {
			if absF(t-c.Time) < minSpacing {
				ok = false
				break
			}
		}
		if ok {
			return idx
		}
	}
	return -1
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
