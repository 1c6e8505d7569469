package hotcue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sonicgrid/cuematrix/internal/model"
)

func TestAssignEmpty(t *testing.T) {
	assert.Nil(t, Assign(nil))
}

func TestAssignOrdersBySlot(t *testing.T) {
	cues := []model.CuePoint{
		{Name: "drop-1", Type: "drop", Time: 90, Confidence: 0.9},
		{Name: "intro-1", Type: "intro", Time: 0, Confidence: 0.8},
		{Name: "outro-1", Type: "outro", Time: 190, Confidence: 0.8},
		{Name: "vocal-1", Type: "vocal", Time: 20, Confidence: 0.6},
		{Name: "chorus-1", Type: "chorus", Time: 60, Confidence: 0.7},
	}
	hot := Assign(cues)
	if assert.NotEmpty(t, hot) {
		for i := 1; i < len(hot); i++ {
			assert.Less(t, slotIndex(hot[i-1].Slot), slotIndex(hot[i].Slot),
				"slots must come out in A-H order")
		}
	}
	assert.Equal(t, model.SlotA, hot[0].Slot)
	assert.Equal(t, "intro-1", hot[0].Cue.Name)
}

func TestAssignPicksDropInMidWindow(t *testing.T) {
	// duration ~200s: the 35-60% window is [70, 120]. Two drop candidates,
	// one inside the window and one far outside; the in-window one wins.
	cues := []model.CuePoint{
		{Name: "early-drop", Type: "drop", Time: 10, Confidence: 0.95},
		{Name: "mid-drop", Type: "drop", Time: 95, Confidence: 0.7},
		{Name: "end", Type: "outro", Time: 200, Confidence: 0.5},
	}
	hot := Assign(cues)
	var eSlot *model.HotCueAssignment
	for i := range hot {
		if hot[i].Slot == model.SlotE {
			eSlot = &hot[i]
		}
	}
	if assert.NotNil(t, eSlot) {
		assert.Equal(t, "mid-drop", eSlot.Cue.Name)
	}
}

func TestAssignRespectsMinSpacing(t *testing.T) {
	// Two cues 1 second apart should not both be kept once one slot has
	// claimed the first; the spacing backfill should skip the close one.
	cues := []model.CuePoint{
		{Name: "a", Type: "intro", Time: 0, Confidence: 0.9},
		{Name: "b", Type: "section", Time: 1, Confidence: 0.9},
		{Name: "c", Type: "section", Time: 50, Confidence: 0.9},
	}
	hot := Assign(cues)
	for i := 0; i < len(hot); i++ {
		for j := i + 1; j < len(hot); j++ {
			d := hot[i].Cue.Time - hot[j].Cue.Time
			if d < 0 {
				d = -d
			}
			assert.GreaterOrEqual(t, d, minSpacing-1e-9)
		}
	}
}

func TestAssignCapsAtEightSlots(t *testing.T) {
	var cues []model.CuePoint
	for i := 0; i < 30; i++ {
		cues = append(cues, model.CuePoint{
			Name: "c", Type: "section", Time: float64(i) * 10, Confidence: 0.5,
		})
	}
	hot := Assign(cues)
	assert.LessOrEqual(t, len(hot), 8)
}

func slotIndex(s model.HotCueSlot) int {
	for i, v := range model.AllSlots {
		if v == s {
			return i
		}
	}
	return -1
}
