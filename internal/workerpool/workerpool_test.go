package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunCollectsAllResults(t *testing.T) {
	var ran int32
	stages := []Stage{
		{Name: "a", Run: func() error { atomic.AddInt32(&ran, 1); return nil }},
		{Name: "b", Run: func() error { atomic.AddInt32(&ran, 1); return errors.New("boom") }},
		{Name: "c", Run: func() error { atomic.AddInt32(&ran, 1); return nil }},
	}
	results := Run(stages, 2)

	assert.EqualValues(t, 3, ran)
	assert.Len(t, results, 3)
	assert.NoError(t, results["a"])
	assert.EqualError(t, results["b"], "boom")
	assert.NoError(t, results["c"])
}

func TestRunRecoversPanics(t *testing.T) {
	stages := []Stage{
		{Name: "panics", Run: func() error { panic("stage exploded") }},
	}
	results := Run(stages, 1)
	if assert.Contains(t, results, "panics") {
		assert.ErrorContains(t, results["panics"], "stage exploded")
	}
}

func TestRunClampsPoolSize(t *testing.T) {
	stages := []Stage{
		{Name: "only", Run: func() error { return nil }},
	}
	results := Run(stages, 0)
	assert.NoError(t, results["only"])
}
