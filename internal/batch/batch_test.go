package batch

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolSizeLargeQueueIsThrottled(t *testing.T) {
	assert.Equal(t, 2, PoolSize(21))
	assert.Equal(t, 2, PoolSize(500))
}

func TestPoolSizeMediumQueue(t *testing.T) {
	assert.Equal(t, 4, PoolSize(6))
	assert.Equal(t, 4, PoolSize(20))
}

func TestPoolSizeSmallQueueClampsToCoresAndFour(t *testing.T) {
	for n := 0; n <= 5; n++ {
		got := PoolSize(n)
		assert.GreaterOrEqual(t, got, 1)
		assert.LessOrEqual(t, got, 4)
		if cores := runtime.NumCPU(); n > 0 && n <= 4 && cores >= n {
			assert.Equal(t, n, got)
		}
	}
}

func TestPoolSizeNeverZero(t *testing.T) {
	assert.Equal(t, 1, PoolSize(0))
}
