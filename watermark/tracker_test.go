package watermark

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerSubtractsAllowedLag(t *testing.T) {
	tracker := NewTracker(2)
	tracker.Observe(10)
	assert.Equal(t, int64(8), tracker.Current())
}

func TestTrackerNeverNegative(t *testing.T) {
	tracker := NewTracker(100)
	assert.Equal(t, int64(0), tracker.Current())
	tracker.Observe(5)
	assert.Equal(t, int64(0), tracker.Current())
}

func TestTrackerMonotonic(t *testing.T) {
	tracker := NewTracker(0)
	previous := int64(0)
	for _, timestamp := range []int64{5, 3, 8, 1, 8, 20, 15} {
		tracker.Observe(timestamp)
		current := tracker.Current()
		assert.GreaterOrEqual(t, current, previous)
		previous = current
	}
	assert.Equal(t, int64(20), tracker.Current())
}

func TestTrackerConcurrentObserve(t *testing.T) {
	tracker := NewTracker(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for timestamp := int64(0); timestamp < 1000; timestamp++ {
				tracker.Observe(timestamp*8 + int64(i))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(999*8+7), tracker.Current())
}
