package shuffle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionerDeterministic(t *testing.T) {
	partitioner := NewPartitioner(4)
	for _, key := range []string{"AAPL", "GOOG", "AMZN", ""} {
		first := partitioner.TaskFor(key)
		for i := 0; i < 100; i++ {
			assert.Equal(t, first, partitioner.TaskFor(key))
		}
	}
}

func TestPartitionerRange(t *testing.T) {
	partitioner := NewPartitioner(3)
	hit := map[int]bool{}
	for i := 0; i < 1000; i++ {
		task := partitioner.TaskFor(fmt.Sprintf("key-%d", i))
		assert.GreaterOrEqual(t, task, 0)
		assert.Less(t, task, 3)
		hit[task] = true
	}
	//with a thousand keys every task should see some
	assert.Len(t, hit, 3)
}

func TestPartitionerSingleTask(t *testing.T) {
	partitioner := NewPartitioner(1)
	assert.Equal(t, 0, partitioner.TaskFor("anything"))
}

func TestPartitionerRejectsZeroTasks(t *testing.T) {
	assert.Panics(t, func() { NewPartitioner(0) })
}
