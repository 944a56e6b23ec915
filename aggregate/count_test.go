package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountAdd(t *testing.T) {
	count := NewCount[string]()
	acc := count.CreateAccumulator()
	acc = count.Add(acc, "a")
	acc = count.Add(acc, "b")
	assert.Equal(t, int64(2), count.GetResult(acc))
}

func TestCountMergeCommutative(t *testing.T) {
	count := NewCount[string]()
	ab, err := count.Merge(3, 4)
	require.NoError(t, err)
	ba, err := count.Merge(4, 3)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Equal(t, int64(7), ab)
}

func TestCountMergeAssociative(t *testing.T) {
	count := NewCount[string]()
	left, err := count.Merge(1, 2)
	require.NoError(t, err)
	left, err = count.Merge(left, 3)
	require.NoError(t, err)

	right, err := count.Merge(2, 3)
	require.NoError(t, err)
	right, err = count.Merge(1, right)
	require.NoError(t, err)

	assert.Equal(t, left, right)
}

func TestCountMergeOverflow(t *testing.T) {
	count := NewCount[string]()
	_, err := count.Merge(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	acc, err := count.Merge(math.MaxInt64-1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), acc)
}
