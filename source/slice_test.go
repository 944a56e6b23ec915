package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbartok/big-data-benchmark/element"
)

func TestSliceEmitsAllEvents(t *testing.T) {
	src := NewSlice([][]element.Event[string]{
		{{Key: "a", Timestamp: 1}, {Key: "b", Timestamp: 2}},
		{{Key: "c", Timestamp: 3}},
	})
	require.Equal(t, 2, src.Partitions())

	var collected []string
	for partition := 0; partition < src.Partitions(); partition++ {
		require.NoError(t, src.Run(context.Background(), partition, func(event element.Event[string]) {
			collected = append(collected, event.Key)
		}))
	}
	assert.Equal(t, []string{"a", "b", "c"}, collected)
}

func TestSliceResumesFromSnapshot(t *testing.T) {
	events := []element.Event[string]{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	src := NewSlice([][]element.Event[string]{events})

	ctx, cancel := context.WithCancel(context.Background())
	seen := 0
	err := src.Run(ctx, 0, func(element.Event[string]) {
		seen++
		if seen == 2 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)

	stateBytes, err := src.Snapshot()
	require.NoError(t, err)

	restored := NewSlice([][]element.Event[string]{events})
	require.NoError(t, restored.Restore(stateBytes))

	var rest []string
	require.NoError(t, restored.Run(context.Background(), 0, func(event element.Event[string]) {
		rest = append(rest, event.Key)
	}))
	assert.Equal(t, []string{"c"}, rest)
}

func TestSliceRestoreLengthMismatch(t *testing.T) {
	src := NewSlice([][]element.Event[string]{{{Key: "a"}}})
	other := NewSlice([][]element.Event[string]{{}, {}})
	stateBytes, err := other.Snapshot()
	require.NoError(t, err)
	assert.Error(t, src.Restore(stateBytes))
}
