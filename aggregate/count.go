package aggregate

import (
	"math"

	"github.com/pkg/errors"
)

// ErrOverflow reports a counting merge that would exceed the int64 range.
// The affected window is aborted, never silently wrapped.
var ErrOverflow = errors.New("count accumulator overflow")

// Count counts events per (key, window).
type Count[T any] struct{}

func (Count[T]) CreateAccumulator() int64 {
	return 0
}

func (Count[T]) Add(acc int64, _ T) int64 {
	return acc + 1
}

func (Count[T]) Merge(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

func (Count[T]) GetResult(acc int64) int64 {
	return acc
}

func NewCount[T any]() Aggregator[T, int64, int64] {
	return Count[T]{}
}
