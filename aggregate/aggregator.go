package aggregate

import (
	"github.com/jbartok/big-data-benchmark/window"
)

// Merger is the combine-side half of the accumulation algebra. Merge must be
// associative and commutative so partials can be merged in any order and
// grouping.
type Merger[A, V any] interface {
	CreateAccumulator() A
	Merge(a, b A) (A, error)
	GetResult(acc A) V
}

// Aggregator folds single events into an accumulator on the local side.
type Aggregator[T, A, V any] interface {
	Merger[A, V]
	Add(acc A, value T) A
}

// Partial is a (key, window) accumulator flushed from one aggregator task,
// transferred by value to the combine stage.
type Partial[A any] struct {
	Key      string
	Window   window.Window
	Acc      A
	Producer int
}
