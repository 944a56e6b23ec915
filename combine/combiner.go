package combine

import (
	"bytes"
	"encoding/gob"
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"

	"github.com/jbartok/big-data-benchmark/aggregate"
	"github.com/jbartok/big-data-benchmark/element"
	"github.com/jbartok/big-data-benchmark/log"
	"github.com/jbartok/big-data-benchmark/window"
)

// Each (key, window) entry walks a one-way state machine:
//
//	open      accepting partial contributions
//	closed    every producer flushed past the window end and the combined
//	          watermark crossed it; the result is emitted once
//	discarded terminal, further contributions are dropped
//
// closed is momentary, an entry fires and moves straight to discarded.
// Discarded entries far behind the combined watermark are pruned, a duplicate
// for them can no longer be in flight.
type ResultKey struct {
	Key    string
	Window window.Window
}

// Combiner merges partial aggregates for each (key, window) arriving from all
// upstream aggregator tasks. A window fires only when both conditions hold:
// every producer has flushed a watermark past the window end (a slow producer
// may still owe partials even though the watermark allows firing), and the
// combined watermark itself has crossed the end.
// How long, in watermark time, a discarded entry keeps deduplicating before
// it is pruned.
const discardedRetention int64 = 60_000

type Combiner[A, V any] struct {
	merger  aggregate.Merger[A, V]
	emitter *Emitter[V]
	logger  log.Logger

	open               map[ResultKey]A
	discarded          map[ResultKey]struct{}
	producerWatermarks []int64

	duplicatesDropped tally.Counter
	windowsAborted    tally.Counter
}

func NewCombiner[A, V any](
	producers int,
	merger aggregate.Merger[A, V],
	emitter *Emitter[V],
	scope tally.Scope,
	logger log.Logger,
) *Combiner[A, V] {
	return &Combiner[A, V]{
		merger:             merger,
		emitter:            emitter,
		logger:             logger,
		open:               map[ResultKey]A{},
		discarded:          map[ResultKey]struct{}{},
		producerWatermarks: make([]int64, producers),
		duplicatesDropped:  scope.Counter("duplicate_partials_dropped"),
		windowsAborted:     scope.Counter("windows_aborted"),
	}
}

// Accept merges one partial into its (key, window) entry. Contributions for a
// discarded window can only come from duplicate delivery; they are counted
// and dropped. A merge overflow aborts the affected window, not the pipeline.
func (c *Combiner[A, V]) Accept(partial aggregate.Partial[A]) {
	key := ResultKey{Key: partial.Key, Window: partial.Window}
	if _, ok := c.discarded[key]; ok {
		c.duplicatesDropped.Inc(1)
		c.logger.Debugw("dropped contribution for discarded window",
			"key", partial.Key, "window", partial.Window.String())
		return
	}
	acc, ok := c.open[key]
	if !ok {
		acc = c.merger.CreateAccumulator()
	}
	merged, err := c.merger.Merge(acc, partial.Acc)
	if err != nil {
		c.windowsAborted.Inc(1)
		c.logger.Errorw("aborting window, can't merge partial aggregate",
			"key", partial.Key, "window", partial.Window.String(), "err", err)
		delete(c.open, key)
		c.discarded[key] = struct{}{}
		return
	}
	c.open[key] = merged
}

// ObserveFlush records a producer's flushed watermark and fires every open
// window whose end both the combined watermark and all producers have passed.
// Results come out in deterministic (window, key) order.
func (c *Combiner[A, V]) ObserveFlush(producer int, watermark int64) []element.Result[V] {
	if watermark > c.producerWatermarks[producer] {
		c.producerWatermarks[producer] = watermark
	}
	var combined int64 = math.MaxInt64
	for _, producerWatermark := range c.producerWatermarks {
		if producerWatermark < combined {
			combined = producerWatermark
		}
	}

	var ready []ResultKey
	for key := range c.open {
		if key.Window.End <= combined {
			ready = append(ready, key)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Window.Start != ready[j].Window.Start {
			return ready[i].Window.Start < ready[j].Window.Start
		}
		if ready[i].Window.End != ready[j].Window.End {
			return ready[i].Window.End < ready[j].Window.End
		}
		return ready[i].Key < ready[j].Key
	})

	results := make([]element.Result[V], 0, len(ready))
	for _, key := range ready {
		results = append(results, c.emitter.Emit(key.Key, key.Window, c.merger.GetResult(c.open[key])))
		delete(c.open, key)
		c.discarded[key] = struct{}{}
	}

	//every producer has flushed well past these windows, no duplicate can
	//still be in flight; pruning keeps the set bounded on endless runs
	cutoff := combined - discardedRetention
	for key := range c.discarded {
		if key.Window.End <= cutoff {
			delete(c.discarded, key)
		}
	}
	return results
}

type combinerState[A any] struct {
	Open               map[ResultKey]A
	Discarded          map[ResultKey]struct{}
	ProducerWatermarks []int64
}

func (c *Combiner[A, V]) Snapshot() ([]byte, error) {
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(combinerState[A]{
		Open:               c.open,
		Discarded:          c.discarded,
		ProducerWatermarks: c.producerWatermarks,
	}); err != nil {
		return nil, errors.WithMessage(err, "failed to encode combiner state to gob bytes")
	}
	return buffer.Bytes(), nil
}

func (c *Combiner[A, V]) Restore(byteSlice []byte) error {
	var state combinerState[A]
	if err := gob.NewDecoder(bytes.NewReader(byteSlice)).Decode(&state); err != nil {
		return errors.WithMessage(err, "failed to decode combiner state from gob bytes")
	}
	if state.Open != nil {
		c.open = state.Open
	}
	if state.Discarded != nil {
		c.discarded = state.Discarded
	}
	if len(state.ProducerWatermarks) == len(c.producerWatermarks) {
		c.producerWatermarks = state.ProducerWatermarks
	}
	return nil
}
