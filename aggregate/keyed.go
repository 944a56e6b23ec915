package aggregate

import (
	"bytes"
	"encoding/gob"
	"sort"

	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"

	"github.com/jbartok/big-data-benchmark/element"
	"github.com/jbartok/big-data-benchmark/log"
	"github.com/jbartok/big-data-benchmark/window"
)

// Keyed holds one accumulator per (key, window) on a single aggregator task.
// Events reach it routed by key hash, so no other task ever touches the same
// key and no locking is needed. Windows whose end has passed the task's
// watermark are retired: their partials are handed to the shuffle and any
// further event for them is dropped as late.
type Keyed[T, A, V any] struct {
	producer   int
	aggregator Aggregator[T, A, V]
	assigner   window.Assigner
	logger     log.Logger

	state            map[window.Window]map[string]A
	retiredWatermark int64

	lateDropped tally.Counter
}

func NewKeyed[T, A, V any](
	producer int,
	aggregator Aggregator[T, A, V],
	assigner window.Assigner,
	scope tally.Scope,
	logger log.Logger,
) *Keyed[T, A, V] {
	return &Keyed[T, A, V]{
		producer:    producer,
		aggregator:  aggregator,
		assigner:    assigner,
		logger:      logger,
		state:       map[window.Window]map[string]A{},
		lateDropped: scope.Counter("late_events_dropped"),
	}
}

// ProcessEvent folds the event into every window it belongs to. An event whose
// windows are all retired arrived later than the allowed lag; it is dropped
// and counted, there is no side output.
func (k *Keyed[T, A, V]) ProcessEvent(event element.Event[T]) {
	late := true
	for _, win := range k.assigner.AssignWindows(event.Timestamp) {
		if win.End <= k.retiredWatermark {
			continue
		}
		late = false
		accumulators := k.state[win]
		if accumulators == nil {
			accumulators = map[string]A{}
			k.state[win] = accumulators
		}
		if acc, ok := accumulators[event.Key]; ok {
			accumulators[event.Key] = k.aggregator.Add(acc, event.Value)
		} else {
			accumulators[event.Key] = k.aggregator.Add(k.aggregator.CreateAccumulator(), event.Value)
		}
	}
	if late {
		k.lateDropped.Inc(1)
		k.logger.Debugw("dropped late event", "key", event.Key, "timestamp", event.Timestamp,
			"retiredWatermark", k.retiredWatermark)
	}
}

// AdvanceWatermark retires every window ending at or before the watermark and
// returns their partials in deterministic (window, key) order.
func (k *Keyed[T, A, V]) AdvanceWatermark(watermark int64) []Partial[A] {
	if watermark <= k.retiredWatermark {
		return nil
	}
	k.retiredWatermark = watermark

	var retired []window.Window
	for win := range k.state {
		if win.End <= watermark {
			retired = append(retired, win)
		}
	}
	sort.Slice(retired, func(i, j int) bool {
		if retired[i].Start != retired[j].Start {
			return retired[i].Start < retired[j].Start
		}
		return retired[i].End < retired[j].End
	})

	var partials []Partial[A]
	for _, win := range retired {
		accumulators := k.state[win]
		keys := make([]string, 0, len(accumulators))
		for key := range accumulators {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			partials = append(partials, Partial[A]{
				Key:      key,
				Window:   win,
				Acc:      accumulators[key],
				Producer: k.producer,
			})
		}
		delete(k.state, win)
	}
	return partials
}

type keyedState[A any] struct {
	State            map[window.Window]map[string]A
	RetiredWatermark int64
}

func (k *Keyed[T, A, V]) Snapshot() ([]byte, error) {
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(keyedState[A]{
		State:            k.state,
		RetiredWatermark: k.retiredWatermark,
	}); err != nil {
		return nil, errors.WithMessage(err, "failed to encode keyed aggregator state to gob bytes")
	}
	return buffer.Bytes(), nil
}

func (k *Keyed[T, A, V]) Restore(byteSlice []byte) error {
	var state keyedState[A]
	if err := gob.NewDecoder(bytes.NewReader(byteSlice)).Decode(&state); err != nil {
		return errors.WithMessage(err, "failed to decode keyed aggregator state from gob bytes")
	}
	k.state = state.State
	if k.state == nil {
		k.state = map[window.Window]map[string]A{}
	}
	k.retiredWatermark = state.RetiredWatermark
	return nil
}
