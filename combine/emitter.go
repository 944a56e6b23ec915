package combine

import (
	"time"

	"github.com/uber-go/tally/v4"

	"github.com/jbartok/big-data-benchmark/element"
	"github.com/jbartok/big-data-benchmark/window"
)

// Emitter stamps fired windows into Result records. The wall clock is
// injectable so tests get stable emit times.
type Emitter[V any] struct {
	now     func() int64
	emitted tally.Counter
	latency tally.Timer
}

func NewEmitter[V any](scope tally.Scope, now func() int64) *Emitter[V] {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Emitter[V]{
		now:     now,
		emitted: scope.Counter("results_emitted"),
		latency: scope.Timer("emit_latency"),
	}
}

func (e *Emitter[V]) Emit(key string, win window.Window, value V) element.Result[V] {
	emitTime := e.now()
	result := element.Result[V]{
		WindowEnd: win.End,
		Key:       key,
		Value:     value,
		EmitTime:  emitTime,
		Latency:   emitTime - win.End,
	}
	e.emitted.Inc(1)
	e.latency.Record(time.Duration(result.Latency) * time.Millisecond)
	return result
}
