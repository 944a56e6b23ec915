package sink

import (
	"sync"

	"github.com/jbartok/big-data-benchmark/element"
)

// Capture keeps results in memory, for tests.
type Capture[V any] struct {
	mutex   sync.Mutex
	results []element.Result[V]
}

func NewCapture[V any]() *Capture[V] {
	return &Capture[V]{}
}

func (s *Capture[V]) Write(result element.Result[V]) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *Capture[V]) Results() []element.Result[V] {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]element.Result[V], len(s.results))
	copy(out, s.results)
	return out
}

func (s *Capture[V]) Close() error { return nil }
