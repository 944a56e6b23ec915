package source

import (
	"bytes"
	"context"
	"encoding/gob"
	"sync"

	"github.com/pkg/errors"

	"github.com/jbartok/big-data-benchmark/element"
)

// Slice replays fixed per-partition event slices, for tests and local runs.
type Slice[T any] struct {
	mutex      sync.Mutex
	partitions [][]element.Event[T]
	offsets    []int
}

func NewSlice[T any](partitions [][]element.Event[T]) *Slice[T] {
	return &Slice[T]{
		partitions: partitions,
		offsets:    make([]int, len(partitions)),
	}
}

func (s *Slice[T]) Partitions() int {
	return len(s.partitions)
}

func (s *Slice[T]) Run(ctx context.Context, partition int, emit func(element.Event[T])) error {
	for {
		s.mutex.Lock()
		offset := s.offsets[partition]
		if offset >= len(s.partitions[partition]) {
			s.mutex.Unlock()
			return nil
		}
		event := s.partitions[partition][offset]
		s.mutex.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		emit(event)

		//the offset only moves past an event once it is in the pipeline, so a
		//snapshot taken mid-emit replays it instead of dropping it
		s.mutex.Lock()
		s.offsets[partition] = offset + 1
		s.mutex.Unlock()
	}
}

func (s *Slice[T]) Snapshot() ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(s.offsets); err != nil {
		return nil, errors.WithMessage(err, "failed to encode slice source offsets")
	}
	return buffer.Bytes(), nil
}

func (s *Slice[T]) Restore(state []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var offsets []int
	if err := gob.NewDecoder(bytes.NewReader(state)).Decode(&offsets); err != nil {
		return errors.WithMessage(err, "failed to decode slice source offsets")
	}
	if len(offsets) != len(s.partitions) {
		return errors.Errorf("offset count %d does not match partition count %d", len(offsets), len(s.partitions))
	}
	s.offsets = offsets
	return nil
}

func (s *Slice[T]) Close() error { return nil }
