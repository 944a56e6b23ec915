package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/jbartok/big-data-benchmark/element"
)

// Text tokenizes text files into word events, files spread round-robin across
// partitions. Offsets are tracked per file: a restart re-reads the file that
// was in flight, which is fine under the at-least-once contract.
type Text struct {
	mutex      sync.Mutex
	partitions [][]string
	//index of the next unread file per partition
	offsets []int
}

func NewText(paths []string, parallelism int) *Text {
	if parallelism <= 0 {
		parallelism = 1
	}
	partitions := make([][]string, parallelism)
	for i, path := range paths {
		partitions[i%parallelism] = append(partitions[i%parallelism], path)
	}
	return &Text{
		partitions: partitions,
		offsets:    make([]int, parallelism),
	}
}

func (s *Text) Partitions() int {
	return len(s.partitions)
}

func (s *Text) Run(ctx context.Context, partition int, emit func(element.Event[string])) error {
	for {
		s.mutex.Lock()
		offset := s.offsets[partition]
		if offset >= len(s.partitions[partition]) {
			s.mutex.Unlock()
			return nil
		}
		path := s.partitions[partition][offset]
		s.mutex.Unlock()

		if err := s.emitWords(ctx, path, emit); err != nil {
			return err
		}
		s.mutex.Lock()
		s.offsets[partition] = offset + 1
		s.mutex.Unlock()
	}
}

func (s *Text) emitWords(ctx context.Context, path string, emit func(element.Event[string])) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.WithMessagef(err, "failed to open %s", path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		word := scanner.Text()
		emit(element.Event[string]{Key: word, Timestamp: 0, Value: word})
	}
	return errors.WithMessagef(scanner.Err(), "failed to read %s", path)
}

func (s *Text) Snapshot() ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(s.offsets); err != nil {
		return nil, errors.WithMessage(err, "failed to encode text source offsets")
	}
	return buffer.Bytes(), nil
}

func (s *Text) Restore(state []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var offsets []int
	if err := gob.NewDecoder(bytes.NewReader(state)).Decode(&offsets); err != nil {
		return errors.WithMessage(err, "failed to decode text source offsets")
	}
	if len(offsets) != len(s.partitions) {
		return errors.Errorf("offset count %d does not match partition count %d", len(offsets), len(s.partitions))
	}
	s.offsets = offsets
	return nil
}

func (s *Text) Close() error { return nil }
