package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jbartok/big-data-benchmark/element"
)

// CSV appends one row per result:
// windowEndTimeLabel, key, value, emitTimeMs, latencyMs
type CSV[V any] struct {
	mutex  sync.Mutex
	file   *os.File
	writer *csv.Writer
}

func NewCSV[V any](path string) (*CSV[V], error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open output file %s", path)
	}
	return &CSV[V]{
		file:   file,
		writer: csv.NewWriter(file),
	}, nil
}

func (s *CSV[V]) Write(result element.Result[V]) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	record := []string{
		time.UnixMilli(result.WindowEnd).Format("15:04:05.000"),
		result.Key,
		fmt.Sprint(result.Value),
		strconv.FormatInt(result.EmitTime, 10),
		strconv.FormatInt(result.Latency, 10),
	}
	if err := s.writer.Write(record); err != nil {
		return errors.WithMessage(err, "failed to write result row")
	}
	return nil
}

func (s *CSV[V]) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return errors.WithMessage(err, "failed to flush result rows")
	}
	return s.file.Close()
}
