package window

import (
	"time"

	"github.com/pkg/errors"
)

// Assigner maps an event timestamp to the windows it belongs to. Assignment
// must be deterministic and side-effect free so a replay produces identical
// window membership.
type Assigner interface {
	AssignWindows(eventTimestamp int64) []Window
}

type tumblingAssigner struct {
	size int64
}

func (t *tumblingAssigner) AssignWindows(eventTimestamp int64) []Window {
	start := startFor(eventTimestamp, t.size)
	return []Window{{Start: start, End: start + t.size}}
}

type slidingAssigner struct {
	size    int64
	slideBy int64
}

func (s *slidingAssigner) AssignWindows(eventTimestamp int64) []Window {
	windows := make([]Window, 0, (s.size+s.slideBy-1)/s.slideBy)
	lastStart := startFor(eventTimestamp, s.slideBy)
	for start := lastStart; start > eventTimestamp-s.size; start -= s.slideBy {
		windows = append(windows, Window{Start: start, End: start + s.size})
	}
	return windows
}

// startFor aligns a timestamp to the window start of the given size,
// rounding towards negative infinity.
func startFor(timestamp int64, size int64) int64 {
	remainder := timestamp % size
	if remainder < 0 {
		remainder += size
	}
	return timestamp - remainder
}

// NewAssigner builds a sliding event-time assigner; size == slideBy
// degenerates to tumbling windows.
func NewAssigner(size, slideBy time.Duration) (Assigner, error) {
	sizeMs := size.Milliseconds()
	slideByMs := slideBy.Milliseconds()
	if sizeMs <= 0 {
		return nil, errors.Errorf("window size should be at least one millisecond, got %v", size)
	}
	if slideByMs <= 0 || slideByMs > sizeMs {
		return nil, errors.Errorf("slideBy should be in (0, size], got %v", slideBy)
	}
	if sizeMs == slideByMs {
		return &tumblingAssigner{size: sizeMs}, nil
	}
	return &slidingAssigner{size: sizeMs, slideBy: slideByMs}, nil
}
