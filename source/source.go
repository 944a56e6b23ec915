package source

import (
	"context"

	"github.com/jbartok/big-data-benchmark/element"
)

// Source delivers keyed events from a partitioned log. Offsets are
// monotonically recoverable per partition through Snapshot/Restore. Delivery
// is at-least-once: after a restart from a checkpoint the same event may be
// delivered again, and the engine does not deduplicate.
type Source[T any] interface {
	Partitions() int
	// Run delivers one partition's events to emit until the context is done
	// or the partition is exhausted. A blocking emit is the backpressure path.
	Run(ctx context.Context, partition int, emit func(element.Event[T])) error
	// Snapshot serializes the current read positions of all partitions.
	Snapshot() ([]byte, error)
	// Restore rewinds the read positions to a previous Snapshot.
	Restore(state []byte) error
	Close() error
}
