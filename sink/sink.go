package sink

import (
	"github.com/jbartok/big-data-benchmark/element"
)

// Sink accepts one Result per (key, window) as an append-only write. No
// update or delete semantics are assumed.
type Sink[V any] interface {
	Write(result element.Result[V]) error
	Close() error
}
