package shuffle

import (
	"github.com/twmb/murmur3"
)

// Partitioner deterministically maps a key to one of n downstream tasks, so
// all data for the key lands on exactly one task.
type Partitioner struct {
	n uint32
}

func NewPartitioner(n int) Partitioner {
	if n <= 0 {
		panic("partitioner needs at least one downstream task")
	}
	return Partitioner{n: uint32(n)}
}

func (p Partitioner) TaskFor(key string) int {
	return int(murmur3.StringSum32(key) % p.n)
}
