package shuffle

import (
	"github.com/jbartok/big-data-benchmark/aggregate"
)

type Kind int

const (
	//one partial aggregate
	KindPartial Kind = iota
	//the producer has delivered every partial for windows ending at or
	//before Watermark
	KindFlush
	//checkpoint barrier forwarded downstream
	KindBarrier
)

// Message travels on a shuffle edge.
type Message[A any] struct {
	Kind         Kind
	Partial      *aggregate.Partial[A]
	Watermark    int64
	CheckpointId int64
	Producer     int
}

// Shuffle owns the bounded edges between the aggregate and combine stages.
// Each consumer has one channel; channel sends keep per-producer FIFO order
// and a full channel blocks the producer, which is the backpressure path.
// There is no order guarantee across producers or keys.
type Shuffle[A any] struct {
	partitioner Partitioner
	producers   int
	edges       []chan Message[A]
}

func New[A any](producers, consumers, channelSize int) *Shuffle[A] {
	edges := make([]chan Message[A], consumers)
	for i := range edges {
		edges[i] = make(chan Message[A], channelSize)
	}
	return &Shuffle[A]{
		partitioner: NewPartitioner(consumers),
		producers:   producers,
		edges:       edges,
	}
}

func (s *Shuffle[A]) Producers() int {
	return s.producers
}

// Send routes one partial to its key's consumer.
func (s *Shuffle[A]) Send(partial aggregate.Partial[A]) {
	s.edges[s.partitioner.TaskFor(partial.Key)] <- Message[A]{
		Kind:     KindPartial,
		Partial:  &partial,
		Producer: partial.Producer,
	}
}

// Flush broadcasts the producer's watermark to every consumer. It must be
// called after all partials retired by that watermark have been sent.
func (s *Shuffle[A]) Flush(producer int, watermark int64) {
	for _, edge := range s.edges {
		edge <- Message[A]{Kind: KindFlush, Watermark: watermark, Producer: producer}
	}
}

// Barrier broadcasts a checkpoint barrier to every consumer.
func (s *Shuffle[A]) Barrier(producer int, checkpointId int64) {
	for _, edge := range s.edges {
		edge <- Message[A]{Kind: KindBarrier, CheckpointId: checkpointId, Producer: producer}
	}
}

func (s *Shuffle[A]) In(consumer int) <-chan Message[A] {
	return s.edges[consumer]
}

// Close closes every edge. Call once, after all producers are done.
func (s *Shuffle[A]) Close() {
	for _, edge := range s.edges {
		close(edge)
	}
}
