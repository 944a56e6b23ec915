package pipeline

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"go.uber.org/multierr"

	"github.com/jbartok/big-data-benchmark/aggregate"
	"github.com/jbartok/big-data-benchmark/combine"
	"github.com/jbartok/big-data-benchmark/common/safe"
	"github.com/jbartok/big-data-benchmark/common/status"
	"github.com/jbartok/big-data-benchmark/element"
	"github.com/jbartok/big-data-benchmark/log"
	"github.com/jbartok/big-data-benchmark/shuffle"
	"github.com/jbartok/big-data-benchmark/sink"
	"github.com/jbartok/big-data-benchmark/source"
	"github.com/jbartok/big-data-benchmark/store"
	"github.com/jbartok/big-data-benchmark/watermark"
	"github.com/jbartok/big-data-benchmark/window"
)

type msgKind int

const (
	kindEvent msgKind = iota
	kindWatermark
	kindBarrier
)

// aggMessage is one entry on a source→aggregate edge.
type aggMessage[T any] struct {
	kind         msgKind
	event        element.Event[T]
	watermark    int64
	from         int
	checkpointId int64
}

const sourceStateName = "source"

func aggregatorStateName(task int) string {
	return fmt.Sprintf("aggregator-%d", task)
}

func combinerStateName(task int) string {
	return fmt.Sprintf("combiner-%d", task)
}

// aggregatorTaskState bundles an aggregator task's keyed state with its view
// of the partition watermarks.
type aggregatorTaskState struct {
	Keyed    []byte
	Combined *watermark.Combined
}

// Pipeline wires source, aggregate, shuffle, combine and sink stages. Edges
// are bounded channels, so a slow stage blocks its upstream instead of
// dropping data. Window firing is driven purely by watermark advancement;
// replaying the same input produces the same firing sequence.
type Pipeline[T, A, V any] struct {
	config     Config
	logger     log.Logger
	scope      tally.Scope
	source     source.Source[T]
	sink       sink.Sink[V]
	aggregator aggregate.Aggregator[T, A, V]
	assigner   window.Assigner
	backend    store.Backend
	now        func() int64
	status     status.Status
}

type Option[T, A, V any] func(*Pipeline[T, A, V])

// WithBackend overrides the checkpoint store, mostly for tests.
func WithBackend[T, A, V any](backend store.Backend) Option[T, A, V] {
	return func(p *Pipeline[T, A, V]) {
		p.backend = backend
	}
}

// WithClock overrides the wall clock used to stamp emitted results.
func WithClock[T, A, V any](now func() int64) Option[T, A, V] {
	return func(p *Pipeline[T, A, V]) {
		p.now = now
	}
}

func New[T, A, V any](
	config Config,
	src source.Source[T],
	aggregator aggregate.Aggregator[T, A, V],
	snk sink.Sink[V],
	scope tally.Scope,
	options ...Option[T, A, V],
) (*Pipeline[T, A, V], error) {
	if err := config.validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid pipeline config")
	}
	if src.Partitions() != config.SourceParallelism {
		return nil, errors.Errorf("source has %d partitions but sourceParallelism is %d",
			src.Partitions(), config.SourceParallelism)
	}
	assigner, err := window.NewAssigner(config.WindowSize, config.SlideBy)
	if err != nil {
		return nil, err
	}
	p := &Pipeline[T, A, V]{
		config:     config,
		logger:     log.Global().Named("pipeline").Named(config.RunId),
		scope:      scope,
		source:     src,
		sink:       snk,
		aggregator: aggregator,
		assigner:   assigner,
	}
	for _, option := range options {
		option(p)
	}
	if p.backend == nil {
		if config.CheckpointInterval > 0 {
			backend, err := store.NewFSBackend(p.logger, config.CheckpointsDir, config.CheckpointsNumRetained)
			if err != nil {
				return nil, err
			}
			p.backend = backend
		} else {
			p.backend = store.NewMemoryBackend()
		}
	}
	return p, nil
}

// Run executes one pipeline run: restore from the latest checkpoint, process
// until every source partition is exhausted or a stage fails. The supervisor
// layers the restart policy on top.
func (p *Pipeline[T, A, V]) Run(ctx context.Context) error {
	if !status.CAP(&p.status, status.Ready, status.Running) {
		return errors.Errorf("pipeline is %v, only a ready pipeline can run", p.status.Load())
	}
	defer status.CAP(&p.status, status.Running, status.Ready)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		n = p.config.SourceParallelism
		m = p.config.AggregateParallelism

		aggregateScope = p.scope.SubScope("aggregate")
		combineScope   = p.scope.SubScope("combine")
	)

	emitter := combine.NewEmitter[V](combineScope, p.now)
	keyedTasks := make([]*aggregate.Keyed[T, A, V], m)
	combinedWatermarks := make([]*watermark.Combined, m)
	combiners := make([]*combine.Combiner[A, V], m)
	for j := 0; j < m; j++ {
		keyedTasks[j] = aggregate.NewKeyed[T, A, V](j, p.aggregator, p.assigner,
			aggregateScope, p.logger.Named(aggregatorStateName(j)))
		combinedWatermarks[j] = watermark.NewCombined(n)
		combiners[j] = combine.NewCombiner[A, V](m, p.aggregator, emitter,
			combineScope, p.logger.Named(combinerStateName(j)))
	}
	if err := p.restore(keyedTasks, combinedWatermarks, combiners); err != nil {
		return err
	}

	trackers := make([]*watermark.Tracker, n)
	for i := 0; i < n; i++ {
		trackers[i] = watermark.NewTracker(p.config.AllowedLag.Milliseconds())
	}
	aggChans := make([]chan aggMessage[T], m)
	for j := range aggChans {
		aggChans[j] = make(chan aggMessage[T], p.config.ChannelSize)
	}
	partitioner := shuffle.NewPartitioner(m)
	shuffler := shuffle.New[A](m, m, p.config.ChannelSize)

	signalChan := make(chan signal, 16*m)

	//a failed stage cancels the run; the stages drain and wind down, then
	//Run reports the collected errors
	var (
		errMutex sync.Mutex
		runErr   error
	)
	fail := func(err error) {
		errMutex.Lock()
		runErr = multierr.Append(runErr, err)
		errMutex.Unlock()
		cancel()
	}

	var sourceWg, aggregateWg, combineWg sync.WaitGroup
	spawn := func(wg *sync.WaitGroup, name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := safe.Run(fn); err != nil {
				fail(errors.WithMessage(err, name))
			}
		}()
	}

	//source stage: per-partition workers observe event times and route
	//events to aggregator tasks by key hash
	for i := 0; i < n; i++ {
		i := i
		emit := func(event element.Event[T]) {
			trackers[i].Observe(event.Timestamp)
			//a cancelled run stops accepting events; the restart replays
			//them from the last checkpoint
			select {
			case aggChans[partitioner.TaskFor(event.Key)] <- aggMessage[T]{kind: kindEvent, event: event}:
			case <-runCtx.Done():
			}
		}
		spawn(&sourceWg, fmt.Sprintf("source partition %d", i), func() error {
			if err := p.source.Run(runCtx, i, emit); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			//partition exhausted: release every remaining window downstream
			for _, aggChan := range aggChans {
				select {
				case aggChan <- aggMessage[T]{kind: kindWatermark, watermark: math.MaxInt64, from: i}:
				case <-runCtx.Done():
					return nil
				}
			}
			return nil
		})
	}

	//periodic watermark broadcast, the per-event path never recomputes
	stopWatermarks := make(chan struct{})
	watermarksDone := make(chan struct{})
	go func() {
		defer close(watermarksDone)
		ticker := time.NewTicker(p.config.WatermarkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopWatermarks:
				return
			case <-runCtx.Done():
				return
			case <-ticker.C:
				for i := 0; i < n; i++ {
					current := trackers[i].Current()
					for _, aggChan := range aggChans {
						select {
						case aggChan <- aggMessage[T]{kind: kindWatermark, watermark: current, from: i}:
						case <-stopWatermarks:
							return
						case <-runCtx.Done():
							return
						}
					}
				}
			}
		}
	}()

	//aggregate stage
	for j := 0; j < m; j++ {
		j := j
		spawn(&aggregateWg, aggregatorStateName(j), func() error {
			var (
				name     = aggregatorStateName(j)
				keyed    = keyedTasks[j]
				combined = combinedWatermarks[j]
			)
			for msg := range aggChans[j] {
				switch msg.kind {
				case kindEvent:
					keyed.ProcessEvent(msg.event)
				case kindWatermark:
					if combined.Update(msg.watermark, msg.from) {
						for _, partial := range keyed.AdvanceWatermark(combined.Current()) {
							shuffler.Send(partial)
						}
						shuffler.Flush(j, combined.Current())
					}
				case kindBarrier:
					p.saveTask(name, msg.checkpointId, signalChan, func() ([]byte, error) {
						keyedBytes, err := keyed.Snapshot()
						if err != nil {
							return nil, err
						}
						return encodeAggregatorState(aggregatorTaskState{Keyed: keyedBytes, Combined: combined})
					})
					shuffler.Barrier(j, msg.checkpointId)
				}
			}
			return nil
		})
	}
	go func() {
		aggregateWg.Wait()
		shuffler.Close()
	}()

	//combine stage
	for j := 0; j < m; j++ {
		j := j
		spawn(&combineWg, combinerStateName(j), func() error {
			var (
				name        = combinerStateName(j)
				combiner    = combiners[j]
				barrierSeen = map[int64]int{}
			)
			handle := func(msg shuffle.Message[A]) error {
				switch msg.Kind {
				case shuffle.KindPartial:
					combiner.Accept(*msg.Partial)
				case shuffle.KindFlush:
					for _, result := range combiner.ObserveFlush(msg.Producer, msg.Watermark) {
						if err := p.sink.Write(result); err != nil {
							return err
						}
					}
				case shuffle.KindBarrier:
					barrierSeen[msg.CheckpointId]++
					if barrierSeen[msg.CheckpointId] == m {
						delete(barrierSeen, msg.CheckpointId)
						p.saveTask(name, msg.CheckpointId, signalChan, combiner.Snapshot)
					}
				}
				return nil
			}
			//after the first failure the worker keeps draining its edge,
			//otherwise upstream tasks block on a full channel and the run
			//never winds down
			var workerErr error
			for msg := range shuffler.In(j) {
				if workerErr != nil {
					continue
				}
				if err := safe.Run(func() error { return handle(msg) }); err != nil {
					workerErr = err
					cancel()
				}
			}
			return workerErr
		})
	}

	//checkpoint coordination
	coordinatorCtx, cancelCoordinator := context.WithCancel(runCtx)
	defer cancelCoordinator()
	coordinatorDone := make(chan error, 1)
	close(coordinatorDone)
	if p.config.CheckpointInterval > 0 {
		var tasksToWaitFor []string
		for j := 0; j < m; j++ {
			tasksToWaitFor = append(tasksToWaitFor, aggregatorStateName(j), combinerStateName(j))
		}
		coord := newCoordinator(p.logger, p.backend, p.config.CheckpointInterval, tasksToWaitFor,
			func(checkpointId int64) error {
				stateBytes, err := p.source.Snapshot()
				if err != nil {
					return err
				}
				if err := p.backend.Save(checkpointId, sourceStateName, stateBytes); err != nil {
					return err
				}
				for _, aggChan := range aggChans {
					select {
					case aggChan <- aggMessage[T]{kind: kindBarrier, checkpointId: checkpointId}:
					case <-coordinatorCtx.Done():
						return coordinatorCtx.Err()
					}
				}
				return nil
			}, signalChan)
		coordinatorDone = safe.Go(func() error {
			return coord.run(coordinatorCtx)
		})
	}

	//shutdown sequencing: nobody may write to the source→aggregate edges
	//once they close
	go func() {
		sourceWg.Wait()
		close(stopWatermarks)
		<-watermarksDone
		cancelCoordinator()
		<-coordinatorDone
		for _, aggChan := range aggChans {
			close(aggChan)
		}
	}()

	combineWg.Wait()
	errMutex.Lock()
	defer errMutex.Unlock()
	return runErr
}

// Close releases the checkpoint store, source and sink. A closed pipeline
// refuses further runs.
func (p *Pipeline[T, A, V]) Close() error {
	if !status.CAP(&p.status, status.Ready, status.Closed) {
		return errors.Errorf("pipeline is %v, only a ready pipeline can be closed", p.status.Load())
	}
	return multierr.Combine(
		p.source.Close(),
		p.sink.Close(),
		p.backend.Close(),
	)
}

func (p *Pipeline[T, A, V]) saveTask(name string, checkpointId int64, signalChan chan<- signal, snapshot func() ([]byte, error)) {
	message := ackSignal
	if stateBytes, err := snapshot(); err != nil {
		p.logger.Warnw("failed to snapshot task state.", "task", name, "checkpointId", checkpointId, "err", err)
		message = decSignal
	} else if err := p.backend.Save(checkpointId, name, stateBytes); err != nil {
		p.logger.Warnw("failed to save task state.", "task", name, "checkpointId", checkpointId, "err", err)
		message = decSignal
	}
	select {
	case signalChan <- signal{Name: name, Message: message, CheckpointId: checkpointId}:
	default:
		//coordinator gone, the checkpoint times out on its own
	}
}

func (p *Pipeline[T, A, V]) restore(
	keyedTasks []*aggregate.Keyed[T, A, V],
	combinedWatermarks []*watermark.Combined,
	combiners []*combine.Combiner[A, V],
) error {
	if stateBytes, err := p.backend.Get(sourceStateName); err != nil {
		return errors.WithMessage(err, "failed to read source checkpoint state")
	} else if stateBytes != nil {
		if err := p.source.Restore(stateBytes); err != nil {
			return err
		}
		p.logger.Info("restored source offsets from checkpoint")
	}
	for j := range keyedTasks {
		stateBytes, err := p.backend.Get(aggregatorStateName(j))
		if err != nil {
			return errors.WithMessagef(err, "failed to read %s checkpoint state", aggregatorStateName(j))
		}
		if stateBytes == nil {
			continue
		}
		state, err := decodeAggregatorState(stateBytes)
		if err != nil {
			return err
		}
		if err := keyedTasks[j].Restore(state.Keyed); err != nil {
			return err
		}
		if state.Combined != nil && len(state.Combined.Partials) == p.config.SourceParallelism {
			*combinedWatermarks[j] = *state.Combined
		} else {
			p.logger.Warnw("dropping combined watermark state, source parallelism changed.",
				"task", aggregatorStateName(j))
		}
	}
	for j := range combiners {
		stateBytes, err := p.backend.Get(combinerStateName(j))
		if err != nil {
			return errors.WithMessagef(err, "failed to read %s checkpoint state", combinerStateName(j))
		}
		if stateBytes == nil {
			continue
		}
		if err := combiners[j].Restore(stateBytes); err != nil {
			return err
		}
	}
	return nil
}

func encodeAggregatorState(state aggregatorTaskState) ([]byte, error) {
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(state); err != nil {
		return nil, errors.WithMessage(err, "failed to encode aggregator task state to gob bytes")
	}
	return buffer.Bytes(), nil
}

func decodeAggregatorState(byteSlice []byte) (aggregatorTaskState, error) {
	var state aggregatorTaskState
	if err := gob.NewDecoder(bytes.NewReader(byteSlice)).Decode(&state); err != nil {
		return state, errors.WithMessage(err, "failed to decode aggregator task state from gob bytes")
	}
	return state, nil
}
