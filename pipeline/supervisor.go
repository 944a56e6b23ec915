package pipeline

import (
	"context"
	"time"

	"github.com/jbartok/big-data-benchmark/common/safe"
	"github.com/jbartok/big-data-benchmark/log"

	"go.uber.org/atomic"
)

// BackoffPolicy decides how long to wait before restart attempt n (1-based).
type BackoffPolicy interface {
	Next(attempt int) time.Duration
}

// FixedDelay restarts forever with a constant pause, availability over a
// bounded retry budget: the pipeline is meant to run indefinitely.
type FixedDelay time.Duration

func (d FixedDelay) Next(int) time.Duration {
	return time.Duration(d)
}

type SupervisorState int32

const (
	SupervisorReady SupervisorState = iota
	SupervisorRunning
	SupervisorBackoff
	SupervisorStopped
)

// Supervisor reruns a pipeline run function until it completes without error
// or the context is cancelled. Retries are unbounded; each failure restarts
// the whole run, which restores from the last checkpoint.
type Supervisor struct {
	logger  log.Logger
	run     func(ctx context.Context) error
	backoff BackoffPolicy
	//observer is called on every failed attempt, for tests and metrics
	observer func(attempt int, err error)
	state    *atomic.Int32
}

func NewSupervisor(
	logger log.Logger,
	run func(ctx context.Context) error,
	backoff BackoffPolicy,
	observer func(attempt int, err error),
) *Supervisor {
	if observer == nil {
		observer = func(int, error) {}
	}
	return &Supervisor{
		logger:   logger.Named("supervisor"),
		run:      run,
		backoff:  backoff,
		observer: observer,
		state:    atomic.NewInt32(int32(SupervisorReady)),
	}
}

func (s *Supervisor) State() SupervisorState {
	return SupervisorState(s.state.Load())
}

func (s *Supervisor) Run(ctx context.Context) error {
	defer s.state.Store(int32(SupervisorStopped))
	for attempt := 1; ; attempt++ {
		s.state.Store(int32(SupervisorRunning))
		err := safe.Run(func() error {
			return s.run(ctx)
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.observer(attempt, err)
		delay := s.backoff.Next(attempt)
		s.logger.Errorw("pipeline run failed, restarting from last checkpoint.",
			"attempt", attempt, "delay", delay, "err", err)
		s.state.Store(int32(SupervisorBackoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
