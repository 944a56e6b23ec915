package pipeline

import (
	"context"
	"time"

	"github.com/jbartok/big-data-benchmark/log"
	"github.com/jbartok/big-data-benchmark/store"
)

type signalMessage int

const (
	ackSignal signalMessage = iota
	decSignal
)

type signal struct {
	Name         string
	Message      signalMessage
	CheckpointId int64
}

type pendingCheckpoint struct {
	checkpointId   int64
	isDiscarded    bool
	notYetAckTasks map[string]bool
}

func newPendingCheckpoint(checkpointId int64, tasksToWaitFor []string) *pendingCheckpoint {
	notYetAckTasks := make(map[string]bool, len(tasksToWaitFor))
	for _, name := range tasksToWaitFor {
		notYetAckTasks[name] = true
	}
	return &pendingCheckpoint{checkpointId: checkpointId, notYetAckTasks: notYetAckTasks}
}

func (p *pendingCheckpoint) ack(name string) {
	delete(p.notYetAckTasks, name)
}

func (p *pendingCheckpoint) isFullyAck() bool {
	return len(p.notYetAckTasks) == 0
}

// coordinator triggers periodic checkpoints: it snapshots the source offsets,
// injects barriers into the aggregate stage, and persists the checkpoint once
// every task has acked its own snapshot. A DEC from any task discards the
// checkpoint; the previous one stays the restore point.
type coordinator struct {
	logger         log.Logger
	backend        store.Backend
	interval       time.Duration
	tasksToWaitFor []string

	//trigger stages the source offsets and injects barriers
	trigger    func(checkpointId int64) error
	signalChan chan signal
}

func newCoordinator(
	logger log.Logger,
	backend store.Backend,
	interval time.Duration,
	tasksToWaitFor []string,
	trigger func(checkpointId int64) error,
	signalChan chan signal,
) *coordinator {
	return &coordinator{
		logger:         logger.Named("coordinator"),
		backend:        backend,
		interval:       interval,
		tasksToWaitFor: tasksToWaitFor,
		trigger:        trigger,
		signalChan:     signalChan,
	}
}

func (c *coordinator) run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	pendingCheckpoints := map[int64]*pendingCheckpoint{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			checkpointId := now.UnixMilli()
			if len(pendingCheckpoints) >= 5 {
				c.logger.Warnw("waiting checkpoints exceed the maximum number, skipping.",
					"checkpointId", checkpointId)
				continue
			}
			pendingCheckpoints[checkpointId] = newPendingCheckpoint(checkpointId, c.tasksToWaitFor)
			c.logger.Debugf("triggering checkpoint %d", checkpointId)
			if err := c.trigger(checkpointId); err != nil {
				c.logger.Warnw("failed to trigger checkpoint.", "checkpointId", checkpointId, "err", err)
				delete(pendingCheckpoints, checkpointId)
			}
		case s := <-c.signalChan:
			pending, ok := pendingCheckpoints[s.CheckpointId]
			if !ok || pending.isDiscarded {
				c.logger.Debugf("received %v from %s for unknown checkpoint %d", s.Message, s.Name, s.CheckpointId)
				continue
			}
			switch s.Message {
			case ackSignal:
				pending.ack(s.Name)
				if pending.isFullyAck() {
					if err := c.backend.Persist(s.CheckpointId); err != nil {
						c.logger.Warnw("can't persist checkpoint due to storage error.",
							"checkpointId", s.CheckpointId, "err", err)
					} else {
						c.logger.Debugf("completed checkpoint %d", s.CheckpointId)
						//drop older pending checkpoints, the new one supersedes them
						for checkpointId, older := range pendingCheckpoints {
							if checkpointId < s.CheckpointId {
								older.isDiscarded = true
								delete(pendingCheckpoints, checkpointId)
							}
						}
					}
					delete(pendingCheckpoints, s.CheckpointId)
				}
			case decSignal:
				c.logger.Warnw("checkpoint declined by task, discarding.",
					"checkpointId", s.CheckpointId, "task", s.Name)
				pending.isDiscarded = true
				delete(pendingCheckpoints, s.CheckpointId)
			}
		}
	}
}
