package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbartok/big-data-benchmark/log"
)

func TestSupervisorRetriesUntilSuccess(t *testing.T) {
	runs := 0
	var attempts []int
	supervisor := NewSupervisor(log.Global(), func(context.Context) error {
		runs++
		if runs < 3 {
			return errors.New("transient")
		}
		return nil
	}, FixedDelay(time.Millisecond), func(attempt int, err error) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
	})

	require.NoError(t, supervisor.Run(context.Background()))
	assert.Equal(t, 3, runs)
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, SupervisorStopped, supervisor.State())
}

func TestSupervisorRecoversFromPanic(t *testing.T) {
	runs := 0
	supervisor := NewSupervisor(log.Global(), func(context.Context) error {
		runs++
		if runs == 1 {
			panic("window state corrupted")
		}
		return nil
	}, FixedDelay(time.Millisecond), nil)

	require.NoError(t, supervisor.Run(context.Background()))
	assert.Equal(t, 2, runs)
}

func TestSupervisorStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	supervisor := NewSupervisor(log.Global(), func(context.Context) error {
		return errors.New("always failing")
	}, FixedDelay(time.Hour), nil)

	err := supervisor.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFixedDelayIsConstant(t *testing.T) {
	backoff := FixedDelay(2 * time.Second)
	assert.Equal(t, 2*time.Second, backoff.Next(1))
	assert.Equal(t, 2*time.Second, backoff.Next(100))
}
