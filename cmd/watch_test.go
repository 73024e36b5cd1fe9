package cmd

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type slowDeactivator struct {
	delay time.Duration
	done  atomic.Bool
}

func (d *slowDeactivator) Deactivate(ctx context.Context) error {
	select {
	case <-time.After(d.delay):
		d.done.Store(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestStopTriggerDisablesWorkflowBeforeStopping(t *testing.T) {
	next := &slowDeactivator{delay: 50 * time.Millisecond}
	var finishedBeforeStop bool
	trigger := &stopTrigger{
		stop: func() { finishedBeforeStop = next.done.Load() },
		next: next,
		log:  zap.NewNop(),
	}

	require.NoError(t, trigger.Deactivate(context.Background()))
	assert.True(t, finishedBeforeStop)
}

func TestRunScheduleWaitsForImmediateRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var finished atomic.Bool
	cr := cron.New()
	// January 1st only, so the immediate run is the only one.
	id, err := cr.AddFunc("0 0 1 1 *", func() {
		cancel()
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})
	require.NoError(t, err)

	runSchedule(ctx, cr, id, true)
	assert.True(t, finished.Load())
}

func TestRunScheduleWithoutImmediateRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	cr := cron.New()
	id, err := cr.AddFunc("0 0 1 1 *", func() { ran.Store(true) })
	require.NoError(t, err)

	cancel()
	runSchedule(ctx, cr, id, false)
	assert.False(t, ran.Load())
}
