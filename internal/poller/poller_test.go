package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunStopsWhenTaskIsDone(t *testing.T) {
	var calls int32
	p := New(5*time.Millisecond, func(context.Context) bool {
		return atomic.AddInt32(&calls, 1) == 3
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.NoError(t, p.Run(ctx))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRunCallsTaskImmediately(t *testing.T) {
	var calls int32
	p := New(time.Hour, func(context.Context) bool {
		atomic.AddInt32(&calls, 1)
		return true
	})

	assert.NoError(t, p.Run(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRunReturnsOnCancel(t *testing.T) {
	p := New(5*time.Millisecond, func(context.Context) bool { return false })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, p.Run(ctx), context.DeadlineExceeded)
}

func TestRunWithCancelledContextSkipsTask(t *testing.T) {
	var calls int32
	p := New(time.Millisecond, func(context.Context) bool {
		atomic.AddInt32(&calls, 1)
		return true
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Run(ctx), context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&calls))
}
