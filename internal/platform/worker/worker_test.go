package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsOnStartAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var (
		ticks   atomic.Int32
		stopped atomic.Bool
	)

	done := make(chan error, 1)

	go func() {
		done <- Loop(ctx, Config{
			Name:       "test",
			Interval:   time.Hour,
			RunOnStart: true,
			OnTick: func(context.Context) {
				ticks.Add(1)
				cancel()
			},
			OnStop: func() { stopped.Store(true) },
		})
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}

	assert.Equal(t, int32(1), ticks.Load())
	assert.True(t, stopped.Load())
}

func TestLoopTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32

	err := Loop(ctx, Config{
		Name:     "test",
		Interval: time.Millisecond,
		OnTick: func(context.Context) {
			if ticks.Add(1) == 3 {
				cancel()
			}
		},
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), ticks.Load())
}

func TestLoopSurvivesPanickingTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32

	err := Loop(ctx, Config{
		Name:       "test",
		Interval:   time.Millisecond,
		RunOnStart: true,
		OnTick: func(context.Context) {
			if ticks.Add(1) == 1 {
				panic("boom")
			}

			cancel()
		},
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), ticks.Load())
}

func TestLoopRejectsInvalidInterval(t *testing.T) {
	err := Loop(context.Background(), Config{Name: "test"})

	assert.Error(t, err)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}

func TestRecoverPanicCallsHandler(t *testing.T) {
	var got any

	func() {
		defer RecoverPanic(nil, "op", func(p any) { got = p })

		panic("boom")
	}()

	assert.Equal(t, "boom", got)
}
