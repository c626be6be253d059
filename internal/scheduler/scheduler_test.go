package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTickAligned(t *testing.T) {
	job := Job{Interval: 15 * time.Minute, AlignToStart: true}
	now := time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC), job.nextTick(now))

	onBoundary := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), job.nextTick(onBoundary))
	assert.Equal(t, onBoundary, job.bucketStart(onBoundary.Add(time.Second)))
}

func TestNextTickUnaligned(t *testing.T) {
	job := Job{Interval: time.Hour}
	now := time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC)
	assert.Equal(t, now.Add(time.Hour), job.nextTick(now))
	assert.Equal(t, now, job.bucketStart(now))
}

func TestNewValidatesJobs(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	require.Error(t, err)

	_, err = New(Options{}, zerolog.Nop(), Job{Name: "x", Interval: 0, Tick: func(context.Context, time.Time) error { return nil }})
	require.Error(t, err)

	_, err = New(Options{}, zerolog.Nop(), Job{Name: "x", Interval: time.Second})
	require.Error(t, err)
}

func TestRunInvokesJobsUntilCancelled(t *testing.T) {
	var fast, failing atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(Options{}, zerolog.Nop(),
		Job{Name: "fast", Interval: 10 * time.Millisecond, RunOnStart: true, Tick: func(context.Context, time.Time) error {
			if fast.Add(1) >= 3 {
				cancel()
			}
			return nil
		}},
		Job{Name: "failing", Interval: 5 * time.Millisecond, Tick: func(context.Context, time.Time) error {
			failing.Add(1)
			return errors.New("boom")
		}},
	)
	require.NoError(t, err)

	err = s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, fast.Load(), int32(3))
	assert.Positive(t, failing.Load(), "failing ticks keep the job alive")
}

func TestRunStartupDelayHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := New(Options{StartupDelay: time.Hour}, zerolog.Nop(),
		Job{Name: "x", Interval: time.Hour, Tick: func(context.Context, time.Time) error { return nil }})
	require.NoError(t, err)
	require.ErrorIs(t, s.Run(ctx), context.Canceled)
}
