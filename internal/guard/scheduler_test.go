package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	slept  []time.Duration
	result error
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return c.result
}

func newFakeScheduler(enabled bool) (*Scheduler, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewScheduler(enabled)
	s.now = clock.Now
	s.sleep = clock.Sleep
	return s, clock
}

func TestSchedulerWaitsForSegmentEnd(t *testing.T) {
	s, clock := newFakeScheduler(true)
	s.Start()
	ctx := context.Background()

	require.NoError(t, s.WaitUntil(ctx, 2.5))
	assert.Equal(t, []time.Duration{2500 * time.Millisecond}, clock.slept)

	clock.now = clock.now.Add(3 * time.Second)
	require.NoError(t, s.WaitUntil(ctx, 4))
	assert.Len(t, clock.slept, 1, "target already passed")
	assert.InDelta(t, 5.5, s.Elapsed(), 1e-9)
}

func TestSchedulerDisabledIsNoop(t *testing.T) {
	s, clock := newFakeScheduler(false)
	s.Start()
	require.NoError(t, s.WaitUntil(context.Background(), 100))
	assert.Empty(t, clock.slept)
	assert.False(t, s.Enabled())
}

func TestSchedulerHonorsCancellation(t *testing.T) {
	s, clock := newFakeScheduler(true)
	s.Start()
	clock.result = context.Canceled
	require.ErrorIs(t, s.WaitUntil(context.Background(), 1), context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	disabled, _ := newFakeScheduler(false)
	require.ErrorIs(t, disabled.WaitUntil(ctx, 0), context.Canceled)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
