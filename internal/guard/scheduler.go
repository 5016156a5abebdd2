package guard

import (
	"context"
	"time"
)

// Scheduler paces segment processing against wall-clock time so a turn is
// never surfaced before its audio would have finished playing.
type Scheduler struct {
	enabled bool
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	started time.Time
}

func NewScheduler(enabled bool) *Scheduler {
	return &Scheduler{enabled: enabled, now: time.Now, sleep: sleepContext}
}

func (s *Scheduler) Enabled() bool { return s.enabled }

// Start marks the session start that WaitUntil offsets are measured from.
func (s *Scheduler) Start() {
	s.started = s.now()
}

// Elapsed reports seconds since Start.
func (s *Scheduler) Elapsed() float64 {
	if s.started.IsZero() {
		return 0
	}
	return s.now().Sub(s.started).Seconds()
}

// WaitUntil blocks until target seconds have elapsed since Start. It returns
// at once when disabled or already past target, and returns ctx.Err() when
// the context ends first.
func (s *Scheduler) WaitUntil(ctx context.Context, target float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.enabled {
		return nil
	}
	if s.started.IsZero() {
		s.Start()
	}
	deadline := s.started.Add(time.Duration(target * float64(time.Second)))
	wait := deadline.Sub(s.now())
	if wait <= 0 {
		return nil
	}
	return s.sleep(ctx, wait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
