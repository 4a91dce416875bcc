package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/projecteru2/core/log"
)

const (
	DefaultInterval     = 5 * time.Second
	DefaultErrorBackoff = 60 * time.Second
)

// Clock lets tests drive the scheduler without real time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func RealClock() Clock { return realClock{} }

// Sweeper runs one full pass. *Monitor implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (SweepReport, error)
}

// Scheduler repeats sweeps forever: interval after a sweep, backoff after a
// sweep that failed unexpectedly. Sweeps never overlap.
type Scheduler struct {
	sweeper  Sweeper
	clock    Clock
	interval time.Duration
	backoff  time.Duration
}

func NewScheduler(sweeper Sweeper, clock Clock, interval, backoff time.Duration) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if backoff <= 0 {
		backoff = DefaultErrorBackoff
	}
	return &Scheduler{
		sweeper:  sweeper,
		clock:    clock,
		interval: interval,
		backoff:  backoff,
	}
}

// Run returns only when ctx is done, which is the process shutting down.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := log.WithFunc("monitor.Scheduler.Run")
	logger.Infof(ctx, "polling every %s, backing off %s after unexpected errors", s.interval, s.backoff)

	for {
		wait := s.interval
		if err := s.runOnce(ctx); err != nil {
			logger.Errorf(ctx, err, "an unexpected error occurred, retrying in %s", s.backoff)
			wait = s.backoff
		}

		select {
		case <-ctx.Done():
			logger.Infof(ctx, "stopping: %v", context.Cause(ctx))
			return nil
		case <-s.clock.After(wait):
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()
	_, err = s.sweeper.Sweep(ctx)
	return err
}
