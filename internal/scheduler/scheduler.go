package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every (optionally aligned) interval.
type TickFunc func(ctx context.Context, at time.Time) error

// Job is one periodic task.
type Job struct {
	Name         string
	Interval     time.Duration
	AlignToStart bool
	RunOnStart   bool
	Tick         TickFunc
}

// Options tune scheduler behaviour.
type Options struct {
	StartupDelay time.Duration
}

// Scheduler drives periodic execution of independent jobs.
type Scheduler struct {
	opts   Options
	jobs   []Job
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger, jobs ...Job) (*Scheduler, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("scheduler needs at least one job")
	}
	for _, job := range jobs {
		if job.Interval <= 0 {
			return nil, fmt.Errorf("job %q: interval must be positive", job.Name)
		}
		if job.Tick == nil {
			return nil, fmt.Errorf("job %q: tick func required", job.Name)
		}
	}
	return &Scheduler{opts: opts, jobs: jobs, logger: logger.With().Str("component", "scheduler").Logger()}, nil
}

// Run blocks, invoking every job on its interval until ctx is cancelled.
// Jobs run concurrently with each other; a job never overlaps itself.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runJob(ctx, job)
		}(job)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	log := s.logger.With().Str("job", job.Name).Logger()

	if job.RunOnStart {
		s.execute(ctx, log, job, time.Now().UTC())
	}

	next := job.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = job.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		log.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			timer.Stop()
		}

		s.execute(ctx, log, job, job.bucketStart(next))
		next = next.Add(job.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, log zerolog.Logger, job Job, at time.Time) {
	log.Info().Time("at", at).Msg("executing scheduled tick")
	if err := job.Tick(ctx, at); err != nil {
		log.Error().Err(err).Time("at", at).Msg("tick execution failed")
	}
}

func (j Job) nextTick(now time.Time) time.Time {
	if !j.AlignToStart {
		return now.Add(j.Interval)
	}
	bucket := now.Truncate(j.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(j.Interval)
	}
	return bucket
}

func (j Job) bucketStart(t time.Time) time.Time {
	if !j.AlignToStart {
		return t
	}
	return t.Truncate(j.Interval)
}
