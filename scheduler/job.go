// Package scheduler runs registered jobs on their schedules, one execution
// at a time per job.
package scheduler

import (
	"context"
	"math/rand"
	"time"
)

// Job is a task the scheduler can execute.
type Job interface {
	// Name returns the unique identifier for this job.
	Name() string

	// Run executes the job. It should respect context cancellation.
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next calculates the next run time after the given time.
	Next(after time.Time) time.Time
}

// IntervalSchedule runs a job at fixed intervals, optionally spread out by a
// random jitter.
type IntervalSchedule struct {
	interval time.Duration
	jitter   time.Duration
}

// NewIntervalSchedule creates a schedule that runs every interval.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{interval: interval}
}

// NewIntervalScheduleWithJitter creates a schedule that runs every
// interval + random(0, jitter). The jitter keeps a fleet of emitters from
// hitting the metrics endpoint at the same instant.
func NewIntervalScheduleWithJitter(interval, jitter time.Duration) *IntervalSchedule {
	return &IntervalSchedule{
		interval: interval,
		jitter:   jitter,
	}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(after time.Time) time.Time {
	next := after.Add(s.interval)
	if s.jitter > 0 {
		next = next.Add(time.Duration(randInt63n(int64(s.jitter))))
	}
	return next
}

// randInt63n returns a random int64 in [0, n), treating n <= 0 as zero.
func randInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return rand.Int63n(n)
}

// JobConfig holds per-job scheduler settings.
type JobConfig struct {
	Enabled bool
	// Timeout caps a single execution, zero means no timeout.
	Timeout time.Duration
}
