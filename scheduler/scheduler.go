package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// scheduledJob tracks a job, its schedule and its pending manual trigger.
type scheduledJob struct {
	job      Job
	schedule Schedule
	config   JobConfig
	trigger  chan struct{}

	mu      sync.Mutex
	nextRun time.Time
}

func (sj *scheduledJob) setNextRun(t time.Time) {
	sj.mu.Lock()
	defer sj.mu.Unlock()
	sj.nextRun = t
}

func (sj *scheduledJob) nextRunTime() time.Time {
	sj.mu.Lock()
	defer sj.mu.Unlock()
	return sj.nextRun
}

// Scheduler owns one run loop per registered job. Executions of the same job
// never overlap, a manual trigger while the job is running queues at most one
// extra execution.
type Scheduler struct {
	jobs   map[string]*scheduledJob
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Scheduler.
func New() *Scheduler {
	return &Scheduler{
		jobs: make(map[string]*scheduledJob),
	}
}

// AddJob registers a job with the scheduler. Jobs must be registered before
// Start is called.
func (s *Scheduler) AddJob(job Job, schedule Schedule, config JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	if !config.Enabled {
		log.Printf("[scheduler] Job %s is disabled, skipping", name)
		return nil
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		config:   config,
		trigger:  make(chan struct{}, 1),
		nextRun:  schedule.Next(time.Now()),
	}
	s.jobs[name] = sj

	log.Printf("[scheduler] Registered job: %s, next run: %s", name, sj.nextRun.Format(time.RFC3339))
	return nil
}

// Start launches the run loops of all registered jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.mu.RLock()
	count := len(s.jobs)
	for name, sj := range s.jobs {
		log.Printf("[scheduler] Starting job: %s", name)
		s.wg.Add(1)
		go s.runLoop(name, sj)
	}
	s.mu.RUnlock()

	log.Printf("[scheduler] Started with %d jobs", count)
	return nil
}

// runLoop executes one job until the scheduler stops. Scheduled and manually
// triggered executions go through the same loop, which is what serializes
// them.
func (s *Scheduler) runLoop(name string, sj *scheduledJob) {
	defer s.wg.Done()

	timer := time.NewTimer(time.Until(sj.nextRunTime()))
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-timer.C:
			s.executeJob(name, sj)

		case <-sj.trigger:
			log.Printf("[scheduler] Manually executing job: %s", name)
			s.executeJob(name, sj)
			// The interval timer may have fired while the job ran.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		next := sj.schedule.Next(time.Now())
		sj.setNextRun(next)
		log.Printf("[scheduler] Job %s next run: %s", name, next.Format(time.RFC3339))
		timer.Reset(time.Until(next))
	}
}

// executeJob runs the job once, applying the configured timeout.
func (s *Scheduler) executeJob(name string, sj *scheduledJob) {
	ctx := s.ctx
	if sj.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, sj.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	log.Printf("[scheduler] Executing job: %s", name)

	err := sj.job.Run(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Printf("[scheduler] Job %s failed after %v: %v", name, duration, err)
	} else {
		log.Printf("[scheduler] Job %s completed in %v", name, duration)
	}
}

// Stop gracefully stops the scheduler. It waits for running jobs to complete,
// with a timeout.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not started")
	}
	log.Printf("[scheduler] Stopping scheduler...")
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[scheduler] All jobs stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Printf("[scheduler] Timeout waiting for jobs to stop")
	}

	return nil
}

// TriggerNow queues a manual execution of a job. If a manual run is already
// queued the call is a no-op.
func (s *Scheduler) TriggerNow(name string) error {
	s.mu.RLock()
	sj, exists := s.jobs[name]
	started := s.ctx != nil
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	if !started {
		return fmt.Errorf("scheduler not started")
	}

	select {
	case sj.trigger <- struct{}{}:
		log.Printf("[scheduler] Queued manual run of job %s", name)
	default:
		log.Printf("[scheduler] Manual run of job %s already queued", name)
	}
	return nil
}

// GetJobs returns the names of all registered jobs.
func (s *Scheduler) GetJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// GetNextRun returns the next scheduled run time for a job.
func (s *Scheduler) GetNextRun(name string) (time.Time, error) {
	s.mu.RLock()
	sj, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return time.Time{}, fmt.Errorf("job %s not found", name)
	}
	return sj.nextRunTime(), nil
}
