package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is a named recurring sync operation.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(context.Context) error
}

// JobState is a point-in-time snapshot of a job for the stats surface.
type JobState struct {
	Name     string    `json:"name"`
	Interval string    `json:"interval"`
	LastRun  time.Time `json:"last_run"`
	NextRun  time.Time `json:"next_run"`
	LastErr  string    `json:"last_error,omitempty"`
}

type jobEntry struct {
	job     Job
	lastRun time.Time
	lastErr error
}

// Scheduler runs named jobs on fixed intervals. Due-time checks happen on a
// coarse tick; overlap between jobs and manual triggers is prevented by the
// syncer's run guard, not here.
type Scheduler struct {
	mu      sync.Mutex
	entries []*jobEntry
	tick    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

const defaultTick = time.Minute

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tick:   defaultTick,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// NewDefaultScheduler wires the standard recurring jobs against a syncer.
func NewDefaultScheduler(syncer *Syncer) *Scheduler {
	s := NewScheduler()
	s.AddJob(Job{Name: "full", Interval: 7 * 24 * time.Hour, Run: syncer.FullSync})
	s.AddJob(Job{Name: "releases", Interval: 24 * time.Hour, Run: syncer.SyncNewReleases})
	s.AddJob(Job{Name: "trending", Interval: 6 * time.Hour, Run: syncer.SyncTrending})
	s.AddJob(Job{Name: "cleanup", Interval: 7 * 24 * time.Hour, Run: syncer.CleanupObsolete})
	return s
}

func (s *Scheduler) AddJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &jobEntry{job: job})
}

// Start launches the check loop. Intervals count from startup, so a freshly
// booted daemon does not immediately re-run heavy jobs; use RunNow or the
// CLI for an immediate pass.
func (s *Scheduler) Start() {
	startedAt := s.now()
	s.mu.Lock()
	for _, entry := range s.entries {
		entry.lastRun = startedAt
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.runDue()
			}
		}
	}()

	slog.Info("Scheduler started", "jobs", len(s.entries))
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

// runDue executes every job whose interval has elapsed. Jobs run inline on
// the scheduler goroutine; a long full sync simply delays later due checks,
// which keeps job executions strictly sequential.
func (s *Scheduler) runDue() {
	now := s.now()

	s.mu.Lock()
	var due []*jobEntry
	for _, entry := range s.entries {
		if now.Sub(entry.lastRun) >= entry.job.Interval {
			entry.lastRun = now
			due = append(due, entry)
		}
	}
	s.mu.Unlock()

	for _, entry := range due {
		s.execute(entry)
	}
}

func (s *Scheduler) execute(entry *jobEntry) {
	slog.Debug("Running scheduled job", "job", entry.job.Name)
	err := entry.job.Run(s.ctx)

	s.mu.Lock()
	entry.lastErr = err
	s.mu.Unlock()

	if err != nil && !errors.Is(err, ErrSyncInProgress) && !errors.Is(err, context.Canceled) {
		slog.Error("Scheduled job failed", "job", entry.job.Name, "error", err)
	}
}

// RunNow triggers a job by name in the background. The syncer's guard
// rejects the run if another operation is already in flight.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	var target *jobEntry
	for _, entry := range s.entries {
		if entry.job.Name == name {
			target = entry
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return fmt.Errorf("unknown sync job: %s", name)
	}

	s.mu.Lock()
	target.lastRun = s.now()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(target)
	}()
	return nil
}

// Jobs reports the current state of all registered jobs.
func (s *Scheduler) Jobs() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]JobState, 0, len(s.entries))
	for _, entry := range s.entries {
		state := JobState{
			Name:     entry.job.Name,
			Interval: entry.job.Interval.String(),
			LastRun:  entry.lastRun,
			NextRun:  entry.lastRun.Add(entry.job.Interval),
		}
		if entry.lastErr != nil {
			state.LastErr = entry.lastErr.Error()
		}
		states = append(states, state)
	}
	return states
}
