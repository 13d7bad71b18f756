package sync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func newTestScheduler(start time.Time) (*Scheduler, *time.Time) {
	now := start
	s := NewScheduler()
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSchedulerRunsDueJobs(t *testing.T) {
	start := time.Unix(1000000, 0)
	s, now := newTestScheduler(start)

	var runs atomic.Int32
	s.AddJob(Job{
		Name:     "trending",
		Interval: 6 * time.Hour,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	s.entries[0].lastRun = start

	// Not due yet
	*now = start.Add(5 * time.Hour)
	s.runDue()
	if runs.Load() != 0 {
		t.Errorf("Expected no run before interval, got %d", runs.Load())
	}

	// Due
	*now = start.Add(6 * time.Hour)
	s.runDue()
	if runs.Load() != 1 {
		t.Errorf("Expected 1 run at interval, got %d", runs.Load())
	}

	// Interval restarts from the run
	*now = start.Add(7 * time.Hour)
	s.runDue()
	if runs.Load() != 1 {
		t.Errorf("Expected no re-run one hour later, got %d", runs.Load())
	}

	*now = start.Add(12 * time.Hour)
	s.runDue()
	if runs.Load() != 2 {
		t.Errorf("Expected second run after another interval, got %d", runs.Load())
	}
}

func TestSchedulerRunsOnlyDueJobs(t *testing.T) {
	start := time.Unix(1000000, 0)
	s, now := newTestScheduler(start)

	var daily, weekly atomic.Int32
	s.AddJob(Job{Name: "releases", Interval: 24 * time.Hour, Run: func(ctx context.Context) error {
		daily.Add(1)
		return nil
	}})
	s.AddJob(Job{Name: "full", Interval: 7 * 24 * time.Hour, Run: func(ctx context.Context) error {
		weekly.Add(1)
		return nil
	}})
	for _, entry := range s.entries {
		entry.lastRun = start
	}

	*now = start.Add(25 * time.Hour)
	s.runDue()

	if daily.Load() != 1 {
		t.Errorf("Expected daily job to run, got %d", daily.Load())
	}
	if weekly.Load() != 0 {
		t.Errorf("Expected weekly job to wait, got %d", weekly.Load())
	}
}

func TestSchedulerRecordsJobErrors(t *testing.T) {
	start := time.Unix(1000000, 0)
	s, now := newTestScheduler(start)

	s.AddJob(Job{Name: "full", Interval: time.Hour, Run: func(ctx context.Context) error {
		return ErrSyncInProgress
	}})
	s.entries[0].lastRun = start

	*now = start.Add(2 * time.Hour)
	s.runDue()

	states := s.Jobs()
	if len(states) != 1 {
		t.Fatalf("Expected 1 job state, got %d", len(states))
	}
	if states[0].LastErr == "" {
		t.Error("Expected last error to be recorded")
	}
	if !states[0].LastRun.Equal(start.Add(2 * time.Hour)) {
		t.Errorf("Unexpected last run: %v", states[0].LastRun)
	}
}

func TestRunNowUnknownJob(t *testing.T) {
	s, _ := newTestScheduler(time.Unix(1000000, 0))

	if err := s.RunNow("nope"); err == nil {
		t.Error("Expected error for unknown job name")
	}
}

func TestRunNowTriggersJob(t *testing.T) {
	s, _ := newTestScheduler(time.Unix(1000000, 0))

	done := make(chan struct{})
	s.AddJob(Job{Name: "trending", Interval: 6 * time.Hour, Run: func(ctx context.Context) error {
		close(done)
		return nil
	}})

	if err := s.RunNow("trending"); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Job did not run within 2s")
	}
}

func TestJobStatesReportNextRun(t *testing.T) {
	start := time.Unix(1000000, 0)
	s, _ := newTestScheduler(start)

	s.AddJob(Job{Name: "cleanup", Interval: 7 * 24 * time.Hour, Run: func(ctx context.Context) error { return nil }})
	s.entries[0].lastRun = start

	states := s.Jobs()
	if !states[0].NextRun.Equal(start.Add(7 * 24 * time.Hour)) {
		t.Errorf("Unexpected next run: %v", states[0].NextRun)
	}
}
