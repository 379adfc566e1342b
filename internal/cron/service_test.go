package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/events-aggregator/internal/eventsync"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
)

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	registry, err := NewRegistry(&testJob{name: "success"}, &testJob{name: "fail", err: errors.New("boom")})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: 0,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx := context.Background()
	if err := service.runCycle(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if success, ok := jobs[0].(*testJob); ok {
		if success.runs != 1 {
			t.Fatalf("expected success job to run once, ran %d", success.runs)
		}
	} else {
		t.Fatalf("first job type mismatch")
	}
	if failure, ok := jobs[1].(*testJob); ok {
		if failure.runs != 1 {
			t.Fatalf("expected failure job to run once, ran %d", failure.runs)
		}
	} else {
		t.Fatalf("second job type mismatch")
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "sync"}
	lock := &fakeLock{acquired: true}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: mustRegistry(t, job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.runs)
	}
}

func TestServiceRunWaitsInitialDelayAndStopsCleanly(t *testing.T) {
	job := &countingJob{ran: make(chan struct{}, 4)}
	service, err := NewService(ServiceParams{
		Logger:       logger.Nop(),
		Registry:     mustRegistry(t, job),
		Lock:         NewLocalLock(),
		Interval:     time.Hour,
		InitialDelay: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- service.Run(ctx) }()

	select {
	case <-job.ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("job never ran")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("job ran before the initial delay: %v", elapsed)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("service did not stop")
	}
}

func TestServiceRunCancelledDuringDelay(t *testing.T) {
	job := &countingJob{ran: make(chan struct{}, 1)}
	service, err := NewService(ServiceParams{
		Logger:       logger.Nop(),
		Registry:     mustRegistry(t, job),
		Lock:         NewLocalLock(),
		InitialDelay: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); err != nil {
		t.Fatalf("expected nil on cancel, got %v", err)
	}
	if len(job.ran) != 0 {
		t.Fatalf("job must not run when cancelled during the delay")
	}
}

type countingJob struct {
	ran chan struct{}
}

func (c *countingJob) Name() string { return "counting" }

func (c *countingJob) Run(context.Context) error {
	c.ran <- struct{}{}
	return nil
}

type stubRunner struct {
	result    eventsync.RunResult
	err       error
	overrides []string
}

func (s *stubRunner) Run(_ context.Context, override string) (eventsync.RunResult, error) {
	s.overrides = append(s.overrides, override)
	return s.result, s.err
}

func TestSyncJobRunsFromStoredCursor(t *testing.T) {
	runner := &stubRunner{result: eventsync.RunResult{Skipped: true}}
	job, err := NewSyncJob(runner, nil)
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "event_sync" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("skipped run should not fail: %v", err)
	}
	if len(runner.overrides) != 1 || runner.overrides[0] != "" {
		t.Fatalf("expected one run without override, got %v", runner.overrides)
	}

	runner.err = errors.New("provider down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected run error to propagate")
	}

	if _, err := NewSyncJob(nil, nil); err == nil {
		t.Fatalf("expected error for nil runner")
	}
}

func mustRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return registry
}
