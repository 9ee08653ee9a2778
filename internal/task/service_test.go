package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"lineupwatch/pkg/logx"
)

func startedEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := New(cfg, logx.Nop())
	ctx := context.Background()
	e.Start(ctx)
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Stop(sctx)
	})
	return e
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEnqueueBeforeStart(t *testing.T) {
	e := New(Config{}, logx.Nop())
	err := e.Enqueue(Task{Name: "noop", Run: func(ctx context.Context) error { return nil }})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestEnqueueRunsTask(t *testing.T) {
	e := startedEngine(t, Config{Workers: 1, QueueSize: 4})

	var ran atomic.Bool
	err := e.Enqueue(Task{Name: "noop", Run: func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, ran.Load, "task never ran")
}

func TestOverlapSkipByConcurrencyKey(t *testing.T) {
	e := startedEngine(t, Config{Workers: 2, QueueSize: 8})

	release := make(chan struct{})
	started := make(chan struct{})
	slow := Task{
		Name:           "scan",
		ConcurrencyKey: "lnv",
		Opt:            Options{Overlap: OverlapSkipIfRunning},
		Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	if err := e.Enqueue(slow); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	<-started

	// Same key while running: skipped.
	err := e.Enqueue(Task{
		Name:           "scan",
		ConcurrencyKey: "lnv",
		Opt:            Options{Overlap: OverlapSkipIfRunning},
		Run:            func(ctx context.Context) error { return nil },
	})
	if !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("expected ErrOverlapSkip, got %v", err)
	}

	// A different key is independent.
	var other atomic.Bool
	err = e.Enqueue(Task{
		Name:           "scan",
		ConcurrencyKey: "tvf",
		Opt:            Options{Overlap: OverlapSkipIfRunning},
		Run: func(ctx context.Context) error {
			other.Store(true)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("other-key Enqueue: %v", err)
	}
	waitFor(t, other.Load, "other-key task never ran")

	close(release)

	// Once released, the key frees up again.
	waitFor(t, func() bool {
		err := e.Enqueue(Task{
			Name:           "scan",
			ConcurrencyKey: "lnv",
			Opt:            Options{Overlap: OverlapSkipIfRunning},
			Run:            func(ctx context.Context) error { return nil },
		})
		return err == nil
	}, "concurrency key never released")
}

func TestRetryUntilSuccess(t *testing.T) {
	e := startedEngine(t, Config{Workers: 1, QueueSize: 4})

	var attempts atomic.Int32
	done := make(chan struct{})
	err := e.Enqueue(Task{
		Name: "flaky",
		Opt:  Options{RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond},
		Run: func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			close(done)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task never succeeded")
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestQueueFullDropsAndCounts(t *testing.T) {
	e := startedEngine(t, Config{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	blocker := func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}

	// One occupies the worker, one fills the queue.
	if err := e.Enqueue(Task{Name: "a", Run: blocker}); err != nil {
		t.Fatalf("Enqueue a: %v", err)
	}
	<-started
	if err := e.Enqueue(Task{Name: "b", Run: blocker}); err != nil {
		t.Fatalf("Enqueue b: %v", err)
	}

	err := e.Enqueue(Task{Name: "c", Run: func(ctx context.Context) error { return nil }})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if snap := e.Snapshot(); snap.Dropped != 1 {
		t.Fatalf("Snapshot.Dropped = %d, want 1", snap.Dropped)
	}
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	e := startedEngine(t, Config{Workers: 1, QueueSize: 4})

	if err := e.Enqueue(Task{Name: "boom", Run: func(ctx context.Context) error {
		panic("kaboom")
	}}); err != nil {
		t.Fatalf("Enqueue boom: %v", err)
	}

	var ran atomic.Bool
	if err := e.Enqueue(Task{Name: "after", Run: func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}}); err != nil {
		t.Fatalf("Enqueue after: %v", err)
	}
	waitFor(t, ran.Load, "worker died after a panicking task")
}

func TestTaskTimeoutCancelsRun(t *testing.T) {
	e := startedEngine(t, Config{Workers: 1, QueueSize: 4})

	done := make(chan error, 1)
	err := e.Enqueue(Task{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			done <- ctx.Err()
			return ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout never fired")
	}
}

func TestStopThenStartFreshQueue(t *testing.T) {
	e := New(Config{Workers: 1, QueueSize: 4}, logx.Nop())
	ctx := context.Background()

	e.Start(ctx)
	var first atomic.Bool
	_ = e.Enqueue(Task{Name: "one", Run: func(ctx context.Context) error {
		first.Store(true)
		return nil
	}})
	waitFor(t, first.Load, "first run never executed")

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	e.Stop(sctx)
	cancel()

	if err := e.Enqueue(Task{Name: "dead", Run: func(ctx context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after Stop, got %v", err)
	}

	e.Start(ctx)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Stop(sctx)
	}()

	var second atomic.Bool
	if err := e.Enqueue(Task{Name: "two", Run: func(ctx context.Context) error {
		second.Store(true)
		return nil
	}}); err != nil {
		t.Fatalf("Enqueue after restart: %v", err)
	}
	waitFor(t, second.Load, "restarted engine never ran a task")
}

func TestBackoffDelayBounds(t *testing.T) {
	opt := Options{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second, RetryJitter: 0.2}
	for retry := 1; retry <= 6; retry++ {
		for i := 0; i < 50; i++ {
			d := backoffDelay(opt, retry)
			if d < 0 || d > time.Second {
				t.Fatalf("backoffDelay(retry=%d) = %v, out of [0, 1s]", retry, d)
			}
		}
	}
	// First retry stays near the base even with jitter.
	d := backoffDelay(opt, 1)
	if d < 80*time.Millisecond || d > 120*time.Millisecond {
		t.Fatalf("first retry delay %v outside jitter band", d)
	}
}
