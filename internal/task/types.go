// Package task is a bounded-queue worker pool with per-task timeouts,
// retry with jittered backoff, and overlap-skip by concurrency key. The
// watcher runs two independent instances: one for federation scans, one
// inside the notify pipeline.
package task

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrStopped     = errors.New("task engine stopped")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("task skipped due to overlap policy")
)

type Config struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	RetryMax       int
}

type OverlapPolicy int

const (
	OverlapAllow OverlapPolicy = iota
	OverlapSkipIfRunning
)

type Options struct {
	Overlap       OverlapPolicy
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = 20%
}

func (o Options) withDefaults(cfg Config) Options {
	if o.RetryMax <= 0 {
		o.RetryMax = cfg.RetryMax
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	if o.Overlap != OverlapAllow && o.Overlap != OverlapSkipIfRunning {
		o.Overlap = OverlapSkipIfRunning
	}
	return o
}

// runState gates overlap. SkipIfRunning means "skip if running OR already
// queued", which keeps a slow task from stacking up in the queue.
type runState struct {
	mu       sync.Mutex
	inflight int
}

func (s *runState) tryAcquire() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *runState) release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

// Task is one unit of work. An empty ID gets a generated uuid at enqueue.
// ConcurrencyKey scopes overlap skipping; empty falls back to Name.
type Task struct {
	ID             string
	Name           string
	Timeout        time.Duration
	Run            func(ctx context.Context) error
	Opt            Options
	ConcurrencyKey string
}

// Snapshot is a lightweight diagnostics view.
type Snapshot struct {
	Workers  int
	QueueLen int
	QueueCap int
	Dropped  uint64
}
