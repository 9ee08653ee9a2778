package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lineupwatch/pkg/logx"
)

type queuedTask struct {
	task    Task
	opt     Options
	state   *runState
	track   bool // release state when done
	timeout time.Duration
}

// Engine executes tasks from a bounded queue using a worker pool. Workers are
// panic-safe and cooperate with Start/Stop.
type Engine struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config

	queue     chan queuedTask
	stopCh    chan struct{}
	stopDone  chan struct{}
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	stateMu sync.Mutex
	states  map[string]*runState

	dropped uint64
}

func New(cfg Config, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{cfg: cfg, log: log, states: map[string]*runState{}}
}

func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	// Live pool resizing is not supported; workers and queue size take
	// effect on the next Start.
}

func (e *Engine) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it so worker pools never double.
	for {
		e.mu.Lock()
		if e.stopCh == nil {
			break
		}
		done := e.stopDone
		if done == nil {
			// already running
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer e.mu.Unlock()

	e.stopCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	e.runCancel = cancel

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	qs := e.cfg.QueueSize
	if qs <= 0 {
		qs = 256
	}
	// Fresh queue per run so a stop/start toggle never executes stale items.
	e.queue = make(chan queuedTask, qs)

	stopCh := e.stopCh
	queue := e.queue

	e.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer e.workerWG.Done()
			e.worker(runCtx, stopCh, queue, idx)
		}()
	}

	e.log.Info("task engine started", logx.Int("workers", workers), logx.Int("queue_size", qs))
}

func (e *Engine) Stop(ctx context.Context) {
	start := time.Now()
	e.mu.Lock()
	if e.stopCh == nil {
		e.mu.Unlock()
		return
	}
	if e.stopDone != nil {
		done := e.stopDone
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	e.stopDone = done
	stopCh := e.stopCh
	cancel := e.runCancel
	e.runCancel = nil
	e.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		e.workerWG.Wait()
		e.mu.Lock()
		e.stopCh = nil
		e.queue = nil
		e.stopDone = nil
		e.mu.Unlock()
		close(done)
		e.log.Info("task engine stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

func (e *Engine) stateFor(key string) *runState {
	key = strings.TrimSpace(key)
	if key == "" {
		return &runState{}
	}
	e.stateMu.Lock()
	st := e.states[key]
	if st == nil {
		st = &runState{}
		e.states[key] = st
	}
	e.stateMu.Unlock()
	return st
}

// Enqueue submits a task. Non-blocking: a full queue drops the task and
// returns ErrQueueFull.
func (e *Engine) Enqueue(t Task) error {
	e.mu.Lock()
	cfg := e.cfg
	q := e.queue
	e.mu.Unlock()

	if q == nil {
		return ErrStopped
	}
	if t.Run == nil {
		return errors.New("task Run is nil")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	opt := t.Opt.withDefaults(cfg)

	key := strings.TrimSpace(t.ConcurrencyKey)
	if key == "" {
		key = t.Name
	}
	st := e.stateFor(key)

	track := false
	if opt.Overlap == OverlapSkipIfRunning {
		if !st.tryAcquire() {
			e.log.Debug("task skipped (overlap)", logx.String("task", t.Name))
			return ErrOverlapSkip
		}
		track = true
	}

	timeout := t.Timeout
	if timeout <= 0 && cfg.DefaultTimeout > 0 {
		timeout = cfg.DefaultTimeout
	}

	qt := queuedTask{task: t, opt: opt, state: st, track: track, timeout: timeout}
	select {
	case q <- qt:
		return nil
	default:
		if track {
			st.release()
		}
		atomic.AddUint64(&e.dropped, 1)
		e.log.Warn("task queue full; dropping task", logx.String("task", t.Name), logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
		return ErrQueueFull
	}
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	workers := e.cfg.Workers
	ql, qc := 0, 0
	if e.queue != nil {
		ql = len(e.queue)
		qc = cap(e.queue)
	}
	e.mu.Unlock()
	if workers <= 0 {
		workers = 2
	}
	return Snapshot{
		Workers:  workers,
		QueueLen: ql,
		QueueCap: qc,
		Dropped:  atomic.LoadUint64(&e.dropped),
	}
}
