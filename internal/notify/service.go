// Package notify is the async delivery pipeline: dedup check, bounded queue,
// worker pool, rate limit, retry, and a create-on-success dedup ledger.
//
// Delivery is at-least-once. The dedup mark is recorded only after a send
// succeeds, so a crash between send and record can repeat one message; a
// failed send never poisons the ledger.
package notify

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lineupwatch/internal/detect"
	"lineupwatch/internal/federation"
	"lineupwatch/internal/storage"
	kit "lineupwatch/internal/transport"
	"lineupwatch/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify service stopped")
)

type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// ChannelID, when non-zero, overrides every event's destination with one
	// broadcast channel. Zero sends to each event's own user chat.
	ChannelID int64

	// DedupRetention is how long delivered-event marks are kept. The sweep
	// itself runs elsewhere; this only stamps PruneDedup cutoffs.
	DedupRetention time.Duration

	// KeyPolicy controls the dedup identity.
	KeyPolicy KeyPolicy

	// DisplayLocation renders kickoff times; nil means UTC.
	DisplayLocation *time.Location
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DedupRetention <= 0 {
		c.DedupRetention = 10 * 24 * time.Hour
	}
	return c
}

type job struct {
	ev  *detect.Event
	key string
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	store   storage.Store
	reg     *federation.Registry

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	workerWG  sync.WaitGroup
	queue     chan job
}

func New(cfg Config, adapter kit.Adapter, store storage.Store, reg *federation.Registry, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:     log.With(logx.String("comp", "notify")),
		adapter: adapter,
		store:   store,
		reg:     reg,
	}
	s.applyLocked(cfg)
	return s
}

// Apply hot-reconfigures tunables. Queue size and worker count take effect on
// the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes don't stall workers.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		s.workerWG.Add(1)
		idx := i
		go func() {
			defer s.workerWG.Done()
			s.workerLoop(ctx, q, idx)
		}()
	}
}

// Stop blocks new submissions and drains the queue until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		s.workerWG.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Submit checks the dedup ledger and enqueues one event for delivery.
// Already-delivered events are dropped silently. A ledger read failure counts
// as "not delivered": repeating a message is better than losing one.
func (s *Service) Submit(ctx context.Context, ev *detect.Event) error {
	if ev == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	pol := s.cfg.KeyPolicy
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := EventKey(ev, pol)
	if s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		seen, err := s.store.HasDedup(cctx, key)
		cancel()
		if err != nil {
			s.log.Warn("dedup lookup failed; delivering anyway", logx.String("key", key), logx.Err(err))
		} else if seen {
			s.log.Debug("event already delivered", logx.String("key", key), logx.Int("match_id", ev.MatchID), logx.String("type", string(ev.Type)))
			return nil
		}
	}

	select {
	case q <- job{ev: ev, key: key}:
		return nil
	default:
		s.log.Warn("notify queue full; dropping event", logx.Int("match_id", ev.MatchID), logx.Int64("user_id", ev.UserID))
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job, idx int) {
	log := s.log.With(logx.Int("worker", idx))
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error("notify worker panic", logx.Any("panic", r))
					}
				}()
				s.deliver(ctx, j, log)
			}()
		}
	}
}

func (s *Service) deliver(ctx context.Context, j job, log logx.Logger) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	fed, ok := s.reg.Get(j.ev.FederationSlug)
	if !ok {
		log.Error("event for unknown federation", logx.String("slug", j.ev.FederationSlug))
		return
	}
	text := Render(j.ev, fed, cfg.DisplayLocation)

	target := kit.ChatTarget{ChatID: j.ev.UserID}
	if cfg.ChannelID != 0 {
		target = kit.ChatTarget{ChatID: cfg.ChannelID}
	}
	opt := &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := s.adapter.SendText(callCtx, target, text, opt)
		cancel()
		if err == nil {
			s.recordDelivered(ctx, j.key, log)
			return
		}
		lastErr = err
		log.Debug("send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		}
	}

	log.Error("event delivery exhausted retries",
		logx.Int("match_id", j.ev.MatchID), logx.Int64("user_id", j.ev.UserID),
		logx.String("type", string(j.ev.Type)), logx.Err(lastErr))
}

func (s *Service) recordDelivered(ctx context.Context, key string, log logx.Logger) {
	if s.store == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.store.PutDedup(cctx, key, time.Now()); err != nil {
		log.Warn("recording dedup mark failed", logx.String("key", key), logx.Err(err))
	}
}

// retryDelay is exponential backoff with 0.7..1.3 jitter, capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}

// Retention returns the configured dedup retention; the scanner's sweep uses
// it to stamp prune cutoffs.
func (s *Service) Retention() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.DedupRetention
}
