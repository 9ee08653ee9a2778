// Package scanner drives the watch loop: a cron tick fans one scan task per
// federation into the task engine, each scan turns fresh match data and
// stored selections into notify submissions, and a slow sweep prunes the
// delivered-event ledger.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lineupwatch/internal/dataproject"
	"lineupwatch/internal/detect"
	"lineupwatch/internal/domain"
	"lineupwatch/internal/notify"
	"lineupwatch/internal/storage"
	"lineupwatch/internal/task"
	"lineupwatch/pkg/logx"
)

type Config struct {
	// Tick is the scan cadence. Default 10s.
	Tick time.Duration
	// ScanTimeout bounds one federation scan. Default 2m.
	ScanTimeout time.Duration
	// SweepEvery is the dedup ledger prune cadence. Default 10h.
	SweepEvery time.Duration
	// Window bounds match relevance around kickoff.
	Window detect.Window
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = 10 * time.Second
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 2 * time.Minute
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Hour
	}
	return c
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	log      logx.Logger
	pool     *dataproject.Pool
	store    storage.Store
	notifier *notify.Service
	engine   *task.Engine

	cron    *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
}

func New(cfg Config, pool *dataproject.Pool, store storage.Store, notifier *notify.Service, engine *task.Engine, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		log:      log.With(logx.String("comp", "scanner")),
		pool:     pool,
		store:    store,
		notifier: notifier,
		engine:   engine,
	}
}

// Apply hot-reconfigures the detection window and scan timeout. Cadences take
// effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.Tick), s.tick); err != nil {
		return fmt.Errorf("scanner: tick schedule: %w", err)
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.SweepEvery), s.sweep); err != nil {
		return fmt.Errorf("scanner: sweep schedule: %w", err)
	}

	s.cron.Start()
	s.started = true
	s.log.Info("scanner started", logx.Duration("tick", s.cfg.Tick), logx.Duration("sweep_every", s.cfg.SweepEvery))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.started = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// tick enqueues one scan task per federation. The slug is the concurrency
// key, so a slow federation is skipped on the next tick instead of stacking.
func (s *Service) tick() {
	s.mu.Lock()
	cfg := s.cfg
	runCtx := s.runCtx
	s.mu.Unlock()
	if runCtx == nil {
		return
	}

	for _, f := range s.pool.All() {
		f := f
		slug := f.Federation().Slug
		err := s.engine.Enqueue(task.Task{
			Name:           "scan." + slug,
			ConcurrencyKey: slug,
			Timeout:        cfg.ScanTimeout,
			Opt:            task.Options{Overlap: task.OverlapSkipIfRunning, RetryMax: 1},
			Run: func(ctx context.Context) error {
				return s.scanFederation(ctx, f)
			},
		})
		switch {
		case err == nil:
		case errors.Is(err, task.ErrOverlapSkip):
			// Previous scan still running; fine.
		default:
			s.log.Warn("scan enqueue failed", logx.String("federation", slug), logx.Err(err))
		}
	}
}

// scanFederation is one end-to-end pass for one federation. Errors here are
// federation-scoped: the task engine logs them and other federations are
// unaffected.
func (s *Service) scanFederation(ctx context.Context, f dataproject.Fetcher) error {
	slug := f.Federation().Slug
	log := s.log.With(logx.String("federation", slug))

	s.mu.Lock()
	win := s.cfg.Window
	s.mu.Unlock()

	sels, err := s.store.SelectionsByFederation(ctx, slug)
	if err != nil {
		return fmt.Errorf("selections: %w", err)
	}
	if len(sels) == 0 {
		return nil
	}

	matches, err := dataproject.ListMatches(ctx, f, log)
	if err != nil {
		return fmt.Errorf("list matches: %w", err)
	}

	now := time.Now().UTC()
	inputs := s.buildInputs(ctx, f, matches, sels, now, win, log)
	events := detect.EvaluateAll(slug, inputs, now, win)
	if len(events) == 0 {
		return nil
	}

	for _, ev := range events {
		s.enrichStatistics(ctx, f, ev, log)
		if err := s.notifier.Submit(ctx, ev); err != nil {
			log.Warn("notify submit failed", logx.Int("match_id", ev.MatchID), logx.Int64("user_id", ev.UserID), logx.Err(err))
		}
	}
	return nil
}

// buildInputs pairs every in-window match with the selections watching one of
// its sides, resolving each watched team's season roster through the cached
// fetcher.
func (s *Service) buildInputs(ctx context.Context, f dataproject.Fetcher, matches []domain.Match, sels []storage.MonitoredSelection, now time.Time, win detect.Window, log logx.Logger) []detect.Input {
	type rosterKey struct{ teamID, compID int }
	rosters := make(map[rosterKey][]domain.Player)

	var inputs []detect.Input
	for _, m := range matches {
		if m.Status == domain.MatchFinished || !win.Contains(m.MatchDateTimeUTC, now) {
			continue
		}
		for _, sel := range sels {
			if sel.TeamID != m.Home.ID && sel.TeamID != m.Guest.ID {
				continue
			}
			rk := rosterKey{sel.TeamID, sel.CompetitionID}
			roster, ok := rosters[rk]
			if !ok {
				var err error
				roster, err = f.TeamRoster(ctx, sel.TeamID, sel.CompetitionID)
				if err != nil {
					log.Warn("season roster unavailable", logx.Int("team_id", sel.TeamID), logx.Err(err))
					roster = nil
				}
				rosters[rk] = roster
			}
			inputs = append(inputs, detect.Input{Match: m, Selection: sel, SeasonRoster: roster})
		}
	}
	return inputs
}

// enrichStatistics attaches per-competition ratings to the players a message
// will show. Best-effort: a missing grid just leaves ratings off.
func (s *Service) enrichStatistics(ctx context.Context, f dataproject.Fetcher, ev *detect.Event, log logx.Logger) {
	attach := func(players []domain.Player) {
		for i := range players {
			if players[i].Statistic != nil {
				continue
			}
			st, err := f.PlayerStatistic(ctx, players[i].ID, ev.Team.ID, ev.Competition.ID)
			if err != nil {
				log.Debug("player statistic unavailable", logx.Int("player_id", players[i].ID), logx.Err(err))
				return
			}
			players[i].Statistic = st
		}
	}
	attach(ev.Missing)
	attach(ev.Benched)
	attach(ev.OnCourt)
}

// sweep prunes delivered-event marks past the notifier's retention.
func (s *Service) sweep() {
	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()
	if runCtx == nil {
		return
	}

	ctx, cancel := context.WithTimeout(runCtx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.notifier.Retention())
	n, err := s.store.PruneDedup(ctx, cutoff)
	if err != nil {
		s.log.Warn("dedup sweep failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("dedup sweep removed marks", logx.Int64("count", n))
	}
}
