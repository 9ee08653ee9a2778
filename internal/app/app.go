// Package app wires the watcher together: config, logging, storage, cache,
// per-federation fetchers, the task engine, and the notify pipeline.
package app

import (
	"context"
	"fmt"
	"sync"

	"lineupwatch/internal/cachestore"
	"lineupwatch/internal/config"
	"lineupwatch/internal/dataproject"
	"lineupwatch/internal/federation"
	"lineupwatch/internal/notify"
	"lineupwatch/internal/scanner"
	"lineupwatch/internal/storage"
	"lineupwatch/internal/task"
	"lineupwatch/internal/transport/telegram"
	"lineupwatch/pkg/logx"
)

type App struct {
	log logx.Logger
	mgr *config.Manager

	reg      *federation.Registry
	cache    cachestore.Store
	store    storage.Store
	adapter  *telegram.Adapter
	pool     *dataproject.Pool
	engine   *task.Engine
	notifier *notify.Service
	scan     *scanner.Service

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New loads the config, validates it, and builds every component. Nothing
// runs until Start.
func New(mgr *config.Manager) (*App, error) {
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log := logx.New(rt.logging)
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		if _, err := buildRuntime(cfg); err != nil {
			return err
		}
		_, err := federation.NewRegistry(cfg.Monitor.CompetitionIDs)
		return err
	})

	reg, err := federation.NewRegistry(cfg.Monitor.CompetitionIDs)
	if err != nil {
		return nil, err
	}

	cache, err := cachestore.Open(rt.cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	store, err := storage.Open(rt.storage, log)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	adapter, err := telegram.New(rt.telegram, log)
	if err != nil {
		_ = store.Close()
		_ = cache.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	pool := dataproject.NewPool(reg, rt.upstream, rt.ttl, cache, log)
	engine := task.New(rt.scanPool, log)
	notifier := notify.New(rt.notify, adapter, store, reg, log)
	scan := scanner.New(rt.scanner, pool, store, notifier, engine, log)

	return &App{
		log:      log,
		mgr:      mgr,
		reg:      reg,
		cache:    cache,
		store:    store,
		adapter:  adapter,
		pool:     pool,
		engine:   engine,
		notifier: notifier,
		scan:     scan,
	}, nil
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.engine.Start(runCtx)
	a.notifier.Start(runCtx)
	if err := a.scan.Start(runCtx); err != nil {
		cancel()
		return err
	}

	// Config hot reload: watch the file and re-apply tunables on change.
	updates := a.mgr.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.mgr.Watch(runCtx); err != nil {
			a.log.Warn("config watch ended", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		defer a.mgr.Unsubscribe(updates)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()

	a.log.Info("watcher started", logx.Int("federations", a.reg.Len()))
	return nil
}

// applyConfig re-applies hot tunables: cache TTLs, detection window, notify
// limits, task retry defaults. Structural settings (tokens, storage path,
// pool sizes, cadences) take effect on restart.
func (a *App) applyConfig(cfg *config.Config) {
	rt, err := buildRuntime(cfg)
	if err != nil {
		a.log.Warn("reloaded config rejected", logx.Err(err))
		return
	}
	a.pool.Apply(rt.ttl)
	a.scan.Apply(rt.scanner)
	a.notifier.Apply(rt.notify)
	a.engine.Apply(rt.scanPool)
	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) {
	// Stop intake first, then drain: scanner stops producing, the engine
	// finishes scans, the notifier flushes its queue. The run context stays
	// alive until the drain is done so in-flight sends are not cut short.
	a.scan.Stop(ctx)
	a.engine.Stop(ctx)
	a.notifier.Stop(ctx)
	_ = a.adapter.Stop(ctx)

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing storage", logx.Err(err))
	}
	if err := a.cache.Close(); err != nil {
		a.log.Warn("closing cache", logx.Err(err))
	}
	a.log.Info("watcher stopped")
}
