package app

import (
	"fmt"
	"strings"
	"time"

	"lineupwatch/internal/cachestore"
	"lineupwatch/internal/config"
	"lineupwatch/internal/dataproject"
	"lineupwatch/internal/detect"
	"lineupwatch/internal/notify"
	"lineupwatch/internal/scanner"
	"lineupwatch/internal/storage"
	"lineupwatch/internal/task"
	"lineupwatch/internal/transport/telegram"
	"lineupwatch/pkg/logx"
)

// runtime is the fully parsed form of config.Config: duration strings
// resolved, per-service config structs ready to hand over.
type runtime struct {
	logging  logx.Config
	telegram telegram.Config
	cache    cachestore.Config
	storage  storage.Config
	upstream dataproject.Config
	ttl      dataproject.TTLPolicy
	scanPool task.Config
	scanner  scanner.Config
	notify   notify.Config
}

func buildRuntime(cfg *config.Config) (runtime, error) {
	var rt runtime

	rt.logging = logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return rt, fmt.Errorf("telegram.token is required")
	}
	callTimeout, err := config.ParseDurationField("telegram.call_timeout", cfg.Telegram.CallTimeout)
	if err != nil {
		return rt, err
	}
	rt.telegram = telegram.Config{Token: cfg.Telegram.Token, CallTimeout: callTimeout}

	rt.cache = cachestore.Config{Driver: cfg.Cache.Driver, Addr: cfg.Cache.Addr, DB: cfg.Cache.DB}

	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return rt, err
	}
	path := cfg.Storage.Path
	if strings.TrimSpace(path) == "" {
		path = "./lineupwatch.db"
	}
	rt.storage = storage.Config{Path: path, BusyTimeout: busy}

	upTimeout, err := config.ParseDurationField("upstream.call_timeout", cfg.Upstream.CallTimeout)
	if err != nil {
		return rt, err
	}
	rt.upstream = dataproject.Config{
		WebBaseTemplate: cfg.Upstream.WebBaseTemplate,
		PollBase:        cfg.Upstream.PollBase,
		CallTimeout:     upTimeout,
		RatePerSec:      cfg.Upstream.RatePerSec,
	}

	rt.ttl, err = buildTTL(cfg.Upstream.TTL)
	if err != nil {
		return rt, err
	}

	scanTimeout, err := config.ParseDurationField("monitor.scan_timeout", cfg.Monitor.ScanTimeout)
	if err != nil {
		return rt, err
	}
	rt.scanPool = task.Config{
		Workers:        cfg.Scan.Workers,
		QueueSize:      cfg.Scan.QueueSize,
		RetryMax:       cfg.Scan.RetryMax,
		DefaultTimeout: scanTimeout,
	}

	tick, err := config.ParseDurationField("monitor.tick", cfg.Monitor.Tick)
	if err != nil {
		return rt, err
	}
	sweep, err := config.ParseDurationField("monitor.sweep_every", cfg.Monitor.SweepEvery)
	if err != nil {
		return rt, err
	}
	before, err := config.ParseDurationField("monitor.active_window_before", cfg.Monitor.ActiveWindowBefore)
	if err != nil {
		return rt, err
	}
	after, err := config.ParseDurationField("monitor.active_window_after", cfg.Monitor.ActiveWindowAfter)
	if err != nil {
		return rt, err
	}
	rt.scanner = scanner.Config{
		Tick:        tick,
		ScanTimeout: scanTimeout,
		SweepEvery:  sweep,
		Window:      detect.Window{Before: before, After: after},
	}

	rt.notify, err = buildNotify(cfg)
	if err != nil {
		return rt, err
	}
	return rt, nil
}

func buildTTL(t config.TTLConfig) (dataproject.TTLPolicy, error) {
	var p dataproject.TTLPolicy
	for _, f := range []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"upstream.ttl.scoreboard", t.Scoreboard, &p.Scoreboard},
		{"upstream.ttl.match_states", t.MatchStates, &p.MatchStates},
		{"upstream.ttl.match_roster", t.MatchRoster, &p.MatchRoster},
		{"upstream.ttl.team_roster", t.TeamRoster, &p.TeamRoster},
		{"upstream.ttl.teams", t.Teams, &p.Teams},
		{"upstream.ttl.competitions", t.Competitions, &p.Competitions},
		{"upstream.ttl.statistics", t.Statistics, &p.Statistics},
	} {
		d, err := config.ParseDurationField(f.path, f.raw)
		if err != nil {
			return p, err
		}
		*f.dst = d
	}
	return p, nil
}

func buildNotify(cfg *config.Config) (notify.Config, error) {
	n := cfg.Notify

	retryBase, err := config.ParseDurationField("notify.retry_base", n.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notify.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	retention, err := config.ParseDurationField("notify.dedup_retention", n.DedupRetention)
	if err != nil {
		return notify.Config{}, err
	}

	var loc *time.Location
	if raw := strings.TrimSpace(n.DisplayUTCOffset); raw != "" {
		// Offsets may be negative, so this field bypasses ParseDurationField.
		off, err := time.ParseDuration(raw)
		if err != nil {
			return notify.Config{}, fmt.Errorf("notify.display_utc_offset: invalid duration %q: %w", raw, err)
		}
		loc = time.FixedZone("display", int(off.Seconds()))
	}

	return notify.Config{
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		ChannelID:       cfg.Telegram.ChannelID,
		DedupRetention:  retention,
		KeyPolicy:       notify.KeyPolicy{IncludePlayers: n.DedupIncludePlayers},
		DisplayLocation: loc,
	}, nil
}
