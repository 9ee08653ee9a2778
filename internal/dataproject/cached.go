package dataproject

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"lineupwatch/internal/cachestore"
	"lineupwatch/internal/domain"
	"lineupwatch/internal/federation"
	"lineupwatch/pkg/logx"
)

// TTLPolicy fixes how long each upstream answer stays valid. The spread
// follows how fast each dataset actually moves: the scoreboard and match data
// churn within a scan cycle, rosters change between matchdays, competitions
// once a season.
type TTLPolicy struct {
	Scoreboard   time.Duration `json:"scoreboard"`
	MatchStates  time.Duration `json:"matchStates"`
	MatchRoster  time.Duration `json:"matchRoster"`
	TeamRoster   time.Duration `json:"teamRoster"`
	Teams        time.Duration `json:"teams"`
	Competitions time.Duration `json:"competitions"`
	Statistics   time.Duration `json:"statistics"`
}

func (p TTLPolicy) withDefaults() TTLPolicy {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&p.Scoreboard, 20*time.Second)
	def(&p.MatchStates, 30*time.Second)
	def(&p.MatchRoster, 10*time.Second)
	def(&p.TeamRoster, 6*time.Minute)
	def(&p.Teams, 6*time.Minute)
	def(&p.Competitions, 12*time.Hour)
	def(&p.Statistics, time.Hour)
	return p
}

// CachedFetcher decorates a Fetcher with cache-aside TTL caching. Because
// composite flows take a Fetcher, wrapping the raw client here shields every
// intermediate step of those flows too.
//
// LiveLineup is deliberately a passthrough: activity data must never be
// stale, and the composite's exactly-twelve guard depends on seeing the real
// current answer. Errors are never cached.
type CachedFetcher struct {
	inner Fetcher
	store cachestore.Store
	log   logx.Logger

	ttlMu sync.Mutex
	ttl   TTLPolicy
}

func NewCachedFetcher(inner Fetcher, store cachestore.Store, ttl TTLPolicy, log logx.Logger) *CachedFetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CachedFetcher{
		inner: inner,
		store: store,
		ttl:   ttl.withDefaults(),
		log:   log.With(logx.String("federation", inner.Federation().Slug)),
	}
}

var _ Fetcher = (*CachedFetcher)(nil)

// Apply hot-swaps the TTL policy. In-flight reads keep the policy they
// started with; already-cached entries keep their original expiry.
func (c *CachedFetcher) Apply(ttl TTLPolicy) {
	c.ttlMu.Lock()
	c.ttl = ttl.withDefaults()
	c.ttlMu.Unlock()
}

func (c *CachedFetcher) policy() TTLPolicy {
	c.ttlMu.Lock()
	defer c.ttlMu.Unlock()
	return c.ttl
}

func (c *CachedFetcher) Federation() federation.Info { return c.inner.Federation() }

func (c *CachedFetcher) key(op string, args ...int) string {
	var sb strings.Builder
	sb.WriteString("dp:")
	sb.WriteString(c.inner.Federation().Slug)
	sb.WriteString(":")
	sb.WriteString(op)
	for _, a := range args {
		sb.WriteString(":")
		sb.WriteString(strconv.Itoa(a))
	}
	return sb.String()
}

// through implements the cache-aside read path: cache hit wins, a miss (or a
// broken cache) falls through to fetch, and only a successful fetch is
// written back. Cache write failures cost nothing but the next hit.
func through[T any](ctx context.Context, c *CachedFetcher, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", logx.String("key", key), logx.Err(err))
	} else if ok {
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v, nil
		}
		c.log.Warn("cache entry undecodable; refetching", logx.String("key", key))
	}

	v, err := fetch(ctx)
	if err != nil {
		return zero, err
	}

	if buf, err := json.Marshal(v); err == nil {
		if err := c.store.Set(ctx, key, string(buf), ttl); err != nil {
			c.log.Warn("cache write failed", logx.String("key", key), logx.Err(err))
		}
	}
	return v, nil
}

func (c *CachedFetcher) Scoreboard(ctx context.Context) ([]ScoreboardMatch, error) {
	return through(ctx, c, c.key("scoreboard"), c.policy().Scoreboard, c.inner.Scoreboard)
}

func (c *CachedFetcher) MatchStates(ctx context.Context, matchIDs []int) ([]MatchState, error) {
	return through(ctx, c, c.key("states", matchIDs...), c.policy().MatchStates, func(ctx context.Context) ([]MatchState, error) {
		return c.inner.MatchStates(ctx, matchIDs)
	})
}

func (c *CachedFetcher) MatchRoster(ctx context.Context, matchID, teamID, competitionID int) ([]domain.Player, error) {
	return through(ctx, c, c.key("matchroster", matchID, teamID, competitionID), c.policy().MatchRoster, func(ctx context.Context) ([]domain.Player, error) {
		return c.inner.MatchRoster(ctx, matchID, teamID, competitionID)
	})
}

// LiveLineup bypasses the cache; see the type comment.
func (c *CachedFetcher) LiveLineup(ctx context.Context, matchID int) ([]LineupEntry, error) {
	return c.inner.LiveLineup(ctx, matchID)
}

func (c *CachedFetcher) TeamRoster(ctx context.Context, teamID, competitionID int) ([]domain.Player, error) {
	return through(ctx, c, c.key("teamroster", teamID, competitionID), c.policy().TeamRoster, func(ctx context.Context) ([]domain.Player, error) {
		return c.inner.TeamRoster(ctx, teamID, competitionID)
	})
}

func (c *CachedFetcher) Teams(ctx context.Context, competitionID int) ([]domain.Team, error) {
	return through(ctx, c, c.key("teams", competitionID), c.policy().Teams, func(ctx context.Context) ([]domain.Team, error) {
		return c.inner.Teams(ctx, competitionID)
	})
}

func (c *CachedFetcher) AllTeams(ctx context.Context) ([]domain.Team, error) {
	return through(ctx, c, c.key("allteams"), c.policy().Teams, c.inner.AllTeams)
}

func (c *CachedFetcher) Competitions(ctx context.Context) ([]domain.Competition, error) {
	return through(ctx, c, c.key("competitions"), c.policy().Competitions, c.inner.Competitions)
}

func (c *CachedFetcher) CompetitionByID(ctx context.Context, id int) (*domain.Competition, error) {
	return through(ctx, c, c.key("competition", id), c.policy().Competitions, func(ctx context.Context) (*domain.Competition, error) {
		return c.inner.CompetitionByID(ctx, id)
	})
}

func (c *CachedFetcher) CompetitionStatistics(ctx context.Context, competitionID int) ([]domain.PlayerStatistic, error) {
	return through(ctx, c, c.key("stats", competitionID), c.policy().Statistics, func(ctx context.Context) ([]domain.PlayerStatistic, error) {
		return c.inner.CompetitionStatistics(ctx, competitionID)
	})
}

// PlayerStatistic re-derives from the cached competition grid instead of
// delegating, so one grid fetch serves every player lookup within the TTL.
func (c *CachedFetcher) PlayerStatistic(ctx context.Context, playerID, teamID, competitionID int) (*domain.PlayerStatistic, error) {
	all, err := c.CompetitionStatistics(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("player %d: %w", playerID, err)
	}
	return selectStatistic(all, playerID, teamID), nil
}
